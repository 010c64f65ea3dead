package policy

import "fmt"

// CeloAlfajoresChainID is the network the reference contract is deployed on.
const CeloAlfajoresChainID uint64 = 44787

type NetworkCheck struct {
	Current  uint64
	Expected uint64
	Mismatch bool
	Warning  string
}

// CheckNetwork is advisory: a mismatch yields a warning and never blocks an action.
// An expected id of zero disables the check.
func CheckNetwork(current, expected uint64) NetworkCheck {
	check := NetworkCheck{Current: current, Expected: expected}
	if expected == 0 || current == expected {
		return check
	}
	check.Mismatch = true
	check.Warning = fmt.Sprintf("wallet is connected to chain %d, expected chain %d", current, expected)
	return check
}
