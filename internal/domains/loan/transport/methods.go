package transport

const (
	MethodLoanRequest       = "loan.request"
	MethodLoanFund          = "loan.fund"
	MethodLoanRepay         = "loan.repay"
	MethodLoanListActive    = "loan.list_active"
	MethodLoanListRequested = "loan.list_requested"
	MethodLoanListFunded    = "loan.list_funded"
	MethodLoanViews         = "loan.views"
	MethodViewForm          = "view.form"
	MethodViewRequested     = "view.requested"
	MethodViewFunded        = "view.funded"
	MethodSessionGet        = "session.get"
	MethodActionCurrent     = "action.current"
	MethodNetworkStatus     = "network.status"
)

// Notification methods published on the event stream.
const (
	NotifyActionSucceeded = "loan.action.succeeded"
	NotifyActionFailed    = "loan.action.failed"
	NotifyActionBusy      = "loan.action.busy"
	NotifyNetworkMismatch = "network.mismatch"
)

// Mutations submit ledger transactions; everything else only reads.
var (
	Mutations = []string{MethodLoanRequest, MethodLoanFund, MethodLoanRepay}
	Reads     = []string{
		MethodLoanListActive, MethodLoanListRequested, MethodLoanListFunded, MethodLoanViews,
		MethodViewForm, MethodViewRequested, MethodViewFunded,
		MethodSessionGet, MethodActionCurrent, MethodNetworkStatus,
	}
	Notifications = []string{NotifyActionSucceeded, NotifyActionFailed, NotifyActionBusy, NotifyNetworkMismatch}
)
