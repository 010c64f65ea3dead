package models

import "strings"

func NormalizeViewMode(raw string) ViewMode {
	switch ViewMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ViewMyRequests:
		return ViewMyRequests
	case ViewMyFundings:
		return ViewMyFundings
	default:
		return ViewRequestForm
	}
}

func ParseActionKind(raw string) (ActionKind, bool) {
	switch ActionKind(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionRequest:
		return ActionRequest, true
	case ActionFund:
		return ActionFund, true
	case ActionRepay:
		return ActionRepay, true
	default:
		return "", false
	}
}
