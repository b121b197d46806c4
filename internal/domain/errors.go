package domain

var (
	ErrSessionBusy       = errString("scan session already active")
	ErrNoActiveSession   = errString("no active scan session")
	ErrInvalidCamera     = errString("invalid camera selector")
	ErrAutomation        = errString("automation fault")
	ErrElementTimeout    = errString("element not ready within timeout")
	ErrRemoteUnavailable = errString("remote unavailable")
	ErrNotFound          = errString("not found")
	ErrInvalidSpec       = errString("invalid job spec")
	ErrConversion        = errString("conversion failed")
	ErrTimeout           = errString("timed out")
)

type errString string

func (e errString) Error() string { return string(e) }
