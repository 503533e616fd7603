package chrome

import "errors"

// Browser errors - returned while starting or using a capture context
var (
	ErrBrowserStart   = errors.New("browser start failed")
	ErrSessionClosed  = errors.New("capture context is closed")
	ErrNavigateFailed = errors.New("navigation failed")
	ErrStatusCapture  = errors.New("status capture failed")
	ErrScriptFailed   = errors.New("page script failed")
)
