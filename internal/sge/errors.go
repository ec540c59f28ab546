package sge

import "errors"

// Error is the normalized upstream error shape. SOAP faults carry the
// vendor result code (like SGT570); transport-level failures carry the
// HTTP status as code.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// ErrorCode extracts the vendor code from an upstream error chain,
// empty when err is not an upstream error.
func ErrorCode(err error) string {
	var sgeErr *Error
	if errors.As(err, &sgeErr) {
		return sgeErr.Code
	}
	return ""
}

// IsAlreadyActive reports whether the DSO refused a subscribe because
// the same collection order is already running (code SGT570). The
// subscribe handler absorbs it.
func IsAlreadyActive(err error) bool {
	return ErrorCode(err) == "SGT570"
}
