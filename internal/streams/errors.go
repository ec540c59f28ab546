package streams

import (
	"errors"
	"fmt"
)

// ErrCorruptedFile marks an inbox file that could not be decrypted
// with any configured key or could not be unpacked. The ingester
// quarantines the file.
var ErrCorruptedFile = errors.New("corrupted file")

// ParseError marks a structurally unexpected stream. The whole file is
// quarantined; no partial emission happens.
type ParseError struct {
	File string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
