package export

import (
	"errors"
	"fmt"
)

var (
	// ErrExportInProgress is returned by Session.Start while another export
	// of the same session is running.
	ErrExportInProgress = errors.New("an export is already in progress")
	// ErrCancelled marks an export stopped through its context or Job.Cancel.
	ErrCancelled = errors.New("export cancelled")
	// ErrEmptyTimeline is returned when there is nothing to encode.
	ErrEmptyTimeline = errors.New("timeline is empty")
)

// AssetLoadError reports a clip whose source could not be read.
type AssetLoadError struct {
	ClipID string
	Source string
	Err    error
}

func (e *AssetLoadError) Error() string {
	return fmt.Sprintf("load source %q for clip %s: %v", e.Source, e.ClipID, e.Err)
}

func (e *AssetLoadError) Unwrap() error { return e.Err }

// EncoderInitError reports that the encoder could not be started at all.
type EncoderInitError struct {
	Err error
}

func (e *EncoderInitError) Error() string {
	return fmt.Sprintf("encoder init: %v", e.Err)
}

func (e *EncoderInitError) Unwrap() error { return e.Err }

// EncodeError reports a failed encode. Diagnostics holds the tail of the
// encoder's own output.
type EncodeError struct {
	Diagnostics []string
	Err         error
}

func (e *EncodeError) Error() string {
	if len(e.Diagnostics) == 0 {
		return fmt.Sprintf("encode: %v", e.Err)
	}
	return fmt.Sprintf("encode: %v: %s", e.Err, e.Diagnostics[len(e.Diagnostics)-1])
}

func (e *EncodeError) Unwrap() error { return e.Err }
