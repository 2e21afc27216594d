package transcribe

import (
	"errors"
	"fmt"
)

var (
	// ErrEngineNotReady indicates the speech engine cannot accept work yet.
	ErrEngineNotReady = errors.New("transcription engine not ready")

	// ErrAudioMissing indicates the recording's audio file is gone.
	ErrAudioMissing = errors.New("audio file missing")
)

// ChunkError reports the window that failed extraction or transcription
type ChunkError struct {
	Index int
	Total int
	Start float64
	End   float64
	Err   error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d/%d [%.0fs, %.0fs) failed: %v", e.Index+1, e.Total, e.Start, e.End, e.Err)
}

func (e *ChunkError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err left the recording pending rather than failed
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEngineNotReady)
}
