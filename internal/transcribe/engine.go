package transcribe

import "context"

// Engine is an offline speech recognizer. Implementations are not expected
// to be reentrant; the pipeline never calls Transcribe concurrently.
type Engine interface {
	Ready() bool
	Transcribe(ctx context.Context, audioPath, language string) (string, error)
}

// Extractor materializes a time range of an audio file as a temporary file
type Extractor interface {
	ExtractRange(ctx context.Context, path string, start, end float64) (string, error)
}
