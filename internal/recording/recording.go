package recording

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Status is the transcription status of a recording
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// ParseStatus converts a persisted status string. Unknown values fall back to pending.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return Status(s)
	default:
		return StatusPending
	}
}

// DisplayName returns a human readable label
func (s Status) DisplayName() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusProcessing:
		return "Processing"
	case StatusCompleted:
		return "Completed"
	case StatusFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// CanTransitionTo reports whether moving from s to next is legal.
// Statuses only move forward, except failed which may be retried.
// Completed is reachable from pending and failed through a manual transcript edit.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing || next == StatusCompleted
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusProcessing || next == StatusCompleted
	case StatusCompleted:
		return false
	}
	return false
}

// Recording is a captured audio asset and its transcription state
type Recording struct {
	ID             uuid.UUID
	Filename       string
	RecordedAt     time.Time
	Duration       float64
	FileSize       int64
	Language       string
	Status         Status
	AudioPath      string
	TranscriptPath string
	TranscribedAt  *time.Time
}

// HasTranscript reports whether a transcript blob is attached
func (r Recording) HasTranscript() bool {
	return r.TranscriptPath != ""
}

// SetStatus applies a status change, rejecting illegal transitions
func (r *Recording) SetStatus(next Status) error {
	if r.Status == next {
		return nil
	}
	if !r.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal status transition %s -> %s", r.Status, next)
	}
	r.Status = next
	return nil
}

// Metadata is the persisted projection of a Recording. File paths are not
// stored; they are derived from Filename when the record is read back.
type Metadata struct {
	ID                  uuid.UUID  `json:"id"`
	Filename            string     `json:"filename"`
	RecordedAt          time.Time  `json:"recordedAt"`
	Duration            float64    `json:"duration"`
	FileSize            int64      `json:"fileSize"`
	Language            string     `json:"language"`
	TranscriptionStatus string     `json:"transcriptionStatus"`
	TranscribedAt       *time.Time `json:"transcribedAt"`
}

// NewMetadata builds the persisted record for r
func NewMetadata(r Recording) Metadata {
	return Metadata{
		ID:                  r.ID,
		Filename:            r.Filename,
		RecordedAt:          r.RecordedAt,
		Duration:            r.Duration,
		FileSize:            r.FileSize,
		Language:            r.Language,
		TranscriptionStatus: string(r.Status),
		TranscribedAt:       r.TranscribedAt,
	}
}

// ToRecording joins the record with its resolved paths
func (m Metadata) ToRecording(audioPath, transcriptPath string) Recording {
	return Recording{
		ID:             m.ID,
		Filename:       m.Filename,
		RecordedAt:     m.RecordedAt,
		Duration:       m.Duration,
		FileSize:       m.FileSize,
		Language:       m.Language,
		Status:         ParseStatus(m.TranscriptionStatus),
		AudioPath:      audioPath,
		TranscriptPath: transcriptPath,
		TranscribedAt:  m.TranscribedAt,
	}
}

// SortOption selects the ordering of a recording listing
type SortOption string

const (
	SortByDate     SortOption = "date"
	SortByDuration SortOption = "duration"
	SortBySize     SortOption = "size"
)

// ParseSortOption validates a sort option name
func ParseSortOption(s string) (SortOption, error) {
	switch SortOption(s) {
	case "", SortByDate:
		return SortByDate, nil
	case SortByDuration, SortBySize:
		return SortOption(s), nil
	default:
		return "", fmt.Errorf("unknown sort option %q (valid: date, duration, size)", s)
	}
}

// Sort orders recordings in place, largest value first
func Sort(recs []Recording, by SortOption) {
	switch by {
	case SortByDuration:
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Duration > recs[j].Duration })
	case SortBySize:
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].FileSize > recs[j].FileSize })
	default:
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].RecordedAt.After(recs[j].RecordedAt) })
	}
}

// FormatDuration renders seconds as HH:MM:SS, or MM:SS below one hour
func FormatDuration(seconds float64) string {
	total := int(seconds)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
