package service

import (
	"fmt"
	"strings"

	"github.com/audiolibrelab/whispernote/internal/recording"
)

// Transcript returns the stored transcript text of a recording
func (s *WhisperNoteService) Transcript(key string) (string, error) {
	if _, err := s.store.Load(key); err != nil {
		return "", err
	}
	return s.store.LoadTranscript(key)
}

// SaveEditedTranscript stores text as the transcript of key. A recording
// that was not yet completed becomes completed by the edit.
func (s *WhisperNoteService) SaveEditedTranscript(key, text string) (recording.Recording, error) {
	rec, err := s.store.Load(key)
	if err != nil {
		return rec, err
	}

	updated, err := s.store.Update(rec.ID, func(r *recording.Recording) error {
		if err := s.store.SaveTranscript(r.Filename, text); err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}
		r.TranscriptPath = s.store.TranscriptPath(r.Filename)
		if r.Status == recording.StatusCompleted {
			return nil
		}
		if err := r.SetStatus(recording.StatusCompleted); err != nil {
			return err
		}
		at := s.now()
		r.TranscribedAt = &at
		return nil
	})
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to save transcript of %s: %v", key, err))
		return updated, err
	}
	return updated, nil
}

// ExportText renders a recording's transcript as shareable plain text
func (s *WhisperNoteService) ExportText(key string) (string, error) {
	rec, err := s.store.Load(key)
	if err != nil {
		return "", err
	}
	text, err := s.store.LoadTranscript(rec.Filename)
	if err != nil {
		return "", err
	}
	return formatShareText(rec, text), nil
}

func formatShareText(rec recording.Recording, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Transcript: %s\n", rec.Filename)
	fmt.Fprintf(&b, "Date: %s\n", rec.RecordedAt.Local().Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Duration: %s\n", recording.FormatDuration(rec.Duration))
	b.WriteString("\n---\n\n")
	b.WriteString(strings.TrimSpace(transcript))
	b.WriteString("\n")
	return b.String()
}
