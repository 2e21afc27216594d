package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"
)

// UsageInfo reports how much disk space the library occupies
type UsageInfo struct {
	Recordings int    `json:"recordings"`
	Bytes      int64  `json:"bytes"`
	BytesHuman string `json:"bytes_human"`
}

// CleanupFailure records one recording that could not be removed
type CleanupFailure struct {
	Key string `json:"key"`
	Err string `json:"error"`
}

// CleanupReport describes a cleanup plan and, unless it was a dry run,
// its outcome
type CleanupReport struct {
	Cutoff     time.Time             `json:"cutoff"`
	DryRun     bool                  `json:"dry_run"`
	Candidates []recording.Recording `json:"candidates"`
	Estimated  int64                 `json:"estimated_bytes"`
	Deleted    int                   `json:"deleted"`
	Freed      int64                 `json:"freed_bytes"`
	Failures   []CleanupFailure      `json:"failures,omitempty"`
}

// Summary returns a one-line description of the report
func (r CleanupReport) Summary() string {
	if r.DryRun {
		return fmt.Sprintf("Would delete %d recordings older than %s, freeing about %s",
			len(r.Candidates), r.Cutoff.Format("2006-01-02"), humanize.Bytes(uint64(r.Estimated)))
	}
	summary := fmt.Sprintf("Deleted %d of %d recordings, freed %s",
		r.Deleted, len(r.Candidates), humanize.Bytes(uint64(r.Freed)))
	if len(r.Failures) > 0 {
		summary += fmt.Sprintf(" (%d failed)", len(r.Failures))
	}
	return summary
}

// Usage returns the number of recordings and the total size of the data root
func (s *WhisperNoteService) Usage() (UsageInfo, error) {
	recs, err := s.store.ListAll()
	if err != nil {
		return UsageInfo{}, fmt.Errorf("failed to list recordings: %w", err)
	}
	total, err := s.store.Usage()
	if err != nil {
		return UsageInfo{}, fmt.Errorf("failed to compute usage: %w", err)
	}
	return UsageInfo{
		Recordings: len(recs),
		Bytes:      total,
		BytesHuman: humanize.Bytes(uint64(total)),
	}, nil
}

// Cleanup deletes recordings captured more than olderThanDays ago. A dry
// run only reports what would be removed. Individual failures are recorded
// in the report and do not stop the cleanup.
func (s *WhisperNoteService) Cleanup(olderThanDays int, dryRun bool) (CleanupReport, error) {
	if olderThanDays <= 0 {
		return CleanupReport{}, fmt.Errorf("cleanup age must be positive, got: %d days", olderThanDays)
	}

	report := CleanupReport{
		Cutoff: s.now().Add(-time.Duration(olderThanDays) * 24 * time.Hour),
		DryRun: dryRun,
	}

	recs, err := s.store.ListAll()
	if err != nil {
		return report, fmt.Errorf("failed to list recordings: %w", err)
	}

	for _, rec := range recs {
		if rec.RecordedAt.Before(report.Cutoff) {
			report.Candidates = append(report.Candidates, rec)
			report.Estimated += s.footprint(rec)
		}
	}

	if dryRun {
		slog.Info("Cleanup dry run", "candidates", len(report.Candidates), "bytes", humanize.Bytes(uint64(report.Estimated)))
		return report, nil
	}

	for _, rec := range report.Candidates {
		size := s.footprint(rec)
		if err := s.store.Delete(rec); err != nil {
			slog.Warn("Failed to delete recording during cleanup", "key", rec.Filename, "error", err)
			report.Failures = append(report.Failures, CleanupFailure{Key: rec.Filename, Err: err.Error()})
			continue
		}
		report.Deleted++
		report.Freed += size
	}

	slog.Info("Cleanup finished", "deleted", report.Deleted, "failed", len(report.Failures), "freed", humanize.Bytes(uint64(report.Freed)))
	return report, nil
}

// footprint is the on-disk size of a recording's audio and transcript
func (s *WhisperNoteService) footprint(rec recording.Recording) int64 {
	size := s.store.FileSize(rec.AudioPath)
	if rec.TranscriptPath != "" {
		if info, err := os.Stat(rec.TranscriptPath); err == nil {
			size += info.Size()
		}
	}
	return size
}

// StartRetention schedules the configured cleanup and stops the scheduler
// when ctx is done. It is a no-op when retention is disabled.
func (s *WhisperNoteService) StartRetention(ctx context.Context) error {
	retention := s.cfg.Retention
	if !retention.Enabled {
		slog.Debug("Retention disabled")
		return nil
	}

	scheduler := cron.New()
	_, err := scheduler.AddFunc(retention.Schedule, func() {
		report, err := s.Cleanup(retention.Days, false)
		if err != nil {
			s.setLastError(fmt.Sprintf("Scheduled cleanup failed: %v", err))
			return
		}
		slog.Info("Scheduled cleanup", "summary", report.Summary())
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", retention.Schedule, err)
	}

	scheduler.Start()
	slog.Info("Retention scheduled", "schedule", retention.Schedule, "days", retention.Days)

	go func() {
		<-ctx.Done()
		<-scheduler.Stop().Done()
		slog.Debug("Retention scheduler stopped")
	}()
	return nil
}
