package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/whispernote/internal/audio"
	"github.com/audiolibrelab/whispernote/internal/config"
	"github.com/audiolibrelab/whispernote/internal/lifecycle"
	"github.com/audiolibrelab/whispernote/internal/play"
	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/audiolibrelab/whispernote/internal/storage"
	"github.com/audiolibrelab/whispernote/internal/transcribe"
)

// Service represents the core WhisperNote service interface
type Service interface {
	// Recording operations
	StartRecording() error
	PauseRecording() error
	ResumeRecording() error
	StopRecording() (*recording.Recording, error)
	GetRecordingStatus() RecordingStatus
	EnterBackground()
	EnterForeground()

	// Library operations
	List(sortBy recording.SortOption) ([]recording.Recording, error)
	Find(key string) (recording.Recording, error)
	Rename(key, newName string) (recording.Recording, error)
	Delete(key string) error

	// Transcript operations
	Transcript(key string) (string, error)
	SaveEditedTranscript(key, text string) (recording.Recording, error)
	ExportText(key string) (string, error)

	// Transcription operations
	Reconcile() (ReconcileReport, error)
	Transcribe(keys ...string) (int, error)
	TranscribePending() (int, error)
	RetryFailed() (int, error)
	Drain(ctx context.Context) []transcribe.Result
	RunPipeline(ctx context.Context)
	GetPipelineStatus() PipelineStatus
	SetAutoTranscribe(enabled bool)
	AutoTranscribe() bool

	// Maintenance operations
	Usage() (UsageInfo, error)
	Cleanup(olderThanDays int, dryRun bool) (CleanupReport, error)
	StartRetention(ctx context.Context) error

	// Playback operations
	Play(key string) error

	// Configuration operations
	GetConfig() *config.Config
	GetLastError() string
}

// RecordingStatus is a snapshot of the capture session for display
type RecordingStatus struct {
	State   audio.State   `json:"state"`
	Elapsed time.Duration `json:"elapsed"`
	Level   float64       `json:"level"`
}

// PipelineStatus is a snapshot of the transcription queue
type PipelineStatus struct {
	Ready    bool                `json:"ready"`
	Queued   int                 `json:"queued"`
	Progress transcribe.Progress `json:"progress"`
}

// ReconcileReport summarizes the startup reconciliation
type ReconcileReport struct {
	Recovered int `json:"recovered"`
	Enqueued  int `json:"enqueued"`
}

// WhisperNoteService is the main service implementation. It owns the
// store, the recorder and the pipeline and routes finished recordings
// into the transcription queue.
type WhisperNoteService struct {
	cfg      *config.Config
	store    *storage.Store
	recorder *audio.Recorder
	pipeline *transcribe.Pipeline
	player   *play.Player
	now      func() time.Time

	autoTranscribe atomic.Bool

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a WhisperNote service backed by ffmpeg capture and the
// whisper CLI engine
func New(cfg *config.Config) (Service, error) {
	prober := audio.NewFFprobe()
	store, err := storage.New(cfg.Data.Directory, cfg.Audio.Format, prober)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	recorder := audio.NewRecorder(audio.NewFFmpegCapturer(cfg.Audio, prober), store, audio.Options{
		Language:    cfg.Transcription.Language,
		GracePeriod: time.Duration(cfg.Background.GraceSeconds) * time.Second,
		Host:        lifecycle.NewHost(),
	})

	s := &WhisperNoteService{cfg: cfg, store: store, recorder: recorder}

	engine := transcribe.NewWhisperCLI(cfg.Transcription.Command, cfg.Transcription.Model, cfg.Transcription.ModelDir)
	s.pipeline = transcribe.NewPipeline(engine, audio.NewExtractor(""), store, transcribe.Options{
		ChunkSeconds: float64(cfg.Transcription.ChunkSeconds),
		OnProgress: func(p transcribe.Progress) {
			if p.Total > 0 {
				slog.Debug("Transcription progress", "key", p.Key, "completed", p.Completed, "total", p.Total)
			}
		},
		OnResult: s.recordResult,
	})

	s.init()
	return s, nil
}

// NewWithComponents creates a service from already constructed parts.
// Pipeline results are only reported through the pipeline's own options.
func NewWithComponents(cfg *config.Config, store *storage.Store, recorder *audio.Recorder, pipeline *transcribe.Pipeline) *WhisperNoteService {
	s := &WhisperNoteService{cfg: cfg, store: store, recorder: recorder, pipeline: pipeline}
	s.init()
	return s
}

func (s *WhisperNoteService) init() {
	s.player = play.New()
	s.now = time.Now
	s.autoTranscribe.Store(s.cfg.Transcription.AutoTranscribe)
	s.recorder.Subscribe(s.handleRecorderEvent)
}

// handleRecorderEvent queues freshly saved recordings when auto
// transcription is on and the engine can take them
func (s *WhisperNoteService) handleRecorderEvent(ev audio.Event) {
	switch ev.Type {
	case audio.EventSaved:
		if ev.Recording == nil {
			return
		}
		if !s.autoTranscribe.Load() {
			slog.Debug("Auto transcription disabled, leaving recording pending", "key", ev.Recording.Filename)
			return
		}
		if !s.pipeline.Ready() {
			slog.Warn("Transcription engine not ready, leaving recording pending", "key", ev.Recording.Filename)
			return
		}
		s.pipeline.Enqueue(*ev.Recording)
	case audio.EventSaveFailed:
		s.setLastError(fmt.Sprintf("Failed to save recording: %v", ev.Err))
	}
}

func (s *WhisperNoteService) recordResult(res transcribe.Result) {
	if res.Err != nil {
		s.setLastError(fmt.Sprintf("Transcription of %s failed: %v", res.Recording.Filename, res.Err))
	}
}

// StartRecording begins a new capture session
func (s *WhisperNoteService) StartRecording() error {
	slog.Debug("Service.StartRecording called")
	s.clearLastError()
	if err := s.recorder.Start(); err != nil {
		s.setLastError(fmt.Sprintf("Failed to start recording: %v", err))
		return err
	}
	return nil
}

// PauseRecording suspends the active session
func (s *WhisperNoteService) PauseRecording() error {
	return s.recorder.Pause()
}

// ResumeRecording continues a paused session
func (s *WhisperNoteService) ResumeRecording() error {
	return s.recorder.Resume()
}

// StopRecording finalizes the session and persists it as pending. It
// returns nil without error when nothing was recording.
func (s *WhisperNoteService) StopRecording() (*recording.Recording, error) {
	rec, err := s.recorder.Stop()
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to stop recording: %v", err))
		return nil, err
	}
	s.clearLastError()
	return rec, nil
}

// GetRecordingStatus returns the current recorder state and telemetry
func (s *WhisperNoteService) GetRecordingStatus() RecordingStatus {
	return RecordingStatus{
		State:   s.recorder.State(),
		Elapsed: s.recorder.Elapsed(),
		Level:   s.recorder.Level(),
	}
}

// EnterBackground forwards the host notification to the recorder
func (s *WhisperNoteService) EnterBackground() {
	s.recorder.EnterBackground()
}

// EnterForeground forwards the host notification to the recorder
func (s *WhisperNoteService) EnterForeground() {
	s.recorder.EnterForeground()
}

// List returns all readable recordings in the requested order
func (s *WhisperNoteService) List(sortBy recording.SortOption) ([]recording.Recording, error) {
	recs, err := s.store.ListAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	recording.Sort(recs, sortBy)
	return recs, nil
}

// Find loads one recording by key
func (s *WhisperNoteService) Find(key string) (recording.Recording, error) {
	return s.store.Load(key)
}

// Rename moves a recording to a new key
func (s *WhisperNoteService) Rename(key, newName string) (recording.Recording, error) {
	rec, err := s.store.Load(key)
	if err != nil {
		return rec, err
	}
	renamed, err := s.store.Rename(rec, newName)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to rename %s: %v", key, err))
		return renamed, err
	}
	return renamed, nil
}

// Delete removes a recording. A record whose metadata cannot be decoded is
// still deleted by key.
func (s *WhisperNoteService) Delete(key string) error {
	rec, err := s.store.Load(key)
	if errors.Is(err, storage.ErrCorrupt) {
		rec = recording.Recording{Filename: key}
	} else if err != nil {
		return err
	}

	if err := s.store.Delete(rec); err != nil {
		s.setLastError(fmt.Sprintf("Failed to delete %s: %v", key, err))
		return err
	}
	return nil
}

// Reconcile repairs state left by an interrupted run. Recordings stuck in
// processing are marked failed so they can be retried, and pending ones are
// queued when auto transcription is on.
func (s *WhisperNoteService) Reconcile() (ReconcileReport, error) {
	var report ReconcileReport

	recs, err := s.store.ListAll()
	if err != nil {
		return report, fmt.Errorf("failed to list recordings: %w", err)
	}

	for i, rec := range recs {
		if rec.Status != recording.StatusProcessing {
			continue
		}
		updated, err := s.store.Update(rec.ID, func(r *recording.Recording) error {
			return r.SetStatus(recording.StatusFailed)
		})
		if err != nil {
			slog.Warn("Failed to recover interrupted transcription", "key", rec.Filename, "error", err)
			continue
		}
		recs[i] = updated
		report.Recovered++
		slog.Info("Recovered interrupted transcription", "key", rec.Filename)
	}

	if s.autoTranscribe.Load() && s.pipeline.Ready() {
		report.Enqueued = s.pipeline.EnqueueBatch(recs)
	}
	return report, nil
}

// Transcribe queues the recordings with the given keys and returns how
// many were added. Completed recordings are skipped.
func (s *WhisperNoteService) Transcribe(keys ...string) (int, error) {
	added := 0
	for _, key := range keys {
		rec, err := s.store.Load(key)
		if err != nil {
			return added, err
		}
		if rec.Status == recording.StatusCompleted {
			slog.Info("Recording already transcribed", "key", key)
			continue
		}
		if s.pipeline.Enqueue(rec) {
			added++
		}
	}
	return added, nil
}

// TranscribePending queues every pending recording
func (s *WhisperNoteService) TranscribePending() (int, error) {
	recs, err := s.store.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list recordings: %w", err)
	}
	return s.pipeline.EnqueueBatch(recs), nil
}

// RetryFailed queues every failed recording
func (s *WhisperNoteService) RetryFailed() (int, error) {
	recs, err := s.store.ListAll()
	if err != nil {
		return 0, fmt.Errorf("failed to list recordings: %w", err)
	}

	added := 0
	for _, rec := range recs {
		if rec.Status == recording.StatusFailed && s.pipeline.Enqueue(rec) {
			added++
		}
	}
	return added, nil
}

// Drain processes the queue until it is empty
func (s *WhisperNoteService) Drain(ctx context.Context) []transcribe.Result {
	return s.pipeline.Drain(ctx)
}

// RunPipeline keeps draining the queue as work arrives until ctx is done
func (s *WhisperNoteService) RunPipeline(ctx context.Context) {
	s.pipeline.Run(ctx)
}

// GetPipelineStatus returns the queue length and current progress
func (s *WhisperNoteService) GetPipelineStatus() PipelineStatus {
	return PipelineStatus{
		Ready:    s.pipeline.Ready(),
		Queued:   s.pipeline.Len(),
		Progress: s.pipeline.Progress(),
	}
}

// SetAutoTranscribe toggles queueing of newly saved recordings
func (s *WhisperNoteService) SetAutoTranscribe(enabled bool) {
	if s.autoTranscribe.Swap(enabled) != enabled {
		slog.Info("Auto transcription changed", "enabled", enabled)
	}
}

// AutoTranscribe reports whether new recordings are queued automatically
func (s *WhisperNoteService) AutoTranscribe() bool {
	return s.autoTranscribe.Load()
}

// Play plays the audio of a stored recording
func (s *WhisperNoteService) Play(key string) error {
	rec, err := s.store.Load(key)
	if err != nil {
		return err
	}
	return s.player.Play(rec.AudioPath)
}

// GetConfig returns the current configuration
func (s *WhisperNoteService) GetConfig() *config.Config {
	return s.cfg
}

// GetLastError returns the last error message (thread-safe)
func (s *WhisperNoteService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

// setLastError sets the last error message (thread-safe)
func (s *WhisperNoteService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

// clearLastError clears the last error message (thread-safe)
func (s *WhisperNoteService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}
