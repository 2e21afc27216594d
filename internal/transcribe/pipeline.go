package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/google/uuid"
)

// Store is the part of the storage layer the pipeline reads and writes
type Store interface {
	Update(id uuid.UUID, fn func(r *recording.Recording) error) (recording.Recording, error)
	SaveTranscript(key, text string) error
	TranscriptPath(key string) string
}

// Progress reports how far the current recording has come
type Progress struct {
	RecordingID uuid.UUID
	Key         string
	Completed   int
	Total       int
}

// Fraction returns Completed/Total in 0..1
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Result is the outcome of processing one queued recording
type Result struct {
	RecordingID uuid.UUID
	Recording   recording.Recording
	Err         error
}

// Options configures a Pipeline
type Options struct {
	ChunkSeconds float64
	OnProgress   func(Progress)
	OnResult     func(Result)
}

// Pipeline is a single-consumer FIFO of recordings awaiting transcription.
// Enqueue is safe to call concurrently with Drain and Run.
type Pipeline struct {
	engine    Engine
	extractor Extractor
	store     Store
	chunk     float64

	onProgress func(Progress)
	onResult   func(Result)
	now        func() time.Time

	mutex    sync.Mutex
	queue    []uuid.UUID
	queued   map[uuid.UUID]bool
	inFlight uuid.UUID
	draining bool
	progress Progress
	wake     chan struct{}
}

// NewPipeline creates an empty pipeline
func NewPipeline(engine Engine, extractor Extractor, store Store, opts Options) *Pipeline {
	chunk := opts.ChunkSeconds
	if chunk <= 0 {
		chunk = DefaultChunkSeconds
	}
	return &Pipeline{
		engine:     engine,
		extractor:  extractor,
		store:      store,
		chunk:      chunk,
		onProgress: opts.OnProgress,
		onResult:   opts.OnResult,
		now:        time.Now,
		queued:     make(map[uuid.UUID]bool),
		wake:       make(chan struct{}, 1),
	}
}

// Ready reports whether the engine can accept work
func (p *Pipeline) Ready() bool {
	return p.engine.Ready()
}

// Enqueue adds r to the back of the queue. Completed recordings and ones
// already queued or in flight are ignored. It reports whether r was added.
func (p *Pipeline) Enqueue(r recording.Recording) bool {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if r.Status == recording.StatusCompleted || p.queued[r.ID] || p.inFlight == r.ID {
		return false
	}

	p.queue = append(p.queue, r.ID)
	p.queued[r.ID] = true
	slog.Debug("Recording queued for transcription", "key", r.Filename, "position", len(p.queue))

	select {
	case p.wake <- struct{}{}:
	default:
	}
	return true
}

// EnqueueBatch queues every pending recording in recs and returns how many
// were added.
func (p *Pipeline) EnqueueBatch(recs []recording.Recording) int {
	added := 0
	for _, r := range recs {
		if r.Status != recording.StatusPending {
			continue
		}
		if p.Enqueue(r) {
			added++
		}
	}
	return added
}

// Len returns the number of queued recordings, excluding the one in flight
func (p *Pipeline) Len() int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return len(p.queue)
}

// Progress returns the progress of the recording being processed
func (p *Pipeline) Progress() Progress {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.progress
}

// Drain processes queued recordings in order until the queue is empty, the
// engine is not ready, or ctx is done. A failure is reported in its Result
// and does not stop the drain. A call made while another drain is running
// returns nil immediately.
func (p *Pipeline) Drain(ctx context.Context) []Result {
	p.mutex.Lock()
	if p.draining {
		p.mutex.Unlock()
		return nil
	}
	p.draining = true
	p.mutex.Unlock()

	defer func() {
		p.mutex.Lock()
		p.draining = false
		p.inFlight = uuid.Nil
		p.mutex.Unlock()
	}()

	var results []Result
	for ctx.Err() == nil {
		id, ok := p.next()
		if !ok {
			break
		}

		rec, err := p.ProcessOne(ctx, id)
		if errors.Is(err, ErrEngineNotReady) {
			p.requeueFront(id)
			slog.Warn("Transcription engine not ready, pausing queue", "remaining", p.Len())
			break
		}

		res := Result{RecordingID: id, Recording: rec, Err: err}
		if err != nil {
			slog.Error("Transcription failed", "id", id, "key", rec.Filename, "error", err)
		}
		results = append(results, res)
		if p.onResult != nil {
			p.onResult(res)
		}
	}
	return results
}

// Run drains the queue whenever work is enqueued until ctx is done
func (p *Pipeline) Run(ctx context.Context) {
	for {
		p.Drain(ctx)
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}
	}
}

func (p *Pipeline) next() (uuid.UUID, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if len(p.queue) == 0 {
		p.inFlight = uuid.Nil
		return uuid.Nil, false
	}
	id := p.queue[0]
	p.queue = p.queue[1:]
	delete(p.queued, id)
	p.inFlight = id
	return id, true
}

func (p *Pipeline) requeueFront(id uuid.UUID) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.inFlight == id {
		p.inFlight = uuid.Nil
	}
	if p.queued[id] {
		return
	}
	p.queue = append([]uuid.UUID{id}, p.queue...)
	p.queued[id] = true
}

// ProcessOne transcribes the recording with id. The status is persisted as
// processing before any audio work starts. Any window failure marks the
// recording failed and no transcript is written.
func (p *Pipeline) ProcessOne(ctx context.Context, id uuid.UUID) (recording.Recording, error) {
	if !p.engine.Ready() {
		return recording.Recording{}, ErrEngineNotReady
	}

	rec, err := p.store.Update(id, func(r *recording.Recording) error {
		return r.SetStatus(recording.StatusProcessing)
	})
	if err != nil {
		return rec, fmt.Errorf("failed to mark recording processing: %w", err)
	}

	slog.Info("Transcription started", "key", rec.Filename, "duration", recording.FormatDuration(rec.Duration))

	if _, err := os.Stat(rec.AudioPath); err != nil {
		cause := fmt.Errorf("%w: %s", ErrAudioMissing, rec.AudioPath)
		return p.fail(id, rec, cause)
	}

	windows := Split(rec.Duration, p.chunk)
	p.report(Progress{RecordingID: id, Key: rec.Filename, Total: len(windows)})

	parts := make([]string, 0, len(windows))
	for _, w := range windows {
		text, err := p.transcribeWindow(ctx, rec, w, len(windows))
		if err != nil {
			return p.fail(id, rec, &ChunkError{Index: w.Index, Total: len(windows), Start: w.Start, End: w.End, Err: err})
		}
		parts = append(parts, text)
		p.report(Progress{RecordingID: id, Key: rec.Filename, Completed: w.Index + 1, Total: len(windows)})
	}

	transcript := strings.TrimSpace(strings.Join(parts, " "))

	done, err := p.store.Update(id, func(r *recording.Recording) error {
		if err := p.store.SaveTranscript(r.Filename, transcript); err != nil {
			return fmt.Errorf("failed to save transcript: %w", err)
		}
		if err := r.SetStatus(recording.StatusCompleted); err != nil {
			return err
		}
		at := p.now()
		r.TranscribedAt = &at
		r.TranscriptPath = p.store.TranscriptPath(r.Filename)
		return nil
	})
	if err != nil {
		return p.fail(id, rec, err)
	}

	p.report(Progress{RecordingID: id, Key: done.Filename, Completed: len(windows), Total: len(windows)})
	slog.Info("Transcription completed", "key", done.Filename, "chunks", len(windows), "chars", len(transcript))
	return done, nil
}

// transcribeWindow runs the engine over one window. A single window covers
// the whole asset and is read in place; otherwise a temporary segment is cut
// and removed afterwards.
func (p *Pipeline) transcribeWindow(ctx context.Context, rec recording.Recording, w Window, total int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if total == 1 {
		return p.engine.Transcribe(ctx, rec.AudioPath, rec.Language)
	}

	segment, err := p.extractor.ExtractRange(ctx, rec.AudioPath, w.Start, w.End)
	if err != nil {
		return "", fmt.Errorf("extraction failed: %w", err)
	}
	defer func() {
		if err := os.Remove(segment); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to remove temporary segment", "path", segment, "error", err)
		}
	}()

	slog.Debug("Transcribing chunk", "key", rec.Filename, "chunk", w.Index+1, "of", total, "start", w.Start, "end", w.End)
	return p.engine.Transcribe(ctx, segment, rec.Language)
}

func (p *Pipeline) fail(id uuid.UUID, rec recording.Recording, cause error) (recording.Recording, error) {
	failed, err := p.store.Update(id, func(r *recording.Recording) error {
		return r.SetStatus(recording.StatusFailed)
	})
	if err != nil {
		slog.Error("Failed to persist failed status", "id", id, "error", err)
		failed = rec
	}
	p.report(Progress{})
	return failed, cause
}

func (p *Pipeline) report(pr Progress) {
	p.mutex.Lock()
	p.progress = pr
	p.mutex.Unlock()

	if p.onProgress != nil {
		p.onProgress(pr)
	}
}
