package transcribe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/audiolibrelab/whispernote/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEngine returns the content of the file it is given, so each segment
// produces a recognizable transcript.
type fakeEngine struct {
	mu      sync.Mutex
	ready   bool
	failOn  map[string]bool
	calls   []string
	langs   []string
	blockCh chan struct{}
}

func (e *fakeEngine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

func (e *fakeEngine) Transcribe(_ context.Context, path, language string) (string, error) {
	if e.blockCh != nil {
		<-e.blockCh
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	text := string(data)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)
	e.langs = append(e.langs, language)
	if e.failOn[text] {
		return "", errors.New("recognizer crashed")
	}
	return text, nil
}

type fakeExtractor struct {
	dir      string
	mu       sync.Mutex
	segments []string
	failAt   float64
}

func (x *fakeExtractor) ExtractRange(_ context.Context, _ string, start, end float64) (string, error) {
	if x.failAt > 0 && start == x.failAt {
		return "", errors.New("ffmpeg exploded")
	}
	path := filepath.Join(x.dir, fmt.Sprintf("seg-%.0f.wav", start))
	if err := os.WriteFile(path, []byte(fmt.Sprintf(" w%.0f-%.0f ", start, end)), 0644); err != nil {
		return "", err
	}
	x.mu.Lock()
	x.segments = append(x.segments, path)
	x.mu.Unlock()
	return path, nil
}

type fixture struct {
	store     *storage.Store
	engine    *fakeEngine
	extractor *fakeExtractor
	pipeline  *Pipeline
	progress  []Progress
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := storage.New(t.TempDir(), "m4a", nil)
	require.NoError(t, err)

	f := &fixture{
		store:     s,
		engine:    &fakeEngine{ready: true, failOn: map[string]bool{}},
		extractor: &fakeExtractor{dir: t.TempDir()},
	}
	f.pipeline = NewPipeline(f.engine, f.extractor, s, Options{
		ChunkSeconds: 300,
		OnProgress:   func(p Progress) { f.progress = append(f.progress, p) },
	})
	return f
}

func (f *fixture) addRecording(t *testing.T, key string, duration float64, audio string) recording.Recording {
	t.Helper()
	r := recording.Recording{
		ID:         uuid.New(),
		Filename:   key,
		RecordedAt: time.Now(),
		Duration:   duration,
		FileSize:   int64(len(audio)),
		Language:   "de",
		Status:     recording.StatusPending,
	}
	require.NoError(t, os.WriteFile(f.store.AudioPath(key), []byte(audio), 0644))
	require.NoError(t, f.store.Put(recording.NewMetadata(r)))
	loaded, err := f.store.Load(key)
	require.NoError(t, err)
	return loaded
}

func TestSplit(t *testing.T) {
	windows := Split(740, 300)
	require.Len(t, windows, 3)
	assert.Equal(t, Window{Index: 0, Start: 0, End: 300}, windows[0])
	assert.Equal(t, Window{Index: 1, Start: 300, End: 600}, windows[1])
	assert.Equal(t, Window{Index: 2, Start: 600, End: 740}, windows[2])

	assert.Len(t, Split(300, 300), 1)
	assert.Len(t, Split(600, 300), 2)
	assert.Equal(t, []Window{{Start: 0, End: 120}}, Split(120, 300))
	assert.Equal(t, []Window{{Start: 0, End: 0}}, Split(0, 300))
}

func TestProcessOne_ChunkedTranscriptJoined(t *testing.T) {
	f := newFixture(t)
	r := f.addRecording(t, "long", 740, "audio")

	done, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	require.NoError(t, err)

	assert.Equal(t, recording.StatusCompleted, done.Status)
	require.NotNil(t, done.TranscribedAt)
	assert.Equal(t, f.store.TranscriptPath("long"), done.TranscriptPath)

	text, err := f.store.LoadTranscript("long")
	require.NoError(t, err)
	assert.Equal(t, "w0-300   w300-600   w600-740", text)

	// Every temporary segment is removed
	for _, seg := range f.extractor.segments {
		assert.NoFileExists(t, seg)
	}
	assert.Equal(t, []string{"de", "de", "de"}, f.engine.langs)

	last := f.pipeline.Progress()
	assert.Equal(t, 1.0, last.Fraction())
}

func TestProcessOne_ShortRecordingReadsInPlace(t *testing.T) {
	f := newFixture(t)
	r := f.addRecording(t, "short", 42, "  hallo welt \n")

	done, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, recording.StatusCompleted, done.Status)
	assert.Empty(t, f.extractor.segments)

	text, err := f.store.LoadTranscript("short")
	require.NoError(t, err)
	assert.Equal(t, "hallo welt", text)
}

func TestProcessOne_EngineNotReadyLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.engine.ready = false
	r := f.addRecording(t, "wait", 10, "x")

	_, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrEngineNotReady)
	assert.True(t, IsRetryable(err))

	m, err := f.store.Get("wait")
	require.NoError(t, err)
	assert.Equal(t, "pending", m.TranscriptionStatus)
}

func TestProcessOne_ChunkFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.engine.failOn[" w300-600 "] = true
	r := f.addRecording(t, "broken", 740, "audio")

	_, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 1, chunkErr.Index)
	assert.Equal(t, 3, chunkErr.Total)

	m, err := f.store.Get("broken")
	require.NoError(t, err)
	assert.Equal(t, "failed", m.TranscriptionStatus)
	assert.NoFileExists(t, f.store.TranscriptPath("broken"))

	// The third window is never attempted
	assert.Len(t, f.engine.calls, 2)
	for _, seg := range f.extractor.segments {
		assert.NoFileExists(t, seg)
	}
}

func TestProcessOne_ExtractionFailureMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.extractor.failAt = 600
	r := f.addRecording(t, "cut", 740, "audio")

	_, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	var chunkErr *ChunkError
	require.ErrorAs(t, err, &chunkErr)
	assert.Equal(t, 2, chunkErr.Index)

	m, err := f.store.Get("cut")
	require.NoError(t, err)
	assert.Equal(t, "failed", m.TranscriptionStatus)
}

func TestProcessOne_MissingAudioMarksFailed(t *testing.T) {
	f := newFixture(t)
	r := f.addRecording(t, "ghost", 10, "x")
	require.NoError(t, os.Remove(r.AudioPath))

	_, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	assert.ErrorIs(t, err, ErrAudioMissing)

	m, err := f.store.Get("ghost")
	require.NoError(t, err)
	assert.Equal(t, "failed", m.TranscriptionStatus)
}

func TestProcessOne_FailedCanBeRetried(t *testing.T) {
	f := newFixture(t)
	f.engine.failOn["retry me"] = true
	r := f.addRecording(t, "retry", 10, "retry me")

	_, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	require.Error(t, err)

	f.engine.failOn["retry me"] = false
	done, err := f.pipeline.ProcessOne(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, recording.StatusCompleted, done.Status)
}

func TestEnqueue_Idempotent(t *testing.T) {
	f := newFixture(t)
	r := f.addRecording(t, "once", 10, "x")

	assert.True(t, f.pipeline.Enqueue(r))
	assert.False(t, f.pipeline.Enqueue(r))
	assert.Equal(t, 1, f.pipeline.Len())

	r.Status = recording.StatusCompleted
	other := r
	other.ID = uuid.New()
	assert.False(t, f.pipeline.Enqueue(other), "completed recordings are never queued")
}

func TestEnqueueBatch_OnlyPending(t *testing.T) {
	f := newFixture(t)
	pending := f.addRecording(t, "p", 10, "x")
	failed := f.addRecording(t, "f", 10, "x")
	failed.Status = recording.StatusFailed
	done := f.addRecording(t, "c", 10, "x")
	done.Status = recording.StatusCompleted

	added := f.pipeline.EnqueueBatch([]recording.Recording{pending, failed, done, pending})
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, f.pipeline.Len())
}

func TestDrain_FIFOAndFailureIsolation(t *testing.T) {
	f := newFixture(t)
	f.engine.failOn[" w300-600 "] = true

	first := f.addRecording(t, "first", 740, "audio")
	second := f.addRecording(t, "second", 20, "second text")
	third := f.addRecording(t, "third", 20, "third text")

	f.pipeline.Enqueue(first)
	f.pipeline.Enqueue(second)
	f.pipeline.Enqueue(third)

	results := f.pipeline.Drain(context.Background())
	require.Len(t, results, 3)

	assert.Equal(t, first.ID, results[0].RecordingID)
	assert.Error(t, results[0].Err)
	assert.Equal(t, second.ID, results[1].RecordingID)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, third.ID, results[2].RecordingID)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 0, f.pipeline.Len())

	m, err := f.store.Get("first")
	require.NoError(t, err)
	assert.Equal(t, "failed", m.TranscriptionStatus)
	m, err = f.store.Get("third")
	require.NoError(t, err)
	assert.Equal(t, "completed", m.TranscriptionStatus)
}

func TestDrain_EngineNotReadyKeepsQueue(t *testing.T) {
	f := newFixture(t)
	f.engine.ready = false
	r := f.addRecording(t, "later", 10, "x")
	f.pipeline.Enqueue(r)

	results := f.pipeline.Drain(context.Background())
	assert.Empty(t, results)
	assert.Equal(t, 1, f.pipeline.Len())

	f.engine.mu.Lock()
	f.engine.ready = true
	f.engine.mu.Unlock()

	results = f.pipeline.Drain(context.Background())
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestDrain_ReentrantCallSuppressed(t *testing.T) {
	f := newFixture(t)
	f.engine.blockCh = make(chan struct{})
	r := f.addRecording(t, "slow", 10, "slow")
	f.pipeline.Enqueue(r)

	done := make(chan []Result)
	go func() { done <- f.pipeline.Drain(context.Background()) }()

	require.Eventually(t, func() bool {
		f.pipeline.mutex.Lock()
		defer f.pipeline.mutex.Unlock()
		return f.pipeline.inFlight == r.ID
	}, time.Second, 5*time.Millisecond)

	assert.Nil(t, f.pipeline.Drain(context.Background()))
	assert.False(t, f.pipeline.Enqueue(r), "in-flight recording is not re-queued")

	close(f.engine.blockCh)
	results := <-done
	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
}

func TestRun_ProcessesEnqueuedWork(t *testing.T) {
	f := newFixture(t)
	seen := make(chan Result, 1)
	f.pipeline.onResult = func(r Result) { seen <- r }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.pipeline.Run(ctx)

	r := f.addRecording(t, "bg", 10, "background")
	f.pipeline.Enqueue(r)

	select {
	case res := <-seen:
		assert.NoError(t, res.Err)
		assert.Equal(t, r.ID, res.RecordingID)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not process enqueued recording")
	}
}

func TestWhisperArgs(t *testing.T) {
	w := NewWhisperCLI("", "", "/models")
	args := w.args("/tmp/seg.wav", "de", "/tmp/out")
	assert.Equal(t, "/tmp/seg.wav", args[0])
	assert.Contains(t, args, "--language")
	assert.Contains(t, args, "de")
	assert.Contains(t, args, "--model_dir")
	assert.Contains(t, args, "small")
	assert.Equal(t, "whisper", w.Command)
}
