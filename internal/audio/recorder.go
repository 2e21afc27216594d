package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/google/uuid"
)

// State represents the current state of the recorder
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StatePaused    State = "paused"
	StateSaving    State = "saving"
	StateStopped   State = "stopped"
)

// DefaultGracePeriod bounds how long a backgrounded session may keep
// capturing before it is saved.
const DefaultGracePeriod = 25 * time.Second

// Capture describes a finalized audio asset
type Capture struct {
	Path     string
	Duration float64
	Size     int64
}

// Capturer owns the capture device for one session at a time
type Capturer interface {
	Start(path string) error
	Pause() error
	Resume() error
	Finalize() (Capture, error)
	Level() float64
}

// Host grants a bounded amount of extra run time when the process is about
// to be suspended.
type Host interface {
	RequestExtraTime(deadline time.Duration, onExpire func())
	Release()
}

// Store is the part of the storage layer the recorder writes to
type Store interface {
	GenerateKey(startedAt time.Time) string
	AudioPath(key string) string
	Put(m recording.Metadata) error
}

// EventType identifies a recorder event
type EventType string

const (
	EventStateChanged EventType = "state_changed"
	EventSaved        EventType = "saved"
	EventSaveFailed   EventType = "save_failed"
)

// Event is emitted to subscribers on state changes and saves
type Event struct {
	Type      EventType
	State     State
	Recording *recording.Recording
	Err       error
}

// Options configures a Recorder
type Options struct {
	Language    string
	GracePeriod time.Duration
	Host        Host
}

type session struct {
	key       string
	path      string
	startedAt time.Time
	active    time.Duration
	resumedAt time.Time
}

// Recorder is the recording lifecycle state machine. It allows one active
// session at a time and guarantees a backgrounded session is persisted
// before its grace period elapses.
type Recorder struct {
	capturer Capturer
	store    Store
	host     Host
	language string
	grace    time.Duration
	now      func() time.Time

	mutex     sync.Mutex
	state     State
	session   *session
	saveTimer *time.Timer

	subMutex    sync.RWMutex
	subscribers []func(Event)
}

// NewRecorder creates a recorder in the idle state
func NewRecorder(capturer Capturer, store Store, opts Options) *Recorder {
	grace := opts.GracePeriod
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Recorder{
		capturer: capturer,
		store:    store,
		host:     opts.Host,
		language: opts.Language,
		grace:    grace,
		now:      time.Now,
		state:    StateIdle,
	}
}

// Subscribe registers fn to receive recorder events. Events are delivered
// synchronously from the goroutine that caused them.
func (r *Recorder) Subscribe(fn func(Event)) {
	r.subMutex.Lock()
	defer r.subMutex.Unlock()
	r.subscribers = append(r.subscribers, fn)
}

func (r *Recorder) emit(ev Event) {
	r.subMutex.RLock()
	subs := make([]func(Event), len(r.subscribers))
	copy(subs, r.subscribers)
	r.subMutex.RUnlock()

	for _, fn := range subs {
		fn(ev)
	}
}

// State returns the current state
func (r *Recorder) State() State {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.state
}

// Elapsed returns the captured time of the current session, excluding pauses
func (r *Recorder) Elapsed() time.Duration {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return r.elapsedLocked()
}

func (r *Recorder) elapsedLocked() time.Duration {
	if r.session == nil {
		return 0
	}
	elapsed := r.session.active
	if r.state == StateRecording {
		elapsed += r.now().Sub(r.session.resumedAt)
	}
	return elapsed
}

// Level returns the normalized input level of the current session
func (r *Recorder) Level() float64 {
	r.mutex.Lock()
	active := r.state == StateRecording
	r.mutex.Unlock()

	if !active {
		return 0
	}
	return r.capturer.Level()
}

// Start begins a new session. It is only legal from idle or stopped.
func (r *Recorder) Start() error {
	r.mutex.Lock()

	if r.state != StateIdle && r.state != StateStopped {
		state := r.state
		r.mutex.Unlock()
		return fmt.Errorf("%w: current state %s", ErrAlreadyActive, state)
	}

	startedAt := r.now()
	key := r.store.GenerateKey(startedAt)
	path := r.store.AudioPath(key)

	if err := r.capturer.Start(path); err != nil {
		r.state = StateIdle
		r.mutex.Unlock()
		r.emit(Event{Type: EventStateChanged, State: StateIdle})
		return fmt.Errorf("failed to start capture: %w", err)
	}

	r.session = &session{
		key:       key,
		path:      path,
		startedAt: startedAt,
		resumedAt: startedAt,
	}
	r.state = StateRecording
	r.mutex.Unlock()

	slog.Info("Recording started", "key", key)
	r.emit(Event{Type: EventStateChanged, State: StateRecording})
	return nil
}

// Pause suspends capture. It is only legal while recording.
func (r *Recorder) Pause() error {
	r.mutex.Lock()

	if r.state != StateRecording {
		state := r.state
		r.mutex.Unlock()
		return fmt.Errorf("%w: cannot pause from %s", ErrInvalidTransition, state)
	}

	if err := r.capturer.Pause(); err != nil {
		r.mutex.Unlock()
		return fmt.Errorf("failed to pause capture: %w", err)
	}

	r.session.active += r.now().Sub(r.session.resumedAt)
	r.state = StatePaused
	r.mutex.Unlock()

	slog.Debug("Recording paused")
	r.emit(Event{Type: EventStateChanged, State: StatePaused})
	return nil
}

// Resume continues a paused capture
func (r *Recorder) Resume() error {
	r.mutex.Lock()

	if r.state != StatePaused {
		state := r.state
		r.mutex.Unlock()
		return fmt.Errorf("%w: cannot resume from %s", ErrInvalidTransition, state)
	}

	if err := r.capturer.Resume(); err != nil {
		r.mutex.Unlock()
		return fmt.Errorf("failed to resume capture: %w", err)
	}

	r.session.resumedAt = r.now()
	r.state = StateRecording
	r.mutex.Unlock()

	slog.Debug("Recording resumed")
	r.emit(Event{Type: EventStateChanged, State: StateRecording})
	return nil
}

// Stop finalizes the session, persists a pending metadata record and returns
// to idle. Without an active session it does nothing and returns nil, nil.
func (r *Recorder) Stop() (*recording.Recording, error) {
	return r.finalize(StateIdle)
}

// EnterBackground arms the forced save for an active session. The save
// fires on its own timer after the grace period unless EnterForeground is
// called first.
func (r *Recorder) EnterBackground() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.state != StateRecording && r.state != StatePaused {
		return
	}
	if r.saveTimer != nil {
		return
	}

	r.saveTimer = time.AfterFunc(r.grace, r.forceSave)
	if r.host != nil {
		r.host.RequestExtraTime(r.grace, r.forceSave)
	}
	slog.Info("Entering background, forced save armed", "grace", r.grace)
}

// EnterForeground cancels a pending forced save
func (r *Recorder) EnterForeground() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.saveTimer == nil {
		return
	}
	r.disarmLocked()
	slog.Info("Returned to foreground, forced save cancelled")
}

func (r *Recorder) disarmLocked() {
	if r.saveTimer == nil {
		return
	}
	r.saveTimer.Stop()
	r.saveTimer = nil
	if r.host != nil {
		r.host.Release()
	}
}

func (r *Recorder) forceSave() {
	rec, err := r.finalize(StateStopped)
	if err != nil {
		slog.Error("Forced background save failed", "error", err)
		return
	}
	if rec != nil {
		slog.Info("Forced background save completed", "key", rec.Filename)
	}
}

// finalize is safe to call repeatedly: only the first caller with an active
// session performs the save.
func (r *Recorder) finalize(rest State) (*recording.Recording, error) {
	r.mutex.Lock()

	if r.state != StateRecording && r.state != StatePaused {
		r.mutex.Unlock()
		return nil, nil
	}

	sess := r.session
	sess.active = r.elapsedLocked()
	r.session = nil
	r.state = StateSaving
	r.disarmLocked()
	r.mutex.Unlock()

	r.emit(Event{Type: EventStateChanged, State: StateSaving})

	rec, err := r.persist(sess)

	r.mutex.Lock()
	r.state = rest
	r.mutex.Unlock()

	if err != nil {
		r.emit(Event{Type: EventSaveFailed, State: rest, Err: err})
		r.emit(Event{Type: EventStateChanged, State: rest})
		return nil, err
	}

	r.emit(Event{Type: EventSaved, State: rest, Recording: rec})
	r.emit(Event{Type: EventStateChanged, State: rest})
	return rec, nil
}

func (r *Recorder) persist(sess *session) (*recording.Recording, error) {
	capture, err := r.capturer.Finalize()
	if err != nil {
		return nil, fmt.Errorf("failed to finalize capture %s: %w", sess.key, err)
	}

	duration := capture.Duration
	if duration <= 0 {
		duration = sess.active.Seconds()
	}

	rec := recording.Recording{
		ID:         uuid.New(),
		Filename:   sess.key,
		RecordedAt: sess.startedAt,
		Duration:   duration,
		FileSize:   capture.Size,
		Language:   r.language,
		Status:     recording.StatusPending,
		AudioPath:  capture.Path,
	}

	if err := r.store.Put(recording.NewMetadata(rec)); err != nil {
		return nil, fmt.Errorf("failed to persist recording %s: %w", sess.key, err)
	}

	slog.Info("Recording saved", "key", rec.Filename, "duration", recording.FormatDuration(rec.Duration), "size", rec.FileSize)
	return &rec, nil
}

// IsInvalidTransition reports whether err came from an illegal state change
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition) || errors.Is(err, ErrAlreadyActive)
}
