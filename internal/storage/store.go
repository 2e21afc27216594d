package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/audiolibrelab/whispernote/internal/recording"
	"github.com/google/uuid"
)

const (
	audioFolder       = "Audio"
	transcriptsFolder = "Transcripts"
	metadataFolder    = "Metadata"

	keyPrefix = "meeting_"
	keyLayout = "2006-01-02_15-04-05"
)

// DurationProber reads the duration of an audio asset from its container
type DurationProber interface {
	Duration(path string) (float64, error)
}

// Store is the file-backed source of truth for recordings. Each recording
// owns an audio blob, an optional transcript blob and one JSON metadata
// record, all named after the recording's key.
type Store struct {
	root     string
	audioExt string
	prober   DurationProber

	mu    sync.Mutex
	index map[uuid.UUID]string
	locks map[uuid.UUID]*sync.Mutex
}

// New creates the directory layout under root and returns a store
func New(root, audioExt string, prober DurationProber) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	audioExt = strings.TrimPrefix(audioExt, ".")
	if audioExt == "" {
		audioExt = "m4a"
	}

	for _, folder := range []string{audioFolder, transcriptsFolder, metadataFolder} {
		dir := filepath.Join(root, folder)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, ioErr("mkdir", dir, err)
		}
	}

	return &Store{
		root:     root,
		audioExt: audioExt,
		prober:   prober,
		index:    make(map[uuid.UUID]string),
		locks:    make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// Root returns the data directory
func (s *Store) Root() string {
	return s.root
}

// AudioPath returns the audio blob path for key
func (s *Store) AudioPath(key string) string {
	return filepath.Join(s.root, audioFolder, key+"."+s.audioExt)
}

// TranscriptPath returns the transcript blob path for key
func (s *Store) TranscriptPath(key string) string {
	return filepath.Join(s.root, transcriptsFolder, key+".txt")
}

// MetadataPath returns the metadata record path for key
func (s *Store) MetadataPath(key string) string {
	return filepath.Join(s.root, metadataFolder, key+".json")
}

// GenerateKey derives a sortable key from the capture start time. A numeric
// suffix is appended when a recording with the same second already exists.
func (s *Store) GenerateKey(startedAt time.Time) string {
	base := keyPrefix + startedAt.Format(keyLayout)
	key := base
	for n := 2; s.keyTaken(key); n++ {
		key = base + "-" + strconv.Itoa(n)
	}
	return key
}

func (s *Store) keyTaken(key string) bool {
	for _, p := range []string{s.MetadataPath(key), s.AudioPath(key), s.TranscriptPath(key)} {
		if fileExists(p) {
			return true
		}
	}
	return false
}

// Put writes the metadata record for m.Filename, replacing any previous
// record atomically.
func (s *Store) Put(m recording.Metadata) error {
	if err := ValidateName(m.Filename); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata for %s: %w", m.Filename, err)
	}

	if err := writeFileAtomic(s.MetadataPath(m.Filename), data); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[m.ID] = m.Filename
	s.mu.Unlock()

	slog.Debug("Metadata saved", "key", m.Filename, "status", m.TranscriptionStatus)
	return nil
}

// Get reads the metadata record for key
func (s *Store) Get(key string) (recording.Metadata, error) {
	var m recording.Metadata

	path := s.MetadataPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return m, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return m, ioErr("read", path, err)
	}

	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	if m.ID == uuid.Nil {
		return m, fmt.Errorf("%w: %s: missing id", ErrCorrupt, key)
	}

	// The file stem is authoritative for the key
	m.Filename = key
	return m, nil
}

// Load reads the record for key and resolves its file paths
func (s *Store) Load(key string) (recording.Recording, error) {
	m, err := s.Get(key)
	if err != nil {
		return recording.Recording{}, err
	}

	s.mu.Lock()
	s.index[m.ID] = key
	s.mu.Unlock()

	return s.toRecording(m), nil
}

func (s *Store) toRecording(m recording.Metadata) recording.Recording {
	transcriptPath := s.TranscriptPath(m.Filename)
	if !fileExists(transcriptPath) {
		transcriptPath = ""
	}
	return m.ToRecording(s.AudioPath(m.Filename), transcriptPath)
}

// ListAll returns every readable recording, newest capture first. Corrupt
// records are logged and skipped.
func (s *Store) ListAll() ([]recording.Recording, error) {
	dir := filepath.Join(s.root, metadataFolder)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, ioErr("readdir", dir, err)
	}

	var recordings []recording.Recording
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
			continue
		}

		key := strings.TrimSuffix(name, ".json")
		rec, err := s.Load(key)
		if err != nil {
			slog.Warn("Skipping unreadable metadata record", "key", key, "error", err)
			continue
		}
		recordings = append(recordings, rec)
	}

	recording.Sort(recordings, recording.SortByDate)
	return recordings, nil
}

// Delete removes the audio, transcript and metadata of r. Each removal is
// attempted independently; failures are joined into the returned error.
// Files that are already gone are not an error.
func (s *Store) Delete(r recording.Recording) error {
	unlock := s.lock(r.ID)
	defer unlock()

	key := s.currentKey(r)
	var errs []error
	for _, path := range []string{s.AudioPath(key), s.TranscriptPath(key), s.MetadataPath(key)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, ioErr("remove", path, err))
		}
	}

	s.mu.Lock()
	delete(s.index, r.ID)
	s.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("failed to delete recording %s: %w", key, errors.Join(errs...))
	}

	slog.Info("Recording deleted", "key", key)
	return nil
}

// Rename moves the recording's files and metadata to newName. Nothing is
// moved when the destination is already taken. The old metadata record is
// only removed after the files and the new record are in place.
func (s *Store) Rename(r recording.Recording, newName string) (recording.Recording, error) {
	newName = strings.TrimSpace(newName)
	if err := ValidateName(newName); err != nil {
		return r, err
	}

	unlock := s.lock(r.ID)
	defer unlock()

	oldName := s.currentKey(r)
	if oldName == newName {
		return s.Load(oldName)
	}
	if s.keyTaken(newName) {
		return r, fmt.Errorf("%w: %s", ErrConflict, newName)
	}

	m, err := s.Get(oldName)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return r, err
		}
		m = recording.NewMetadata(r)
	}

	var moved [][2]string
	rollback := func() {
		for i := len(moved) - 1; i >= 0; i-- {
			if err := os.Rename(moved[i][1], moved[i][0]); err != nil {
				slog.Error("Failed to roll back rename", "from", moved[i][1], "to", moved[i][0], "error", err)
			}
		}
	}

	moves := [][2]string{
		{s.AudioPath(oldName), s.AudioPath(newName)},
		{s.TranscriptPath(oldName), s.TranscriptPath(newName)},
	}
	for _, mv := range moves {
		if !fileExists(mv[0]) {
			continue
		}
		if err := os.Rename(mv[0], mv[1]); err != nil {
			rollback()
			return r, ioErr("rename", mv[0], err)
		}
		moved = append(moved, mv)
	}

	m.Filename = newName
	if err := s.Put(m); err != nil {
		rollback()
		return r, fmt.Errorf("failed to write metadata for %s: %w", newName, err)
	}

	updated := s.toRecording(m)

	oldMeta := s.MetadataPath(oldName)
	if err := os.Remove(oldMeta); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return updated, ioErr("remove", oldMeta, err)
	}

	slog.Info("Recording renamed", "from", oldName, "to", newName)
	return updated, nil
}

// Update applies fn to the current state of the recording with id and
// persists the result. Calls for the same recording are serialized with
// each other and with Rename and Delete. Nothing is written when fn fails.
func (s *Store) Update(id uuid.UUID, fn func(r *recording.Recording) error) (recording.Recording, error) {
	unlock := s.lock(id)
	defer unlock()

	key, err := s.keyFor(id)
	if err != nil {
		return recording.Recording{}, err
	}

	rec, err := s.Load(key)
	if err != nil {
		return recording.Recording{}, err
	}

	if err := fn(&rec); err != nil {
		return rec, err
	}
	rec.ID = id
	rec.Filename = key

	if err := s.Put(recording.NewMetadata(rec)); err != nil {
		return rec, err
	}
	return s.toRecording(recording.NewMetadata(rec)), nil
}

// SaveTranscript writes text as the transcript blob for key
func (s *Store) SaveTranscript(key, text string) error {
	if err := ValidateName(key); err != nil {
		return err
	}
	return writeFileAtomic(s.TranscriptPath(key), []byte(text))
}

// LoadTranscript reads the transcript blob for key
func (s *Store) LoadTranscript(key string) (string, error) {
	path := s.TranscriptPath(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: transcript for %s", ErrNotFound, key)
		}
		return "", ioErr("read", path, err)
	}
	return string(data), nil
}

// ComputeDuration returns the duration in seconds of the audio asset at path
func (s *Store) ComputeDuration(path string) (float64, error) {
	if s.prober == nil {
		return 0, fmt.Errorf("no duration prober configured")
	}
	return s.prober.Duration(path)
}

// FileSize returns the size of the file at path, or 0 when it cannot be read
func (s *Store) FileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Usage returns the total number of bytes stored under the data directory
func (s *Store) Usage() (int64, error) {
	var total int64
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		total += info.Size()
		return nil
	})
	if err != nil {
		return total, ioErr("walk", s.root, err)
	}
	return total, nil
}

// lock serializes writers of one recording
func (s *Store) lock(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// currentKey resolves the key of r, following renames made through this store
func (s *Store) currentKey(r recording.Recording) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key, ok := s.index[r.ID]; ok {
		return key
	}
	return r.Filename
}

func (s *Store) keyFor(id uuid.UUID) (string, error) {
	s.mu.Lock()
	key, ok := s.index[id]
	s.mu.Unlock()
	if ok {
		return key, nil
	}

	// Not seen yet: scan the metadata directory to populate the index
	if _, err := s.ListAll(); err != nil {
		return "", err
	}

	s.mu.Lock()
	key, ok = s.index[id]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: id %s", ErrNotFound, id)
	}
	return key, nil
}

// ValidateName checks that name is usable as a file stem
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if name != strings.TrimSpace(name) {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, `/\`+"\x00") {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

// writeFileAtomic writes data to a temp file next to path and renames it
// into place, so readers never observe a partial file.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioErr("create", dir, err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return ioErr("write", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return ioErr("sync", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioErr("close", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return ioErr("chmod", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ioErr("rename", tmpName, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
