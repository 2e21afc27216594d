package audio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/audiolibrelab/whispernote/internal/config"
)

const (
	levelKey     = "lavfi.astats.Overall.RMS_level="
	jackClient   = "whispernote"
	startupWait  = 500 * time.Millisecond
	finalizeWait = 10 * time.Second
)

// DurationProber reads the duration of an audio file
type DurationProber interface {
	Duration(path string) (float64, error)
}

// FFmpegCapturer records from the configured input device with an ffmpeg
// subprocess. It implements Capturer.
type FFmpegCapturer struct {
	cfg      config.AudioConfig
	prober   DurationProber
	pipewire *PipeWire

	mutex     sync.Mutex
	cmd       *exec.Cmd
	done      chan error
	path      string
	paused    bool
	stderrBuf strings.Builder
	bufMutex  sync.Mutex

	level atomic.Uint64
}

// NewFFmpegCapturer creates a capturer for cfg
func NewFFmpegCapturer(cfg config.AudioConfig, prober DurationProber) *FFmpegCapturer {
	return &FFmpegCapturer{
		cfg:      cfg,
		prober:   prober,
		pipewire: NewPipeWire(),
	}
}

// Start launches ffmpeg writing to path. A process that exits during the
// startup window is treated as an unavailable device.
func (c *FFmpegCapturer) Start(path string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd != nil {
		return fmt.Errorf("capture already running to %s", c.path)
	}

	if c.cfg.Backend == config.BackendJack {
		for _, port := range jackSources(c.cfg.Source) {
			if err := c.pipewire.ValidatePort(port); err != nil {
				return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			}
		}
	}

	args := buildCaptureArgs(c.cfg, path)
	slog.Info("Starting FFmpeg capture", "command", strings.Join(args, " "))

	cmd := exec.Command(args[0], args[1:]...)
	if c.cfg.Backend == config.BackendJack {
		cmd.Env = append(os.Environ(), "PIPEWIRE_QUANTUM=256/48000", "PIPEWIRE_LATENCY=256/48000")
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("ffmpeg not found in PATH: %w", err)
		}
		return fmt.Errorf("failed to start FFmpeg: %w", err)
	}

	c.bufMutex.Lock()
	c.stderrBuf.Reset()
	c.bufMutex.Unlock()
	c.level.Store(0)

	done := make(chan error, 1)
	go func() {
		c.readOutput(stderr)
		done <- cmd.Wait()
	}()

	select {
	case err := <-done:
		return fmt.Errorf("%w: ffmpeg exited during startup (%v): %s", ErrPermissionDenied, err, c.lastOutputLine())
	case <-time.After(startupWait):
	}

	c.cmd = cmd
	c.done = done
	c.path = path
	c.paused = false

	if c.cfg.Backend == config.BackendJack {
		go c.connectJackSources()
	}

	return nil
}

// connectJackSources links the configured ports to the ffmpeg JACK client
func (c *FFmpegCapturer) connectJackSources() {
	for i, source := range jackSources(c.cfg.Source) {
		dest := fmt.Sprintf("%s:input_%d", jackClient, i+1)
		if err := c.pipewire.ConnectPortsWithRetry(source, dest); err != nil {
			slog.Error("Failed to connect capture source", "source", source, "dest", dest, "error", err)
			continue
		}
		slog.Info("Connected capture source", "source", source, "dest", dest)
	}
}

// Pause suspends the ffmpeg process
func (c *FFmpegCapturer) Pause() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return ErrNotCapturing
	}
	if c.paused {
		return nil
	}
	if err := suspendProcess(c.cmd.Process); err != nil {
		return err
	}
	c.paused = true
	c.level.Store(0)
	return nil
}

// Resume continues a suspended ffmpeg process
func (c *FFmpegCapturer) Resume() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd == nil || c.cmd.Process == nil {
		return ErrNotCapturing
	}
	if !c.paused {
		return nil
	}
	if err := resumeProcess(c.cmd.Process); err != nil {
		return err
	}
	c.paused = false
	return nil
}

// Finalize stops ffmpeg so it writes the container trailer, then reports the
// resulting file.
func (c *FFmpegCapturer) Finalize() (Capture, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.cmd == nil {
		return Capture{}, ErrNotCapturing
	}

	path := c.path
	stopErr := c.stopFFmpeg()
	c.cmd = nil
	c.done = nil
	c.path = ""
	c.paused = false
	c.level.Store(0)

	if stopErr != nil {
		return Capture{Path: path}, stopErr
	}

	info, err := os.Stat(path)
	if err != nil {
		return Capture{Path: path}, fmt.Errorf("recording file not found: %s", path)
	}
	if info.Size() == 0 {
		return Capture{Path: path}, fmt.Errorf("recording failed: file is empty: %s", path)
	}

	capture := Capture{Path: path, Size: info.Size()}
	if c.prober != nil {
		duration, err := c.prober.Duration(path)
		if err != nil {
			slog.Warn("Failed to probe recording duration", "path", path, "error", err)
		} else {
			capture.Duration = duration
		}
	}

	slog.Debug("FFmpeg output file validated", "path", path, "size", capture.Size, "duration", capture.Duration)
	return capture, nil
}

// Level returns the most recent RMS level mapped to 0..1
func (c *FFmpegCapturer) Level() float64 {
	return math.Float64frombits(c.level.Load())
}

func (c *FFmpegCapturer) stopFFmpeg() error {
	proc := c.cmd.Process
	if proc != nil {
		if c.paused {
			if err := resumeProcess(proc); err != nil {
				slog.Debug("Failed to continue FFmpeg before stop", "error", err)
			}
		}
		slog.Debug("Sending SIGINT to FFmpeg process")
		if err := proc.Signal(os.Interrupt); err != nil {
			slog.Debug("Failed to send interrupt to FFmpeg, falling back to SIGKILL", "error", err)
			proc.Kill()
		}
	}

	select {
	case err := <-c.done:
		if err == nil {
			slog.Debug("FFmpeg exited successfully")
			return nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// 255 is ffmpeg's exit code after a handled interrupt
			if exitErr.ExitCode() == 255 {
				return nil
			}
			if exitErr.ProcessState != nil {
				state := exitErr.ProcessState.String()
				if state == "signal: interrupt" || state == "signal: killed" {
					return nil
				}
			}
		}
		slog.Debug("FFmpeg stderr", "output", c.output())
		return fmt.Errorf("FFmpeg process failed: %w", err)

	case <-time.After(finalizeWait):
		slog.Warn("FFmpeg did not exit within timeout, force killing")
		if proc != nil {
			proc.Kill()
		}
		<-c.done
		return nil
	}
}

// readOutput scans ffmpeg stderr, keeping the log and the level meter updated
func (c *FFmpegCapturer) readOutput(pipe io.Reader) {
	scanner := bufio.NewScanner(pipe)
	for scanner.Scan() {
		line := scanner.Text()
		if level, ok := parseLevel(line); ok {
			c.level.Store(math.Float64bits(level))
			continue
		}
		c.bufMutex.Lock()
		c.stderrBuf.WriteString(line + "\n")
		c.bufMutex.Unlock()
		slog.Debug("FFmpeg output", "line", line)
	}
}

func (c *FFmpegCapturer) output() string {
	c.bufMutex.Lock()
	defer c.bufMutex.Unlock()
	return c.stderrBuf.String()
}

func (c *FFmpegCapturer) lastOutputLine() string {
	lines := strings.Split(strings.TrimSpace(c.output()), "\n")
	return lines[len(lines)-1]
}

// parseLevel extracts an astats RMS level line and maps dB to amplitude
func parseLevel(line string) (float64, bool) {
	idx := strings.Index(line, levelKey)
	if idx < 0 {
		return 0, false
	}
	value := strings.TrimSpace(line[idx+len(levelKey):])
	if value == "-inf" || value == "inf" || value == "nan" {
		return 0, true
	}
	db, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, false
	}
	return NormalizeLevel(db), true
}

// NormalizeLevel converts a dBFS value to a linear 0..1 level
func NormalizeLevel(db float64) float64 {
	level := math.Pow(10, db/20)
	if math.IsNaN(level) || level < 0 {
		return 0
	}
	if level > 1 {
		return 1
	}
	return level
}

// buildCaptureArgs constructs the ffmpeg command line for cfg
func buildCaptureArgs(cfg config.AudioConfig, path string) []string {
	var args []string
	if cfg.Backend == config.BackendJack {
		args = append(args, "pw-jack")
	}
	args = append(args, "ffmpeg", "-hide_banner", "-nostdin", "-loglevel", orDefault(os.Getenv("FFMPEG_LOGLEVEL"), "info"))

	source := cfg.Source
	switch cfg.Backend {
	case config.BackendJack:
		args = append(args, "-f", "jack", "-channels", strconv.Itoa(cfg.Channels), "-i", jackClient)
	case config.BackendALSA:
		args = append(args, "-f", "alsa", "-i", orDefault(source, "default"))
	case config.BackendAVFoundation:
		args = append(args, "-f", "avfoundation", "-i", ":"+orDefault(source, "0"))
	default:
		args = append(args, "-f", "pulse", "-i", orDefault(source, "default"))
	}

	args = append(args,
		"-ac", strconv.Itoa(cfg.Channels),
		"-ar", strconv.Itoa(cfg.SampleRate),
		"-af", "astats=metadata=1:reset=1,ametadata=mode=print:key=lavfi.astats.Overall.RMS_level",
	)

	codec, lossy := codecFor(cfg.Format)
	args = append(args, "-c:a", codec)
	if lossy && cfg.Bitrate != "" {
		args = append(args, "-b:a", cfg.Bitrate)
	}

	return append(args, "-y", path)
}

func codecFor(format string) (codec string, lossy bool) {
	switch format {
	case "wav":
		return "pcm_s16le", false
	case "flac":
		return "flac", false
	case "mp3":
		return "libmp3lame", true
	case "ogg":
		return "libopus", true
	default:
		return "aac", true
	}
}

func jackSources(source string) []string {
	var ports []string
	for _, p := range strings.Split(source, ",") {
		if p = strings.TrimSpace(p); p != "" && p != "disabled" {
			ports = append(ports, p)
		}
	}
	return ports
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
