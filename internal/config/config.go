package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

const (
	EnvPrefix   = "WHISPERNOTE"
	EnvFileVar  = "WHISPERNOTE_ENV_FILE"
	DefaultName = "whispernote.yaml"
)

// Capture backends understood by the ffmpeg capturer
const (
	BackendPulse        = "pulse"
	BackendJack         = "jack"
	BackendALSA         = "alsa"
	BackendAVFoundation = "avfoundation"
)

var supportedFormats = []string{"m4a", "wav", "flac", "mp3", "ogg"}

type Config struct {
	Data          DataConfig          `mapstructure:"data" yaml:"data"`
	Audio         AudioConfig         `mapstructure:"audio" yaml:"audio"`
	Transcription TranscriptionConfig `mapstructure:"transcription" yaml:"transcription"`
	Background    BackgroundConfig    `mapstructure:"background" yaml:"background"`
	Retention     RetentionConfig     `mapstructure:"retention" yaml:"retention"`

	// Profile is the name of the resolved profile, empty for the base config
	Profile string `mapstructure:"-" yaml:"-"`

	// Internal field to track inheritance information for config show
	Inheritance *InheritanceInfo `mapstructure:"-" yaml:"-"`
}

type DataConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

type AudioConfig struct {
	Backend    string `mapstructure:"backend" yaml:"backend"` // "pulse", "jack", "alsa", "avfoundation"
	Source     string `mapstructure:"source" yaml:"source"`   // device name, or comma separated JACK ports
	Format     string `mapstructure:"format" yaml:"format"`
	SampleRate int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Channels   int    `mapstructure:"channels" yaml:"channels"`
	Bitrate    string `mapstructure:"bitrate" yaml:"bitrate"`
}

type TranscriptionConfig struct {
	Command        string `mapstructure:"command" yaml:"command"`
	Model          string `mapstructure:"model" yaml:"model"`
	ModelDir       string `mapstructure:"model_dir" yaml:"model_dir"`
	Language       string `mapstructure:"language" yaml:"language"`
	ChunkSeconds   int    `mapstructure:"chunk_seconds" yaml:"chunk_seconds"`
	AutoTranscribe bool   `mapstructure:"auto_transcribe" yaml:"auto_transcribe"`
}

type BackgroundConfig struct {
	GraceSeconds int `mapstructure:"grace_seconds" yaml:"grace_seconds"`
}

type RetentionConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Days     int    `mapstructure:"days" yaml:"days"`
}

// Profile overrides parts of the base configuration. Unset fields fall back
// to the base; booleans are pointers so an explicit false can be told apart
// from a missing key.
type Profile struct {
	Data          DataConfig           `mapstructure:"data" yaml:"data"`
	Audio         AudioConfig          `mapstructure:"audio" yaml:"audio"`
	Transcription TranscriptionProfile `mapstructure:"transcription" yaml:"transcription"`
	Background    BackgroundConfig     `mapstructure:"background" yaml:"background"`
	Retention     RetentionProfile     `mapstructure:"retention" yaml:"retention"`
}

type TranscriptionProfile struct {
	Command        string `mapstructure:"command" yaml:"command"`
	Model          string `mapstructure:"model" yaml:"model"`
	ModelDir       string `mapstructure:"model_dir" yaml:"model_dir"`
	Language       string `mapstructure:"language" yaml:"language"`
	ChunkSeconds   int    `mapstructure:"chunk_seconds" yaml:"chunk_seconds"`
	AutoTranscribe *bool  `mapstructure:"auto_transcribe" yaml:"auto_transcribe,omitempty"`
}

type RetentionProfile struct {
	Enabled  *bool  `mapstructure:"enabled" yaml:"enabled,omitempty"`
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
	Days     int    `mapstructure:"days" yaml:"days"`
}

type RootConfig struct {
	ActiveProfile string              `mapstructure:"active_profile" yaml:"active_profile"`
	Base          Config              `mapstructure:",squash" yaml:",inline"`
	Profiles      map[string]*Profile `mapstructure:"profiles" yaml:"profiles"`
}

// InheritanceInfo records, per dotted key, whether the value came from the
// selected profile or was inherited from the base configuration.
type InheritanceInfo struct {
	Fields map[string]string
}

const (
	Inherited       = "inherited"
	ProfileSpecific = "profile-specific"
)

// Source returns the origin of key, or "base" when no profile was merged
func (i *InheritanceInfo) Source(key string) string {
	if i == nil {
		return "base"
	}
	if s, ok := i.Fields[key]; ok {
		return s
	}
	return Inherited
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "WhisperNote"
	}
	return filepath.Join(home, "WhisperNote")
}

// DefaultPath returns $HOME/.config/whispernote.yaml
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return DefaultName
	}
	return filepath.Join(home, ".config", DefaultName)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.directory", defaultDataDir())

	v.SetDefault("audio.backend", BackendPulse)
	v.SetDefault("audio.source", "")
	v.SetDefault("audio.format", "m4a")
	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.channels", 1)
	v.SetDefault("audio.bitrate", "64k")

	v.SetDefault("transcription.command", "whisper")
	v.SetDefault("transcription.model", "small")
	v.SetDefault("transcription.model_dir", "")
	v.SetDefault("transcription.language", "de")
	v.SetDefault("transcription.chunk_seconds", 300)
	v.SetDefault("transcription.auto_transcribe", true)

	v.SetDefault("background.grace_seconds", 25)

	v.SetDefault("retention.enabled", false)
	v.SetDefault("retention.schedule", "@daily")
	v.SetDefault("retention.days", 30)
}

// LoadEnvFile loads a dotenv file into the process environment without
// overriding variables that are already set. The file named by
// WHISPERNOTE_ENV_FILE must exist; ./.env is optional.
func LoadEnvFile() error {
	if path := os.Getenv(EnvFileVar); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("error loading env file %s: %w", path, err)
		}
		slog.Debug("Loaded env file", "path", path)
		return nil
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return fmt.Errorf("error loading .env: %w", err)
		}
		slog.Debug("Loaded env file", "path", ".env")
	}
	return nil
}

func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := configFile != ""
	if !explicit {
		configFile = DefaultPath()
	}
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			slog.Debug("No config file found, using defaults", "path", configFile)
			return v, nil
		}
		return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
	}
	return v, nil
}

// Load reads configFile (or the default path) and resolves profile, or the
// file's active_profile when profile is empty. A missing default file is not
// an error.
func Load(configFile, profile string) (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	return resolve(v, profile)
}

func resolve(v *viper.Viper, profile string) (*Config, error) {
	var root RootConfig
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	name := profile
	if name == "" {
		name = root.ActiveProfile
	}

	cfg := &root.Base
	if name != "" && name != "default" {
		selected, exists := root.Profiles[name]
		if !exists || selected == nil {
			return nil, fmt.Errorf("configuration profile '%s' not found", name)
		}
		cfg = mergeProfile(&root.Base, selected)
		cfg.Profile = name
	}

	cfg.Data.Directory = expandPath(cfg.Data.Directory)
	cfg.Transcription.ModelDir = expandPath(cfg.Transcription.ModelDir)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Watch reloads configFile on every change and passes the resolved config
// to onChange. Invalid edits are logged and ignored.
func Watch(configFile, profile string, onChange func(*Config)) error {
	v, err := newViper(configFile)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return fmt.Errorf("no config file to watch")
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err != nil {
		return fmt.Errorf("config file %s not found: %w", v.ConfigFileUsed(), err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := resolve(v, profile)
		if err != nil {
			slog.Warn("Ignoring invalid config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("Configuration reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// UpdateActiveProfile updates the active_profile field in the config file
func UpdateActiveProfile(configFile, newActiveProfile string) error {
	if configFile == "" {
		configFile = DefaultPath()
	}

	// Use a fresh viper instance so defaults are not written back
	v := viper.New()
	v.SetConfigFile(configFile)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", configFile, err)
	}

	if newActiveProfile != "" && newActiveProfile != "default" {
		if !v.IsSet("profiles." + newActiveProfile) {
			return fmt.Errorf("configuration profile '%s' not found", newActiveProfile)
		}
	}

	v.Set("active_profile", newActiveProfile)

	if err := v.WriteConfig(); err != nil {
		return fmt.Errorf("error writing config file %s: %w", configFile, err)
	}
	return nil
}

// mergeProfile implements the "Selection & Fallback" model: every field set
// in the profile wins, everything else is inherited from base.
func mergeProfile(base *Config, profile *Profile) *Config {
	result := *base
	info := &InheritanceInfo{Fields: make(map[string]string)}
	result.Inheritance = info

	str := func(key string, dst *string, val string) {
		if val != "" {
			*dst = val
			info.Fields[key] = ProfileSpecific
		} else {
			info.Fields[key] = Inherited
		}
	}
	num := func(key string, dst *int, val int) {
		if val != 0 {
			*dst = val
			info.Fields[key] = ProfileSpecific
		} else {
			info.Fields[key] = Inherited
		}
	}
	flag := func(key string, dst *bool, val *bool) {
		if val != nil {
			*dst = *val
			info.Fields[key] = ProfileSpecific
		} else {
			info.Fields[key] = Inherited
		}
	}

	str("data.directory", &result.Data.Directory, profile.Data.Directory)

	str("audio.backend", &result.Audio.Backend, profile.Audio.Backend)
	str("audio.source", &result.Audio.Source, profile.Audio.Source)
	str("audio.format", &result.Audio.Format, profile.Audio.Format)
	num("audio.sample_rate", &result.Audio.SampleRate, profile.Audio.SampleRate)
	num("audio.channels", &result.Audio.Channels, profile.Audio.Channels)
	str("audio.bitrate", &result.Audio.Bitrate, profile.Audio.Bitrate)

	str("transcription.command", &result.Transcription.Command, profile.Transcription.Command)
	str("transcription.model", &result.Transcription.Model, profile.Transcription.Model)
	str("transcription.model_dir", &result.Transcription.ModelDir, profile.Transcription.ModelDir)
	str("transcription.language", &result.Transcription.Language, profile.Transcription.Language)
	num("transcription.chunk_seconds", &result.Transcription.ChunkSeconds, profile.Transcription.ChunkSeconds)
	flag("transcription.auto_transcribe", &result.Transcription.AutoTranscribe, profile.Transcription.AutoTranscribe)

	num("background.grace_seconds", &result.Background.GraceSeconds, profile.Background.GraceSeconds)

	flag("retention.enabled", &result.Retention.Enabled, profile.Retention.Enabled)
	str("retention.schedule", &result.Retention.Schedule, profile.Retention.Schedule)
	num("retention.days", &result.Retention.Days, profile.Retention.Days)

	return &result
}

// Validate checks cfg and canonicalizes the language tag in place
func Validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Data.Directory) == "" {
		return fmt.Errorf("data.directory is required")
	}

	switch cfg.Audio.Backend {
	case BackendPulse, BackendJack, BackendALSA, BackendAVFoundation:
	default:
		return fmt.Errorf("audio.backend must be one of pulse, jack, alsa, avfoundation, got: %s", cfg.Audio.Backend)
	}
	if !isSupportedFormat(cfg.Audio.Format) {
		return fmt.Errorf("audio.format must be one of %s, got: %s", strings.Join(supportedFormats, ", "), cfg.Audio.Format)
	}
	if cfg.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got: %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got: %d", cfg.Audio.Channels)
	}
	if cfg.Audio.Backend == BackendJack {
		if err := validateJackSources(cfg.Audio.Source, cfg.Audio.Channels); err != nil {
			return err
		}
	}

	tag, err := ParseLanguage(cfg.Transcription.Language)
	if err != nil {
		return err
	}
	cfg.Transcription.Language = tag

	if cfg.Transcription.ChunkSeconds <= 0 {
		return fmt.Errorf("transcription.chunk_seconds must be positive, got: %d", cfg.Transcription.ChunkSeconds)
	}
	if cfg.Background.GraceSeconds <= 0 {
		return fmt.Errorf("background.grace_seconds must be positive, got: %d", cfg.Background.GraceSeconds)
	}

	if cfg.Retention.Enabled {
		if cfg.Retention.Days <= 0 {
			return fmt.Errorf("retention.days must be positive when retention is enabled, got: %d", cfg.Retention.Days)
		}
		if _, err := cron.ParseStandard(cfg.Retention.Schedule); err != nil {
			return fmt.Errorf("retention.schedule %q is not a valid cron expression: %w", cfg.Retention.Schedule, err)
		}
	}
	return nil
}

// ParseLanguage validates a BCP 47 tag and returns its base language code,
// which is what speech engines expect (e.g. "de-DE" becomes "de").
func ParseLanguage(s string) (string, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("transcription.language is required")
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("transcription.language %q is not a valid language tag: %w", s, err)
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return "", fmt.Errorf("transcription.language %q has no base language", s)
	}
	return base.String(), nil
}

func isSupportedFormat(format string) bool {
	for _, f := range supportedFormats {
		if f == format {
			return true
		}
	}
	return false
}

// validateJackSources checks the comma separated port list against the
// channel count: mono needs one port, stereo needs two.
func validateJackSources(source string, channels int) error {
	var ports []string
	for _, p := range strings.Split(source, ",") {
		if p = strings.TrimSpace(p); p != "" {
			ports = append(ports, p)
		}
	}
	if len(ports) != channels {
		return fmt.Errorf("audio.source for jack with %d channel(s) must list exactly %d port(s), got %d", channels, channels, len(ports))
	}
	for i, port := range ports {
		if !isValidAudioSource(port) {
			return fmt.Errorf("audio.source[%d] must be a valid JACK port (device:port), got: %s", i, port)
		}
	}
	return nil
}

// isValidAudioSource checks if a source name is a JACK/PipeWire device:port
func isValidAudioSource(source string) bool {
	source = strings.TrimSpace(source)
	if source == "disabled" {
		return true
	}

	// Device names may contain colons, so the port is after the last one
	lastColonIndex := strings.LastIndex(source, ":")
	if lastColonIndex == -1 {
		return false
	}

	deviceName := strings.TrimSpace(source[:lastColonIndex])
	port := strings.TrimSpace(source[lastColonIndex+1:])
	return deviceName != "" && port != ""
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
