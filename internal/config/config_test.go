package config

import (
	"os"
	"path/filepath"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func baseConfig() *Config {
	return &Config{
		Data: DataConfig{Directory: "~/WhisperNote"},
		Audio: AudioConfig{
			Backend:    BackendPulse,
			Format:     "m4a",
			SampleRate: 44100,
			Channels:   1,
			Bitrate:    "64k",
		},
		Transcription: TranscriptionConfig{
			Command:        "whisper",
			Model:          "small",
			Language:       "de",
			ChunkSeconds:   300,
			AutoTranscribe: true,
		},
		Background: BackgroundConfig{GraceSeconds: 25},
		Retention:  RetentionConfig{Schedule: "@daily", Days: 30},
	}
}

func TestMergeProfile_SelectionAndFallback(t *testing.T) {
	base := baseConfig()
	profile := &Profile{
		Audio: AudioConfig{Format: "flac", SampleRate: 48000},
		Transcription: TranscriptionProfile{
			Model:          "medium",
			AutoTranscribe: boolPtr(false),
		},
	}

	result := mergeProfile(base, profile)

	if result.Audio.Format != "flac" || result.Audio.SampleRate != 48000 {
		t.Errorf("Profile audio overrides not applied: %+v", result.Audio)
	}
	if result.Audio.Backend != BackendPulse || result.Audio.Bitrate != "64k" {
		t.Errorf("Base audio values not inherited: %+v", result.Audio)
	}
	if result.Transcription.Model != "medium" {
		t.Errorf("Expected model 'medium', got %s", result.Transcription.Model)
	}
	if result.Transcription.AutoTranscribe {
		t.Error("Expected explicit false auto_transcribe to win over base true")
	}
	if result.Transcription.Language != "de" {
		t.Errorf("Expected inherited language 'de', got %s", result.Transcription.Language)
	}

	if result.Inheritance == nil {
		t.Fatal("Inheritance tracking not initialized")
	}
	if got := result.Inheritance.Source("audio.format"); got != ProfileSpecific {
		t.Errorf("Expected audio.format to be profile-specific, got %s", got)
	}
	if got := result.Inheritance.Source("audio.backend"); got != Inherited {
		t.Errorf("Expected audio.backend to be inherited, got %s", got)
	}
	if got := result.Inheritance.Source("transcription.auto_transcribe"); got != ProfileSpecific {
		t.Errorf("Expected auto_transcribe to be profile-specific, got %s", got)
	}

	// The base must not be modified by the merge
	if base.Audio.Format != "m4a" {
		t.Errorf("Base config mutated: %+v", base.Audio)
	}
}

func TestMergeProfile_EmptyProfileInheritsEverything(t *testing.T) {
	base := baseConfig()
	result := mergeProfile(base, &Profile{})

	if result.Audio != base.Audio || result.Transcription != base.Transcription || result.Retention != base.Retention {
		t.Errorf("Empty profile should inherit all values, got %+v", result)
	}
	for key, source := range result.Inheritance.Fields {
		if source != Inherited {
			t.Errorf("Expected %s to be inherited, got %s", key, source)
		}
	}
}

func TestInheritanceSource_Base(t *testing.T) {
	var info *InheritanceInfo
	if got := info.Source("audio.format"); got != "base" {
		t.Errorf("Expected 'base' without a profile, got %s", got)
	}
}

func TestExpandPath(t *testing.T) {
	homeDir, _ := os.UserHomeDir()

	tests := []struct {
		input    string
		expected string
	}{
		{"~/WhisperNote", filepath.Join(homeDir, "WhisperNote")},
		{"/absolute/path", "/absolute/path"},
		{"relative/path", "relative/path"},
		{"", ""},
	}

	for _, test := range tests {
		if result := expandPath(test.input); result != test.expected {
			t.Errorf("expandPath(%s) = %s, expected %s", test.input, result, test.expected)
		}
	}
}

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load without config file failed: %v", err)
	}

	if cfg.Audio.Format != "m4a" || cfg.Transcription.Language != "de" || cfg.Transcription.ChunkSeconds != 300 {
		t.Errorf("Unexpected defaults: %+v", cfg)
	}
	if cfg.Background.GraceSeconds != 25 {
		t.Errorf("Expected 25s grace period, got %d", cfg.Background.GraceSeconds)
	}
	if !cfg.Transcription.AutoTranscribe {
		t.Error("Expected auto_transcribe to default to true")
	}
}

func TestLoad_ExplicitMissingFileIsError(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), ""); err == nil {
		t.Error("Expected error for explicit missing config file")
	}
}

func TestLoad_ActiveProfile(t *testing.T) {
	configFile := createTempConfig(t, `
active_profile: studio
data:
  directory: /tmp/whispernote-test
transcription:
  language: en-US
profiles:
  studio:
    audio:
      backend: jack
      source: "system:capture_1,system:capture_2"
      channels: 2
      format: wav
    transcription:
      auto_transcribe: false
`)

	cfg, err := Load(configFile, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Profile != "studio" {
		t.Errorf("Expected profile 'studio', got %q", cfg.Profile)
	}
	if cfg.Audio.Backend != BackendJack || cfg.Audio.Channels != 2 || cfg.Audio.Format != "wav" {
		t.Errorf("Profile audio not applied: %+v", cfg.Audio)
	}
	if cfg.Transcription.AutoTranscribe {
		t.Error("Expected profile to disable auto_transcribe")
	}
	if cfg.Transcription.Language != "en" {
		t.Errorf("Expected language canonicalized to 'en', got %s", cfg.Transcription.Language)
	}
	if cfg.Data.Directory != "/tmp/whispernote-test" {
		t.Errorf("Expected inherited data directory, got %s", cfg.Data.Directory)
	}

	// Explicit "default" selects the base configuration
	base, err := Load(configFile, "default")
	if err != nil {
		t.Fatalf("Load default failed: %v", err)
	}
	if base.Audio.Backend != BackendPulse || base.Inheritance != nil {
		t.Errorf("Expected base config, got %+v", base.Audio)
	}
}

func TestLoad_UnknownProfile(t *testing.T) {
	configFile := createTempConfig(t, "data:\n  directory: /tmp/x\n")

	if _, err := Load(configFile, "nope"); err == nil {
		t.Error("Expected error for unknown profile")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	configFile := createTempConfig(t, "transcription:\n  model: tiny\n")
	t.Setenv("WHISPERNOTE_TRANSCRIPTION_MODEL", "large-v3")

	cfg, err := Load(configFile, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Transcription.Model != "large-v3" {
		t.Errorf("Expected env override 'large-v3', got %s", cfg.Transcription.Model)
	}
}

func TestLoad_DotenvFile(t *testing.T) {
	const key = "WHISPERNOTE_AUDIO_FORMAT"
	t.Setenv(key, "")
	os.Unsetenv(key)

	envFile := filepath.Join(t.TempDir(), "whispernote.env")
	if err := os.WriteFile(envFile, []byte(key+"=flac\n"), 0644); err != nil {
		t.Fatalf("Failed to write env file: %v", err)
	}
	t.Setenv(EnvFileVar, envFile)

	cfg, err := Load(createTempConfig(t, "audio:\n  format: m4a\n"), "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Audio.Format != "flac" {
		t.Errorf("Expected dotenv value 'flac', got %s", cfg.Audio.Format)
	}
}

func TestUpdateActiveProfile(t *testing.T) {
	configFile := createTempConfig(t, `
profiles:
  meeting:
    transcription:
      model: medium
`)

	if err := UpdateActiveProfile(configFile, "missing"); err == nil {
		t.Error("Expected error for unknown profile")
	}
	if err := UpdateActiveProfile(configFile, "meeting"); err != nil {
		t.Fatalf("UpdateActiveProfile failed: %v", err)
	}

	cfg, err := Load(configFile, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Profile != "meeting" || cfg.Transcription.Model != "medium" {
		t.Errorf("Expected active profile 'meeting' with model medium, got %q / %s", cfg.Profile, cfg.Transcription.Model)
	}
}

func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "whispernote.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create temp config: %v", err)
	}
	return configFile
}
