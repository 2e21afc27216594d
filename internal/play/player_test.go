package play

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAudioPlayer_Preference(t *testing.T) {
	p := &Player{lookPath: func(name string) (string, error) {
		if name == "mpv" || name == "aplay" {
			return "/usr/bin/" + name, nil
		}
		return "", errors.New("not found")
	}}

	player, err := p.findAudioPlayer()
	require.NoError(t, err)
	assert.Equal(t, "mpv", player)
}

func TestFindAudioPlayer_None(t *testing.T) {
	p := &Player{lookPath: func(string) (string, error) { return "", errors.New("not found") }}

	_, err := p.findAudioPlayer()
	assert.ErrorContains(t, err, "vlc, mpv, ffplay, aplay")
}

func TestPlayerArgs(t *testing.T) {
	args, err := playerArgs("ffplay", "/data/a.m4a")
	require.NoError(t, err)
	assert.Equal(t, []string{"-nodisp", "-autoexit", "/data/a.m4a"}, args)

	_, err = playerArgs("aplay", "/data/a.m4a")
	assert.ErrorContains(t, err, "requires WAV")

	args, err = playerArgs("aplay", "/data/a.WAV")
	require.NoError(t, err)
	assert.Equal(t, []string{"/data/a.WAV"}, args)
}

func TestPlay_MissingFile(t *testing.T) {
	err := New().Play(filepath.Join(t.TempDir(), "missing.m4a"))
	assert.ErrorContains(t, err, "audio file not found")
}

func TestPlay_NoPlayer(t *testing.T) {
	file := filepath.Join(t.TempDir(), "a.m4a")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0644))

	p := &Player{lookPath: func(string) (string, error) { return "", errors.New("not found") }}
	assert.ErrorContains(t, p.Play(file), "no suitable audio player")
}
