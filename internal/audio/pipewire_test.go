package audio

import (
	"errors"
	"strings"
	"testing"
)

func fakePipeWire(outputs map[string]string) *PipeWire {
	return &PipeWire{
		run: func(name string, args ...string) ([]byte, error) {
			key := name + " " + strings.Join(args, " ")
			out, ok := outputs[key]
			if !ok {
				return nil, errors.New("unexpected command: " + key)
			}
			return []byte(out), nil
		},
	}
}

func TestValidatePort_Success(t *testing.T) {
	ports := []string{"Chrome:output_FL", "system:capture_1"}

	if err := validatePortInList("system:capture_1", ports); err != nil {
		t.Errorf("Expected no error for valid single port, got: %v", err)
	}
}

func TestValidatePort_NotFound(t *testing.T) {
	err := validatePortInList("nonexistent:port", []string{"Chrome:output_FL"})
	if err == nil {
		t.Fatal("Expected error for nonexistent port")
	}
	if !strings.Contains(err.Error(), "port not found") {
		t.Errorf("Expected 'port not found' error, got: %v", err)
	}
}

func TestValidatePort_DuplicateDetection(t *testing.T) {
	ports := []string{
		"Chrome:output_FL",
		"Chrome:output_FL",
		"Chrome-2:output_FL",
	}

	err := validatePortInList("Chrome:output_FL", ports)
	if err == nil {
		t.Fatal("Expected error for duplicate sources")
	}
	if !strings.Contains(err.Error(), "duplicate sources detected") {
		t.Errorf("Expected 'duplicate sources detected' error, got: %v", err)
	}
}

func TestValidatePort_EmptyAndDisabled(t *testing.T) {
	pw := fakePipeWire(nil)
	if err := pw.ValidatePort(""); err != nil {
		t.Errorf("Expected no error for empty string, got: %v", err)
	}
	if err := pw.ValidatePort("disabled"); err != nil {
		t.Errorf("Expected no error for 'disabled', got: %v", err)
	}
}

func TestFindPortDuplicates_DifferentInstancesAreDistinct(t *testing.T) {
	ports := []string{
		"Firefox:output_FL",
		"Firefox:output_FL",
		"Firefox (1):output_FL",
		"Chrome:output_FL",
	}

	duplicates := findPortDuplicatesInList("Firefox:output_FL", ports)
	if len(duplicates) != 2 {
		t.Errorf("Expected 2 duplicates, got %d: %v", len(duplicates), duplicates)
	}

	if err := validatePortInList("Firefox (1):output_FL", ports); err != nil {
		t.Errorf("Expected distinct instance to validate, got: %v", err)
	}
}

func TestListPorts_ParsesPwLinkOutput(t *testing.T) {
	pw := fakePipeWire(map[string]string{
		"pw-link -io": "Output ports:\nsystem:capture_1\n  system:capture_2  \nInput ports:\nwhispernote:input_1\n\n",
	})

	ports, err := pw.ListPorts()
	if err != nil {
		t.Fatalf("ListPorts failed: %v", err)
	}
	want := []string{"system:capture_1", "system:capture_2", "whispernote:input_1"}
	if strings.Join(ports, ",") != strings.Join(want, ",") {
		t.Errorf("Expected %v, got %v", want, ports)
	}
}

func TestListSources_Pulse(t *testing.T) {
	pw := fakePipeWire(map[string]string{
		"pactl list short sources": "52\talsa_input.usb-mic.analog-stereo\tPipeWire\ts16le 2ch 48000Hz\tSUSPENDED\n" +
			"53\talsa_output.pci.monitor\tPipeWire\ts32le 2ch 48000Hz\tIDLE\n",
	})

	sources, err := pw.ListSources("pulse")
	if err != nil {
		t.Fatalf("ListSources failed: %v", err)
	}
	if len(sources) != 2 || sources[0] != "alsa_input.usb-mic.analog-stereo" {
		t.Errorf("Unexpected sources: %v", sources)
	}

	if _, err := pw.ListSources("alsa"); err == nil {
		t.Error("Expected error for backend without source listing")
	}
}

func TestConnectPortsWithRetry(t *testing.T) {
	pw := fakePipeWire(map[string]string{
		"pw-link -io":                                  "system:capture_1\nwhispernote:input_1\n",
		"pw-link system:capture_1 whispernote:input_1": "",
	})

	if err := pw.ConnectPortsWithRetry("system:capture_1", "whispernote:input_1"); err != nil {
		t.Errorf("Expected connection to succeed, got: %v", err)
	}
}

func TestIsEphemeralPort(t *testing.T) {
	if !isEphemeralPort("Google Chrome:output_FL") {
		t.Error("Expected browser port to be ephemeral")
	}
	if isEphemeralPort("system:capture_1") {
		t.Error("Expected hardware port not to be ephemeral")
	}
}
