package config_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/voicecheck/internal/config"
)

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad log level", "server:\n  log_level: bananas\n", "server.log_level"},
		{"bad listen addr", "server:\n  listen_addr: nine-four-six-four\n", "server.listen_addr"},
		{"tls without key", "server:\n  tls:\n    cert_file: c.pem\n", "server.tls.key_file is required"},
		{"file without path", "source:\n  name: file\n", "source.path is required"},
		{"sample rate too low", "source:\n  sample_rate: 4000\n", "source.sample_rate must be greater than or equal to 8000"},
		{"too many channels", "source:\n  channels: 12\n", "source.channels"},
		{"bad fallback", "source:\n  name: auto\n  fallback: [arecord, pulse]\n", "source.fallback"},
		{"unknown mode", "analysis:\n  mode: loudness\n", "analysis.mode"},
		{"unknown drop policy", "analysis:\n  drop_policy: random\n", "analysis.drop_policy"},
		{"positive quiet threshold", "analysis:\n  thresholds:\n    quiet_db: 3\n", "analysis.thresholds.quiet_db"},
		{"ratio out of range", "analysis:\n  thresholds:\n    noisy_ratio: 2\n", "noisy_ratio"},
		{"band with one edge", "analysis:\n  bands:\n    low: [60]\n", "analysis.bands.low must have exactly 2 entries"},
		{"negative failures", "analysis:\n  max_consecutive_failures: -1\n", "max_consecutive_failures"},
		{"quiet above loud", "analysis:\n  thresholds:\n    quiet_db: -3\n    loud_db: -10\n", "quiet_db"},
		{"decay shorter than attack", "analysis:\n  durations:\n    attack: 1s\n    decay: 500ms\n", "decay"},
		{"overlapping bands", "analysis:\n  bands:\n    low: [60, 500]\n", "ordered"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  log_level: loud
source:
  frame_size: 8
analysis:
  mode: fancy
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "source.frame_size", "analysis.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidate_UnknownSourceNameIsAllowed(t *testing.T) {
	t.Parallel()
	// Third-party sources may be registered by the embedding program.
	if _, err := config.LoadFromReader(strings.NewReader("source:\n  name: pipewire\n")); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
