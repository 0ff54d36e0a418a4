// Package capture provides the concrete Frame Sources used by voicecheck: a
// subprocess source that reads raw S16LE PCM from an audio capture tool such
// as arecord or ffmpeg, a WAV file source, and a fallback source that tries
// several backends in order.
//
// All sources implement [audio.Source] and deliver mono float frames of a
// fixed size.
package capture

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrWong99/voicecheck/pkg/audio"
)

// ErrNoDevice is returned when a device query matches no capture device.
var ErrNoDevice = errors.New("capture: no matching audio input device")

// Device is one audio input device as reported by the backend's listing
// command.
type Device struct {
	// ID is the value passed to the capture command (e.g. "default:CARD=USB").
	ID string
	// Name is the human-readable device description.
	Name string
}

// Backend describes how to invoke one capture tool.
type Backend struct {
	// Name identifies the backend in config and logs.
	Name string

	// Command is the executable name or path.
	Command string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// ListCommand and ListArgs print the available input devices. ListCommand
	// defaults to Command; an empty ListArgs means the backend cannot
	// enumerate devices.
	ListCommand string
	ListArgs    []string

	// BuildArgs returns the arguments that capture device in format f and
	// write raw interleaved S16LE to stdout.
	BuildArgs func(device string, f audio.Format) []string

	// parse extracts devices from the output of the listing command.
	parse func(output string) []Device
}

// Args returns the full argument list for capturing device, substituting
// [Backend.DefaultDevice] when device is empty.
func (b Backend) Args(device string, f audio.Format) []string {
	if device == "" {
		device = b.DefaultDevice
	}
	return b.BuildArgs(device, f)
}

// Arecord returns the ALSA arecord backend.
func Arecord() Backend {
	return Backend{
		Name:          "arecord",
		Command:       "arecord",
		DefaultDevice: "default",
		ListArgs:      []string{"-l"},
		BuildArgs:     arecordArgs,
		parse:         parseArecordList,
	}
}

func arecordArgs(device string, f audio.Format) []string {
	return []string{
		"-D", device,
		"-f", "S16_LE",
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
		"-t", "raw",
		"-q",
		"-",
	}
}

// FFmpeg returns the ffmpeg backend using the platform's native capture input
// (alsa on Linux, avfoundation on macOS, dshow on Windows). path overrides
// the executable when non-empty.
func FFmpeg(path string) Backend {
	p := ffmpegPlatform()
	if path == "" {
		path = "ffmpeg"
	}
	return Backend{
		Name:          "ffmpeg",
		Command:       path,
		DefaultDevice: p.defaultDevice,
		ListCommand:   p.listCommand,
		ListArgs:      p.listArgs,
		BuildArgs: func(device string, f audio.Format) []string {
			return ffmpegArgs(p.inputFormat, p.devicePrefix+device, f)
		},
		parse: p.parse,
	}
}

func ffmpegArgs(inputFormat, device string, f audio.Format) []string {
	return []string{
		"-f", inputFormat,
		"-i", device,
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-vn",
		"-f", "s16le",
		"-ac", strconv.Itoa(f.Channels),
		"-ar", strconv.Itoa(f.SampleRate),
		"pipe:1",
	}
}

// ffmpegInput holds the platform-dependent parts of an ffmpeg capture.
type ffmpegInput struct {
	inputFormat   string
	devicePrefix  string
	defaultDevice string
	listCommand   string
	listArgs      []string
	parse         func(string) []Device
}

// MatchDevice returns the first device whose ID equals query, or whose ID or
// name contains query case-insensitively. An empty query matches nothing and
// returns [ErrNoDevice].
func MatchDevice(devices []Device, query string) (Device, error) {
	if query == "" {
		return Device{}, ErrNoDevice
	}
	for _, d := range devices {
		if d.ID == query {
			return d, nil
		}
	}
	q := strings.ToLower(query)
	for _, d := range devices {
		if strings.Contains(strings.ToLower(d.Name), q) || strings.Contains(strings.ToLower(d.ID), q) {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("%w: %q", ErrNoDevice, query)
}
