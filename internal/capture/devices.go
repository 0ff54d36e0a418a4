package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ListDevices runs the backend's listing command and returns the input
// devices it reports.
func ListDevices(ctx context.Context, b Backend) ([]Device, error) {
	if len(b.ListArgs) == 0 || b.parse == nil {
		return nil, fmt.Errorf("capture: %s: device listing not supported", b.Name)
	}
	name := b.ListCommand
	if name == "" {
		name = b.Command
	}
	// ffmpeg exits non-zero after -list_devices, so only a missing binary or
	// empty output counts as failure.
	out, err := exec.CommandContext(ctx, name, b.ListArgs...).CombinedOutput()
	if err != nil && len(out) == 0 {
		return nil, fmt.Errorf("capture: list %s devices: %w", b.Name, err)
	}
	return b.parse(string(out)), nil
}

// ResolveDevice maps a configured device to the ID passed to the capture
// command. An empty query selects the backend default; otherwise the query
// is matched against the listed devices with [MatchDevice]. When the backend
// cannot list devices the query is used verbatim.
func ResolveDevice(ctx context.Context, b Backend, query string) (string, error) {
	if (query == "" || query == b.DefaultDevice) && b.DefaultDevice != "" {
		return b.DefaultDevice, nil
	}
	devices, err := ListDevices(ctx, b)
	if err != nil {
		if query != "" {
			return query, nil
		}
		return "", errors.Join(ErrNoDevice, err)
	}
	if query == "" {
		if len(devices) == 0 {
			return "", ErrNoDevice
		}
		return devices[0].ID, nil
	}
	d, err := MatchDevice(devices, query)
	if err != nil {
		// Unlisted names such as ALSA plugin PCMs are still valid device IDs.
		if strings.ContainsAny(query, ":=") {
			return query, nil
		}
		return "", err
	}
	return d.ID, nil
}

// deviceList describes how to pull devices out of a listing command's output.
type deviceList struct {
	startMarker string
	stopMarker  string
	pattern     *regexp.Regexp
	device      func(m []string) Device
}

func (l deviceList) parse(output string) []Device {
	var devices []Device
	inSection := l.startMarker == ""
	for line := range strings.SplitSeq(output, "\n") {
		if l.startMarker != "" && strings.Contains(line, l.startMarker) {
			inSection = true
			continue
		}
		if l.stopMarker != "" && strings.Contains(line, l.stopMarker) {
			inSection = false
			continue
		}
		if !inSection {
			continue
		}
		if m := l.pattern.FindStringSubmatch(line); m != nil {
			devices = append(devices, l.device(m))
		}
	}
	return devices
}

// arecordList matches lines such as
// "card 1: USB [USB Audio Device], device 0: USB Audio [USB Audio]".
var arecordList = deviceList{
	pattern: regexp.MustCompile(`card\s+(\d+):\s+(\w+)\s+\[([^\]]+)\],\s+device\s+(\d+):`),
	device: func(m []string) Device {
		return Device{ID: "plughw:CARD=" + m[2] + ",DEV=" + m[4], Name: m[3]}
	},
}

func parseArecordList(output string) []Device { return arecordList.parse(output) }
