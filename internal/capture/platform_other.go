//go:build !linux && !darwin

package capture

import (
	"regexp"
	"strings"
)

// dshowList matches lines like: [dshow @ addr] "Device Name" (audio)
var dshowList = deviceList{
	pattern: regexp.MustCompile(`\[dshow[^\]]*\]\s*"([^"]+)"\s*\(audio\)`),
	device: func(m []string) Device {
		name := strings.TrimSpace(m[1])
		return Device{ID: name, Name: name}
	},
}

// DirectShow has no safe default device; the first listed one is used.
func ffmpegPlatform() ffmpegInput {
	return ffmpegInput{
		inputFormat:  "dshow",
		devicePrefix: "audio=",
		listArgs:     []string{"-hide_banner", "-f", "dshow", "-list_devices", "true", "-i", "dummy"},
		parse:        dshowList.parse,
	}
}
