//go:build darwin

package capture

import "regexp"

var avfoundationList = deviceList{
	startMarker: "AVFoundation audio devices:",
	stopMarker:  "AVFoundation video devices:",
	pattern:     regexp.MustCompile(`\[AVFoundation[^\]]*\]\s*\[(\d+)\]\s*(.+)`),
	device: func(m []string) Device {
		return Device{ID: ":" + m[1], Name: m[2]}
	},
}

func ffmpegPlatform() ffmpegInput {
	return ffmpegInput{
		inputFormat:   "avfoundation",
		defaultDevice: ":0",
		listArgs:      []string{"-hide_banner", "-f", "avfoundation", "-list_devices", "true", "-i", ""},
		parse:         avfoundationList.parse,
	}
}
