//go:build linux

package capture

// ffmpeg on Linux reads ALSA devices, which arecord enumerates.
func ffmpegPlatform() ffmpegInput {
	return ffmpegInput{
		inputFormat:   "alsa",
		defaultDevice: "default",
		listCommand:   "arecord",
		listArgs:      []string{"-l"},
		parse:         parseArecordList,
	}
}
