package main

import (
	"fmt"
	"os"

	"github.com/MrWong99/voicecheck/internal/capture"
	"github.com/MrWong99/voicecheck/internal/config"
)

// DevicesCmd lists the capture devices of a backend.
type DevicesCmd struct {
	Backend string `short:"b" enum:"arecord,ffmpeg" default:"arecord" help:"Capture backend to query (arecord, ffmpeg)."`
	Command string `help:"Executable to run instead of the backend's default."`
}

// Run prints one line per device; the backend default device is marked.
func (c *DevicesCmd) Run(env *runEnv) error {
	b := capture.Arecord()
	if c.Backend == config.SourceFFmpeg {
		b = capture.FFmpeg(c.Command)
	}
	if c.Command != "" {
		b.Command = c.Command
	}

	devices, err := capture.ListDevices(env.ctx, b)
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render(b.Name + " capture devices"))
	if b.DefaultDevice != "" {
		printKV(os.Stdout, "default", b.DefaultDevice)
	}
	for _, d := range devices {
		printKV(os.Stdout, d.ID, d.Name)
	}
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

// Run prints the version.
func (VersionCmd) Run() error {
	fmt.Println(titleStyle.Render("voicecheck"))
	printKV(os.Stdout, "Version", version)
	return nil
}
