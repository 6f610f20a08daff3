package mux

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"bilicrawl/pkg/logger"
)

// Muxer drives ffmpeg to combine or remux downloaded streams. Streams
// are never re-encoded, only copied into an mp4 container.
type Muxer struct {
	// Path is the ffmpeg binary. Defaults to "ffmpeg" on PATH.
	Path string

	Logger logger.Logger
}

// New creates a muxer using the given ffmpeg path.
func New(path string) *Muxer {
	if path == "" {
		path = "ffmpeg"
	}
	return &Muxer{Path: path, Logger: logger.GetLogger()}
}

// Available reports whether the ffmpeg binary can be found.
func (m *Muxer) Available() bool {
	_, err := exec.LookPath(m.Path)
	return err == nil
}

// Mux combines the given input files into output. One input remuxes, two
// inputs pair a video and an audio stream.
func (m *Muxer) Mux(ctx context.Context, output string, inputs ...string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("mux: no inputs")
	}

	cmd := exec.CommandContext(ctx, m.Path, muxArgs(output, inputs)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, lastLine(stderr.String()))
	}
	return nil
}

func muxArgs(output string, inputs []string) []string {
	args := make([]string, 0, 2*len(inputs)+4)
	for _, in := range inputs {
		args = append(args, "-i", in)
	}
	args = append(args, "-c", "copy", "-y", output)
	return args
}

// lastLine trims ffmpeg's chatty stderr down to its final line, which
// usually carries the actual failure.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return ""
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
