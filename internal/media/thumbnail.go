package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
)

// Thumbnailer extracts a still JPEG frame from a video.
type Thumbnailer interface {
	Frame(ctx context.Context, video io.Reader) ([]byte, error)
}

// FFmpeg shells out to the ffmpeg binary. The video is spooled to a temp
// file first because most containers need a seekable input.
type FFmpeg struct {
	Path string
}

func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path}
}

func (f *FFmpeg) Frame(ctx context.Context, video io.Reader) ([]byte, error) {
	tmp, err := os.CreateTemp("", "thumb-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, video); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("spool video: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("spool video: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.Path,
		"-hide_banner", "-loglevel", "error",
		"-i", tmp.Name(),
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"pipe:1",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no frame")
	}
	return stdout.Bytes(), nil
}
