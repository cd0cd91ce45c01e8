package enrich

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ErrFFmpegNotFound is returned when the ffmpeg executable cannot be started.
var ErrFFmpegNotFound = errors.New("enrich: ffmpeg not found")

// FFmpeg remuxes audio files without re-encoding.
type FFmpeg struct {
	// Path is the ffmpeg executable. Defaults to "ffmpeg" from PATH.
	Path string
	// Timeout bounds a single invocation.
	Timeout time.Duration
}

// NewFFmpeg creates a runner for the given executable.
func NewFFmpeg(path string) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpeg{Path: path, Timeout: 2 * time.Minute}
}

// partSuffix marks in-progress remux output. It is outside every audio
// extension so an interrupted remux is never moved as a finished file.
const partSuffix = ".part"

// muxers names the ffmpeg output format for each remuxable extension.
var muxers = map[string]string{
	".m4a":  "ipod",
	".m4b":  "ipod",
	".mp4":  "mp4",
	".ogg":  "ogg",
	".oga":  "ogg",
	".opus": "opus",
	".mp3":  "mp3",
}

// remux rewrites src with extra inputs and mapping arguments, then replaces
// src with the result.
func (f *FFmpeg) remux(ctx context.Context, src string, inputs []string, args []string) error {
	muxer, ok := muxers[strings.ToLower(filepath.Ext(src))]
	if !ok {
		return fmt.Errorf("no ffmpeg muxer for %s", filepath.Base(src))
	}
	tmp := src + partSuffix
	defer os.Remove(tmp)

	cmdArgs := []string{"-hide_banner", "-loglevel", "error", "-i", src}
	for _, in := range inputs {
		cmdArgs = append(cmdArgs, "-i", in)
	}
	cmdArgs = append(cmdArgs, args...)
	cmdArgs = append(cmdArgs, "-f", muxer, "-y", tmp)

	cmdCtx := ctx
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, f.Path, cmdArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if cmdCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("ffmpeg timed out after %s", f.Timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) && (errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist)) {
			return fmt.Errorf("%w: %s", ErrFFmpegNotFound, f.Path)
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("ffmpeg: %w: %s", err, msg)
		}
		return fmt.Errorf("ffmpeg: %w", err)
	}

	if err := os.Rename(tmp, src); err != nil {
		return fmt.Errorf("replace %s: %w", src, err)
	}
	return nil
}

// writeTemp stores data in a temporary file and returns its path.
func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
