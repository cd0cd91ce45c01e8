package download

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// OutputTemplate names downloaded files after the video and its channel.
const OutputTemplate = "%(title)s - %(channel)s.%(ext)s"

// AudioFormat prefers m4a and falls back to the best audio-only stream.
const AudioFormat = "m4a/bestaudio/best"

// fallbackExtensions are tried when yt-dlp does not report the final path.
var fallbackExtensions = []string{".m4a", ".mp3", ".opus", ".ogg", ".webm"}

// Action selects what SponsorBlock does with matched segments.
type Action string

const (
	// ActionRemove cuts the segments out of the audio.
	ActionRemove Action = "remove"
	// ActionMark keeps the audio intact and marks the segments as chapters.
	ActionMark Action = "mark"
)

// SponsorBlock configures segment filtering for a download.
type SponsorBlock struct {
	Categories []string
	Action     Action
}

func (s *SponsorBlock) args() []string {
	if s == nil || len(s.Categories) == 0 {
		return nil
	}
	cats := strings.Join(s.Categories, ",")
	if s.Action == ActionMark {
		return []string{"--sponsorblock-mark", cats}
	}
	return []string{"--sponsorblock-remove", cats}
}

// ExtractOptions configures a single extraction.
type ExtractOptions struct {
	// OutputDir is where the audio file is written.
	OutputDir string
	// SponsorBlock enables segment filtering when non-nil.
	SponsorBlock *SponsorBlock
}

// Result describes a finished extraction.
type Result struct {
	// FilePath is the final audio file, or empty if it could not be located.
	FilePath string
	// Info is the metadata yt-dlp reported for the video.
	Info map[string]any
}

// Extractor downloads the audio of one video.
//
// Extract returns *DownloadError for failures reported by the download
// tool; any other error is an unexpected local fault.
type Extractor interface {
	Extract(ctx context.Context, videoID string, opts ExtractOptions) (*Result, error)
}

// YtdlpExtractor runs the yt-dlp executable.
type YtdlpExtractor struct {
	// Path is the yt-dlp executable. Defaults to "yt-dlp" from PATH.
	Path string
	// FFmpegPath is passed to yt-dlp as --ffmpeg-location when set.
	FFmpegPath string
	// Timeout bounds a single invocation. Zero means no limit.
	Timeout time.Duration
}

// NewYtdlpExtractor creates an extractor for the given executable.
func NewYtdlpExtractor(path string) *YtdlpExtractor {
	if path == "" {
		path = "yt-dlp"
	}
	return &YtdlpExtractor{Path: path, Timeout: 30 * time.Minute}
}

// Extract downloads the audio of videoID into opts.OutputDir.
func (x *YtdlpExtractor) Extract(ctx context.Context, videoID string, opts ExtractOptions) (*Result, error) {
	outputDir := opts.OutputDir
	if outputDir == "" {
		outputDir = "."
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	cmdCtx := ctx
	if x.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, x.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cmdCtx, x.path(), x.args(videoID, outputDir, opts)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if cmdCtx.Err() == context.DeadlineExceeded {
			return nil, &DownloadError{
				VideoID:  videoID,
				Message:  fmt.Sprintf("timed out after %s", x.Timeout),
				ExitCode: -1,
			}
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &DownloadError{
				VideoID:  videoID,
				Message:  errorMessage(stderr.String(), exitErr),
				ExitCode: exitErr.ExitCode(),
			}
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrYtdlpNotFound, x.path())
		}
		return nil, fmt.Errorf("run yt-dlp: %w", err)
	}

	info, err := parseInfo(stdout.Bytes())
	if err != nil {
		return nil, err
	}

	return &Result{
		FilePath: resolveArtifact(info),
		Info:     info,
	}, nil
}

func (x *YtdlpExtractor) path() string {
	if x.Path == "" {
		return "yt-dlp"
	}
	return x.Path
}

func (x *YtdlpExtractor) args(videoID, outputDir string, opts ExtractOptions) []string {
	args := []string{
		"-f", AudioFormat,
		"-P", outputDir,
		"-o", OutputTemplate,
		"--embed-metadata",
		"--no-warnings",
		"--no-progress",
		"--no-simulate",
		"--print", "after_move:%()j",
	}
	if x.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", x.FFmpegPath)
	}
	args = append(args, opts.SponsorBlock.args()...)
	return append(args, "--", videoID)
}

// errorMessage extracts the "ERROR:" lines yt-dlp wrote to stderr.
func errorMessage(stderr string, exitErr *exec.ExitError) string {
	var msgs []string
	var last string
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		if strings.HasPrefix(line, "ERROR:") {
			msgs = append(msgs, line)
		}
	}
	switch {
	case len(msgs) > 0:
		return strings.Join(msgs, "; ")
	case last != "":
		return last
	default:
		return exitErr.Error()
	}
}

// parseInfo decodes the info JSON printed on the last non-empty stdout line.
func parseInfo(stdout []byte) (map[string]any, error) {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		var info map[string]any
		if err := json.Unmarshal([]byte(line), &info); err != nil {
			return nil, fmt.Errorf("parse yt-dlp output: %w", err)
		}
		return info, nil
	}
	return map[string]any{}, nil
}

// resolveArtifact returns the path of the produced audio file. When the
// reported path does not exist, the same name with each known audio
// extension is tried.
func resolveArtifact(info map[string]any) string {
	var reported string
	for _, key := range []string{"filepath", "_filename", "filename"} {
		if s, ok := info[key].(string); ok && s != "" {
			reported = s
			break
		}
	}
	if reported == "" {
		return ""
	}
	if _, err := os.Stat(reported); err == nil {
		return reported
	}
	base := strings.TrimSuffix(reported, filepath.Ext(reported))
	for _, ext := range fallbackExtensions {
		candidate := base + ext
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return reported
}
