package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Chapter is a titled section of an audio file.
type Chapter struct {
	Title string
	Start time.Duration
	End   time.Duration
}

// ExtractChapters reads the "chapters" list from yt-dlp video metadata.
// Chapters without a title or with a non-positive length are skipped.
func ExtractChapters(info map[string]any) []Chapter {
	raw, ok := info["chapters"].([]any)
	if !ok {
		return nil
	}

	var chapters []Chapter
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		start := seconds(m["start_time"])
		end := seconds(m["end_time"])
		if title == "" || end <= start {
			continue
		}
		chapters = append(chapters, Chapter{Title: title, Start: start, End: end})
	}
	return chapters
}

func seconds(v any) time.Duration {
	f, ok := v.(float64)
	if !ok {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// Chapterer embeds chapter markers into audio files.
type Chapterer struct {
	ffmpeg *FFmpeg
	logger *slog.Logger
}

// NewChapterer creates a Chapterer. ffmpeg is used for MP4 and Ogg files.
func NewChapterer(ffmpeg *FFmpeg, logger *slog.Logger) *Chapterer {
	if ffmpeg == nil {
		ffmpeg = NewFFmpeg("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Chapterer{ffmpeg: ffmpeg, logger: logger}
}

// Embed writes the chapters found in info into the file at path. Files
// without chapters or in an unsupported format are left unchanged.
func (c *Chapterer) Embed(ctx context.Context, info map[string]any, path string) error {
	format := FormatOf(path)
	if format == FormatUnknown {
		c.logger.Debug("skipping chapters for unsupported format", slog.String("path", path))
		return nil
	}

	chapters := ExtractChapters(info)
	if len(chapters) == 0 {
		c.logger.Debug("no chapters found", slog.String("path", path))
		return nil
	}

	var err error
	switch format {
	case FormatMP3:
		err = writeMP3Chapters(path, chapters)
	default:
		err = c.writeFFmpegChapters(ctx, path, chapters)
	}
	if err != nil {
		return fmt.Errorf("embed chapters in %s: %w", format, err)
	}

	c.logger.Info("embedded chapters", slog.String("path", path), slog.Int("count", len(chapters)))
	return nil
}

func (c *Chapterer) writeFFmpegChapters(ctx context.Context, path string, chapters []Chapter) error {
	meta, err := writeTemp("ytaudio-chapters-*.txt", []byte(ffmetadata(chapters)))
	if err != nil {
		return fmt.Errorf("write chapter metadata: %w", err)
	}
	defer os.Remove(meta)

	return c.ffmpeg.remux(ctx, path, []string{meta},
		[]string{"-map", "0", "-map_metadata", "0", "-map_chapters", "1", "-codec", "copy"})
}

// ffmetadata renders chapters in ffmpeg's FFMETADATA1 format.
func ffmetadata(chapters []Chapter) string {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	for _, ch := range chapters {
		fmt.Fprintf(&b, "\n[CHAPTER]\nTIMEBASE=1/1000\nSTART=%d\nEND=%d\ntitle=%s\n",
			ch.Start.Milliseconds(), ch.End.Milliseconds(), escapeMetadata(ch.Title))
	}
	return b.String()
}

var metadataEscaper = strings.NewReplacer(
	`\`, `\\`,
	"=", `\=`,
	";", `\;`,
	"#", `\#`,
	"\n", "\\\n",
)

func escapeMetadata(s string) string {
	return metadataEscaper.Replace(s)
}
