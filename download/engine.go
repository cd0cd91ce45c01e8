// Package download fetches the audio of qualifying videos with bounded
// retry and runs best-effort enrichment on the resulting files.
package download

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ytaudio/internal/retry"
	"ytaudio/youtube"
)

// ThumbnailEmbedder attaches a video's thumbnail to an audio file.
type ThumbnailEmbedder interface {
	Embed(ctx context.Context, videoID, path string) error
}

// ChapterEmbedder writes chapter markers from download metadata into an
// audio file.
type ChapterEmbedder interface {
	Embed(ctx context.Context, info map[string]any, path string) error
}

// Config holds the engine tunables.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// InitialBackoff is the wait before the first retry; it doubles on
	// each subsequent one.
	InitialBackoff time.Duration
	// OutputDir is the working download directory.
	OutputDir string
	// SponsorBlock enables segment filtering when non-nil.
	SponsorBlock *SponsorBlock
	// PermanentPhrases extends DefaultPermanentPhrases.
	PermanentPhrases []string
}

// DefaultConfig returns 3 retries starting at 2 seconds.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 2 * time.Second,
		OutputDir:      "downloads",
	}
}

// Outcome is the result of downloading one video.
type Outcome struct {
	Video youtube.Video
	// Success is true when the audio file was produced.
	Success bool
	// Err is the final error for a failed download.
	Err error
	// RetryCount is the number of retries spent.
	RetryCount int
	// FilePath is the produced audio file.
	FilePath string
}

// Message returns the failure text, or "" on success.
func (o Outcome) Message() string {
	if o.Err == nil {
		return ""
	}
	var dlErr *DownloadError
	if errors.As(o.Err, &dlErr) {
		return dlErr.Message
	}
	return o.Err.Error()
}

// BatchResult splits a batch into successful and failed outcomes.
type BatchResult struct {
	Successful []Outcome
	Failed     []Outcome
}

// Total returns the number of attempted videos.
func (r BatchResult) Total() int { return len(r.Successful) + len(r.Failed) }

// SuccessCount returns the number of successful downloads.
func (r BatchResult) SuccessCount() int { return len(r.Successful) }

// FailureCount returns the number of failed downloads.
func (r BatchResult) FailureCount() int { return len(r.Failed) }

// Retries returns the retries spent across the whole batch.
func (r BatchResult) Retries() int {
	n := 0
	for _, o := range r.Successful {
		n += o.RetryCount
	}
	for _, o := range r.Failed {
		n += o.RetryCount
	}
	return n
}

// Engine downloads videos one at a time.
type Engine struct {
	extractor  Extractor
	classifier *Classifier
	options    ExtractOptions
	logger     *slog.Logger

	// Retry controls the backoff schedule. Tests replace Retry.Sleep.
	Retry retry.Config
	// Thumbnails and Chapters are optional enrichment steps.
	Thumbnails ThumbnailEmbedder
	Chapters   ChapterEmbedder
}

// NewEngine creates an engine around the given extractor.
func NewEngine(extractor Extractor, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Engine{
		extractor:  extractor,
		classifier: NewClassifier(cfg.PermanentPhrases...),
		options: ExtractOptions{
			OutputDir:    cfg.OutputDir,
			SponsorBlock: cfg.SponsorBlock,
		},
		logger: logger,
		Retry: retry.Config{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			Multiplier:     2,
		},
	}
}

// Download fetches the audio of a single video.
//
// Transient yt-dlp failures are retried with exponential backoff, permanent
// ones stop immediately, and any other error ends the attempts without
// retry. Enrichment failures are logged and never fail the outcome.
func (e *Engine) Download(ctx context.Context, v youtube.Video) Outcome {
	title := v.Title
	if title == "" {
		title = v.ID
	}
	log := e.logger.With(slog.String("video_id", v.ID))

	var result *Result
	cfg := e.Retry
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = retry.Sleep
	}
	attempt := 0
	cfg.Sleep = func(ctx context.Context, d time.Duration) error {
		attempt++
		log.Warn("download failed, retrying",
			slog.String("title", title), slog.Duration("backoff", d), slog.Int("attempt", attempt), slog.Int("max_attempts", cfg.MaxRetries+1))
		return sleep(ctx, d)
	}

	retries, err := retry.Do(ctx, cfg, e.classifier.Retryable, func(ctx context.Context) error {
		r, err := e.extractor.Extract(ctx, v.ID, e.options)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		var exhausted *retry.RetryableError
		var dlErr *DownloadError
		switch {
		case errors.As(err, &exhausted):
			err = exhausted.Err
			log.Error("download failed after all attempts", slog.String("title", title), slog.Int("attempts", retries+1), slog.String("error", err.Error()))
		case errors.As(err, &dlErr):
			log.Error("permanent download error", slog.String("title", title), slog.String("error", err.Error()))
		default:
			log.Error("unexpected error downloading", slog.String("title", title), slog.String("error", err.Error()))
		}
		return Outcome{Video: v, Err: err, RetryCount: retries}
	}

	if retries > 0 {
		log.Info("downloaded", slog.String("title", title), slog.Int("retries", retries))
	} else {
		log.Info("downloaded", slog.String("title", title))
	}

	e.enrich(ctx, log, v, result)

	return Outcome{Video: v, Success: true, RetryCount: retries, FilePath: result.FilePath}
}

func (e *Engine) enrich(ctx context.Context, log *slog.Logger, v youtube.Video, result *Result) {
	if result.FilePath == "" {
		log.Warn("downloaded file not found, skipping enrichment")
		return
	}
	if e.Thumbnails != nil {
		if err := e.Thumbnails.Embed(ctx, v.ID, result.FilePath); err != nil {
			log.Warn("thumbnail embedding failed", slog.String("path", result.FilePath), slog.String("error", err.Error()))
		}
	}
	if e.Chapters != nil {
		if err := e.Chapters.Embed(ctx, result.Info, result.FilePath); err != nil {
			log.Warn("chapter embedding failed", slog.String("path", result.FilePath), slog.String("error", err.Error()))
		}
	}
}

// DownloadBatch downloads videos sequentially in input order.
func (e *Engine) DownloadBatch(ctx context.Context, videos []youtube.Video) BatchResult {
	var result BatchResult
	if len(videos) == 0 {
		e.logger.Info("no videos to download")
		return result
	}

	e.logger.Info("downloading videos", slog.Int("count", len(videos)))
	for _, v := range videos {
		o := e.Download(ctx, v)
		if o.Success {
			result.Successful = append(result.Successful, o)
		} else {
			result.Failed = append(result.Failed, o)
		}
	}
	e.logger.Info("download complete", slog.Int("successful", result.SuccessCount()), slog.Int("failed", result.FailureCount()))
	return result
}
