// Package runner sequences one polling run: discover uploads, qualify them,
// skip what the history already holds, download the rest, record the
// successes and move the finished files into place.
package runner

import (
	"context"
	"log/slog"
	"time"

	"ytaudio/download"
	"ytaudio/fileops"
	"ytaudio/metrics"
	"ytaudio/storage"
	"ytaudio/youtube"
)

// VideoSource discovers and qualifies uploads.
type VideoSource interface {
	ListRecentVideosForChannels(ctx context.Context, channelIDs []string, since time.Time) []youtube.Video
	FetchQualificationDetails(ctx context.Context, videoIDs []string) (map[string]youtube.Details, error)
	QuotaUsed() int
}

// Downloader fetches audio for a batch of videos.
type Downloader interface {
	DownloadBatch(ctx context.Context, videos []youtube.Video) download.BatchResult
}

// MoveFunc relocates finished files; see fileops.MoveMatchingFiles.
type MoveFunc func(sourceDir, targetDir string, extensions []string, logger *slog.Logger) fileops.BatchMoveResult

// Settings are the run parameters taken from configuration.
type Settings struct {
	ChannelIDs        []string
	LookbackDays      int
	HistoryFile       string
	HistoryMaxAgeDays int
	DownloadDirectory string
	TargetDirectory   string
	AudioExtensions   []string
	DryRun            bool
}

// Runner executes runs. It owns the history for the duration of a run.
type Runner struct {
	settings   Settings
	source     VideoSource
	downloader Downloader
	logger     *slog.Logger

	// Metrics, when set, receives run metrics.
	Metrics metrics.RunRecorder
	// Move defaults to fileops.MoveMatchingFiles.
	Move MoveFunc
	// Now defaults to time.Now.
	Now func() time.Time
}

// New creates a Runner.
func New(settings Settings, source VideoSource, downloader Downloader, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		settings:   settings,
		source:     source,
		downloader: downloader,
		logger:     logger,
		Move:       fileops.MoveMatchingFiles,
		Now:        time.Now,
	}
}

// Run performs one complete run and returns its summary. The exit code is
// available from Summary.ExitCode.
func (r *Runner) Run(ctx context.Context) *Summary {
	start := r.Now()
	s := &Summary{}
	defer func() {
		s.QuotaUnits = r.source.QuotaUsed()
		r.recordFinished(s, r.Now().Sub(start))
	}()

	history := storage.Load(r.settings.HistoryFile, r.logger)
	downloaded := history.DownloadedIDs()
	r.logger.Info("loaded history", slog.Int("videos", len(downloaded)))

	since := start.AddDate(0, 0, -r.settings.LookbackDays)
	r.logger.Info("checking for new videos", slog.String("since", since.Format("2006-01-02")), slog.Int("channels", len(r.settings.ChannelIDs)))

	candidates := r.source.ListRecentVideosForChannels(ctx, r.settings.ChannelIDs, since)
	s.Discovered = len(candidates)
	r.recordVideos(metrics.StageDiscovered, s.Discovered)
	if len(candidates) == 0 {
		r.logger.Info("no videos found in the lookback window")
		return s
	}

	qualifying := r.qualify(ctx, candidates)
	s.Qualified = len(qualifying)
	r.recordVideos(metrics.StageQualified, s.Qualified)
	if len(qualifying) == 0 {
		r.logger.Info("no regular videos found, all were shorts or streams")
		return s
	}

	newVideos := FilterNew(qualifying, downloaded)
	s.New = len(newVideos)
	r.recordVideos(metrics.StageNew, s.New)
	if len(newVideos) == 0 {
		r.logger.Info("all videos already downloaded, nothing to do")
		return s
	}
	r.logger.Info("found new videos to download", slog.Int("count", len(newVideos)))

	if r.settings.DryRun {
		for _, v := range newVideos {
			r.logger.Info("dry run: would download", slog.String("video_id", v.ID), slog.String("title", v.Title), slog.String("channel_id", v.ChannelID))
		}
		return s
	}

	s.Downloads = r.downloader.DownloadBatch(ctx, newVideos)
	r.recordDownloads(s.Downloads)

	now := r.Now()
	history = AddSuccesses(history, s.Downloads, newVideos, now)

	history, pruned := history.Prune(now, r.settings.HistoryMaxAgeDays)
	if pruned > 0 {
		r.logger.Info("pruned old history entries", slog.Int("removed", pruned), slog.Int("max_age_days", r.settings.HistoryMaxAgeDays))
	}

	if err := history.Save(r.settings.HistoryFile); err != nil {
		s.HistoryErr = err
		r.logger.Error("failed to save history file", slog.String("path", r.settings.HistoryFile), slog.String("error", err.Error()))
	}

	s.Moves = r.Move(r.settings.DownloadDirectory, r.settings.TargetDirectory, r.settings.AudioExtensions, r.logger)
	if r.Metrics != nil {
		r.Metrics.RecordMoves(s.Moves.SuccessCount(), s.Moves.FailureCount())
	}

	s.QuotaUnits = r.source.QuotaUsed()
	LogSummary(r.logger, s)
	return s
}

func (r *Runner) qualify(ctx context.Context, candidates []youtube.Video) []youtube.Video {
	ids := make([]string, len(candidates))
	for i, v := range candidates {
		ids[i] = v.ID
	}
	details := FetchDetails(ctx, r.source, ids, r.logger)
	qualifying := youtube.FilterQualifying(candidates, details)
	if dropped := len(candidates) - len(qualifying); dropped > 0 {
		r.logger.Info("filtered shorts and streams",
			slog.Int("dropped", dropped),
			slog.Int("remaining", len(qualifying)),
		)
	}
	return qualifying
}

// DetailsSource looks up qualification details for at most
// youtube.MaxBatchSize videos per call.
type DetailsSource interface {
	FetchQualificationDetails(ctx context.Context, videoIDs []string) (map[string]youtube.Details, error)
}

// FetchDetails looks up details for every ID, youtube.MaxBatchSize at a
// time. A failed batch is logged and its videos are left without details.
func FetchDetails(ctx context.Context, source DetailsSource, ids []string, logger *slog.Logger) map[string]youtube.Details {
	if logger == nil {
		logger = slog.Default()
	}
	details := make(map[string]youtube.Details, len(ids))
	for start := 0; start < len(ids); start += youtube.MaxBatchSize {
		batch := ids[start:min(start+youtube.MaxBatchSize, len(ids))]
		got, err := source.FetchQualificationDetails(ctx, batch)
		if err != nil {
			logger.Warn("could not fetch video details, keeping batch",
				slog.Int("videos", len(batch)),
				slog.String("error", err.Error()),
			)
		}
		for id, d := range got {
			details[id] = d
		}
	}
	return details
}

// FilterNew returns the videos whose IDs are not in downloaded, preserving
// order.
func FilterNew(videos []youtube.Video, downloaded map[string]struct{}) []youtube.Video {
	out := make([]youtube.Video, 0, len(videos))
	for _, v := range videos {
		if _, ok := downloaded[v.ID]; !ok {
			out = append(out, v)
		}
	}
	return out
}

// AddSuccesses records every successful download in history. Outcomes with
// no matching video in videos are skipped.
func AddSuccesses(history *storage.History, results download.BatchResult, videos []youtube.Video, now time.Time) *storage.History {
	lookup := make(map[string]youtube.Video, len(videos))
	for _, v := range videos {
		lookup[v.ID] = v
	}
	for _, o := range results.Successful {
		v, ok := lookup[o.Video.ID]
		if !ok {
			continue
		}
		history = history.WithEntry(v.ID, storage.NewEntry(v.Title, v.ChannelID, now, v.Published))
	}
	return history
}

func (r *Runner) recordVideos(stage string, n int) {
	if r.Metrics != nil {
		r.Metrics.RecordVideos(stage, n)
	}
}

func (r *Runner) recordDownloads(res download.BatchResult) {
	if r.Metrics == nil {
		return
	}
	for _, o := range res.Successful {
		r.Metrics.RecordDownloadSuccess(o.RetryCount)
	}
	for _, o := range res.Failed {
		r.Metrics.RecordDownloadFailure(o.RetryCount)
	}
}

func (r *Runner) recordFinished(s *Summary, d time.Duration) {
	if r.Metrics == nil {
		return
	}
	r.Metrics.RecordQuotaUnits(int64(s.QuotaUnits))
	r.Metrics.RecordRunFinished(d, s.ExitCode() == 0)
}
