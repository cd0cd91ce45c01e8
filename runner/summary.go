package runner

import (
	"log/slog"
	"path/filepath"

	"ytaudio/download"
	"ytaudio/fileops"
)

// Summary reports what a run did.
type Summary struct {
	Discovered int
	Qualified  int
	New        int
	Downloads  download.BatchResult
	Moves      fileops.BatchMoveResult
	// HistoryErr is set when the history could not be saved. It does not
	// affect the exit code.
	HistoryErr error
	QuotaUnits int
}

// ExitCode returns 1 if any download failed, 0 otherwise. Move and history
// failures are reported but do not fail the run.
func (s *Summary) ExitCode() int {
	if s.Downloads.FailureCount() > 0 {
		return 1
	}
	return 0
}

// LogSummary logs download and move counts, with details for each failure.
func LogSummary(logger *slog.Logger, s *Summary) {
	logger.Info("run summary",
		slog.Int("downloads_successful", s.Downloads.SuccessCount()),
		slog.Int("downloads_failed", s.Downloads.FailureCount()),
		slog.Int("moves_successful", s.Moves.SuccessCount()),
		slog.Int("moves_failed", s.Moves.FailureCount()),
		slog.Int("quota_units", s.QuotaUnits),
	)

	for _, o := range s.Downloads.Failed {
		title := o.Video.Title
		if title == "" {
			title = o.Video.ID
		}
		logger.Warn("failed download", slog.String("title", title), slog.String("video_id", o.Video.ID), slog.String("error", o.Message()))
	}
	for _, m := range s.Moves.Failed {
		logger.Warn("failed move", slog.String("file", filepath.Base(m.Source)), slog.String("error", m.Err.Error()))
	}
}
