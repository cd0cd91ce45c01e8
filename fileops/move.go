// Package fileops moves finished audio files from the working download
// directory into the target library.
package fileops

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"ytaudio/storage"
)

// DefaultAudioExtensions are the file extensions moved when none are configured.
var DefaultAudioExtensions = []string{".m4a", ".mp3", ".opus", ".webm", ".aac", ".ogg", ".wav", ".flac"}

// MoveResult describes one file move.
type MoveResult struct {
	Source      string
	Destination string
	Err         error
}

// BatchMoveResult splits moves into successes and failures.
type BatchMoveResult struct {
	Successful []MoveResult
	Failed     []MoveResult
}

// SuccessCount returns the number of moved files.
func (r BatchMoveResult) SuccessCount() int { return len(r.Successful) }

// FailureCount returns the number of files that could not be moved.
func (r BatchMoveResult) FailureCount() int { return len(r.Failed) }

// Total returns the number of attempted moves.
func (r BatchMoveResult) Total() int { return len(r.Successful) + len(r.Failed) }

// NormalizeExtensions lowercases extensions and adds the leading dot.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

// MoveMatchingFiles moves every regular file in sourceDir whose extension is
// in extensions into targetDir. A missing source or target directory yields
// an empty result. Existing files in targetDir are overwritten.
func MoveMatchingFiles(sourceDir, targetDir string, extensions []string, logger *slog.Logger) BatchMoveResult {
	if logger == nil {
		logger = slog.Default()
	}
	var result BatchMoveResult

	if !isDir(sourceDir) {
		logger.Warn("source directory does not exist", slog.String("path", sourceDir))
		return result
	}
	if !isDir(targetDir) {
		logger.Error("target directory does not exist", slog.String("path", targetDir))
		return result
	}

	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		logger.Error("failed to list source directory", slog.String("path", sourceDir), slog.String("error", err.Error()))
		return result
	}

	if len(extensions) == 0 {
		extensions = DefaultAudioExtensions
	}
	allowed := make(map[string]bool)
	for _, e := range NormalizeExtensions(extensions) {
		allowed[e] = true
	}

	var files []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if allowed[strings.ToLower(filepath.Ext(entry.Name()))] {
			files = append(files, entry.Name())
		}
	}
	if len(files) == 0 {
		logger.Info("no audio files to move")
		return result
	}

	logger.Info("moving audio files", slog.Int("count", len(files)), slog.String("target", targetDir))
	for _, name := range files {
		r := MoveResult{
			Source:      filepath.Join(sourceDir, name),
			Destination: filepath.Join(targetDir, name),
		}
		if r.Err = moveFile(r.Source, r.Destination); r.Err != nil {
			logger.Error("failed to move file", slog.String("file", name), slog.String("error", r.Err.Error()))
			result.Failed = append(result.Failed, r)
			continue
		}
		logger.Debug("moved file", slog.String("file", name))
		result.Successful = append(result.Successful, r)
	}

	logger.Info("move complete", slog.Int("successful", result.SuccessCount()), slog.Int("failed", result.FailureCount()))
	return result
}

func isDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// moveFile renames src to dst, falling back to copy and delete when the two
// paths are on different filesystems.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return fmt.Errorf("copy across filesystems: %w", err)
	}
	return os.Remove(src)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	w, err := storage.NewAtomicWriter(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, in); err != nil {
		w.Abort()
		return err
	}
	return w.Commit()
}
