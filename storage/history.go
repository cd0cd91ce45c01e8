package storage

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Entry records one completed download. Timestamps are kept as the strings
// read from disk so that unchanged entries round-trip verbatim.
type Entry struct {
	Title        string `json:"title"`
	ChannelID    string `json:"channel_id"`
	DownloadedAt string `json:"downloaded_at"`
	PublishedAt  string `json:"published_at"`
}

// NewEntry builds an entry with both instants rendered as UTC RFC 3339.
func NewEntry(title, channelID string, downloadedAt, publishedAt time.Time) Entry {
	return Entry{
		Title:        title,
		ChannelID:    channelID,
		DownloadedAt: downloadedAt.UTC().Format(time.RFC3339),
		PublishedAt:  publishedAt.UTC().Format(time.RFC3339),
	}
}

// History is the set of downloaded videos keyed by video ID.
// Methods never mutate the receiver; WithEntry and Prune return new values.
type History struct {
	Videos map[string]Entry `json:"downloaded_videos"`
}

// New returns an empty history.
func New() *History {
	return &History{Videos: make(map[string]Entry)}
}

// Read decodes the history at path. A missing file yields a StorageError
// wrapping ErrNotFound; undecodable content wraps ErrStorageCorrupt.
func Read(path string) (*History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &StorageError{Op: "read", Entity: "history", ID: path, Err: ErrNotFound}
		}
		return nil, &StorageError{Op: "read", Entity: "history", ID: path, Err: err}
	}

	h := New()
	if err := json.Unmarshal(data, h); err != nil {
		return nil, &StorageError{Op: "read", Entity: "history", ID: path, Err: ErrStorageCorrupt}
	}
	if h.Videos == nil {
		h.Videos = make(map[string]Entry)
	}
	return h, nil
}

// Load reads the history at path and never fails: a missing, unreadable or
// corrupt file all produce an empty history and a log line.
func Load(path string, logger *slog.Logger) *History {
	if logger == nil {
		logger = slog.Default()
	}

	h, err := Read(path)
	switch {
	case err == nil:
		logger.Debug("loaded download history", slog.String("path", path), slog.Int("entries", h.Len()))
		return h
	case errors.Is(err, ErrNotFound):
		logger.Info("download history not found, starting fresh", slog.String("path", path))
	case errors.Is(err, ErrStorageCorrupt):
		logger.Warn("download history is corrupt, starting fresh", slog.String("path", path))
	default:
		logger.Error("failed to read download history, starting fresh",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
	return New()
}

// Save writes the history to path atomically. On failure the previous file
// is left untouched.
func (h *History) Save(path string) error {
	out := h
	if out.Videos == nil {
		out = New()
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &StorageError{Op: "write", Entity: "history", ID: path, Err: err}
	}
	data = append(data, '\n')

	if err := WriteFileAtomic(path, data); err != nil {
		return &StorageError{Op: "write", Entity: "history", ID: path, Err: err}
	}
	return nil
}

// Len returns the number of entries.
func (h *History) Len() int {
	return len(h.Videos)
}

// Contains reports whether videoID has been downloaded.
func (h *History) Contains(videoID string) bool {
	_, ok := h.Videos[videoID]
	return ok
}

// Get returns the entry for videoID.
func (h *History) Get(videoID string) (Entry, bool) {
	e, ok := h.Videos[videoID]
	return e, ok
}

// DownloadedIDs returns the set of recorded video IDs.
func (h *History) DownloadedIDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(h.Videos))
	for id := range h.Videos {
		ids[id] = struct{}{}
	}
	return ids
}

// WithEntry returns a copy of h with entry stored under videoID, replacing
// any existing entry for that ID.
func (h *History) WithEntry(videoID string, entry Entry) *History {
	next := h.clone()
	next.Videos[videoID] = entry
	return next
}

// Prune returns a copy of h without entries downloaded more than maxAgeDays
// before now, and the number of entries removed. Entries whose download
// time is missing or unparseable are removed. A non-positive maxAgeDays
// disables pruning.
func (h *History) Prune(now time.Time, maxAgeDays int) (*History, int) {
	next := h.clone()
	if maxAgeDays <= 0 {
		return next, 0
	}

	cutoff := now.Add(-time.Duration(maxAgeDays) * 24 * time.Hour)
	removed := 0
	for id, e := range next.Videos {
		t, ok := ParseTimestamp(e.DownloadedAt)
		if !ok || t.Before(cutoff) {
			delete(next.Videos, id)
			removed++
		}
	}
	return next, removed
}

func (h *History) clone() *History {
	next := &History{Videos: make(map[string]Entry, len(h.Videos)+1)}
	for id, e := range h.Videos {
		next.Videos[id] = e
	}
	return next
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 instant. Values without a zone are
// taken as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
