// Package youtube discovers new uploads on a set of channels and decides
// which of them qualify for audio download.
package youtube

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for listing operations.
var (
	ErrChannelNotFound = errors.New("youtube: channel not found")
	ErrAPIKeyRequired  = errors.New("youtube: api key required")
	ErrNetworkTimeout  = errors.New("youtube: network timeout")
)

// Lister returns the recent uploads of a single channel.
type Lister interface {
	ListRecentVideos(ctx context.Context, channelID string, since time.Time, maxResults int64) ([]Video, error)
}

// Video is an upload discovered during a run.
type Video struct {
	// ID is the YouTube video ID (e.g., "dQw4w9WgXcQ").
	ID string `json:"id"`
	// Title is the video title.
	Title string `json:"title"`
	// ChannelID is the owning channel (e.g., "UCuAXFkgsw1L7xaCfnd5JJOw").
	ChannelID string `json:"channel_id"`
	// Published is when the video was published.
	Published time.Time `json:"published"`
}

// URL returns the watch URL for this video.
func (v Video) URL() string {
	return "https://www.youtube.com/watch?v=" + v.ID
}

// Details holds the technical metadata used to qualify a video.
type Details struct {
	DurationSeconds int
	IsLive          bool
}

// ListerError wraps listing errors with context about what failed.
// Use errors.As() to extract this error type and get operation details:
//
//	var listerErr *youtube.ListerError
//	if errors.As(err, &listerErr) {
//		fmt.Printf("Failed to list from %s: %v\n", listerErr.Source, listerErr.Err)
//	}
type ListerError struct {
	// Source indicates which lister produced the error ("api", "feed").
	Source string
	// Channel is the channel ID that was being listed.
	Channel string
	// Err is the underlying error that occurred.
	Err error
}

// Error returns a string representation of the listing error.
func (e *ListerError) Error() string {
	return "youtube: " + e.Source + " listing " + e.Channel + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is() and errors.As().
func (e *ListerError) Unwrap() error { return e.Err }
