package download

import (
	"errors"
	"strings"
)

// ErrYtdlpNotFound is returned when the yt-dlp executable cannot be started.
var ErrYtdlpNotFound = errors.New("download: yt-dlp not found")

// DownloadError is the failure signal reported by yt-dlp itself: a non-zero
// exit with an error message, or a timeout of the extraction call.
//
// Only DownloadError is subject to retry. Any other error returned by an
// Extractor is treated as an unexpected local fault and ends the video's
// attempts immediately.
type DownloadError struct {
	// VideoID is the video being downloaded.
	VideoID string
	// Message is the error text yt-dlp printed.
	Message string
	// ExitCode is the yt-dlp exit status, or -1 on timeout.
	ExitCode int
}

// Error returns the yt-dlp message.
func (e *DownloadError) Error() string {
	return "download " + e.VideoID + ": " + e.Message
}

// DefaultPermanentPhrases are the message fragments that mark a failure
// which retrying cannot fix.
var DefaultPermanentPhrases = []string{
	"Video unavailable",
	"Private video",
	"This video is not available",
	"Sign in to confirm your age",
	"members-only content",
	"This video has been removed",
	"copyright claim",
	"This video is no longer available",
	"available in your country",
	"blocked it in your country",
}

// Classifier decides whether a download failure is permanent by matching
// its message case-insensitively against a list of phrase fragments.
type Classifier struct {
	phrases []string
}

// NewClassifier returns a classifier using DefaultPermanentPhrases plus
// any extra phrases. Blank phrases are ignored.
func NewClassifier(extra ...string) *Classifier {
	c := &Classifier{}
	for _, p := range append(append([]string{}, DefaultPermanentPhrases...), extra...) {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			c.phrases = append(c.phrases, p)
		}
	}
	return c
}

// IsPermanent reports whether message contains a permanent-failure phrase.
func (c *Classifier) IsPermanent(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range c.phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Retryable reports whether err should be attempted again: only transient
// yt-dlp failures qualify.
func (c *Classifier) Retryable(err error) bool {
	var dlErr *DownloadError
	if !errors.As(err, &dlErr) {
		return false
	}
	return !c.IsPermanent(dlErr.Message)
}

var defaultClassifier = NewClassifier()

// IsPermanent reports whether message matches one of DefaultPermanentPhrases.
func IsPermanent(message string) bool {
	return defaultClassifier.IsPermanent(message)
}
