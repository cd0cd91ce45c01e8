package ytaudio

import (
	"ytaudio/config"
	"ytaudio/download"
	"ytaudio/enrich"
	"ytaudio/internal/lock"
	"ytaudio/internal/retry"
	"ytaudio/storage"
	"ytaudio/youtube"
)

// Error handling types exported for library users.
//
// Sentinels work with errors.Is:
//
//	if errors.Is(err, ytaudio.ErrYtdlpNotFound) {
//		fmt.Println("install yt-dlp first")
//	}
//
// Wrapped errors work with errors.As:
//
//	var dlErr *ytaudio.DownloadError
//	if errors.As(err, &dlErr) {
//		fmt.Printf("%s failed: %s\n", dlErr.VideoID, dlErr.Message)
//	}

// Type aliases for convenient error handling.
type (
	// ConfigError reports a missing or invalid setting.
	ConfigError = config.ConfigError
	// ListerError wraps errors during channel listing.
	ListerError = youtube.ListerError
	// DownloadError is a failed yt-dlp invocation.
	DownloadError = download.DownloadError
	// RetryableError wraps the last error after retries were exhausted.
	RetryableError = retry.RetryableError
	// StorageError wraps history read and write failures.
	StorageError = storage.StorageError
)

// Sentinel errors exported from sub-packages.
var (
	ErrAPIKeyRequired  = youtube.ErrAPIKeyRequired
	ErrChannelNotFound = youtube.ErrChannelNotFound
	ErrNetworkTimeout  = youtube.ErrNetworkTimeout

	ErrYtdlpNotFound  = download.ErrYtdlpNotFound
	ErrFFmpegNotFound = enrich.ErrFFmpegNotFound

	ErrNotFound       = storage.ErrNotFound
	ErrStorageCorrupt = storage.ErrStorageCorrupt

	// ErrLocked indicates another run holds the lock file.
	ErrLocked = lock.ErrHeld
)

// IsPermanent reports whether a yt-dlp error message names a failure that
// retrying cannot fix, such as a private or removed video.
func IsPermanent(message string) bool {
	return download.IsPermanent(message)
}
