// Package enrich embeds cover art and chapter markers into downloaded
// audio files.
//
// Embedding dispatches on the container format: MP3 files are tagged in
// place with ID3v2 frames, while MP4/M4A and Ogg files are remuxed through
// ffmpeg. Any other format is left untouched.
package enrich

import (
	"errors"
	"path/filepath"
	"strings"
)

// ErrNoThumbnail is returned when no thumbnail could be downloaded.
var ErrNoThumbnail = errors.New("enrich: no thumbnail available")

// Format is an audio container family.
type Format int

const (
	FormatUnknown Format = iota
	FormatMP3
	FormatMP4
	FormatOgg
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatMP3:
		return "mp3"
	case FormatMP4:
		return "mp4"
	case FormatOgg:
		return "ogg"
	default:
		return "unknown"
	}
}

// FormatOf returns the container family for a file, based on its extension.
func FormatOf(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		return FormatMP3
	case ".m4a", ".mp4", ".m4b":
		return FormatMP4
	case ".ogg", ".opus", ".oga":
		return FormatOgg
	default:
		return FormatUnknown
	}
}
