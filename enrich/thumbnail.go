package enrich

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"

	"github.com/disintegration/imaging"

	ythttp "ytaudio/http"
)

// minThumbnailSize separates real thumbnails from YouTube's placeholder image.
const minThumbnailSize = 1000

// DefaultThumbnailURLs lists thumbnail locations from highest to lowest
// resolution. Each is a format string taking the video ID.
var DefaultThumbnailURLs = []string{
	"https://img.youtube.com/vi/%s/maxresdefault.jpg",
	"https://img.youtube.com/vi/%s/sddefault.jpg",
	"https://img.youtube.com/vi/%s/hqdefault.jpg",
	"https://img.youtube.com/vi/%s/mqdefault.jpg",
	"https://img.youtube.com/vi/%s/default.jpg",
}

// Thumbnailer downloads a video's thumbnail and embeds it as square cover art.
type Thumbnailer struct {
	client *ythttp.Client
	ffmpeg *FFmpeg
	logger *slog.Logger
	urls   []string
}

// NewThumbnailer creates a Thumbnailer. ffmpeg is used for MP4 and Ogg files.
func NewThumbnailer(client *ythttp.Client, ffmpeg *FFmpeg, logger *slog.Logger) *Thumbnailer {
	if client == nil {
		client = ythttp.New(nil)
	}
	if ffmpeg == nil {
		ffmpeg = NewFFmpeg("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Thumbnailer{client: client, ffmpeg: ffmpeg, logger: logger, urls: DefaultThumbnailURLs}
}

// Fetch returns the highest resolution thumbnail available for videoID.
func (t *Thumbnailer) Fetch(ctx context.Context, videoID string) ([]byte, error) {
	for _, tmpl := range t.urls {
		url := fmt.Sprintf(tmpl, videoID)
		resp, err := t.client.Get(ctx, url)
		if err != nil {
			t.logger.Debug("thumbnail fetch failed", slog.String("url", url), slog.String("error", err.Error()))
			continue
		}
		if len(resp.Body) > minThumbnailSize {
			t.logger.Debug("downloaded thumbnail", slog.String("url", url), slog.Int("bytes", len(resp.Body)))
			return resp.Body, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoThumbnail, videoID)
}

// Embed downloads the thumbnail for videoID, pads it to a square and
// stores it as cover art in the file at path. Unsupported formats are
// left unchanged.
func (t *Thumbnailer) Embed(ctx context.Context, videoID, path string) error {
	format := FormatOf(path)
	if format == FormatUnknown {
		t.logger.Debug("skipping thumbnail for unsupported format", slog.String("path", path))
		return nil
	}

	raw, err := t.Fetch(ctx, videoID)
	if err != nil {
		return err
	}
	cover, size, err := PadToSquare(raw)
	if err != nil {
		return err
	}

	switch format {
	case FormatMP3:
		err = writeMP3Cover(path, cover)
	case FormatMP4:
		err = t.writeMP4Cover(ctx, path, cover)
	case FormatOgg:
		err = t.writeOggCover(ctx, path, cover, size)
	}
	if err != nil {
		return fmt.Errorf("embed thumbnail in %s: %w", format, err)
	}

	t.logger.Info("embedded thumbnail", slog.String("path", path))
	return nil
}

func (t *Thumbnailer) writeMP4Cover(ctx context.Context, path string, cover []byte) error {
	img, err := writeTemp("ytaudio-cover-*.jpg", cover)
	if err != nil {
		return fmt.Errorf("write cover: %w", err)
	}
	defer os.Remove(img)

	return t.ffmpeg.remux(ctx, path, []string{img}, []string{
		"-map", "0:a", "-map", "1",
		"-codec", "copy",
		"-disposition:v:0", "attached_pic",
	})
}

// writeOggCover passes the picture comment through an FFMETADATA file; a
// real cover is far larger than the kernel's limit for one argument.
// The metadata file is mapped first so its picture wins over an old one.
func (t *Thumbnailer) writeOggCover(ctx context.Context, path string, cover []byte, size int) error {
	meta, err := writeTemp("ytaudio-cover-*.txt", []byte(pictureMetadata(cover, size)))
	if err != nil {
		return fmt.Errorf("write cover metadata: %w", err)
	}
	defer os.Remove(meta)

	return t.ffmpeg.remux(ctx, path, []string{meta}, []string{
		"-map", "0",
		"-map_metadata", "1",
		"-map_metadata", "0",
		"-codec", "copy",
	})
}

// pictureMetadata renders a METADATA_BLOCK_PICTURE comment in ffmpeg's
// FFMETADATA1 format.
func pictureMetadata(cover []byte, size int) string {
	return ";FFMETADATA1\nMETADATA_BLOCK_PICTURE=" + escapeMetadata(vorbisPictureComment(cover, size, size)) + "\n"
}

// PadToSquare centers an image on a black square canvas and encodes it as
// JPEG. It returns the encoded image and its side length.
func PadToSquare(data []byte) ([]byte, int, error) {
	src, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, fmt.Errorf("decode thumbnail: %w", err)
	}

	b := src.Bounds()
	size := max(b.Dx(), b.Dy())

	var out image.Image = src
	if b.Dx() != b.Dy() {
		canvas := imaging.New(size, size, color.Black)
		out = imaging.Paste(canvas, src, image.Pt((size-b.Dx())/2, (size-b.Dy())/2))
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(95)); err != nil {
		return nil, 0, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), size, nil
}
