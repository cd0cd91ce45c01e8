package youtube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	ythttp "ytaudio/http"
)

const feedURLTemplate = "https://www.youtube.com/feeds/videos.xml?channel_id=%s"

// FeedLister lists uploads from a channel's public Atom feed. It spends no
// API quota but only sees the 15 most recent uploads.
type FeedLister struct {
	client      *ythttp.Client
	parser      *gofeed.Parser
	urlTemplate string
	logger      *slog.Logger
}

// NewFeedLister creates a feed lister using client for HTTP.
func NewFeedLister(client *ythttp.Client, logger *slog.Logger) *FeedLister {
	if client == nil {
		client = ythttp.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedLister{
		client:      client,
		parser:      gofeed.NewParser(),
		urlTemplate: feedURLTemplate,
		logger:      logger,
	}
}

// ListRecentVideos returns up to maxResults feed entries published at or
// after since.
func (f *FeedLister) ListRecentVideos(ctx context.Context, channelID string, since time.Time, maxResults int64) ([]Video, error) {
	feedURL := fmt.Sprintf(f.urlTemplate, url.QueryEscape(channelID))

	resp, err := f.client.Get(ctx, feedURL)
	if err != nil {
		var httpErr *ythttp.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == 404 {
			return nil, &ListerError{Source: "feed", Channel: channelID, Err: ErrChannelNotFound}
		}
		return nil, &ListerError{Source: "feed", Channel: channelID, Err: err}
	}

	feed, err := f.parser.Parse(bytes.NewReader(resp.Body))
	if err != nil {
		return nil, &ListerError{Source: "feed", Channel: channelID, Err: fmt.Errorf("parse feed: %w", err)}
	}

	var videos []Video
	for _, item := range feed.Items {
		if maxResults > 0 && int64(len(videos)) >= maxResults {
			break
		}
		v, ok := feedItemVideo(item, channelID)
		if !ok {
			f.logger.Warn("skipping unparseable feed entry", slog.String("channel_id", channelID))
			continue
		}
		if v.Published.Before(since) {
			continue
		}
		videos = append(videos, v)
	}

	f.logger.Info("listed channel feed",
		slog.String("channel_id", channelID),
		slog.Int("recent", len(videos)),
		slog.Int("fetched", len(feed.Items)),
	)
	return videos, nil
}

func feedItemVideo(item *gofeed.Item, channelID string) (Video, bool) {
	if item == nil {
		return Video{}, false
	}

	id := ""
	if yt, ok := item.Extensions["yt"]; ok {
		if ext := yt["videoId"]; len(ext) > 0 {
			id = ext[0].Value
		}
	}
	if id == "" {
		id = strings.TrimPrefix(item.GUID, "yt:video:")
		if id == item.GUID {
			id = ""
		}
	}

	published := item.PublishedParsed
	if published == nil {
		published = item.UpdatedParsed
	}
	if id == "" || published == nil {
		return Video{}, false
	}

	return Video{
		ID:        id,
		Title:     item.Title,
		ChannelID: channelID,
		Published: published.UTC(),
	}, true
}
