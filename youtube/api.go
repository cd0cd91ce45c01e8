package youtube

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"ytaudio/internal/retry"
)

// MaxBatchSize is the largest number of items a single API list call returns.
const MaxBatchSize = 50

// Options configures a Client.
type Options struct {
	// APIKey authenticates YouTube Data API v3 calls. Not needed for dry runs.
	APIKey string
	// MaxResults is the number of newest uploads requested per channel (1-50).
	MaxResults int64
	// ChannelDelay spaces consecutive channel listings. Zero disables it.
	ChannelDelay time.Duration
	// Timeout bounds each outbound API call.
	Timeout time.Duration
	// DryRun replaces every remote call with synthesized data.
	DryRun bool
	// MockCount is the number of synthesized uploads per channel in a dry run.
	MockCount int
	// Source lists channel uploads. Nil lists through the Data API.
	Source Lister
	// Logger receives progress and error lines. Nil uses slog.Default().
	Logger *slog.Logger
	// ClientOptions are appended to the API service options.
	ClientOptions []option.ClientOption
}

// Client talks to the YouTube Data API v3 and spends as little quota as it can:
// uploads playlists are derived from channel IDs without a lookup, and
// qualification details are fetched 50 videos per call.
type Client struct {
	service *youtube.Service
	opts    Options
	logger  *slog.Logger
	limiter *rate.Limiter

	// RetryConfig governs retries of server-side API failures.
	RetryConfig retry.Config

	mu        sync.Mutex
	quotaUsed int
}

// NewClient creates a Client. An API key is required unless opts.DryRun is
// set or opts.Source lists uploads without the Data API.
func NewClient(ctx context.Context, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxResults == 0 {
		opts.MaxResults = MaxBatchSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	c := &Client{
		opts:    opts,
		logger:  opts.Logger,
		limiter: rate.NewLimiter(rate.Every(opts.ChannelDelay), 1),
		RetryConfig: retry.Config{
			MaxRetries:     2,
			InitialBackoff: time.Second,
			MaxBackoff:     10 * time.Second,
			Multiplier:     2.0,
			JitterFraction: 0.2,
		},
	}
	if opts.DryRun {
		return c, nil
	}
	if opts.APIKey == "" {
		if opts.Source != nil {
			// Feed listing without a key: no details lookups.
			return c, nil
		}
		return nil, ErrAPIKeyRequired
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(opts.APIKey)}, opts.ClientOptions...)
	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	c.service = service
	return c, nil
}

// QuotaUsed returns the API quota units spent by this client.
func (c *Client) QuotaUsed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quotaUsed
}

// UploadsPlaylistID derives a channel's uploads playlist by replacing the
// "UC" prefix with "UU". It reports false for IDs without that prefix.
func UploadsPlaylistID(channelID string) (string, bool) {
	if len(channelID) > 2 && strings.HasPrefix(channelID, "UC") {
		return "UU" + channelID[2:], true
	}
	return "", false
}

// ListRecentVideos returns up to maxResults of the channel's newest uploads
// published at or after since. maxResults is clamped to [1, 50].
func (c *Client) ListRecentVideos(ctx context.Context, channelID string, since time.Time, maxResults int64) ([]Video, error) {
	if c.opts.DryRun {
		videos := MockVideos(channelID, since, c.opts.MockCount)
		c.logger.Info("[DRY RUN] returning mock videos",
			slog.String("channel_id", channelID),
			slog.Int("count", len(videos)),
		)
		return videos, nil
	}

	if maxResults < 1 || maxResults > MaxBatchSize {
		clamped := min(max(maxResults, 1), MaxBatchSize)
		c.logger.Warn("max results out of range, clamping",
			slog.Int64("requested", maxResults),
			slog.Int64("used", clamped),
		)
		maxResults = clamped
	}

	playlistID, err := c.uploadsPlaylistID(ctx, channelID)
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}

	var resp *youtube.PlaylistItemListResponse
	err = c.call(ctx, func(ctx context.Context) error {
		r, err := c.service.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(playlistID).
			MaxResults(maxResults).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &ListerError{Source: "api", Channel: channelID, Err: err}
	}

	videos := make([]Video, 0, len(resp.Items))
	for _, item := range resp.Items {
		v, ok := playlistItemVideo(item, channelID)
		if !ok {
			c.logger.Warn("skipping unparseable playlist item", slog.String("channel_id", channelID))
			continue
		}
		if v.Published.Before(since) {
			continue
		}
		videos = append(videos, v)
	}

	c.logger.Info("listed channel uploads",
		slog.String("channel_id", channelID),
		slog.Int("recent", len(videos)),
		slog.Int("fetched", len(resp.Items)),
	)
	return videos, nil
}

// ListRecentVideosForChannels lists every channel in order and returns the
// combined uploads newest first. A failing channel is logged and skipped.
// Outside dry runs, calls are spaced by the configured channel delay.
func (c *Client) ListRecentVideosForChannels(ctx context.Context, channelIDs []string, since time.Time) []Video {
	source := c.opts.Source
	if source == nil || c.opts.DryRun {
		source = c
	}

	var all []Video
	for _, channelID := range channelIDs {
		if !c.opts.DryRun {
			if err := c.limiter.Wait(ctx); err != nil {
				c.logger.Warn("channel listing interrupted", slog.String("error", err.Error()))
				break
			}
		}

		videos, err := source.ListRecentVideos(ctx, channelID, since, c.opts.MaxResults)
		if err != nil {
			c.logger.Error("failed to list channel",
				slog.String("channel_id", channelID),
				slog.String("error", err.Error()),
			)
			continue
		}
		all = append(all, videos...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Published.After(all[j].Published)
	})
	return all
}

// FetchQualificationDetails returns duration and live status for up to 50
// videos in a single call. IDs beyond the first 50 are ignored. On error
// the returned map is empty, never nil.
func (c *Client) FetchQualificationDetails(ctx context.Context, videoIDs []string) (map[string]Details, error) {
	details := make(map[string]Details)
	if len(videoIDs) == 0 || c.opts.DryRun {
		return details, nil
	}
	if c.service == nil {
		c.logger.Debug("no api key, skipping qualification details", slog.Int("videos", len(videoIDs)))
		return details, nil
	}
	if len(videoIDs) > MaxBatchSize {
		c.logger.Debug("truncating details request",
			slog.Int("requested", len(videoIDs)),
			slog.Int("used", MaxBatchSize),
		)
		videoIDs = videoIDs[:MaxBatchSize]
	}

	var resp *youtube.VideoListResponse
	err := c.call(ctx, func(ctx context.Context) error {
		r, err := c.service.Videos.List([]string{"contentDetails", "snippet", "liveStreamingDetails"}).
			Id(videoIDs...).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return details, &ListerError{Source: "api", Channel: "videos", Err: err}
	}

	for _, item := range resp.Items {
		d := Details{IsLive: isLive(item)}
		if item.ContentDetails != nil {
			d.DurationSeconds = ParseDuration(item.ContentDetails.Duration)
		}
		details[item.Id] = d
	}
	return details, nil
}

// isLive reports live, upcoming, and completed-broadcast videos. Any item
// carrying liveStreamingDetails counts, including replays of past streams.
func isLive(item *youtube.Video) bool {
	if item.LiveStreamingDetails != nil {
		return true
	}
	if item.Snippet != nil {
		switch item.Snippet.LiveBroadcastContent {
		case "live", "upcoming":
			return true
		}
	}
	return false
}

func (c *Client) uploadsPlaylistID(ctx context.Context, channelID string) (string, error) {
	if id, ok := UploadsPlaylistID(channelID); ok {
		return id, nil
	}

	var playlistID string
	err := c.call(ctx, func(ctx context.Context) error {
		resp, err := c.service.Channels.List([]string{"contentDetails"}).
			Id(channelID).
			Context(ctx).
			Do()
		if err != nil {
			return err
		}
		if len(resp.Items) == 0 || resp.Items[0].ContentDetails == nil || resp.Items[0].ContentDetails.RelatedPlaylists == nil {
			return ErrChannelNotFound
		}
		playlistID = resp.Items[0].ContentDetails.RelatedPlaylists.Uploads
		return nil
	})
	if err != nil {
		return "", err
	}
	if playlistID == "" {
		return "", ErrChannelNotFound
	}
	return playlistID, nil
}

// call runs one list request under the per-call timeout, retrying server
// errors. Every attempt is charged one quota unit.
func (c *Client) call(ctx context.Context, fn func(context.Context) error) error {
	_, err := retry.Do(ctx, c.RetryConfig, apiErrorClassifier, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		err := fn(callCtx)
		c.trackQuotaUsage(1)
		if err != nil && callCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("%w: %v", ErrNetworkTimeout, err)
		}
		return err
	})
	return err
}

func (c *Client) trackQuotaUsage(units int) {
	c.mu.Lock()
	c.quotaUsed += units
	used := c.quotaUsed
	c.mu.Unlock()

	c.logger.Debug("youtube quota usage", slog.Int("units", units), slog.Int("total", used))
}

// apiErrorClassifier retries server-side failures and timeouts. Client
// errors such as an invalid key or exhausted quota are final.
func apiErrorClassifier(err error) bool {
	if errors.Is(err, ErrChannelNotFound) {
		return false
	}
	if errors.Is(err, ErrNetworkTimeout) {
		return true
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code >= http.StatusInternalServerError || apiErr.Code == http.StatusTooManyRequests
	}
	return retry.IsRetryable(err)
}

func playlistItemVideo(item *youtube.PlaylistItem, channelID string) (Video, bool) {
	if item == nil || item.ContentDetails == nil || item.Snippet == nil || item.ContentDetails.VideoId == "" {
		return Video{}, false
	}

	published := item.ContentDetails.VideoPublishedAt
	if published == "" {
		published = item.Snippet.PublishedAt
	}
	t, err := time.Parse(time.RFC3339, published)
	if err != nil {
		return Video{}, false
	}

	return Video{
		ID:        item.ContentDetails.VideoId,
		Title:     item.Snippet.Title,
		ChannelID: channelID,
		Published: t,
	}, true
}
