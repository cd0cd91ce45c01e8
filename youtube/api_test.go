package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"
)

// fakeAPI serves canned Data API responses keyed by resource name.
type fakeAPI struct {
	mu        sync.Mutex
	responses map[string]string
	status    map[string]int
	calls     map[string]*int32
	lastQuery map[string]string
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		responses: map[string]string{},
		status:    map[string]int{},
		calls:     map[string]*int32{"channels": new(int32), "playlistItems": new(int32), "videos": new(int32)},
		lastQuery: map[string]string{},
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	if n, ok := f.calls[resource]; ok {
		atomic.AddInt32(n, 1)
	}
	f.mu.Lock()
	f.lastQuery[resource] = r.URL.RawQuery
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	if code, ok := f.status[resource]; ok {
		w.WriteHeader(code)
		fmt.Fprintf(w, `{"error":{"code":%d,"message":"injected failure"}}`, code)
		return
	}
	body, ok := f.responses[resource]
	if !ok {
		body = `{"items":[]}`
	}
	fmt.Fprint(w, body)
}

func (f *fakeAPI) query(resource string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery[resource]
}

func (f *fakeAPI) count(resource string) int {
	return int(atomic.LoadInt32(f.calls[resource]))
}

func newTestClient(t *testing.T, api *fakeAPI, opts Options) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	opts.APIKey = "test-key"
	opts.ClientOptions = []option.ClientOption{
		option.WithEndpoint(srv.URL + "/"),
		option.WithHTTPClient(srv.Client()),
	}
	c, err := NewClient(context.Background(), opts)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.RetryConfig.Sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return c
}

const playlistResponse = `{
  "items": [
    {"snippet": {"title": "Newest", "publishedAt": "2024-03-10T12:00:00Z"},
     "contentDetails": {"videoId": "vidNew", "videoPublishedAt": "2024-03-10T11:00:00Z"}},
    {"snippet": {"title": "Snippet Date Only", "publishedAt": "2024-03-08T09:30:00Z"},
     "contentDetails": {"videoId": "vidMid"}},
    {"snippet": {"title": "Too Old", "publishedAt": "2024-02-01T00:00:00Z"},
     "contentDetails": {"videoId": "vidOld", "videoPublishedAt": "2024-02-01T00:00:00Z"}},
    {"snippet": {"title": "Broken Date"},
     "contentDetails": {"videoId": "vidBroken", "videoPublishedAt": "garbage"}}
  ]
}`

func TestNewClient(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr error
	}{
		{"empty key", Options{}, ErrAPIKeyRequired},
		{"dry run without key", Options{DryRun: true}, nil},
		{"feed source without key", Options{Source: NewFeedLister(nil, nil)}, nil},
		{"valid key", Options{APIKey: "test-api-key-12345"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient(context.Background(), tt.opts)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewClient() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && c == nil {
				t.Error("NewClient() returned nil client")
			}
		})
	}
}

func TestUploadsPlaylistID(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"UCuAXFkgsw1L7xaCfnd5JJOw", "UUuAXFkgsw1L7xaCfnd5JJOw", true},
		{"HCxyz", "", false},
		{"UC", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		got, ok := UploadsPlaylistID(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("UploadsPlaylistID(%q) = %q, %v, want %q, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestClient_ListRecentVideos(t *testing.T) {
	api := newFakeAPI()
	api.responses["playlistItems"] = playlistResponse
	c := newTestClient(t, api, Options{})

	since := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	videos, err := c.ListRecentVideos(context.Background(), "UCabcdefgh", since, 50)
	if err != nil {
		t.Fatalf("ListRecentVideos() error = %v", err)
	}

	if len(videos) != 2 {
		t.Fatalf("ListRecentVideos() returned %d videos, want 2: %+v", len(videos), videos)
	}
	if videos[0].ID != "vidNew" || !videos[0].Published.Equal(time.Date(2024, 3, 10, 11, 0, 0, 0, time.UTC)) {
		t.Errorf("videos[0] = %+v, want vidNew published from contentDetails", videos[0])
	}
	if videos[1].ID != "vidMid" || videos[1].ChannelID != "UCabcdefgh" {
		t.Errorf("videos[1] = %+v, want vidMid for channel UCabcdefgh", videos[1])
	}
	if api.count("channels") != 0 {
		t.Errorf("channels.list called %d times, want 0 for UC channel", api.count("channels"))
	}
	if !strings.Contains(api.query("playlistItems"), "playlistId=UUabcdefgh") {
		t.Errorf("playlistItems query = %q, want derived uploads playlist", api.query("playlistItems"))
	}
	if c.QuotaUsed() != 1 {
		t.Errorf("QuotaUsed() = %d, want 1", c.QuotaUsed())
	}
}

func TestClient_ListRecentVideos_ClampsMaxResults(t *testing.T) {
	tests := []struct {
		requested int64
		want      string
	}{
		{0, "maxResults=1"},
		{500, "maxResults=50"},
		{25, "maxResults=25"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.requested), func(t *testing.T) {
			api := newFakeAPI()
			c := newTestClient(t, api, Options{})

			if _, err := c.ListRecentVideos(context.Background(), "UCabc", time.Time{}, tt.requested); err != nil {
				t.Fatalf("ListRecentVideos() error = %v", err)
			}
			if !strings.Contains(api.query("playlistItems"), tt.want) {
				t.Errorf("query = %q, want %s", api.query("playlistItems"), tt.want)
			}
		})
	}
}

func TestClient_ListRecentVideos_ChannelLookupFallback(t *testing.T) {
	api := newFakeAPI()
	api.responses["channels"] = `{"items":[{"contentDetails":{"relatedPlaylists":{"uploads":"PLcustom"}}}]}`
	c := newTestClient(t, api, Options{})

	if _, err := c.ListRecentVideos(context.Background(), "HCcustom", time.Time{}, 10); err != nil {
		t.Fatalf("ListRecentVideos() error = %v", err)
	}
	if api.count("channels") != 1 {
		t.Errorf("channels.list called %d times, want 1", api.count("channels"))
	}
	if !strings.Contains(api.query("playlistItems"), "playlistId=PLcustom") {
		t.Errorf("playlistItems query = %q, want looked-up playlist", api.query("playlistItems"))
	}
	if c.QuotaUsed() != 2 {
		t.Errorf("QuotaUsed() = %d, want 2", c.QuotaUsed())
	}
}

func TestClient_ListRecentVideos_ChannelNotFound(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api, Options{})

	_, err := c.ListRecentVideos(context.Background(), "HCmissing", time.Time{}, 10)
	if !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("ListRecentVideos() error = %v, want ErrChannelNotFound", err)
	}
	var listerErr *ListerError
	if !errors.As(err, &listerErr) || listerErr.Channel != "HCmissing" {
		t.Errorf("ListRecentVideos() error = %v, want *ListerError for HCmissing", err)
	}
}

func TestClient_ListRecentVideos_ClientErrorNotRetried(t *testing.T) {
	api := newFakeAPI()
	api.status["playlistItems"] = http.StatusForbidden
	c := newTestClient(t, api, Options{})

	if _, err := c.ListRecentVideos(context.Background(), "UCabc", time.Time{}, 10); err == nil {
		t.Fatal("ListRecentVideos() error = nil, want error")
	}
	if api.count("playlistItems") != 1 {
		t.Errorf("playlistItems.list called %d times, want 1", api.count("playlistItems"))
	}
}

func TestClient_ListRecentVideos_ServerErrorRetried(t *testing.T) {
	api := newFakeAPI()
	api.status["playlistItems"] = http.StatusServiceUnavailable
	c := newTestClient(t, api, Options{})

	if _, err := c.ListRecentVideos(context.Background(), "UCabc", time.Time{}, 10); err == nil {
		t.Fatal("ListRecentVideos() error = nil, want error")
	}
	want := c.RetryConfig.MaxRetries + 1
	if api.count("playlistItems") != want {
		t.Errorf("playlistItems.list called %d times, want %d", api.count("playlistItems"), want)
	}
}

func TestClient_ListRecentVideosForChannels(t *testing.T) {
	lister := &stubLister{videos: map[string][]Video{
		"UCone": {
			{ID: "a", Published: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "b", Published: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
		},
		"UCtwo": {
			{ID: "c", Published: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
			{ID: "d", Published: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC)},
		},
	}, errs: map[string]error{"UCbad": errors.New("boom")}}

	c, err := NewClient(context.Background(), Options{APIKey: "k", Source: lister})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	got := c.ListRecentVideosForChannels(context.Background(), []string{"UCone", "UCbad", "UCtwo"}, time.Time{})

	var ids []string
	for _, v := range got {
		ids = append(ids, v.ID)
	}
	if strings.Join(ids, ",") != "b,d,c,a" {
		t.Errorf("ListRecentVideosForChannels() order = %v, want [b d c a]", ids)
	}
	if strings.Join(lister.called, ",") != "UCone,UCbad,UCtwo" {
		t.Errorf("channels listed = %v, want configuration order", lister.called)
	}
}

func TestClient_ListRecentVideosForChannels_Empty(t *testing.T) {
	lister := &stubLister{}
	c, _ := NewClient(context.Background(), Options{APIKey: "k", Source: lister})

	if got := c.ListRecentVideosForChannels(context.Background(), nil, time.Time{}); len(got) != 0 {
		t.Errorf("ListRecentVideosForChannels(nil) = %v, want empty", got)
	}
	if len(lister.called) != 0 {
		t.Errorf("lister called %d times, want 0", len(lister.called))
	}
}

func TestClient_ListRecentVideosForChannels_Delay(t *testing.T) {
	lister := &stubLister{}
	delay := 40 * time.Millisecond
	c, _ := NewClient(context.Background(), Options{APIKey: "k", Source: lister, ChannelDelay: delay})

	start := time.Now()
	c.ListRecentVideosForChannels(context.Background(), []string{"UC1", "UC2", "UC3"}, time.Time{})
	elapsed := time.Since(start)

	if elapsed < 2*delay-5*time.Millisecond {
		t.Errorf("three channels took %v, want at least %v", elapsed, 2*delay)
	}
}

func TestClient_DryRun(t *testing.T) {
	c, err := NewClient(context.Background(), Options{DryRun: true, MockCount: 3, ChannelDelay: time.Hour})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	start := time.Now()
	videos := c.ListRecentVideosForChannels(context.Background(), []string{"UCaaaaaaaaaa", "UCbbbbbbbbbb"}, since)
	if time.Since(start) > time.Second {
		t.Error("dry run waited on channel delay")
	}

	if len(videos) != 6 {
		t.Fatalf("dry run returned %d videos, want 6", len(videos))
	}
	details, err := c.FetchQualificationDetails(context.Background(), []string{videos[0].ID})
	if err != nil || len(details) != 0 {
		t.Errorf("FetchQualificationDetails() in dry run = %v, %v, want empty", details, err)
	}
	if c.QuotaUsed() != 0 {
		t.Errorf("QuotaUsed() = %d, want 0 in dry run", c.QuotaUsed())
	}
}

func TestClient_FetchQualificationDetails(t *testing.T) {
	api := newFakeAPI()
	api.responses["videos"] = `{"items":[
	  {"id":"long","contentDetails":{"duration":"PT10M5S"},"snippet":{"liveBroadcastContent":"none"}},
	  {"id":"short","contentDetails":{"duration":"PT59S"},"snippet":{"liveBroadcastContent":"none"}},
	  {"id":"upcoming","contentDetails":{"duration":"P0D"},"snippet":{"liveBroadcastContent":"upcoming"}},
	  {"id":"replay","contentDetails":{"duration":"PT1H"},"snippet":{"liveBroadcastContent":"none"},
	   "liveStreamingDetails":{"actualStartTime":"2024-01-01T00:00:00Z"}}
	]}`
	c := newTestClient(t, api, Options{})

	details, err := c.FetchQualificationDetails(context.Background(), []string{"long", "short", "upcoming", "replay", "missing"})
	if err != nil {
		t.Fatalf("FetchQualificationDetails() error = %v", err)
	}

	want := map[string]Details{
		"long":     {DurationSeconds: 605},
		"short":    {DurationSeconds: 59},
		"upcoming": {IsLive: true},
		"replay":   {DurationSeconds: 3600, IsLive: true},
	}
	if len(details) != len(want) {
		t.Fatalf("FetchQualificationDetails() = %v, want %v", details, want)
	}
	for id, w := range want {
		if details[id] != w {
			t.Errorf("details[%q] = %+v, want %+v", id, details[id], w)
		}
	}
	q := api.query("videos")
	for _, id := range []string{"long", "short", "upcoming", "replay", "missing"} {
		if !strings.Contains(q, "id="+id) {
			t.Errorf("videos query = %q, want id %s in one batch", q, id)
		}
	}
	if api.count("videos") != 1 {
		t.Errorf("videos.list called %d times, want 1", api.count("videos"))
	}
}

func TestClient_FetchQualificationDetails_Truncates(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api, Options{})

	ids := make([]string, 60)
	for i := range ids {
		ids[i] = fmt.Sprintf("v%02d", i)
	}
	if _, err := c.FetchQualificationDetails(context.Background(), ids); err != nil {
		t.Fatalf("FetchQualificationDetails() error = %v", err)
	}
	q := api.query("videos")
	if !strings.Contains(q, "v49") || strings.Contains(q, "v50") {
		t.Errorf("videos query = %q, want first 50 ids only", q)
	}
	if api.count("videos") != 1 {
		t.Errorf("videos.list called %d times, want 1", api.count("videos"))
	}
}

func TestClient_FetchQualificationDetails_Error(t *testing.T) {
	api := newFakeAPI()
	api.status["videos"] = http.StatusBadRequest
	c := newTestClient(t, api, Options{})

	details, err := c.FetchQualificationDetails(context.Background(), []string{"a"})
	if err == nil {
		t.Error("FetchQualificationDetails() error = nil, want error")
	}
	if details == nil || len(details) != 0 {
		t.Errorf("FetchQualificationDetails() = %v, want empty non-nil map", details)
	}
}

func TestClient_FetchQualificationDetails_NoIDs(t *testing.T) {
	api := newFakeAPI()
	c := newTestClient(t, api, Options{})

	details, err := c.FetchQualificationDetails(context.Background(), nil)
	if err != nil || len(details) != 0 {
		t.Errorf("FetchQualificationDetails(nil) = %v, %v", details, err)
	}
	if api.count("videos") != 0 {
		t.Errorf("videos.list called %d times, want 0", api.count("videos"))
	}
}

type stubLister struct {
	videos map[string][]Video
	errs   map[string]error
	called []string
}

func (s *stubLister) ListRecentVideos(ctx context.Context, channelID string, since time.Time, maxResults int64) ([]Video, error) {
	s.called = append(s.called, channelID)
	if err := s.errs[channelID]; err != nil {
		return nil, err
	}
	return s.videos[channelID], nil
}

func TestClient_FetchQualificationDetails_NoKey(t *testing.T) {
	c, err := NewClient(context.Background(), Options{Source: &stubLister{}})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	details, err := c.FetchQualificationDetails(context.Background(), []string{"abc"})
	if err != nil || len(details) != 0 {
		t.Errorf("FetchQualificationDetails() = %v, %v, want empty map and nil", details, err)
	}
	if c.QuotaUsed() != 0 {
		t.Errorf("QuotaUsed() = %d, want 0", c.QuotaUsed())
	}
}
