package youtube

import (
	"fmt"
	"time"
)

// MockVideos synthesizes count deterministic uploads for channelID, spaced
// 12 hours apart starting 12 hours after since. Used by dry runs.
func MockVideos(channelID string, since time.Time, count int) []Video {
	short := channelID
	if len(short) > 8 {
		short = short[:8]
	}

	videos := make([]Video, 0, count)
	for i := 0; i < count; i++ {
		videos = append(videos, Video{
			ID:        fmt.Sprintf("MOCK%s%02d", short, i),
			Title:     fmt.Sprintf("[DRY RUN] Mock Video %d from Channel %s", i+1, short),
			ChannelID: channelID,
			Published: since.Add(time.Duration(12*(i+1)) * time.Hour),
		})
	}
	return videos
}
