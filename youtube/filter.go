package youtube

// ShortMaxSeconds is the longest duration still treated as a Short.
const ShortMaxSeconds = 60

// FilterQualifying drops live or upcoming streams and Shorts, preserving
// input order. Videos without details are kept.
func FilterQualifying(videos []Video, details map[string]Details) []Video {
	out := make([]Video, 0, len(videos))
	for _, v := range videos {
		d, ok := details[v.ID]
		if !ok {
			out = append(out, v)
			continue
		}
		if d.IsLive || d.DurationSeconds <= ShortMaxSeconds {
			continue
		}
		out = append(out, v)
	}
	return out
}
