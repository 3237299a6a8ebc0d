package services

import "strings"

// SanitizeSpotifyID reduces an open.spotify.com URL or a spotify: URI to its bare ID.
//
//	https://open.spotify.com/artist/4Z8W4fKeB5YxbusRsdQVPb?si=x -> 4Z8W4fKeB5YxbusRsdQVPb
//	spotify:artist:4Z8W4fKeB5YxbusRsdQVPb                      -> 4Z8W4fKeB5YxbusRsdQVPb
func SanitizeSpotifyID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "http") {
		return lastPathSegment(id)
	}

	for _, prefix := range []string{"spotify:", "artist:", "album:", "track:"} {
		id = strings.TrimPrefix(id, prefix)
	}
	return id
}

// SanitizeAppleMusicID reduces a music.apple.com URL to its trailing catalog ID.
func SanitizeAppleMusicID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "http") {
		return lastPathSegment(id)
	}
	return id
}

func lastPathSegment(u string) string {
	if i := strings.LastIndex(u, "/"); i >= 0 {
		u = u[i+1:]
	}
	id, _, _ := strings.Cut(u, "?")
	return id
}

// SanitizeIDs applies sanitize to each id, returning a fresh slice.
func SanitizeIDs(ids []string, sanitize func(string) string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, sanitize(id))
	}
	return out
}
