package youtube

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var youtubeURLPattern = regexp.MustCompile(`^(?:https?://)?(?:www\.|m\.|music\.)?(youtube\.com|youtu\.be)/\S+`)

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isYouTubeURL(s string) bool {
	return youtubeURLPattern.MatchString(s)
}

// videoID extracts the 11-character video id from a watch, short or
// youtu.be link.
func videoID(raw string) (string, bool) {
	if !isURL(raw) {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	var id string
	switch strings.TrimPrefix(u.Hostname(), "www.") {
	case "youtu.be":
		id = strings.Trim(u.Path, "/")
	case "youtube.com", "m.youtube.com", "music.youtube.com":
		switch {
		case u.Path == "/watch":
			id = u.Query().Get("v")
		case strings.HasPrefix(u.Path, "/shorts/"), strings.HasPrefix(u.Path, "/live/"), strings.HasPrefix(u.Path, "/embed/"):
			parts := strings.Split(strings.Trim(u.Path, "/"), "/")
			if len(parts) == 2 {
				id = parts[1]
			}
		}
	}
	if len(id) != 11 {
		return "", false
	}
	return id, true
}

// CleanVideoURL reduces a YouTube link to its canonical watch URL, dropping
// playlist, timestamp and tracking parameters. Other input is returned as is.
func CleanVideoURL(raw string) string {
	id, ok := videoID(raw)
	if !ok {
		return raw
	}
	return fmt.Sprintf("https://www.youtube.com/watch?v=%s", id)
}
