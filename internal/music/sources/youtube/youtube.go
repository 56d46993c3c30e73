// Package youtube resolves links and search text to YouTube videos and
// looks up their audio stream URLs.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/keshon/jukebox/internal/music/session"
)

const defaultBaseURL = "https://www.youtube.com"

// opusItag is the 160kbps Opus audio-only format.
const opusItag = 251

var ErrNoAudioFormat = errors.New("no audio format available")

type videoClient interface {
	GetVideoContext(ctx context.Context, id string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
}

type Options struct {
	HTTPClient *http.Client
	// SearchRate is the initial number of search requests per second.
	SearchRate float64
	// BaseURL overrides the search host.
	BaseURL string
	Logger  zerolog.Logger
}

// Source resolves queries to queue entries and entries to media links.
type Source struct {
	videos videoClient
	search *searcher
	log    zerolog.Logger
}

func New(opts Options) *Source {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: httpTimeout}
	}
	return newSource(&youtube.Client{HTTPClient: httpClient}, httpClient, opts)
}

func newSource(videos videoClient, httpClient *http.Client, opts Options) *Source {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rps := opts.SearchRate
	if rps <= 0 {
		rps = 2
	}
	return &Source{
		videos: videos,
		search: newSearcher(strings.TrimRight(baseURL, "/"), httpClient, rps, opts.Logger),
		log:    opts.Logger,
	}
}

// Resolve accepts a YouTube video link or free text. Free text picks the
// first search result.
func (s *Source) Resolve(ctx context.Context, query string) (*session.QueueEntry, error) {
	query = strings.TrimSpace(query)

	var id string
	switch {
	case isYouTubeURL(query):
		vid, ok := videoID(query)
		if !ok {
			return nil, fmt.Errorf("%w: %q is not a video link", session.ErrResolutionFailed, query)
		}
		id = vid
	case isURL(query):
		return nil, fmt.Errorf("%w: unsupported link %q", session.ErrResolutionFailed, query)
	default:
		vid, err := s.search.firstVideoID(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("%w: search %q: %w", session.ErrResolutionFailed, query, err)
		}
		id = vid
	}

	video, err := s.videos.GetVideoContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: video %s: %w", session.ErrResolutionFailed, id, err)
	}

	s.log.Debug().Str("query", query).Str("video", id).Str("title", video.Title).Msg("resolved")
	return &session.QueueEntry{
		SourceURL:       CleanVideoURL("https://youtu.be/" + id),
		Title:           video.Title,
		DurationSeconds: int(video.Duration.Seconds()),
	}, nil
}

// StreamURL returns a direct media URL for a video page. Links that are not
// YouTube videos are returned unchanged for ffmpeg to open.
func (s *Source) StreamURL(ctx context.Context, sourceURL string) (string, error) {
	id, ok := videoID(sourceURL)
	if !ok {
		return sourceURL, nil
	}

	video, err := s.videos.GetVideoContext(ctx, id)
	if err != nil {
		return "", fmt.Errorf("video %s: %w", id, err)
	}

	format := pickAudioFormat(video.Formats)
	if format == nil {
		if video.HLSManifestURL != "" {
			return video.HLSManifestURL, nil
		}
		return "", fmt.Errorf("video %s: %w", id, ErrNoAudioFormat)
	}

	link, err := s.videos.GetStreamURLContext(ctx, video, format)
	if err != nil {
		return "", fmt.Errorf("stream url for %s: %w", id, err)
	}
	return link, nil
}

// pickAudioFormat prefers Opus audio-only, then any audio-only, then the
// best format that carries audio at all.
func pickAudioFormat(list youtube.FormatList) *youtube.Format {
	formats := list.WithAudioChannels()
	if len(formats) == 0 {
		return nil
	}
	if audio := formats.Type("audio"); len(audio) > 0 {
		formats = audio
	}

	for i := range formats {
		if formats[i].ItagNo == opusItag {
			return &formats[i]
		}
	}
	for i := range formats {
		if strings.Contains(formats[i].MimeType, "opus") {
			return &formats[i]
		}
	}
	formats.Sort()
	return &formats[0]
}

func rateOf(rps float64) rate.Limit { return rate.Limit(rps) }
