package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"github.com/rs/zerolog"

	"github.com/keshon/jukebox/pkg/retrylimit"
)

var (
	videoPattern = regexp.MustCompile(`"url":"/watch\?v=([a-zA-Z0-9_-]{11})`)

	ErrNoVideoMatch = errors.New("no video found for the given title")
)

// maxSearchBody caps how much of a results page is read.
const maxSearchBody = 4 << 20

// searcher finds videos by scraping the public results page.
type searcher struct {
	baseURL string
	client  *http.Client
	limiter *retrylimit.AdaptiveLimiter
	retry   retrylimit.RetryConfig
}

func (s *searcher) firstVideoID(ctx context.Context, query string) (string, error) {
	var id string
	err := retrylimit.WithRetryConfig(ctx, func() error {
		var err error
		id, err = s.search(ctx, query)
		if errors.Is(err, ErrNoVideoMatch) {
			return &retrylimit.FatalError{Err: err}
		}
		return err
	}, s.limiter, s.retry)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *searcher) search(ctx context.Context, query string) (string, error) {
	searchURL := fmt.Sprintf("%s/results?search_query=%s", s.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &retrylimit.StatusError{Code: resp.StatusCode, URL: searchURL}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return "", err
	}

	m := videoPattern.FindSubmatch(body)
	if m == nil {
		return "", ErrNoVideoMatch
	}
	return string(m[1]), nil
}

func newSearcher(baseURL string, client *http.Client, rps float64, log zerolog.Logger) *searcher {
	retry := retrylimit.DefaultRetryConfig()
	retry.Logger = log
	return &searcher{
		baseURL: baseURL,
		client:  client,
		limiter: retrylimit.NewAdaptiveLimiter(rateOf(rps), rateOf(rps/4), rateOf(rps*2), rateOf(rps/4), 0.5),
		retry:   retry,
	}
}
