package pagination

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/rs/zerolog"

	"github.com/snyk-tools/snyk-tag-updater/pkg/logging"
)

// Errors returned by the fetcher.
var (
	// ErrPaginationLoop is returned when the server hands back a next link
	// that was already fetched.
	ErrPaginationLoop = errors.New("pagination next link repeated")

	// ErrMalformedBody is returned when a page body is not a valid
	// collection document.
	ErrMalformedBody = errors.New("malformed collection body")
)

// Getter is the request surface the fetcher needs from the API client.
type Getter interface {
	// Get fetches one URL and returns the response body. Implementations
	// handle authentication and 429 backoff.
	Get(ctx context.Context, rawurl string, query url.Values) ([]byte, error)

	// Resolve turns a server-supplied pagination link into an absolute URL.
	Resolve(link string) (string, error)
}

// page is the envelope of one collection response.
type page struct {
	Data  []json.RawMessage `json:"data"`
	Links struct {
		Next string `json:"next"`
	} `json:"links"`
}

// Fetcher walks paginated collections page by page.
type Fetcher struct {
	getter Getter
	logger zerolog.Logger
}

// NewFetcher creates a fetcher on top of the given client.
func NewFetcher(getter Getter) *Fetcher {
	return &Fetcher{
		getter: getter,
		logger: logging.NewLogger("fetcher"),
	}
}

// FetchAll returns every item of the collection at path, across all pages,
// in the server's emission order. The query parameters are sent with the
// first request only; subsequent pages follow links.next, which already
// carries them. Any failure aborts the fetch: there are no silent partial
// results.
func (f *Fetcher) FetchAll(ctx context.Context, path string, query url.Values) ([]json.RawMessage, error) {
	var items []json.RawMessage

	current, err := f.getter.Resolve(path)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{}
	pages := 0

	for current != "" {
		if visited[current] {
			f.logger.Error().Str("link", current).Msg("Next link already fetched, aborting")
			return nil, fmt.Errorf("%w: %s", ErrPaginationLoop, current)
		}
		visited[current] = true

		body, err := f.getter.Get(ctx, current, query)
		if err != nil {
			return nil, fmt.Errorf("fetch page %d of %s: %w", pages+1, path, err)
		}
		query = nil // first page only

		var p page
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}

		items = append(items, p.Data...)
		pages++

		f.logger.Debug().
			Str("endpoint", path).
			Int("page", pages).
			Int("items", len(p.Data)).
			Str("next", p.Links.Next).
			Msg("Fetched page")

		if p.Links.Next == "" {
			break
		}

		next, err := f.getter.Resolve(p.Links.Next)
		if err != nil {
			return nil, fmt.Errorf("resolve next link: %w", err)
		}
		current = next
	}

	f.logger.Debug().
		Str("endpoint", path).
		Int("pages", pages).
		Int("total_items", len(items)).
		Msg("Fetch complete")

	return items, nil
}
