package ol

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the Open Library origin used when none is configured.
const DefaultBaseURL = "https://openlibrary.org"

// StatusError is a non-2xx answer from the upstream.
type StatusError struct {
	Status int
	URL    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d for %s", e.Status, e.URL)
}

// Gone reports whether the page no longer exists upstream.
func (e *StatusError) Gone() bool {
	return e.Status == http.StatusNotFound || e.Status == http.StatusGone
}

// SearchPageURL builds a Search API URL for one page of a query. Pages start at 1.
func SearchPageURL(baseURL, query string, page, limit int) string {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	values := url.Values{}
	values.Set("q", query)
	values.Set("page", strconv.Itoa(page))
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	return strings.TrimRight(baseURL, "/") + "/search.json?" + values.Encode()
}

// FetchJSON retrieves the raw JSON for an Open Library URL using http.DefaultClient.
func FetchJSON(ctx context.Context, url string) ([]byte, error) {
	return FetchJSONWithClient(ctx, http.DefaultClient, url)
}

// FetchJSONWithClient retrieves the raw JSON for an Open Library URL using the given HTTP client
// (e.g. one configured with a proxy for multi-egress / rate-limit bypass).
// Sets a custom User-Agent (DefaultUserAgent) so the site can identify the crawler.
// Non-2xx answers come back as *StatusError.
func FetchJSONWithClient(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return body, nil
}
