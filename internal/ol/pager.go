package ol

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
)

// SourceName tags records produced by SearchPager.
const SourceName = "openlibrary"

// SearchPager walks the pages of one search.json query. Each page is one work unit
// whose ref is the page URL.
type SearchPager struct {
	client  *http.Client
	baseURL string
	query   string
	limit   int
	robots  *RobotsRules // nil = no check
	now     func() time.Time
}

// NewSearchPager builds a pager. A nil client uses http.DefaultClient and an
// empty baseURL uses DefaultBaseURL.
func NewSearchPager(client *http.Client, baseURL, query string, limit int, robots *RobotsRules) *SearchPager {
	if client == nil {
		client = http.DefaultClient
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &SearchPager{
		client:  client,
		baseURL: baseURL,
		query:   query,
		limit:   limit,
		robots:  robots,
		now:     time.Now,
	}
}

// StartUnit is the first page of the query.
func (p *SearchPager) StartUnit() models.WorkUnit {
	return models.WorkUnit{Ref: SearchPageURL(p.baseURL, p.query, 1, p.limit), Seq: 0}
}

// Process fetches one page and returns its docs plus the next page, if any.
func (p *SearchPager) Process(ctx context.Context, unit models.WorkUnit) ([]models.Record, *models.WorkUnit, error) {
	if p.robots != nil && !p.robots.Allowed(PathFromURL(unit.Ref)) {
		return nil, nil, &crawler.FetchError{Ref: unit.Ref, Err: fmt.Errorf("robots.txt disallows path %s", PathFromURL(unit.Ref))}
	}

	body, err := FetchJSONWithClient(ctx, p.client, unit.Ref)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Gone() {
			err = fmt.Errorf("%w: %v", crawler.ErrUnitGone, statusErr)
		}
		return nil, nil, &crawler.FetchError{Ref: unit.Ref, Err: err}
	}

	resp, err := ParseSearchResponse(body)
	if err != nil {
		return nil, nil, &crawler.ParseError{Ref: unit.Ref, Err: err}
	}

	fetchedAt := p.now().UTC()
	records := make([]models.Record, 0, len(resp.Docs))
	for _, doc := range resp.Docs {
		records = append(records, models.Record{
			Key:       doc.Key,
			Source:    SourceName,
			Fields:    docFields(doc),
			FetchedAt: fetchedAt,
		})
	}

	if len(resp.Docs) == 0 || resp.Start+len(resp.Docs) >= resp.NumFound {
		return records, nil, nil
	}
	next, err := nextPageURL(unit.Ref)
	if err != nil {
		return nil, nil, &crawler.ParseError{Ref: unit.Ref, Err: err}
	}
	return records, &models.WorkUnit{Ref: next, Seq: unit.Seq + 1}, nil
}

// nextPageURL increments the page parameter of a search URL.
func nextPageURL(ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	values := u.Query()
	page := 1
	if raw := values.Get("page"); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return "", fmt.Errorf("invalid page %q", raw)
		}
	}
	values.Set("page", strconv.Itoa(page+1))
	u.RawQuery = values.Encode()
	return u.String(), nil
}
