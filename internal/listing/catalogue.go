// Package listing crawls paginated HTML catalogues: one page per work unit,
// items picked by CSS selector, pagination via a "next" link.
package listing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
	"relentless-relay/internal/ol"
)

// SourceName tags records produced by CatalogueProcessor.
const SourceName = "catalogue"

const (
	DefaultItemSelector = "article a[href]"
	DefaultNextSelector = "a[rel=next]"
)

// maxPageBytes bounds a single catalogue page read.
const maxPageBytes = 8 << 20

// errPageTooLarge rejects a page that would otherwise be parsed truncated.
var errPageTooLarge = errors.New("page exceeds size limit")

// CatalogueProcessor turns a catalogue page into item records.
type CatalogueProcessor struct {
	client       *http.Client
	itemSelector string
	nextSelector string
	robots       *ol.RobotsRules
	maxBytes     int64
	now          func() time.Time
}

// NewCatalogueProcessor builds a processor. Empty selectors fall back to the defaults.
func NewCatalogueProcessor(client *http.Client, itemSelector, nextSelector string, robots *ol.RobotsRules) *CatalogueProcessor {
	if client == nil {
		client = http.DefaultClient
	}
	if strings.TrimSpace(itemSelector) == "" {
		itemSelector = DefaultItemSelector
	}
	if strings.TrimSpace(nextSelector) == "" {
		nextSelector = DefaultNextSelector
	}
	return &CatalogueProcessor{
		client:       client,
		itemSelector: itemSelector,
		nextSelector: nextSelector,
		robots:       robots,
		maxBytes:     maxPageBytes,
		now:          time.Now,
	}
}

// Process fetches unit.Ref and extracts its items and next page link.
func (p *CatalogueProcessor) Process(ctx context.Context, unit models.WorkUnit) ([]models.Record, *models.WorkUnit, error) {
	if p.robots != nil && !p.robots.Allowed(ol.PathFromURL(unit.Ref)) {
		return nil, nil, &crawler.FetchError{Ref: unit.Ref, Err: fmt.Errorf("robots.txt disallows path %s", ol.PathFromURL(unit.Ref))}
	}
	body, err := p.fetch(ctx, unit.Ref)
	if err != nil {
		return nil, nil, &crawler.FetchError{Ref: unit.Ref, Err: err}
	}

	records, nextHref, err := p.parse(unit.Ref, body)
	if err != nil {
		return nil, nil, &crawler.ParseError{Ref: unit.Ref, Err: err}
	}
	if nextHref == "" || nextHref == unit.Ref {
		return records, nil, nil
	}
	return records, &models.WorkUnit{Ref: nextHref, Seq: unit.Seq + 1}, nil
}

func (p *CatalogueProcessor) parse(pageURL string, body []byte) ([]models.Record, string, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, "", errors.New("empty page")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}

	fetchedAt := p.now().UTC()
	seen := make(map[string]bool)
	var records []models.Record
	doc.Find(p.itemSelector).Each(func(_ int, s *goquery.Selection) {
		link := s
		if goquery.NodeName(s) != "a" {
			link = s.Find("a[href]").First()
		}
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		itemURL := resolveURL(pageURL, href)
		if itemURL == "" || seen[itemURL] {
			return
		}
		seen[itemURL] = true

		title := normSpace(s.Text())
		if attr, ok := link.Attr("title"); ok && strings.TrimSpace(attr) != "" {
			title = normSpace(attr)
		}
		records = append(records, models.Record{
			Key:       models.NaturalKey(itemURL),
			Source:    SourceName,
			FetchedAt: fetchedAt,
			Fields: map[string]any{
				"url":   itemURL,
				"title": title,
				"page":  pageURL,
			},
		})
	})

	next := ""
	if href, ok := doc.Find(p.nextSelector).First().Attr("href"); ok {
		next = resolveURL(pageURL, href)
	}
	// A page with neither items nor a next link means the layout changed.
	if len(records) == 0 && next == "" {
		return nil, "", fmt.Errorf("no items match %q and no link matches %q", p.itemSelector, p.nextSelector)
	}
	return records, next, nil
}

func (p *CatalogueProcessor) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", ol.DefaultUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := &ol.StatusError{Status: resp.StatusCode, URL: pageURL}
		if statusErr.Gone() {
			return nil, fmt.Errorf("%w: %v", crawler.ErrUnitGone, statusErr)
		}
		return nil, statusErr
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > p.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", errPageTooLarge, p.maxBytes)
	}
	return body, nil
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	ru, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := bu.ResolveReference(ru)
	resolved.Fragment = ""
	return resolved.String()
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }
