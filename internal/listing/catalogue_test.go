package listing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relentless-relay/internal/crawler"
	"relentless-relay/internal/models"
	"relentless-relay/internal/ol"
)

const pageOne = `<html><body>
<article><a href="/items/1" title="First item">one</a></article>
<article><a href="/items/2">  Second
   item </a></article>
<article><a href="/items/2">duplicate</a></article>
<article><a href="#top">anchor</a></article>
<a rel="next" href="/list?page=2">next</a>
</body></html>`

const pageTwo = `<html><body>
<article><a href="https://other.example/items/3">Third</a></article>
</body></html>`

func catalogueServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ol.DefaultUserAgent, r.Header.Get("User-Agent"))
		switch r.URL.Query().Get("page") {
		case "", "1":
			fmt.Fprint(w, pageOne)
		case "2":
			fmt.Fprint(w, pageTwo)
		default:
			http.NotFound(w, r)
		}
	})
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {})
	return httptest.NewServer(mux)
}

func TestCatalogueProcessorExtractsItemsAndNext(t *testing.T) {
	srv := catalogueServer(t)
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	records, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, srv.URL+"/items/1", records[0].Fields["url"])
	assert.Equal(t, "First item", records[0].Fields["title"])
	assert.Equal(t, "Second item", records[1].Fields["title"])
	assert.Equal(t, models.NaturalKey(srv.URL+"/items/1"), records[0].Key)
	assert.Equal(t, SourceName, records[0].Source)

	require.NotNil(t, next)
	assert.Equal(t, srv.URL+"/list?page=2", next.Ref)
	assert.Equal(t, 1, next.Seq)

	records, next, err = p.Process(context.Background(), *next)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "https://other.example/items/3", records[0].Fields["url"])
	assert.Nil(t, next)
}

func TestCatalogueProcessorKeysAreStable(t *testing.T) {
	srv := catalogueServer(t)
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	first, _, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	require.NoError(t, err)
	second, _, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	require.NoError(t, err)
	for i := range first {
		assert.Equal(t, first[i].Key, second[i].Key)
	}
}

func TestCatalogueProcessorCustomSelectors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<ul><li class="row"><span>Alpha</span> <a href="a">go</a></li></ul><span class="more"><a href="?p=2">more</a></span>`)
	}))
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "li.row", ".more a", nil)
	records, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/x/"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, srv.URL+"/x/a", records[0].Fields["url"])
	assert.Equal(t, "Alpha go", records[0].Fields["title"])
	require.NotNil(t, next)
	assert.Equal(t, srv.URL+"/x/?p=2", next.Ref)
}

func TestCatalogueProcessorMissingPageIsUnitGone(t *testing.T) {
	srv := catalogueServer(t)
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	_, _, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list?page=9"})
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, errors.Is(err, crawler.ErrUnitGone))
}

func TestCatalogueProcessorEmptyBodyIsParseError(t *testing.T) {
	srv := catalogueServer(t)
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	_, _, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/empty"})
	var parseErr *crawler.ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestCatalogueProcessorSelfLinkEndsChain(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<article><a href="/i">i</a></article><a rel="next" href="/last">next</a>`)
	}))
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	_, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/last"})
	require.NoError(t, err)
	assert.Nil(t, next)
}

func TestCatalogueProcessorRespectsRobots(t *testing.T) {
	srv := catalogueServer(t)
	defer srv.Close()

	robots := ol.ParseRobots([]byte("User-agent: *\nDisallow: /list\n"), ol.DefaultUserAgent)
	p := NewCatalogueProcessor(srv.Client(), "", "", robots)
	_, _, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
}

func TestCatalogueProcessorOversizedPageIsFetchError(t *testing.T) {
	tail := `<article><a href="/item/1">one</a></article><a rel="next" href="/list?page=2">next</a>`
	padding := "<!--" + strings.Repeat("x", 2048) + "-->"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, padding+tail)
	}))
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	p.maxBytes = 1024
	records, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	var fetchErr *crawler.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.ErrorIs(t, err, errPageTooLarge)
	assert.Nil(t, records)
	assert.Nil(t, next)

	p.maxBytes = int64(len(padding + tail))
	records, next, err = p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list"})
	require.NoError(t, err, "a page exactly at the limit is read whole")
	assert.Len(t, records, 1)
	require.NotNil(t, next)
}

func TestCatalogueProcessorUnknownLayoutIsParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="new-layout"><span>One</span></div>`)
	}))
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	records, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list?page=3", Seq: 2})
	var parseErr *crawler.ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, err.Error(), DefaultItemSelector)
	assert.Nil(t, records)
	assert.Nil(t, next)
}

func TestCatalogueProcessorNextLinkWithoutItemsContinues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<p>nothing on this page</p><a rel="next" href="/list?page=4">next</a>`)
	}))
	defer srv.Close()

	p := NewCatalogueProcessor(srv.Client(), "", "", nil)
	records, next, err := p.Process(context.Background(), models.WorkUnit{Ref: srv.URL + "/list?page=3", Seq: 2})
	require.NoError(t, err)
	assert.Empty(t, records)
	require.NotNil(t, next)
	assert.Equal(t, 3, next.Seq)
}
