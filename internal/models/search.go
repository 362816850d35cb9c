package models

// SearchDoc is the subset of an Open Library search doc kept as record fields.
type SearchDoc struct {
	Key              string   `json:"key"`
	Title            string   `json:"title,omitempty"`
	AuthorKey        []string `json:"author_key,omitempty"`
	AuthorName       []string `json:"author_name,omitempty"`
	CoverEditionKey  string   `json:"cover_edition_key,omitempty"`
	CoverI           int      `json:"cover_i,omitempty"`
	EbookAccess      string   `json:"ebook_access,omitempty"`
	EditionCount     int      `json:"edition_count,omitempty"`
	FirstPublishYear int      `json:"first_publish_year,omitempty"`
	HasFulltext      bool     `json:"has_fulltext,omitempty"`
	Language         []string `json:"language,omitempty"`
}

// SearchResponse is one page of search.json. Older deployments send
// num_found and offset instead of numFound and start.
type SearchResponse struct {
	NumFound    int         `json:"numFound,omitempty"`
	NumFoundAlt int         `json:"num_found,omitempty"`
	Start       int         `json:"start,omitempty"`
	Offset      *int        `json:"offset,omitempty"`
	Docs        []SearchDoc `json:"docs"`
}
