package ol

import (
	"encoding/json"
	"errors"

	"relentless-relay/internal/models"
)

var errNoDocs = errors.New("search response has no docs field")

// ParseSearchResponse parses Open Library search JSON. A body without a
// docs array is rejected; an empty array is a valid last page.
func ParseSearchResponse(body []byte) (models.SearchResponse, error) {
	var probe struct {
		Docs json.RawMessage `json:"docs"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return models.SearchResponse{}, err
	}
	if len(probe.Docs) == 0 || string(probe.Docs) == "null" {
		return models.SearchResponse{}, errNoDocs
	}

	var resp models.SearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.SearchResponse{}, err
	}
	if resp.NumFound == 0 && resp.NumFoundAlt > 0 {
		resp.NumFound = resp.NumFoundAlt
	}
	if resp.Start == 0 && resp.Offset != nil {
		resp.Start = *resp.Offset
	}
	return resp, nil
}

// docFields flattens a search doc into record fields. Empty values are omitted.
func docFields(doc models.SearchDoc) map[string]any {
	fields := map[string]any{"title": doc.Title}
	if len(doc.AuthorName) > 0 {
		fields["author_name"] = doc.AuthorName
	}
	if len(doc.AuthorKey) > 0 {
		fields["author_key"] = doc.AuthorKey
	}
	if doc.FirstPublishYear > 0 {
		fields["first_publish_year"] = doc.FirstPublishYear
	}
	if doc.EditionCount > 0 {
		fields["edition_count"] = doc.EditionCount
	}
	if len(doc.Language) > 0 {
		fields["language"] = doc.Language
	}
	if doc.EbookAccess != "" {
		fields["ebook_access"] = doc.EbookAccess
	}
	if doc.CoverI > 0 {
		fields["cover_i"] = doc.CoverI
	}
	if doc.CoverEditionKey != "" {
		fields["cover_edition_key"] = doc.CoverEditionKey
	}
	fields["has_fulltext"] = doc.HasFulltext
	return fields
}
