package pagination

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts limit and offset query parameters, clamping limit to
// MaxLimit and ignoring values that do not parse.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// Page is the data payload of a list endpoint.
type Page struct {
	Items   interface{} `json:"items"`
	Total   int         `json:"total"`
	Limit   int         `json:"limit"`
	Offset  int         `json:"offset"`
	HasMore bool        `json:"hasMore"`
	Links   []Link      `json:"links,omitempty"`
}

func NewPage(items interface{}, total int, p Params) *Page {
	return &Page{
		Items:   items,
		Total:   total,
		Limit:   p.Limit,
		Offset:  p.Offset,
		HasMore: p.HasNext(total),
	}
}

// WithLinks attaches self/next/previous links built from basePath. Existing
// query values (filters) are preserved.
func (pg *Page) WithLinks(basePath string, query url.Values) *Page {
	p := Params{Limit: pg.Limit, Offset: pg.Offset}
	pg.Links = p.Links(basePath, query, pg.Total)
	return pg
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}

// Links generates pagination links for a list result.
func (p Params) Links(basePath string, query url.Values, total int) []Link {
	links := []Link{{Relation: "self", URL: pageURL(basePath, query, p.Offset, p.Limit)}}

	if p.HasNext(total) {
		links = append(links, Link{Relation: "next", URL: pageURL(basePath, query, p.NextOffset(), p.Limit)})
	}
	if p.HasPrevious() {
		links = append(links, Link{Relation: "previous", URL: pageURL(basePath, query, p.PreviousOffset(), p.Limit)})
	}
	return links
}

func pageURL(basePath string, query url.Values, offset, limit int) string {
	q := url.Values{}
	for k, v := range query {
		if k == "limit" || k == "offset" {
			continue
		}
		q[k] = v
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return fmt.Sprintf("%s?%s", basePath, q.Encode())
}

// Link is a single pagination link.
type Link struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}
