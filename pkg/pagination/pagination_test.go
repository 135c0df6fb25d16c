package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func contextWithQuery(q string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/alerts?"+q, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=5&offset=10", 5, 10},
		{"limit=500", MaxLimit, 0},
		{"limit=0", DefaultLimit, 0},
		{"limit=-3&offset=-1", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := FromContext(contextWithQuery(tt.query))
			if p.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", p.Limit, tt.wantLimit)
			}
			if p.Offset != tt.wantOffset {
				t.Errorf("offset = %d, want %d", p.Offset, tt.wantOffset)
			}
		})
	}
}

func TestNewPage(t *testing.T) {
	pg := NewPage([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 2})
	if !pg.HasMore {
		t.Error("expected HasMore with 5 total at offset 2")
	}
	pg = NewPage([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if pg.HasMore {
		t.Error("expected no more results on last page")
	}
}

func TestParams_Offsets(t *testing.T) {
	p := Params{Limit: 10, Offset: 5}
	if p.NextOffset() != 15 {
		t.Errorf("NextOffset = %d", p.NextOffset())
	}
	if p.PreviousOffset() != 0 {
		t.Errorf("PreviousOffset = %d, want 0", p.PreviousOffset())
	}
	if !p.HasPrevious() {
		t.Error("expected HasPrevious")
	}
	if (Params{Limit: 10}).HasPrevious() {
		t.Error("first page has no previous")
	}
}

func TestLinks(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	links := p.Links("/api/v1/alerts", url.Values{"patientId": {"abc"}, "offset": {"999"}}, 35)

	want := map[string]string{
		"self":     "/api/v1/alerts?limit=10&offset=10&patientId=abc",
		"next":     "/api/v1/alerts?limit=10&offset=20&patientId=abc",
		"previous": "/api/v1/alerts?limit=10&offset=0&patientId=abc",
	}
	if len(links) != len(want) {
		t.Fatalf("got %d links, want %d", len(links), len(want))
	}
	for _, l := range links {
		if want[l.Relation] != l.URL {
			t.Errorf("%s = %q, want %q", l.Relation, l.URL, want[l.Relation])
		}
	}
}

func TestLinks_SinglePage(t *testing.T) {
	links := Params{Limit: 20}.Links("/api/v1/vitals", nil, 3)
	if len(links) != 1 || links[0].Relation != "self" {
		t.Errorf("expected only self link, got %+v", links)
	}
}
