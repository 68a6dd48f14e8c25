package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		limit      int
		offset     int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"limit=500", MaxLimit, 0},
		{"limit=-1&offset=-5", DefaultLimit, 0},
		{"limit=abc", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(t, tt.query)
		if p.Limit != tt.limit || p.Offset != tt.offset {
			t.Errorf("query %q: got %+v, want limit=%d offset=%d", tt.query, p, tt.limit, tt.offset)
		}
	}
}

func TestNewResponse_HasMore(t *testing.T) {
	if r := NewResponse(nil, 100, 20, 0); !r.HasMore {
		t.Error("expected has_more for first page of 100")
	}
	if r := NewResponse(nil, 10, 20, 0); r.HasMore {
		t.Error("expected no has_more when everything fits")
	}
	if r := NewResponse(nil, 40, 20, 20); r.HasMore {
		t.Error("expected no has_more on the last page")
	}
}

func TestNextOffset(t *testing.T) {
	p := Params{Limit: 20, Offset: 40}
	if p.NextOffset() != 60 {
		t.Errorf("expected 60, got %d", p.NextOffset())
	}
	if !p.HasNext(100) {
		t.Error("expected next page for total 100")
	}
	if p.HasNext(60) {
		t.Error("expected no next page for total 60")
	}
}
