package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hfm/hfm/internal/platform/api"
	"github.com/hfm/hfm/internal/platform/auth"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	h := RequestID()(func(c echo.Context) error {
		seen, _ = c.Get("request_id").(string)
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("request_id %q is not a uuid", seen)
	}
	if rec.Header().Get(RequestIDHeader) != seen {
		t.Error("expected X-Request-ID response header to match")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := RequestID()(func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatal(err)
	}
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRequestID_ReplacesOversized(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	rec := httptest.NewRecorder()

	if err := RequestID()(func(c echo.Context) error { return nil })(e.NewContext(req, rec)); err != nil {
		t.Fatal(err)
	}
	if len(rec.Header().Get(RequestIDHeader)) > maxRequestIDLen {
		t.Error("oversized request id was echoed")
	}
}

func logLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line %q: %v", buf.String(), err)
	}
	return line
}

func TestLogger_LogsRequestWithPrincipal(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	p := &auth.Principal{ID: uuid.New(), Role: auth.RolePatient, Active: true}
	req := httptest.NewRequest(http.MethodGet, "/api/v1/vitals", nil)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("request_id", "rid-1")

	h := Logger(zerolog.New(&buf))(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line := logLine(t, &buf)
	want := map[string]interface{}{
		"level":        "info",
		"request_id":   "rid-1",
		"method":       "GET",
		"path":         "/api/v1/vitals",
		"status":       float64(200),
		"principal_id": p.ID.String(),
		"role":         "patient",
	}
	for k, v := range want {
		if line[k] != v {
			t.Errorf("%s = %v, want %v", k, line[k], v)
		}
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		level  string
		status float64
	}{
		{"unauthorized", echo.NewHTTPError(http.StatusUnauthorized, auth.MsgInvalidToken).SetInternal(auth.ErrInactiveUser), "warn", 401},
		{"store failure", errors.New("connection refused"), "error", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			e := echo.New()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

			err := Logger(zerolog.New(&buf))(func(echo.Context) error { return tt.err })(c)
			if err != tt.err {
				t.Errorf("error not passed through: %v", err)
			}
			line := logLine(t, &buf)
			if line["level"] != tt.level || line["status"] != tt.status {
				t.Errorf("level %v status %v", line["level"], line["status"])
			}
			if _, ok := line["principal_id"]; ok {
				t.Error("no principal expected")
			}
		})
	}
}

func TestLogger_WarnCarriesInternalReason(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	herr := echo.NewHTTPError(http.StatusUnauthorized, auth.MsgInvalidToken).SetInternal(auth.ErrInactiveUser)

	_ = Logger(zerolog.New(&buf))(func(echo.Context) error { return herr })(c)
	if line := logLine(t, &buf); line["reason"] != auth.ErrInactiveUser.Error() {
		t.Errorf("reason = %v", line["reason"])
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.Set("request_id", "rid-2")

	err := Recovery(zerolog.New(&buf))(func(echo.Context) error {
		panic("nil map write")
	})(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 HTTPError, got %v", err)
	}
	if httpErr.Message != api.MsgInternal {
		t.Errorf("message = %v", httpErr.Message)
	}
	line := logLine(t, &buf)
	if line["panic"] != "nil map write" || line["request_id"] != "rid-2" {
		t.Errorf("log = %v", line)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	err := Recovery(zerolog.Nop())(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})(c)
	if err != nil || rec.Code != http.StatusOK {
		t.Errorf("err %v code %d", err, rec.Code)
	}
}
