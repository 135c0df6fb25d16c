package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	MsgBodyTooLarge  = "request body too large"
	defaultBodyLimit = 1 << 20
)

// ParseSize reads a human-readable size such as "64K", "1M" or "2MB". A bare
// number is bytes.
func ParseSize(size string) (int64, error) {
	s := strings.ToUpper(strings.TrimSpace(size))
	if s == "" {
		return defaultBodyLimit, nil
	}
	s = strings.TrimSuffix(s, "B")

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "G"):
		multiplier = 1 << 30
	case strings.HasSuffix(s, "M"):
		multiplier = 1 << 20
	case strings.HasSuffix(s, "K"):
		multiplier = 1 << 10
	}
	if multiplier > 1 {
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid size %q", size)
	}
	return n * multiplier, nil
}

// BodyLimit rejects request bodies larger than limit bytes with 413. The
// declared Content-Length is checked up front and the body reader enforces
// the limit when the length is absent or wrong.
func BodyLimit(limit int64) echo.MiddlewareFunc {
	if limit <= 0 {
		limit = defaultBodyLimit
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > limit {
				return echo.NewHTTPError(http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
			}
			req.Body = &limitedReadCloser{ReadCloser: req.Body, remaining: limit}
			return next(c)
		}
	}
}

type limitedReadCloser struct {
	io.ReadCloser
	remaining int64
	exceeded  bool
}

func (r *limitedReadCloser) Read(p []byte) (int, error) {
	if r.exceeded {
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
	}
	// Read one byte past the limit to detect overflow.
	if int64(len(p)) > r.remaining+1 {
		p = p[:r.remaining+1]
	}
	n, err := r.ReadCloser.Read(p)
	r.remaining -= int64(n)
	if r.remaining < 0 {
		r.exceeded = true
		return 0, echo.NewHTTPError(http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
	}
	return n, err
}
