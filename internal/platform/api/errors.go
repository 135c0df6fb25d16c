package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const MsgInternal = "Internal server error"

// ErrorHandler renders every error as an Envelope. echo.HTTPErrors keep their
// status and public message; anything else becomes a 500 whose detail is only
// logged.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := MsgInternal

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = publicMessage(he)
			if status >= http.StatusInternalServerError {
				logger.Error().
					Err(err).
					Str("request_id", requestID(c)).
					Msg("request failed")
				msg = MsgInternal
			}
		} else {
			logger.Error().
				Err(err).
				Str("request_id", requestID(c)).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = Fail(c, status, msg)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}

func publicMessage(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprint(m)
	}
}

func requestID(c echo.Context) string {
	rid, _ := c.Get("request_id").(string)
	return rid
}
