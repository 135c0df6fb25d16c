// Package api holds the JSON envelope shared by every endpoint and the echo
// error handler that renders failures into it.
package api

import (
	"github.com/labstack/echo/v4"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK writes a successful envelope.
func OK(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, Envelope{Success: true, Data: data})
}

// Fail writes a failed envelope.
func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Envelope{Success: false, Error: msg})
}
