// Package request holds helpers shared by HTTP handlers for reading input.
package request

import (
	"strconv"

	echo "github.com/labstack/echo/v4"

	"github.com/Additional-Code/handoff/pkg/errorbank"
)

// Bind decodes the body into dst and runs the echo validator on it.
func Bind(c echo.Context, dst any) error {
	if err := c.Bind(dst); err != nil {
		return errorbank.BadRequest("invalid payload", errorbank.WithCause(err))
	}
	return c.Validate(dst)
}

// PathID parses a positive int64 path parameter.
func PathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errorbank.BadRequest("invalid "+name, errorbank.WithCode("invalid_id"), errorbank.WithCause(err))
	}
	return id, nil
}
