package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/handoff/internal/presentation/http/response"
)

func TestErrorHandler_UnknownRouteUsesEnvelope(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var body response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found", body.Error.Code)
}

func TestRequestValidator_ReportsFields(t *testing.T) {
	type payload struct {
		Token string `json:"token" validate:"required"`
	}

	err := NewRequestValidator().Validate(&payload{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid request")
	assert.NoError(t, NewRequestValidator().Validate(&payload{Token: "x"}))
}

func TestErrorHandler_EchoesRequestID(t *testing.T) {
	e := echo.New()
	e.Use(middleware.RequestID())
	e.HTTPErrorHandler = ErrorHandler(zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-42")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body response.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "req-42", body.Meta["request_id"])
}
