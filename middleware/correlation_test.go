package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runWithMiddleware(req *http.Request) (*httptest.ResponseRecorder, string) {
	e := echo.New()
	e.Use(CorrelationID())

	var seen string
	e.GET("/", func(c echo.Context) error {
		seen = FromContext(c)
		return c.NoContent(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, seen
}

func TestCorrelationID_AcceptsValidHeader(t *testing.T) {
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, id)

	rec, seen := runWithMiddleware(req)

	assert.Equal(t, id, seen)
	assert.Equal(t, id, rec.Header().Get(HeaderCorrelationID))
}

func TestCorrelationID_GeneratesWhenMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec, seen := runWithMiddleware(req)

	require.NotEmpty(t, seen)
	assert.NoError(t, uuid.Validate(seen))
	assert.Equal(t, seen, rec.Header().Get(HeaderCorrelationID))
}

func TestCorrelationID_ReplacesInvalidHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderCorrelationID, "not-a-uuid")

	_, seen := runWithMiddleware(req)

	require.NotEmpty(t, seen)
	assert.NotEqual(t, "not-a-uuid", seen)
	assert.NoError(t, uuid.Validate(seen))
}

func TestFromContext_Unset(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())

	assert.Empty(t, FromContext(c))
}
