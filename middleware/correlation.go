package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// HeaderCorrelationID is the wire header for the end-to-end tracing id.
const HeaderCorrelationID = "X-Correlation-ID"

// ContextKeyCorrelationID is the echo context key the middleware stores the
// id under.
const ContextKeyCorrelationID = "correlation_id"

// CorrelationID accepts a caller-provided correlation id or generates one,
// stores it on the request context, and echoes it in the response header.
// The id is the sole joining key across detector, coordinator, audit trail,
// and delivery logs.
func CorrelationID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			corr := c.Request().Header.Get(HeaderCorrelationID)
			if corr == "" || uuid.Validate(corr) != nil {
				corr = uuid.NewString()
			}
			c.Set(ContextKeyCorrelationID, corr)
			c.Response().Header().Set(HeaderCorrelationID, corr)
			return next(c)
		}
	}
}

// FromContext returns the correlation id set by the middleware, or "".
func FromContext(c echo.Context) string {
	if v, ok := c.Get(ContextKeyCorrelationID).(string); ok {
		return v
	}
	return ""
}
