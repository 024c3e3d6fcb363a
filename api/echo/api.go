package echo

import (
	"context"
	"net/http"
	"net/mail"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	cleanuperr "github.com/loclio/identity-recovery/errors"
	"github.com/loclio/identity-recovery/middleware"
	"github.com/loclio/identity-recovery/services"
)

// CleanupService is the coordinator surface the API depends on.
type CleanupService interface {
	RequestCode(ctx context.Context, email, source, correlationID string) (*services.RequestCodeResult, error)
	ValidateAndCleanup(ctx context.Context, email, code, source, correlationID string) (*services.CleanupResult, error)
}

// DetectionService is the sign-in gate surface the API depends on.
type DetectionService interface {
	CheckSignIn(ctx context.Context, identityID, email, correlationID string) (*services.SignInDecision, error)
}

// RecoveryAPI holds the HTTP handlers for the cleanup protocol.
type RecoveryAPI struct {
	cleanup CleanupService
	gate    DetectionService
}

// NewRecoveryAPI initializes the API.
func NewRecoveryAPI(cleanup CleanupService, gate DetectionService) *RecoveryAPI {
	return &RecoveryAPI{cleanup: cleanup, gate: gate}
}

// RegisterRoutes registers the recovery routes.
func (a *RecoveryAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/v1/cleanup", a.CleanupHandler)
	e.POST("/v1/detect", a.DetectHandler)
	e.GET("/health", a.HealthHandler)
}

const (
	stepRequestCode        = "request-code"
	stepValidateAndCleanup = "validate-and-cleanup"
)

type cleanupRequest struct {
	Step          string `json:"step"`
	Email         string `json:"email"`
	Code          string `json:"code,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type detectRequest struct {
	IdentityID    string `json:"identityId"`
	Email         string `json:"email"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type successEnvelope struct {
	Success       bool   `json:"success"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlationId"`
	Data          any    `json:"data"`
}

type errorBody struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlationId"`
	Details       map[string]any `json:"details,omitempty"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

// CleanupHandler serves both phases of the cleanup protocol through one
// discriminated request body. Input validation happens before any stateful
// work: malformed requests never reach the rate limiter or the lock.
func (a *RecoveryAPI) CleanupHandler(c echo.Context) error {
	var req cleanupRequest
	if err := c.Bind(&req); err != nil {
		return a.writeError(c, middleware.FromContext(c), cleanuperr.NewInvalidInput("malformed JSON body"))
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = middleware.FromContext(c)
	}

	if err := validateCleanupRequest(&req); err != nil {
		return a.writeError(c, correlationID, err)
	}

	source := c.RealIP()
	ctx := c.Request().Context()

	switch req.Step {
	case stepRequestCode:
		res, err := a.cleanup.RequestCode(ctx, req.Email, source, correlationID)
		if err != nil {
			return a.writeError(c, correlationID, err)
		}
		return c.JSON(http.StatusOK, successEnvelope{
			Success:       true,
			Message:       "If the identity is eligible, a verification code has been sent.",
			CorrelationID: res.CorrelationID,
			Data:          res,
		})
	default: // stepValidateAndCleanup, guaranteed by validation
		res, err := a.cleanup.ValidateAndCleanup(ctx, req.Email, req.Code, source, correlationID)
		if err != nil {
			return a.writeError(c, correlationID, err)
		}
		return c.JSON(http.StatusOK, successEnvelope{
			Success:       true,
			Message:       "The orphaned identity has been removed. You can register again.",
			CorrelationID: res.CorrelationID,
			Data:          res,
		})
	}
}

// DetectHandler runs the sign-in orphan check. A detection failure is
// fail-closed: the caller receives an error and must not let the sign-in
// proceed.
func (a *RecoveryAPI) DetectHandler(c echo.Context) error {
	var req detectRequest
	if err := c.Bind(&req); err != nil {
		return a.writeError(c, middleware.FromContext(c), cleanuperr.NewInvalidInput("malformed JSON body"))
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = middleware.FromContext(c)
	}

	if req.IdentityID == "" {
		return a.writeError(c, correlationID, cleanuperr.NewInvalidInput("identityId is required"))
	}
	if !validEmail(req.Email) {
		return a.writeError(c, correlationID, cleanuperr.NewInvalidInput("email is not a valid address"))
	}
	if req.CorrelationID != "" && uuid.Validate(req.CorrelationID) != nil {
		return a.writeError(c, correlationID, cleanuperr.NewInvalidInput("correlationId is not a valid UUID"))
	}

	decision, err := a.gate.CheckSignIn(c.Request().Context(), req.IdentityID, req.Email, correlationID)
	if err != nil {
		log.Error().Err(err).Str("correlation_id", correlationID).Msg("Orphan detection failed closed")
		return a.writeError(c, correlationID, cleanuperr.NewTransactionFailed("orphan detection unavailable"))
	}

	return c.JSON(http.StatusOK, successEnvelope{
		Success:       true,
		Message:       "Detection completed.",
		CorrelationID: decision.CorrelationID,
		Data:          decision,
	})
}

// HealthHandler reports liveness.
func (a *RecoveryAPI) HealthHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func validateCleanupRequest(req *cleanupRequest) error {
	switch req.Step {
	case stepRequestCode, stepValidateAndCleanup:
	default:
		return cleanuperr.NewInvalidInput("step must be request-code or validate-and-cleanup")
	}
	if !validEmail(req.Email) {
		return cleanuperr.NewInvalidInput("email is not a valid address")
	}
	if req.Step == stepValidateAndCleanup && !services.ValidCodeFormat(req.Code) {
		return cleanuperr.NewInvalidInput("code must be 8 characters from the code alphabet")
	}
	if req.CorrelationID != "" && uuid.Validate(req.CorrelationID) != nil {
		return cleanuperr.NewInvalidInput("correlationId is not a valid UUID")
	}
	return nil
}

func validEmail(email string) bool {
	if email == "" {
		return false
	}
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Address == email
}

func (a *RecoveryAPI) writeError(c echo.Context, correlationID string, err error) error {
	ce := cleanuperr.AsCleanupError(err)
	if ce == nil {
		ce = cleanuperr.NewTransactionFailed("")
	}

	status := cleanuperr.HTTPStatus(ce.Code)
	if ce.Code == cleanuperr.RateLimited && ce.RetryAfter > 0 {
		secs := int(ce.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
	}

	return c.JSON(status, errorEnvelope{Error: errorBody{
		Code:          ce.Code,
		Message:       ce.Message,
		CorrelationID: correlationID,
		Details:       ce.Details,
	}})
}
