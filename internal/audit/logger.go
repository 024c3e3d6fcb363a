package audit

import (
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Event is one entry in the structured audit stream. It complements the
// durable audit collection: the stream is for operators, the collection is
// the compliance record.
type Event struct {
	Timestamp     time.Time `json:"timestamp"`
	Service       string    `json:"service"`
	Action        string    `json:"action"`
	CorrelationID string    `json:"correlation_id"`
	Success       bool      `json:"success"`
	ErrorCode     string    `json:"error_code,omitempty"`
}

const serviceName = "identity-recovery"

var auditLogger = log.Output(os.Stdout).With().Str("stream", "audit").Logger()

// Log records an audit event. Identifying data never appears here; callers
// pass only the correlation id.
func Log(action, correlationID string, success bool, errorCode string) {
	event := Event{
		Timestamp:     time.Now().UTC(),
		Service:       serviceName,
		Action:        action,
		CorrelationID: correlationID,
		Success:       success,
		ErrorCode:     errorCode,
	}

	auditLogger.Log().
		Time("timestamp", event.Timestamp).
		Str("service", event.Service).
		Str("action", event.Action).
		Str("correlation_id", event.CorrelationID).
		Bool("success", event.Success).
		Str("error_code", event.ErrorCode).
		Msg("audit")
}
