package ingestion

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	httperr "github.com/briefcast-io/briefcast/internal/core/errors"
	"github.com/briefcast-io/briefcast/internal/core/storage"

	v1 "github.com/briefcast-io/briefcast/internal/api/v1"
	"github.com/gin-gonic/gin"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
	msgPersistFailed  = "Failed to persist event"
)

// ingestionError carries the structured HTTP error shape from a helper back to the orchestrator.
// Helpers return this instead of writing to gin.Context directly, keeping them decoupled from HTTP.
type ingestionError struct {
	statusCode int
	errorType  string
	message    string
	details    interface{}
}

func (e *ingestionError) Error() string {
	return e.message
}

// RegisterRoutes registers the ingestion endpoint.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/events", s.IngestHandler)
}

// IngestHandler handles HTTP POST requests for event ingestion.
func (s *Service) IngestHandler(c *gin.Context) {
	evt, payloadSize, err := s.parseEvent(c)
	if err != nil {
		writeError(c, err)
		return
	}

	if vErr := evt.Validate(); vErr != nil {
		slog.Warn("Envelope validation failed", "error", vErr, "event_id", evt.EventID)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    vErr.Error(),
		})
		return
	}

	if eErr := s.enrichEvent(evt); eErr != nil {
		slog.Warn("Event fingerprinting failed", "error", eErr, "event_id", evt.EventID)
		writeError(c, &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpValidationError,
			message:    eErr.Error(),
		})
		return
	}

	slog.Info("Received Event",
		"event_id", evt.EventID,
		"recipient_id", evt.RecipientID,
		"source_type", evt.SourceType,
		"window_key", evt.WindowKey,
		"payload_size", payloadSize)

	duplicate, pErr := s.persistEvent(c.Request.Context(), evt)
	if pErr != nil {
		writeError(c, pErr)
		return
	}

	if duplicate {
		// Idempotent replay: acknowledged as success, nothing stored.
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
		return
	}

	// Event persisted. The window sweep picks it up once the window closes.
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

// parseEvent reads the raw request body and binds it into an Event struct.
// Returns the parsed event and the raw payload size (used for structured logging upstream).
func (s *Service) parseEvent(c *gin.Context) (*v1.Event, int, *ingestionError) {
	// Enforce maximum body size to prevent OOM attacks
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		return nil, 0, &ingestionError{
			statusCode: http.StatusInternalServerError,
			errorType:  httperr.HttpInternalError,
			message:    msgReadBodyFailed,
		}
	}

	// Check if body exceeds maximum size
	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusRequestEntityTooLarge,
			errorType:  httperr.HttpInvalidJsonError,
			message:    "Request body exceeds maximum allowed size",
			details: map[string]interface{}{
				"max_size_mb": maxBytes / (1024 * 1024),
			},
		}
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))

	var evt v1.Event
	if err := c.ShouldBindJSON(&evt); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		return nil, len(bodyBytes), &ingestionError{
			statusCode: http.StatusBadRequest,
			errorType:  httperr.HttpInvalidJsonError,
			message:    msgInvalidJSON,
		}
	}

	// set IngestedAt to be the time we receive the request
	evt.IngestedAt = time.Now().UTC()
	return &evt, len(bodyBytes), nil
}

// persistEvent assigns the event's final window, saves it and keeps the
// window claim open. The duplicate path also touches the window: replays must
// never leave an event stranded without an open claim.
func (s *Service) persistEvent(ctx context.Context, evt *v1.Event) (bool, *ingestionError) {
	windowStart, aErr := s.assignWindow(ctx, evt)
	if aErr != nil {
		slog.Error("Failed to resolve event window", "error", aErr, "event_id", evt.EventID)
		return false, &ingestionError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpUnavailableError,
			message:    msgPersistFailed,
		}
	}

	duplicate := false
	if err := s.store.PutEvent(ctx, evt); err != nil {
		if !errors.Is(err, storage.ErrDuplicate) {
			slog.Error("Failed to persist event", "error", err, "event_id", evt.EventID)
			return false, &ingestionError{
				statusCode: http.StatusServiceUnavailable,
				errorType:  httperr.HttpUnavailableError,
				message:    msgPersistFailed,
			}
		}
		slog.Info("Duplicate event acknowledged", "event_id", evt.EventID, "recipient_id", evt.RecipientID)
		duplicate = true
	}

	if err := s.ensureWindow(ctx, evt, windowStart); err != nil {
		slog.Error("Failed to open window claim", "error", err, "event_id", evt.EventID, "window_key", evt.WindowKey)
		return duplicate, &ingestionError{
			statusCode: http.StatusServiceUnavailable,
			errorType:  httperr.HttpUnavailableError,
			message:    msgPersistFailed,
		}
	}

	return duplicate, nil
}

// writeError serializes an ingestionError as the JSON HTTP response.
func writeError(c *gin.Context, err *ingestionError) {
	c.JSON(err.statusCode, httperr.ErrorResponse{
		ErrorType: err.errorType,
		Message:   err.message,
		Details:   err.details,
	})
}
