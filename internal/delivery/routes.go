package delivery

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	httperr "github.com/briefcast-io/briefcast/internal/core/errors"
	"github.com/briefcast-io/briefcast/internal/core/storage"
)

// RegisterRoutes registers the delivery acknowledgement endpoint. Channels
// that confirm out of band (the email gateway) call it once the message has
// actually reached the recipient.
func (d *Dispatcher) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/deliveries/:delivery_id/ack", d.HandleAcknowledge)
}

// HandleAcknowledge handles POST /v1/deliveries/:delivery_id/ack.
func (d *Dispatcher) HandleAcknowledge(c *gin.Context) {
	deliveryID := c.Param("delivery_id")

	err := d.Acknowledge(c.Request.Context(), deliveryID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			// Not in sent: either never dispatched or already terminal.
			c.JSON(http.StatusConflict, httperr.ErrorResponse{
				ErrorType: httperr.HttpConflictError,
				Message:   "Delivery is not awaiting acknowledgement",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to acknowledge delivery",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "acked"})
}
