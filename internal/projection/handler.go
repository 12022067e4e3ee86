package projection

import (
	"errors"
	"net/http"

	httperr "github.com/briefcast-io/briefcast/internal/core/errors"
	"github.com/briefcast-io/briefcast/internal/core/storage"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers the summary read API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/recipients/:recipient_id/summaries", s.HandleListSummaries)
	r.GET("/v1/summaries/:summary_id", s.HandleGetSummary)
}

// HandleListSummaries handles GET /v1/recipients/:recipient_id/summaries.
// Query parameters: limit
func (s *Service) HandleListSummaries(c *gin.Context) {
	var uri struct {
		RecipientID string `uri:"recipient_id" binding:"required"`
	}
	var query struct {
		Limit int `form:"limit"`
	}

	if err := c.ShouldBindUri(&uri); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid path parameters",
			Details:   err.Error(),
		})
		return
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Invalid query parameters",
			Details:   err.Error(),
		})
		return
	}

	results, err := s.ListSummaries(c.Request.Context(), uri.RecipientID, query.Limit)
	if err != nil {
		if errors.Is(err, ErrInvalidQuery) {
			c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
				ErrorType: httperr.HttpValidationError,
				Message:   "Invalid summary query",
				Details:   err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to query summaries",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"recipient_id": uri.RecipientID,
		"summaries":    results,
	})
}

// HandleGetSummary handles GET /v1/summaries/:summary_id.
func (s *Service) HandleGetSummary(c *gin.Context) {
	summaryID := c.Param("summary_id")

	result, err := s.GetSummary(c.Request.Context(), summaryID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httperr.ErrorResponse{
				ErrorType: httperr.HttpNotFoundError,
				Message:   "Summary not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Failed to load summary",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}
