package handlers

import (
	"net/http"

	"github.com/bareuptime/convcore/internal/coreerr"
	"github.com/gin-gonic/gin"
)

// respondError maps a coreerr.Kind to the HTTP status a thin handler
// returns, per §6: bind + validate + call a service method + map error
// kind to status. Unrecognized errors default to 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch coreerr.KindOf(err) {
	case coreerr.KindNotFound:
		status = http.StatusNotFound
	case coreerr.KindInvalidTransition:
		status = http.StatusConflict
	case coreerr.KindUnauthorized:
		status = http.StatusUnauthorized
	case coreerr.KindForbidden:
		status = http.StatusForbidden
	case coreerr.KindValidation:
		status = http.StatusBadRequest
	case coreerr.KindRateLimited:
		status = http.StatusTooManyRequests
	case coreerr.KindCancelled:
		status = http.StatusRequestTimeout
	case coreerr.KindTransient, coreerr.KindPermanent, coreerr.KindUnknown:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
