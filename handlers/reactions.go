package handlers

import (
	"net/http"
	"strconv"

	"hermes/database"
	"hermes/models"

	"github.com/gin-gonic/gin"
)

// ReactionsHandler serves the upvote/downvote/unvote/flag/unflag endpoints
// for both reactable kinds.
type ReactionsHandler struct {
	reactionsService *database.ReactionsService
}

func NewReactionsHandler(reactionsService *database.ReactionsService) *ReactionsHandler {
	return &ReactionsHandler{
		reactionsService: reactionsService,
	}
}

// React builds the handler for one (kind, operation) route. The reactable
// id comes from the path, the acting user from the auth middleware.
func (h *ReactionsHandler) React(kind models.ReactableKind, op database.ReactionOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := callerID(c)
		if !ok {
			return
		}
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be an integer"})
			return
		}

		switch kind {
		case models.KindPhoto:
			photo, err := h.reactionsService.ReactToPhoto(c.Request.Context(), id, userID, op)
			if err != nil {
				respondError(c, err)
				return
			}
			c.IndentedJSON(http.StatusOK, photo)
		default:
			comment, err := h.reactionsService.ReactToComment(c.Request.Context(), id, userID, op)
			if err != nil {
				respondError(c, err)
				return
			}
			c.IndentedJSON(http.StatusOK, comment)
		}
	}
}
