package server

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxCallbackBody = 64 << 10

// HandleCallback accepts provider notifications. The body only identifies
// the payment; the outcome is always read back from the provider.
func (s *Server) HandleCallback(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCallbackBody))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	attempt, err := s.checkout.HandleCallback(c.Request.Context(), body, c.GetHeader("Authorization"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if attempt != nil {
		s.log.Debug("callback processed",
			zap.String("path", c.Param("path")),
			zap.String("reference", attempt.Reference),
			zap.String("status", string(attempt.Status)),
		)
	}
	c.Status(http.StatusOK)
}
