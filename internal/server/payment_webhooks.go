package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const maxWebhookPayload = 1 << 20

// HandlePaymentWebhook acknowledges every authentic delivery; unmatched
// references become operator notifications inside the payment service.
// Bodies over 1 MiB are rejected unread.
func (s *Server) HandlePaymentWebhook(c *gin.Context) {
	if c.Request.ContentLength > maxWebhookPayload {
		AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload too large"))
		return
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayload+1))
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if len(payload) > maxWebhookPayload {
		AbortWithError(c, newValidationError("body", "payload_too_large", "webhook payload too large"))
		return
	}

	provider := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	if err := s.webhookSvc.IngestWebhook(c.Request.Context(), provider, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
