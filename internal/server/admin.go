package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	attemptsvc "github.com/smallbiznis/walletpay/internal/attempt/service"
	"github.com/smallbiznis/walletpay/internal/checkout"
	"github.com/smallbiznis/walletpay/pkg/db/pagination"
)

type listAttemptsRequest struct {
	Status string `form:"status"`
	Scope  string `form:"scope"`
	pagination.Pagination
}

type manualCancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) ListAttempts(c *gin.Context) {
	var query listAttemptsRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.checkout.ListAttempts(c.Request.Context(), attemptsvc.ListRequest{
		Status:     query.Status,
		Scope:      query.Scope,
		Pagination: query.Pagination,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp.Attempts, "page_info": resp.PageInfo})
}

func (s *Server) GetAttemptDetail(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	detail, err := s.checkout.Detail(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": detail})
}

func (s *Server) RestartAttempt(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	attempt, err := s.checkout.Restart(c.Request.Context(), id, operatorFromContext(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}

func (s *Server) ManualCancelAttempt(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req manualCancelRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	attempt, err := s.checkout.ManualCancel(c.Request.Context(), id, operatorFromContext(c), strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}

// ReconcilePayment re-reads the provider state of a payment on operator request.
func (s *Server) ReconcilePayment(c *gin.Context) {
	reference, ok := parseReference(c)
	if !ok {
		return
	}

	attempt, err := s.checkout.ReconcileReference(c.Request.Context(), reference, checkout.TriggerOperator)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": attempt})
}
