package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/walletpay/internal/checkout"
	orderdomain "github.com/smallbiznis/walletpay/internal/order/domain"
	ordersvc "github.com/smallbiznis/walletpay/internal/order/service"
	"github.com/smallbiznis/walletpay/internal/transaction"
)

type initiatePaymentRequest struct {
	CustomerPhone string `json:"customer_phone"`
	Description   string `json:"description"`
}

type cancelPaymentRequest struct {
	Reason string `json:"reason"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type paymentSummary struct {
	Reserved  int64 `json:"reserved"`
	Captured  int64 `json:"captured"`
	Refunded  int64 `json:"refunded"`
	Cancelled int64 `json:"cancelled"`
	Remaining int64 `json:"remaining"`
}

type paymentResponse struct {
	Reference string             `json:"reference"`
	Protocol  string             `json:"protocol"`
	Status    transaction.Status `json:"status"`
	Currency  string             `json:"currency"`
	Summary   paymentSummary     `json:"summary"`
	Closed    bool               `json:"closed"`
	Order     *orderdomain.Order `json:"order,omitempty"`
}

type operationResponse struct {
	Reference string `json:"reference"`
	Success   bool   `json:"success"`
}

func (s *Server) CreateDraft(c *gin.Context) {
	var req ordersvc.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	draft, err := s.orders.CreateDraft(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": draft})
}

func (s *Server) GetDraft(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	draft, err := s.orders.GetDraft(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": draft})
}

func (s *Server) InitiatePayment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req initiatePaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	resp, err := s.checkout.Initiate(c.Request.Context(), id, checkout.InitiateOptions{
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Description:   strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetPayment(c *gin.Context) {
	reference, ok := parseReference(c)
	if !ok {
		return
	}

	snapshot, err := s.checkout.GetStatus(c.Request.Context(), reference)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	predicates := transaction.Inspect(snapshot)
	summary := snapshot.Summary()
	resp := paymentResponse{
		Reference: reference,
		Protocol:  snapshot.Protocol(),
		Status:    predicates.Status(),
		Currency:  snapshot.Currency(),
		Summary: paymentSummary{
			Reserved:  summary.Reserved,
			Captured:  summary.Captured,
			Refunded:  summary.Refunded,
			Cancelled: summary.Cancelled,
			Remaining: summary.Remaining,
		},
		Closed: predicates.Closed(),
	}

	order, err := s.orders.GetOrderByReference(c.Request.Context(), reference)
	switch {
	case err == nil:
		resp.Order = order
	case errors.Is(err, orderdomain.ErrOrderNotFound):
	default:
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CancelPayment(c *gin.Context) {
	reference, ok := parseReference(c)
	if !ok {
		return
	}

	var req cancelPaymentRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}

	success, err := s.checkout.Cancel(c.Request.Context(), reference, checkout.CancelOptions{
		Reason: strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": operationResponse{Reference: reference, Success: success}})
}

func (s *Server) CapturePayment(c *gin.Context) {
	s.moveFunds(c, s.checkout.Capture)
}

func (s *Server) RefundPayment(c *gin.Context) {
	s.moveFunds(c, s.checkout.Refund)
}

func (s *Server) moveFunds(c *gin.Context, op func(ctx context.Context, reference string, amount int64) (bool, error)) {
	reference, ok := parseReference(c)
	if !ok {
		return
	}

	var req amountRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	if req.Amount < 0 {
		AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must not be negative"))
		return
	}

	success, err := op(c.Request.Context(), reference, req.Amount)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": operationResponse{Reference: reference, Success: success}})
}

func parseID(c *gin.Context) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, newValidationError("id", "invalid_id", "invalid id"))
		return 0, false
	}
	return id, true
}

func parseReference(c *gin.Context) (string, bool) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		AbortWithError(c, newValidationError("reference", "invalid_reference", "invalid reference"))
		return "", false
	}
	return reference, true
}
