package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/paylab/ledgerlab/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.PaymentService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/payments", submitHandler(svc))
	}
	internal := r.Group("/internal")
	{
		internal.GET("/stats", statsHandler(svc))
	}
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

type submitReq struct {
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
	SourceID       string `json:"source_account_id" binding:"required"`
	DestinationID  string `json:"destination_account_id" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
}

func submitHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		resp, err := svc.SubmitPayment(c.Request.Context(), service.SubmitRequest{
			IdempotencyKey: req.IdempotencyKey,
			SourceID:       req.SourceID,
			DestinationID:  req.DestinationID,
			Amount:         amt,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		code := http.StatusCreated
		if resp.Replayed {
			code = http.StatusOK
		}
		c.JSON(code, resp)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func statsHandler(svc *service.PaymentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := svc.Snapshot(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}
