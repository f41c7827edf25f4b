package http

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paylab/ledgerlab/internal/config"
	"github.com/paylab/ledgerlab/internal/service"
)

func NewRouter(svc *service.PaymentService, rl config.RateLimitConfig, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogging(log))
	r.Use(RateLimit(rl, log))
	RegisterHandlers(r, svc)
	return r
}
