package middleware

import (
	"net/http"

	"referral_gate_bot/pkg/auth"
	"referral_gate_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Authorization struct {
	adminUserID int64
}

func NewAuthorization(adminUserID int64) *Authorization {
	return &Authorization{
		adminUserID: adminUserID,
	}
}

// AdminOnly must run after the Telegram auth middleware. With no admin
// configured every request is rejected.
func (a *Authorization) AdminOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.Logger()

		telegramUser, ok := auth.UserFromContext(c)
		if !ok {
			log.Error("telegram user data not found in context")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		if a.adminUserID == 0 || telegramUser.ID != a.adminUserID {
			log.Info("unauthorized access attempt to admin endpoint",
				zap.Int64("telegram_id", telegramUser.ID))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Next()
	}
}
