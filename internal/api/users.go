package api

import (
	"errors"
	"net/http"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/pkg/auth"
	"referral_gate_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type userRoutes struct {
	rs service.ReferralServiceI
}

func NewUserRoutes(handler *gin.RouterGroup, rs service.ReferralServiceI, a *auth.TelegramAuth) {
	r := &userRoutes{rs: rs}
	h := handler.Group("/users")
	h.Use(a.TelegramAuthMiddleware())
	{
		h.POST("/me", r.RegisterUser)
		h.GET("/me/status", r.GetStatus)
	}
}

type RegisterUserRequest struct {
	ReferrerCode string `json:"referrer_code"`
}

type UserResponse struct {
	TelegramID      int64      `json:"telegram_id"`
	FirstName       string     `json:"first_name"`
	Username        string     `json:"username"`
	Points          int        `json:"points"`
	Referrals       []int64    `json:"referrals"`
	ReferralLink    string     `json:"referral_link"`
	HasReceivedLink bool       `json:"has_received_link"`
	IsApproved      bool       `json:"is_approved"`
	RegisteredAt    time.Time  `json:"registered_at"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

type StatusResponse struct {
	UserResponse
	RequiredReferrals int    `json:"required_referrals"`
	Remaining         int    `json:"remaining"`
	Completed         bool   `json:"completed"`
	Membership        string `json:"membership"`
}

func newUserResponse(telegramID int64, user *model.UserRecord, link string) UserResponse {
	return UserResponse{
		TelegramID:      telegramID,
		FirstName:       user.FirstName,
		Username:        user.Username,
		Points:          user.Points,
		Referrals:       user.Referrals,
		ReferralLink:    link,
		HasReceivedLink: user.HasReceivedLink,
		IsApproved:      user.IsApproved,
		RegisteredAt:    user.RegisteredAt,
		ApprovedAt:      user.ApprovedAt,
	}
}

// RegisterUser is the mini-app equivalent of /start: it registers the caller
// and attributes an optional referrer code.
func (r *userRoutes) RegisterUser(c *gin.Context) {
	log := logger.Logger()

	var req RegisterUserRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			log.Info("failed to bind request", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
	}

	tgUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	user, err := r.rs.HandleStart(c.Request.Context(), model.StartCommand{
		TelegramID: tgUser.ID,
		Profile: model.Profile{
			FirstName: tgUser.FirstName,
			Username:  tgUser.Username,
		},
		ReferrerCode: req.ReferrerCode,
	})
	if err != nil {
		log.Error("failed to register user", zap.Int64("telegram_id", tgUser.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register user"})
		return
	}

	c.JSON(http.StatusOK, newUserResponse(tgUser.ID, user, r.rs.ReferralLink(tgUser.ID)))
}

func (r *userRoutes) GetStatus(c *gin.Context) {
	log := logger.Logger()

	tgUser, ok := auth.UserFromContext(c)
	if !ok {
		log.Error("telegram user data not found in context")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	}

	status, err := r.rs.Status(c.Request.Context(), tgUser.ID)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not registered"})
			return
		}
		log.Error("failed to get user status", zap.Int64("telegram_id", tgUser.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get user status"})
		return
	}

	c.JSON(http.StatusOK, StatusResponse{
		UserResponse:      newUserResponse(status.TelegramID, status.Record, status.ReferralLink),
		RequiredReferrals: status.Required,
		Remaining:         status.Remaining,
		Completed:         status.Completed,
		Membership:        string(status.Membership),
	})
}
