package api

import (
	"net/http"
	"time"

	"referral_gate_bot/internal/middleware"
	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/pkg/auth"
	"referral_gate_bot/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventSource is the admin notification stream, implemented by
// service.EventFeed.
type EventSource interface {
	Subscribe() (uuid.UUID, <-chan model.Notification)
	Unsubscribe(id uuid.UUID)
}

type adminRoutes struct {
	ss     service.StatsServiceI
	events EventSource
}

func NewAdminRoutes(handler *gin.RouterGroup, ss service.StatsServiceI, events EventSource, a *auth.TelegramAuth, authz *middleware.Authorization) {
	r := &adminRoutes{ss: ss, events: events}
	h := handler.Group("/admin")
	h.Use(a.TelegramAuthMiddleware(), authz.AdminOnly())
	{
		h.GET("/stats", r.GetStats)
		h.GET("/events", r.handleWebSocket)
	}
}

type completedUserResponse struct {
	TelegramID     int64     `json:"telegram_id"`
	FirstName      string    `json:"first_name"`
	Username       string    `json:"username"`
	Referrals      int       `json:"referrals"`
	Points         int       `json:"points"`
	LastActivityAt time.Time `json:"last_activity"`
}

type StatsResponse struct {
	TotalUsers     int                     `json:"total_users"`
	CompletedUsers int                     `json:"completed_users"`
	PendingUsers   int                     `json:"pending_users"`
	Recent         []completedUserResponse `json:"recent"`
}

func (r *adminRoutes) GetStats(c *gin.Context) {
	stats, err := r.ss.Stats(c.Request.Context())
	if err != nil {
		logger.Logger().Error("failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get stats"})
		return
	}

	out := StatsResponse{
		TotalUsers:     stats.TotalUsers,
		CompletedUsers: stats.CompletedUsers,
		PendingUsers:   stats.PendingUsers,
		Recent:         make([]completedUserResponse, len(stats.Recent)),
	}
	for i, u := range stats.Recent {
		out.Recent[i] = completedUserResponse{
			TelegramID:     u.TelegramID,
			FirstName:      u.FirstName,
			Username:       u.Username,
			Referrals:      u.Referrals,
			Points:         u.Points,
			LastActivityAt: u.LastActivityAt,
		}
	}

	c.JSON(http.StatusOK, out)
}

// EventMessage is one frame of the admin event stream.
type EventMessage struct {
	ID          string                    `json:"id"`
	Type        model.EventKind           `json:"type"`
	RecipientID int64                     `json:"recipient_id"`
	CreatedAt   time.Time                 `json:"created_at"`
	Payload     model.NotificationPayload `json:"payload"`
}

func (r *adminRoutes) handleWebSocket(c *gin.Context) {
	log := logger.Logger()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Info("websocket upgrade failed", zap.Error(err))
		return
	}

	id, events := r.events.Subscribe()
	log.Info("admin event stream opened", zap.String("subscriber", id.String()))

	done := make(chan struct{})
	go r.readLoop(conn, done)
	r.writeLoop(conn, id, events, done)
}

// readLoop drains control frames so pongs and close messages are handled.
func (r *adminRoutes) readLoop(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Logger().Info("websocket unexpected close", zap.Error(err))
			}
			return
		}
	}
}

func (r *adminRoutes) writeLoop(conn *websocket.Conn, id uuid.UUID, events <-chan model.Notification, done <-chan struct{}) {
	log := logger.Logger()
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		r.events.Unsubscribe(id)
		conn.Close()
		log.Info("admin event stream closed", zap.String("subscriber", id.String()))
	}()

	for {
		select {
		case n, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(EventMessage{
				ID:          n.ID.String(),
				Type:        n.Kind,
				RecipientID: n.RecipientID,
				CreatedAt:   n.CreatedAt,
				Payload:     n.Payload,
			})
			if err != nil {
				log.Error("failed to marshal event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Info("failed to write event", zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			return
		}
	}
}
