package service

import (
	"context"
	"sync"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Dispatcher turns ledger outcomes into notifications. Delivery is best
// effort: sink failures are logged and never returned to the caller.
type Dispatcher struct {
	sinks []NotificationSink
}

func NewDispatcher(sinks ...NotificationSink) *Dispatcher {
	return &Dispatcher{sinks: sinks}
}

// ReferralRecorded fires PointsAwarded for referrals 1..RequiredReferrals
// and, on the referral that reaches the quota, QuotaReached to the referrer
// and AdminCompletion to the admin.
func (d *Dispatcher) ReferralRecorded(ctx context.Context, result *model.ReferralResult, cfg Config) {
	if d == nil || result == nil || !result.Recorded || result.Referrer == nil {
		return
	}

	payload := model.NotificationPayload{
		SubjectID:         result.ReferrerID,
		FirstName:         result.Referrer.FirstName,
		Username:          result.Referrer.Username,
		Points:            result.Referrer.Points,
		PointsAwarded:     result.PointsAwarded,
		ReferralCount:     result.ReferralCount,
		RequiredReferrals: cfg.RequiredReferrals,
		ChannelLink:       cfg.ChannelLink,
	}

	if result.Rewarded {
		d.notify(ctx, result.ReferrerID, model.EventPointsAwarded, payload)
	}

	if result.QuotaJustReached {
		d.notify(ctx, result.ReferrerID, model.EventQuotaReached, payload)
		if cfg.AdminUserID != 0 {
			d.notify(ctx, cfg.AdminUserID, model.EventAdminCompletion, payload)
		}
	}
}

func (d *Dispatcher) notify(ctx context.Context, recipientID int64, kind model.EventKind, payload model.NotificationPayload) {
	for _, sink := range d.sinks {
		if err := sink.Notify(ctx, recipientID, kind, payload); err != nil {
			logger.Logger().Error("notification failed",
				zap.String("kind", string(kind)),
				zap.Int64("recipient_id", recipientID),
				zap.Int64("subject_id", payload.SubjectID),
				zap.Error(err))
		}
	}
}

// EventFeed is a NotificationSink that fans notifications out to in-process
// subscribers such as admin websocket connections. Subscribers that are not
// keeping up miss events instead of blocking the bot.
type EventFeed struct {
	mu          sync.RWMutex
	subscribers map[uuid.UUID]chan model.Notification
	buffer      int
}

func NewEventFeed(buffer int) *EventFeed {
	if buffer <= 0 {
		buffer = 16
	}
	return &EventFeed{
		subscribers: make(map[uuid.UUID]chan model.Notification),
		buffer:      buffer,
	}
}

func (f *EventFeed) Subscribe() (uuid.UUID, <-chan model.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := uuid.New()
	ch := make(chan model.Notification, f.buffer)
	f.subscribers[id] = ch
	return id, ch
}

func (f *EventFeed) Unsubscribe(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

func (f *EventFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *EventFeed) Notify(_ context.Context, recipientID int64, kind model.EventKind, payload model.NotificationPayload) error {
	n := model.Notification{
		ID:          uuid.New(),
		RecipientID: recipientID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for id, ch := range f.subscribers {
		select {
		case ch <- n:
		default:
			logger.Logger().Warn("event feed subscriber is full, dropping event",
				zap.String("subscriber", id.String()),
				zap.String("event_id", n.ID.String()))
		}
	}
	return nil
}
