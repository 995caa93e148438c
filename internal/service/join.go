package service

import (
	"context"
	"fmt"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/pkg/logger"

	"go.uber.org/zap"
)

type JoinRequestService struct {
	repo       SnapshotRepository
	membership ChannelMembership
	cfg        Config
	now        func() time.Time
}

func NewJoinRequestService(repo SnapshotRepository, membership ChannelMembership, cfg Config) *JoinRequestService {
	return &JoinRequestService{
		repo:       repo,
		membership: membership,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Decide approves only registered users whose referral count reached the
// quota.
func Decide(telegramID int64, snapshot *model.Snapshot, cfg Config) model.Decision {
	user, ok := snapshot.User(telegramID)
	if !ok {
		return model.DecisionDecline
	}
	if QuotaMet(user, cfg) {
		return model.DecisionApprove
	}
	return model.DecisionDecline
}

// HandleJoinRequest adjudicates a join request silently: the requester is
// never messaged.
func (s *JoinRequestService) HandleJoinRequest(ctx context.Context, req model.JoinRequest) (model.Decision, error) {
	log := logger.Logger()

	if req.ChatID != s.cfg.ChannelID {
		log.Warn("join request for unmanaged chat ignored",
			zap.Int64("telegram_id", req.TelegramID),
			zap.Int64("chat_id", req.ChatID))
		return "", ErrForeignChannel
	}

	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load snapshot: %w", err)
	}

	decision := Decide(req.TelegramID, snapshot, s.cfg)
	if err := s.Apply(ctx, req.TelegramID, decision); err != nil {
		return decision, err
	}

	log.Info("join request adjudicated",
		zap.Int64("telegram_id", req.TelegramID),
		zap.String("decision", string(decision)))

	return decision, nil
}

// Apply performs the channel call first and only then records an approval,
// so a failed call leaves the store untouched. Declines never mutate the
// store.
func (s *JoinRequestService) Apply(ctx context.Context, telegramID int64, decision model.Decision) error {
	switch decision {
	case model.DecisionApprove:
		if err := s.membership.Approve(ctx, s.cfg.ChannelID, telegramID); err != nil {
			return fmt.Errorf("%w: approve %d: %w", ErrExternalAPI, telegramID, err)
		}

		err := s.repo.Transaction(ctx, func(snapshot *model.Snapshot) error {
			user, ok := snapshot.User(telegramID)
			if !ok {
				return ErrUserNotFound
			}
			user.IsApproved = true
			user.HasReceivedLink = true
			if user.ApprovedAt == nil {
				now := s.now()
				user.ApprovedAt = &now
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to record approval: %w", err)
		}
		return nil

	case model.DecisionDecline:
		if err := s.membership.Decline(ctx, s.cfg.ChannelID, telegramID); err != nil {
			return fmt.Errorf("%w: decline %d: %w", ErrExternalAPI, telegramID, err)
		}
		return nil

	default:
		return fmt.Errorf("unknown decision %q", decision)
	}
}
