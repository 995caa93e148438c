package service

import (
	"context"
	"errors"
	"fmt"

	"referral_gate_bot/internal/model"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrExternalAPI    = errors.New("channel api call failed")
	ErrForeignChannel = errors.New("join request for a chat other than the gated channel")
	ErrInvalidConfig  = errors.New("invalid referral config")
)

type Config struct {
	PointsPerReferral int    `mapstructure:"pointsPerReferral"`
	RequiredReferrals int    `mapstructure:"requiredReferrals"`
	ChannelID         int64  `mapstructure:"channelId"`
	ChannelLink       string `mapstructure:"channelLink"`
	AdminUserID       int64  `mapstructure:"adminUserId"`
	BotUsername       string `mapstructure:"botUsername"`
}

func (c Config) Validate() error {
	if c.PointsPerReferral < 0 {
		return fmt.Errorf("%w: pointsPerReferral must be >= 0, got %d", ErrInvalidConfig, c.PointsPerReferral)
	}
	if c.RequiredReferrals < 1 {
		return fmt.Errorf("%w: requiredReferrals must be >= 1, got %d", ErrInvalidConfig, c.RequiredReferrals)
	}
	if c.ChannelID == 0 {
		return fmt.Errorf("%w: channelId is required", ErrInvalidConfig)
	}
	return nil
}

type Service struct {
	*ReferralService
	*JoinRequestService
	*StatsService
}

func NewService(referrals *ReferralService, joins *JoinRequestService, stats *StatsService) *Service {
	return &Service{
		ReferralService:    referrals,
		JoinRequestService: joins,
		StatsService:       stats,
	}
}

type ReferralServiceI interface {
	HandleStart(ctx context.Context, cmd model.StartCommand) (*model.UserRecord, error)
	EnsureUserInitialized(ctx context.Context, telegramID int64, profile model.Profile) (*model.UserRecord, error)
	RegisterReferral(ctx context.Context, referrerID, newUserID int64) (*model.ReferralResult, error)
	Status(ctx context.Context, telegramID int64) (*model.UserStatus, error)
	ReferralLink(telegramID int64) string
}

type JoinRequestServiceI interface {
	HandleJoinRequest(ctx context.Context, req model.JoinRequest) (model.Decision, error)
}

type StatsServiceI interface {
	Stats(ctx context.Context) (*model.Stats, error)
}

// SnapshotRepository is the whole-snapshot transaction boundary shared by
// every service.
type SnapshotRepository interface {
	Transaction(ctx context.Context, t func(s *model.Snapshot) error) error
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// ChannelMembership is the Telegram side of the gated channel.
type ChannelMembership interface {
	Approve(ctx context.Context, channelID, telegramID int64) error
	Decline(ctx context.Context, channelID, telegramID int64) error
	GetMembershipStatus(ctx context.Context, channelID, telegramID int64) (model.MembershipStatus, error)
}

type NotificationSink interface {
	Notify(ctx context.Context, recipientID int64, kind model.EventKind, payload model.NotificationPayload) error
}
