package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/pkg/logger"

	"go.uber.org/zap"
)

type ReferralService struct {
	repo       SnapshotRepository
	membership ChannelMembership
	notifier   *Dispatcher
	cfg        Config
	now        func() time.Time
}

func NewReferralService(repo SnapshotRepository, membership ChannelMembership, notifier *Dispatcher, cfg Config) *ReferralService {
	return &ReferralService{
		repo:       repo,
		membership: membership,
		notifier:   notifier,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReferralService) ReferralLink(telegramID int64) string {
	return fmt.Sprintf("https://t.me/%s?start=%d", s.cfg.BotUsername, telegramID)
}

// HandleStart initializes the caller and, when the start payload names an
// existing referrer, credits that referrer. Both happen in one transaction;
// notifications go out only after it committed.
func (s *ReferralService) HandleStart(ctx context.Context, cmd model.StartCommand) (*model.UserRecord, error) {
	var (
		user   *model.UserRecord
		result *model.ReferralResult
	)

	err := s.repo.Transaction(ctx, func(snapshot *model.Snapshot) error {
		user = s.ensureUserInitialized(snapshot, cmd.TelegramID, cmd.Profile).Clone()

		referrerID, ok := ParseReferrerCode(cmd.ReferrerCode)
		if ok {
			result = s.registerReferral(snapshot, referrerID, cmd.TelegramID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to handle start: %w", err)
	}

	if result != nil && result.Recorded {
		logger.Logger().Info("referral recorded",
			zap.Int64("referrer_id", result.ReferrerID),
			zap.Int64("telegram_id", cmd.TelegramID),
			zap.Int("referrals", result.ReferralCount),
			zap.Int("points_awarded", result.PointsAwarded),
			zap.Bool("quota_reached", result.QuotaJustReached))
		s.notifier.ReferralRecorded(ctx, result, s.cfg)
	}

	return user, nil
}

func (s *ReferralService) EnsureUserInitialized(ctx context.Context, telegramID int64, profile model.Profile) (*model.UserRecord, error) {
	var user *model.UserRecord
	err := s.repo.Transaction(ctx, func(snapshot *model.Snapshot) error {
		user = s.ensureUserInitialized(snapshot, telegramID, profile).Clone()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize user: %w", err)
	}
	return user, nil
}

// RegisterReferral credits referrerID with newUserID and dispatches the
// resulting notifications. Self, unknown and repeated referrals are no-ops
// reported through a result with Recorded == false.
func (s *ReferralService) RegisterReferral(ctx context.Context, referrerID, newUserID int64) (*model.ReferralResult, error) {
	var result *model.ReferralResult
	err := s.repo.Transaction(ctx, func(snapshot *model.Snapshot) error {
		result = s.registerReferral(snapshot, referrerID, newUserID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register referral: %w", err)
	}

	if result.Recorded {
		s.notifier.ReferralRecorded(ctx, result, s.cfg)
	}
	return result, nil
}

func (s *ReferralService) Status(ctx context.Context, telegramID int64) (*model.UserStatus, error) {
	var user *model.UserRecord
	err := s.repo.Transaction(ctx, func(snapshot *model.Snapshot) error {
		u, ok := snapshot.User(telegramID)
		if !ok {
			return ErrUserNotFound
		}
		u.LastActivityAt = s.now()
		user = u.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	membership := model.MembershipUnknown
	if s.membership != nil {
		membership, err = s.membership.GetMembershipStatus(ctx, s.cfg.ChannelID, telegramID)
		if err != nil {
			logger.Logger().Warn("membership check failed",
				zap.Int64("telegram_id", telegramID), zap.Error(err))
			membership = model.MembershipUnknown
		}
	}

	remaining := s.cfg.RequiredReferrals - len(user.Referrals)
	if remaining < 0 {
		remaining = 0
	}

	return &model.UserStatus{
		TelegramID:   telegramID,
		Record:       user,
		Required:     s.cfg.RequiredReferrals,
		Remaining:    remaining,
		Completed:    QuotaMet(user, s.cfg),
		ReferralLink: s.ReferralLink(telegramID),
		Membership:   membership,
	}, nil
}

func (s *ReferralService) ensureUserInitialized(snapshot *model.Snapshot, telegramID int64, profile model.Profile) *model.UserRecord {
	now := s.now()

	user, ok := snapshot.User(telegramID)
	if !ok {
		user = &model.UserRecord{
			Referrals:      []int64{},
			FirstName:      profile.FirstName,
			Username:       profile.Username,
			RegisteredAt:   now,
			LastActivityAt: now,
		}
		snapshot.Users[telegramID] = user
		return user
	}

	user.LastActivityAt = now
	if profile.FirstName != "" {
		user.FirstName = profile.FirstName
	}
	if profile.Username != "" {
		user.Username = profile.Username
	}
	return user
}

func (s *ReferralService) registerReferral(snapshot *model.Snapshot, referrerID, newUserID int64) *model.ReferralResult {
	result := &model.ReferralResult{ReferrerID: referrerID}

	if referrerID == newUserID {
		return result
	}

	referrer, ok := snapshot.User(referrerID)
	if !ok {
		return result
	}
	result.ReferralCount = len(referrer.Referrals)
	result.Referrer = referrer.Clone()

	if _, attributed := snapshot.ReferrerOf(newUserID); attributed {
		return result
	}

	before := len(referrer.Referrals)
	referrer.Referrals = append(referrer.Referrals, newUserID)
	after := len(referrer.Referrals)

	result.Recorded = true
	result.ReferralCount = after
	if after <= s.cfg.RequiredReferrals {
		referrer.Points += s.cfg.PointsPerReferral
		result.PointsAwarded = s.cfg.PointsPerReferral
		result.Rewarded = true
	}
	result.QuotaJustReached = before < s.cfg.RequiredReferrals && after >= s.cfg.RequiredReferrals
	result.Referrer = referrer.Clone()

	return result
}

func QuotaMet(user *model.UserRecord, cfg Config) bool {
	return user != nil && len(user.Referrals) >= cfg.RequiredReferrals
}

// ParseReferrerCode reads the /start payload. Codes are the referrer's
// Telegram id; anything else is treated as no referral.
func ParseReferrerCode(code string) (int64, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}
