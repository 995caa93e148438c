package mocks

import (
	"context"

	"referral_gate_bot/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockChannelMembership struct {
	mock.Mock
}

func (m *MockChannelMembership) Approve(ctx context.Context, channelID, telegramID int64) error {
	args := m.Called(ctx, channelID, telegramID)
	return args.Error(0)
}

func (m *MockChannelMembership) Decline(ctx context.Context, channelID, telegramID int64) error {
	args := m.Called(ctx, channelID, telegramID)
	return args.Error(0)
}

func (m *MockChannelMembership) GetMembershipStatus(ctx context.Context, channelID, telegramID int64) (model.MembershipStatus, error) {
	args := m.Called(ctx, channelID, telegramID)
	return args.Get(0).(model.MembershipStatus), args.Error(1)
}

type MockNotificationSink struct {
	mock.Mock
}

func (m *MockNotificationSink) Notify(ctx context.Context, recipientID int64, kind model.EventKind, payload model.NotificationPayload) error {
	args := m.Called(ctx, recipientID, kind, payload)
	return args.Error(0)
}

type MockSnapshotRepository struct {
	mock.Mock
}

func (m *MockSnapshotRepository) Transaction(ctx context.Context, t func(s *model.Snapshot) error) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *MockSnapshotRepository) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Snapshot), args.Error(1)
}
