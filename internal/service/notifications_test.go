package service

import (
	"context"
	"testing"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/service/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_ReferralRecorded(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	referrer := &model.UserRecord{Points: 9, Referrals: []int64{1, 2, 3}, FirstName: "Ref"}

	tests := []struct {
		name   string
		result *model.ReferralResult
		kinds  map[model.EventKind]int64
	}{
		{
			name:   "not recorded",
			result: &model.ReferralResult{ReferrerID: 5, Referrer: referrer},
		},
		{
			name:   "rewarded referral",
			result: &model.ReferralResult{ReferrerID: 5, Referrer: referrer, Recorded: true, Rewarded: true, ReferralCount: 2},
			kinds:  map[model.EventKind]int64{model.EventPointsAwarded: 5},
		},
		{
			name: "quota reached",
			result: &model.ReferralResult{
				ReferrerID: 5, Referrer: referrer, Recorded: true, Rewarded: true,
				ReferralCount: 3, QuotaJustReached: true,
			},
			kinds: map[model.EventKind]int64{
				model.EventPointsAwarded:   5,
				model.EventQuotaReached:    5,
				model.EventAdminCompletion: testAdminID,
			},
		},
		{
			name:   "beyond quota",
			result: &model.ReferralResult{ReferrerID: 5, Referrer: referrer, Recorded: true, ReferralCount: 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mocks.MockNotificationSink{}
			for kind, recipient := range tt.kinds {
				sink.On("Notify", mock.Anything, recipient, kind, mock.Anything).Return(nil).Once()
			}

			NewDispatcher(sink).ReferralRecorded(ctx, tt.result, cfg)

			sink.AssertExpectations(t)
			sink.AssertNumberOfCalls(t, "Notify", len(tt.kinds))
		})
	}
}

func TestDispatcher_FanOutSurvivesFailures(t *testing.T) {
	failing := &mocks.MockNotificationSink{}
	failing.On("Notify", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(assert.AnError)
	working := &mocks.MockNotificationSink{}
	working.On("Notify", mock.Anything, int64(5), model.EventPointsAwarded, mock.Anything).Return(nil).Once()

	result := &model.ReferralResult{
		ReferrerID: 5,
		Referrer:   &model.UserRecord{Referrals: []int64{1}},
		Recorded:   true,
		Rewarded:   true,
	}
	NewDispatcher(failing, working).ReferralRecorded(context.Background(), result, testConfig())

	working.AssertExpectations(t)
}

func TestEventFeed(t *testing.T) {
	ctx := context.Background()
	feed := NewEventFeed(1)

	id, events := feed.Subscribe()
	payload := model.NotificationPayload{SubjectID: 5, ReferralCount: 3}
	require.NoError(t, feed.Notify(ctx, testAdminID, model.EventAdminCompletion, payload))
	// buffer is full, the second event is dropped instead of blocking
	require.NoError(t, feed.Notify(ctx, testAdminID, model.EventAdminCompletion, payload))

	n := <-events
	assert.Equal(t, testAdminID, n.RecipientID)
	assert.Equal(t, model.EventAdminCompletion, n.Kind)
	assert.Equal(t, payload, n.Payload)
	assert.NotEmpty(t, n.ID.String())

	feed.Unsubscribe(id)
	_, open := <-events
	assert.False(t, open)
}
