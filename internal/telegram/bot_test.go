package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/repository"
	"referral_gate_bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChannelID = int64(-100200300)
	testAdminID   = int64(900)
)

type fakeAPI struct {
	sent       []tgbotapi.Chattable
	requests   []tgbotapi.Chattable
	requestErr error
	sendErr    error
	member     tgbotapi.ChatMember
	memberErr  error
	updates    chan tgbotapi.Update
	stopped    bool
}

func (f *fakeAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.sendErr
}

func (f *fakeAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.requests = append(f.requests, c)
	if f.requestErr != nil {
		return nil, f.requestErr
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (f *fakeAPI) GetChatMember(_ tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error) {
	return f.member, f.memberErr
}

func (f *fakeAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return f.updates
}

func (f *fakeAPI) StopReceivingUpdates() {
	f.stopped = true
}

func (f *fakeAPI) messagesTo(chatID int64) []tgbotapi.MessageConfig {
	var out []tgbotapi.MessageConfig
	for _, c := range f.sent {
		if msg, ok := c.(tgbotapi.MessageConfig); ok && msg.ChatID == chatID {
			out = append(out, msg)
		}
	}
	return out
}

func testConfig() service.Config {
	return service.Config{
		PointsPerReferral: 3,
		RequiredReferrals: 3,
		ChannelID:         testChannelID,
		ChannelLink:       "https://t.me/+gated",
		AdminUserID:       testAdminID,
		BotUsername:       "gate_bot",
	}
}

func newTestBot(t *testing.T) (*Bot, *fakeAPI, *repository.Repository) {
	t.Helper()

	api := &fakeAPI{member: tgbotapi.ChatMember{Status: "left"}}
	client := NewClient(api)
	repo := repository.NewWithStore(repository.NewMemoryStore())
	cfg := testConfig()

	referrals := service.NewReferralService(repo, client, service.NewDispatcher(client), cfg)
	joins := service.NewJoinRequestService(repo, client, cfg)
	stats := service.NewStatsService(repo, cfg)

	bot := NewBot(api, referrals, joins, stats, cfg, 0)
	bot.now = func() time.Time { return time.Unix(1700000000, 0) }
	return bot, api, repo
}

func command(from int64, text string) tgbotapi.Update {
	name := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			MessageID: 1,
			From:      &tgbotapi.User{ID: from, FirstName: "User", UserName: "user"},
			Chat:      &tgbotapi.Chat{ID: from},
			Text:      text,
			Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(name)}},
		},
	}
}

func joinRequest(from, chat int64) tgbotapi.Update {
	return tgbotapi.Update{
		ChatJoinRequest: &tgbotapi.ChatJoinRequest{
			Chat: tgbotapi.Chat{ID: chat},
			From: tgbotapi.User{ID: from},
		},
	}
}

func TestBot_ReferralFlowToApproval(t *testing.T) {
	ctx := context.Background()
	bot, api, repo := newTestBot(t)

	const referrer = int64(100)
	bot.HandleUpdate(ctx, command(referrer, "/start"))

	welcome := api.messagesTo(referrer)
	require.Len(t, welcome, 1)
	assert.Contains(t, welcome[0].Text, "https://t.me/gate_bot?start=100")

	for _, id := range []int64{1, 2, 3} {
		bot.HandleUpdate(ctx, command(id, "/start 100"))
	}

	toReferrer := api.messagesTo(referrer)
	// welcome, three point updates and the channel invitation
	require.Len(t, toReferrer, 5)
	assert.Contains(t, toReferrer[1].Text, "+3 points")
	assert.Contains(t, toReferrer[4].Text, "https://t.me/+gated")

	toAdmin := api.messagesTo(testAdminID)
	require.Len(t, toAdmin, 1)
	assert.Contains(t, toAdmin[0].Text, "`100`")

	bot.HandleUpdate(ctx, joinRequest(referrer, testChannelID))

	require.Len(t, api.requests, 1)
	approve, ok := api.requests[0].(tgbotapi.ApproveChatJoinRequestConfig)
	require.True(t, ok)
	assert.Equal(t, testChannelID, approve.ChatID)
	assert.Equal(t, referrer, approve.UserID)

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snapshot.Users[referrer].IsApproved)
	assert.Len(t, api.messagesTo(referrer), 5, "join requests are handled silently")
}

func TestBot_JoinRequestDeclined(t *testing.T) {
	ctx := context.Background()
	bot, api, repo := newTestBot(t)

	bot.HandleUpdate(ctx, joinRequest(42, testChannelID))

	require.Len(t, api.requests, 1)
	decline, ok := api.requests[0].(tgbotapi.DeclineChatJoinRequest)
	require.True(t, ok)
	assert.Equal(t, int64(42), decline.UserID)
	assert.Empty(t, api.sent)

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Users)
}

func TestBot_FailedApprovalIsNotRecorded(t *testing.T) {
	ctx := context.Background()
	bot, api, repo := newTestBot(t)

	err := repo.Transaction(ctx, func(s *model.Snapshot) error {
		s.Users[100] = &model.UserRecord{Points: 9, Referrals: []int64{1, 2, 3}}
		return nil
	})
	require.NoError(t, err)

	api.requestErr = &tgbotapi.Error{Code: http.StatusBadRequest, Message: "HIDE_REQUESTER_MISSING"}
	bot.HandleUpdate(ctx, joinRequest(100, testChannelID))

	snapshot, err := repo.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snapshot.Users[100].IsApproved)
}

func TestBot_StatusAndAdmin(t *testing.T) {
	ctx := context.Background()
	bot, api, _ := newTestBot(t)

	bot.HandleUpdate(ctx, command(7, "/status"))
	msgs := api.messagesTo(7)
	require.Len(t, msgs, 1)
	assert.Equal(t, notStartedText, msgs[0].Text)

	bot.HandleUpdate(ctx, command(7, "/start"))
	bot.HandleUpdate(ctx, command(7, "/status"))
	msgs = api.messagesTo(7)
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[2].Text, "3 more referrals needed")
	assert.Contains(t, msgs[2].Text, "Channel: not joined")

	bot.HandleUpdate(ctx, command(7, "/admin"))
	msgs = api.messagesTo(7)
	require.Len(t, msgs, 4)
	assert.Equal(t, adminOnlyText, msgs[3].Text)

	bot.HandleUpdate(ctx, command(testAdminID, "/admin"))
	admin := api.messagesTo(testAdminID)
	require.Len(t, admin, 1)
	assert.Contains(t, admin[0].Text, "Total users: 1")
}

func TestBot_StatusCallbackEditsMessage(t *testing.T) {
	ctx := context.Background()
	bot, api, _ := newTestBot(t)
	bot.HandleUpdate(ctx, command(7, "/start"))

	bot.HandleUpdate(ctx, tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-1",
			From:    &tgbotapi.User{ID: 7},
			Message: &tgbotapi.Message{MessageID: 55, Chat: &tgbotapi.Chat{ID: 7}},
			Data:    "status_1699999999",
		},
	})

	var edit *tgbotapi.EditMessageTextConfig
	for _, c := range api.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			edit = &e
		}
	}
	require.NotNil(t, edit)
	assert.Equal(t, 55, edit.MessageID)
	require.NotNil(t, edit.ReplyMarkup)
	assert.Equal(t, "status_1700000000", *edit.ReplyMarkup.InlineKeyboard[1][0].CallbackData)

	require.Len(t, api.requests, 1)
	callback, ok := api.requests[0].(tgbotapi.CallbackConfig)
	require.True(t, ok)
	assert.Equal(t, "cb-1", callback.CallbackQueryID)
}

type brokenStore struct{}

func (brokenStore) Load(context.Context) (*model.Snapshot, error) {
	return nil, errors.New("disk unavailable")
}

func (brokenStore) Save(context.Context, *model.Snapshot) error {
	return errors.New("disk unavailable")
}

func (brokenStore) Close() error { return nil }

func homeCallback(from int64) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:      "cb-home",
			From:    &tgbotapi.User{ID: from},
			Message: &tgbotapi.Message{MessageID: 9, Chat: &tgbotapi.Chat{ID: from}},
			Data:    callbackHome,
		},
	}
}

func editedTexts(api *fakeAPI) []string {
	var out []string
	for _, c := range api.sent {
		if e, ok := c.(tgbotapi.EditMessageTextConfig); ok {
			out = append(out, e.Text)
		}
	}
	return out
}

func TestBot_HomeCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("not started", func(t *testing.T) {
		bot, api, _ := newTestBot(t)
		bot.HandleUpdate(ctx, homeCallback(7))

		assert.Equal(t, []string{notStartedText}, editedTexts(api))
	})

	t.Run("registered", func(t *testing.T) {
		bot, api, _ := newTestBot(t)
		bot.HandleUpdate(ctx, command(7, "/start"))
		bot.HandleUpdate(ctx, homeCallback(7))

		texts := editedTexts(api)
		require.Len(t, texts, 1)
		assert.Contains(t, texts[0], "*Home*")
	})

	t.Run("store failure", func(t *testing.T) {
		api := &fakeAPI{}
		client := NewClient(api)
		repo := repository.NewWithStore(brokenStore{})
		cfg := testConfig()
		bot := NewBot(api,
			service.NewReferralService(repo, client, service.NewDispatcher(client), cfg),
			service.NewJoinRequestService(repo, client, cfg),
			service.NewStatsService(repo, cfg),
			cfg, 0)

		bot.HandleUpdate(ctx, homeCallback(7))

		assert.Equal(t, []string{failureText}, editedTexts(api))
		require.Len(t, api.requests, 1, "the callback is still answered")
	})
}

func TestBot_RunStopsOnContextCancel(t *testing.T) {
	bot, api, _ := newTestBot(t)
	api.updates = make(chan tgbotapi.Update, 1)
	api.updates <- command(1, "/help")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- bot.Run(ctx) }()

	require.Eventually(t, func() bool { return len(api.updates) == 0 }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("bot did not stop")
	}
	assert.True(t, api.stopped)
}
