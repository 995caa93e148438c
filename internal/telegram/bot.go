package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/service"
	"referral_gate_bot/pkg/logger"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const defaultUpdateTimeout = 60

// Bot routes Telegram updates to the services. Updates are handled one at a
// time on the Run goroutine, so store mutations are never interleaved.
type Bot struct {
	api       BotAPI
	client    *Client
	referrals service.ReferralServiceI
	joins     service.JoinRequestServiceI
	stats     service.StatsServiceI
	cfg       service.Config
	timeout   int
	now       func() time.Time
}

func NewBot(api BotAPI, referrals service.ReferralServiceI, joins service.JoinRequestServiceI, stats service.StatsServiceI, cfg service.Config, updateTimeout int) *Bot {
	if updateTimeout <= 0 {
		updateTimeout = defaultUpdateTimeout
	}
	return &Bot{
		api:       api,
		client:    NewClient(api),
		referrals: referrals,
		joins:     joins,
		stats:     stats,
		cfg:       cfg,
		timeout:   updateTimeout,
		now:       time.Now,
	}
}

func (b *Bot) Run(ctx context.Context) error {
	log := logger.Logger()

	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = b.timeout
	updateConfig.AllowedUpdates = []string{"message", "callback_query", "chat_join_request"}

	updates := b.api.GetUpdatesChan(updateConfig)
	log.Info("bot started",
		zap.Int64("channel_id", b.cfg.ChannelID),
		zap.Int("required_referrals", b.cfg.RequiredReferrals),
		zap.Int("points_per_referral", b.cfg.PointsPerReferral))

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.HandleUpdate(ctx, update)

		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			log.Info("bot stopped")
			return nil
		}
	}
}

func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.ChatJoinRequest != nil:
		b.handleJoinRequest(ctx, update.ChatJoinRequest)

	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)

	case update.Message != nil && update.Message.From != nil && update.Message.IsCommand():
		b.handleCommand(ctx, update.Message)
	}
}

func (b *Bot) handleJoinRequest(ctx context.Context, req *tgbotapi.ChatJoinRequest) {
	log := logger.Logger()

	log.Info("join request received",
		zap.Int64("telegram_id", req.From.ID),
		zap.Int64("chat_id", req.Chat.ID))

	decision, err := b.joins.HandleJoinRequest(ctx, model.JoinRequest{
		TelegramID: req.From.ID,
		ChatID:     req.Chat.ID,
	})
	if err != nil {
		log.Error("failed to adjudicate join request",
			zap.Int64("telegram_id", req.From.ID),
			zap.String("decision", string(decision)),
			zap.Error(err))
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "status":
		b.handleStatus(ctx, msg.From.ID, msg.Chat.ID, 0, "")
	case "help":
		b.reply(msg.Chat.ID, helpText(b.cfg), helpKeyboard(b.cfg.BotUsername))
	case "admin":
		b.handleAdmin(ctx, msg)
	}
}

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	log := logger.Logger()

	user, err := b.referrals.HandleStart(ctx, model.StartCommand{
		TelegramID: msg.From.ID,
		Profile: model.Profile{
			FirstName: msg.From.FirstName,
			Username:  msg.From.UserName,
		},
		ReferrerCode: msg.CommandArguments(),
	})
	if err != nil {
		log.Error("failed to handle start", zap.Int64("telegram_id", msg.From.ID), zap.Error(err))
		b.reply(msg.Chat.ID, failureText, nil)
		return
	}

	link := b.referrals.ReferralLink(msg.From.ID)
	b.reply(msg.Chat.ID, welcomeText(msg.From.FirstName, user, link, b.cfg), welcomeKeyboard(link))
}

func (b *Bot) handleAdmin(ctx context.Context, msg *tgbotapi.Message) {
	if b.cfg.AdminUserID == 0 || msg.From.ID != b.cfg.AdminUserID {
		b.reply(msg.Chat.ID, adminOnlyText, nil)
		return
	}

	stats, err := b.stats.Stats(ctx)
	if err != nil {
		logger.Logger().Error("failed to load stats", zap.Error(err))
		b.reply(msg.Chat.ID, failureText, nil)
		return
	}

	b.reply(msg.Chat.ID, statsText(stats), nil)
}

// handleStatus replies with the status screen, or edits messageID in place
// when the request came from an inline button.
func (b *Bot) handleStatus(ctx context.Context, telegramID, chatID int64, messageID int, callbackID string) {
	status, err := b.referrals.Status(ctx, telegramID)
	if err != nil {
		if !errors.Is(err, service.ErrUserNotFound) {
			logger.Logger().Error("failed to load status", zap.Int64("telegram_id", telegramID), zap.Error(err))
			b.respond(chatID, messageID, callbackID, failureText, nil)
			return
		}
		b.respond(chatID, messageID, callbackID, notStartedText, nil)
		return
	}

	b.respond(chatID, messageID, callbackID, statusText(status), statusKeyboard(status, b.cfg.ChannelLink, b.now()))
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.From == nil || query.Message == nil || query.Message.Chat == nil {
		return
	}

	chatID := query.Message.Chat.ID
	messageID := query.Message.MessageID

	switch {
	case strings.HasPrefix(query.Data, callbackStatus):
		b.handleStatus(ctx, query.From.ID, chatID, messageID, query.ID)

	case query.Data == callbackHome:
		status, err := b.referrals.Status(ctx, query.From.ID)
		if err != nil {
			if !errors.Is(err, service.ErrUserNotFound) {
				logger.Logger().Error("failed to load status", zap.Int64("telegram_id", query.From.ID), zap.Error(err))
				b.respond(chatID, messageID, query.ID, failureText, nil)
				return
			}
			b.respond(chatID, messageID, query.ID, notStartedText, nil)
			return
		}
		b.respond(chatID, messageID, query.ID, homeText(status), homeKeyboard(status, b.cfg.ChannelLink))

	case query.Data == callbackHelp:
		b.respond(chatID, messageID, query.ID, helpText(b.cfg), helpKeyboard(b.cfg.BotUsername))
	}
}

func (b *Bot) reply(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if err := b.client.sendText(chatID, text, markup); err != nil {
		logger.Logger().Error("failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (b *Bot) respond(chatID int64, messageID int, callbackID, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		b.reply(chatID, text, markup)
		return
	}

	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	edit.ReplyMarkup = markup

	notice := ""
	if _, err := b.api.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			notice = "Already up to date!"
		} else {
			logger.Logger().Error("failed to edit message", zap.Int64("chat_id", chatID), zap.Error(err))
		}
	}
	b.answer(callbackID, notice)
}

func (b *Bot) answer(callbackID, text string) {
	if callbackID == "" {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		logger.Logger().Warn("failed to answer callback", zap.Error(err))
	}
}
