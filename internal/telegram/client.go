package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"referral_gate_bot/internal/model"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the subset of *tgbotapi.BotAPI the bot relies on.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type BotConfig struct {
	BotToken      string `mapstructure:"botToken"`
	BotUsername   string `mapstructure:"botUsername"`
	Debug         bool   `mapstructure:"debug"`
	UpdateTimeout int    `mapstructure:"updateTimeout"`
}

func NewBotAPI(cfg BotConfig) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize bot: %w", err)
	}

	bot.Debug = cfg.Debug

	return bot, nil
}

// Client implements the channel membership and notification capabilities
// on top of the Bot API.
type Client struct {
	api BotAPI
}

func NewClient(api BotAPI) *Client {
	return &Client{api: api}
}

func (c *Client) Approve(_ context.Context, channelID, telegramID int64) error {
	_, err := c.api.Request(tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: channelID},
		UserID:     telegramID,
	})
	if err != nil {
		return fmt.Errorf("approve chat join request: %w", err)
	}
	return nil
}

func (c *Client) Decline(_ context.Context, channelID, telegramID int64) error {
	_, err := c.api.Request(tgbotapi.DeclineChatJoinRequest{
		ChatConfig: tgbotapi.ChatConfig{ChatID: channelID},
		UserID:     telegramID,
	})
	if err != nil {
		return fmt.Errorf("decline chat join request: %w", err)
	}
	return nil
}

// GetMembershipStatus treats a Bad Request answer as "not a member", which
// is what Telegram returns for users it has never seen in the chat.
func (c *Client) GetMembershipStatus(_ context.Context, channelID, telegramID int64) (model.MembershipStatus, error) {
	member, err := c.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: channelID,
			UserID: telegramID,
		},
	})
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return model.MembershipNone, nil
		}
		return model.MembershipUnknown, fmt.Errorf("get chat member: %w", err)
	}

	switch member.Status {
	case "creator":
		return model.MembershipCreator, nil
	case "administrator":
		return model.MembershipAdmin, nil
	case "member":
		return model.MembershipMember, nil
	case "restricted":
		if member.IsMember {
			return model.MembershipMember, nil
		}
		return model.MembershipNone, nil
	case "left", "kicked":
		return model.MembershipNone, nil
	default:
		return model.MembershipUnknown, nil
	}
}

func (c *Client) Notify(_ context.Context, recipientID int64, kind model.EventKind, payload model.NotificationPayload) error {
	text, ok := notificationText(kind, payload)
	if !ok {
		return fmt.Errorf("no template for %s", kind)
	}

	msg := tgbotapi.NewMessage(recipientID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := c.api.Send(msg); err != nil {
		return fmt.Errorf("send %s to %d: %w", kind, recipientID, err)
	}
	return nil
}

func (c *Client) sendText(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	_, err := c.api.Send(msg)
	return err
}
