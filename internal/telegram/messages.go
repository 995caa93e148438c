package telegram

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"referral_gate_bot/internal/model"
	"referral_gate_bot/internal/service"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	callbackStatus = "status"
	callbackHome   = "home"
	callbackHelp   = "help"

	shareText = "Join this bot and get rewards!"
)

func escape(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, s)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func notificationText(kind model.EventKind, p model.NotificationPayload) (string, bool) {
	switch kind {
	case model.EventPointsAwarded:
		progress := "Keep sharing your link!"
		if p.ReferralCount >= p.RequiredReferrals {
			progress = "*Target completed! You can now join the channel.*"
		}
		return fmt.Sprintf("*+%d points received!*\n\nPoints: %d\nReferrals: %d/%d\n\n%s",
			p.PointsAwarded, p.Points, p.ReferralCount, p.RequiredReferrals, progress), true

	case model.EventQuotaReached:
		return fmt.Sprintf("*Congratulations! You completed %d referrals.*\n\nJoin the channel:\n%s\n\nSend a join request and it will be approved automatically.",
			p.RequiredReferrals, escape(p.ChannelLink)), true

	case model.EventAdminCompletion:
		return fmt.Sprintf("*New referral target completed*\n\nName: %s\nUsername: @%s\nUser ID: `%d`\nReferrals: %d\nPoints: %d\nCompleted at: %s\n\nThe user is now eligible for channel access.",
			escape(orDefault(p.FirstName, "N/A")),
			escape(orDefault(p.Username, "N/A")),
			p.SubjectID, p.ReferralCount, p.Points,
			time.Now().UTC().Format("2006-01-02 15:04:05")), true
	}
	return "", false
}

func shareURL(link string) string {
	return "https://t.me/share/url?url=" + url.QueryEscape(link) + "&text=" + url.QueryEscape(shareText)
}

func welcomeText(firstName string, user *model.UserRecord, link string, cfg service.Config) string {
	return fmt.Sprintf("*Welcome to the referral bot, %s!*\n\nYour points: %d\nYour referrals: %d/%d\n\nYour referral link:\n`%s`\n\n*Rules:*\n1. Share your link with %d people\n2. Get +%d points for each referral\n3. Complete %d referrals for channel access\n4. Send a join request to be approved automatically",
		escape(orDefault(firstName, "friend")),
		user.Points, len(user.Referrals), cfg.RequiredReferrals,
		link,
		cfg.RequiredReferrals, cfg.PointsPerReferral, cfg.RequiredReferrals)
}

func welcomeKeyboard(link string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Share referral link", shareURL(link))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Check my status", callbackStatus)),
	)
	return &markup
}

func statusText(status *model.UserStatus) string {
	channel := "not joined"
	if status.Membership == model.MembershipUnknown {
		channel = "unknown"
	} else if status.Membership.InChannel() {
		channel = "joined"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*Your status*\n\nUser: %s\nPoints: %d\nReferrals: %d/%d\nChannel: %s\nYour link: `%s`\n\n",
		escape(orDefault(status.Record.FirstName, "User")),
		status.Record.Points, len(status.Record.Referrals), status.Required,
		channel, status.ReferralLink)
	if status.Completed {
		b.WriteString("*Congratulations! You can now join the channel.*")
	} else {
		fmt.Fprintf(&b, "*Target:* %d more referrals needed.", status.Remaining)
	}
	return b.String()
}

func statusKeyboard(status *model.UserStatus, channelLink string, now time.Time) *tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, 3)
	if status.Completed && channelLink != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Join channel", channelLink)))
	} else {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Share referral link", shareURL(status.ReferralLink))))
	}
	// the timestamp makes every refresh a distinct callback
	refresh := callbackStatus + "_" + strconv.FormatInt(now.Unix(), 10)
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Refresh status", refresh)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Home", callbackHome)),
	)
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func homeText(status *model.UserStatus) string {
	return fmt.Sprintf("*Home*\n\nYour points: %d\nYour referrals: %d/%d\n\nYour referral link:\n`%s`\n\n*What to do?*\n1. Share your referral link\n2. Complete %d referrals\n3. Send a channel join request\n4. Get approved automatically",
		status.Record.Points, len(status.Record.Referrals), status.Required,
		status.ReferralLink, status.Required)
}

func homeKeyboard(status *model.UserStatus, channelLink string) *tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Share referral link", shareURL(status.ReferralLink))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("My status", callbackStatus)),
	}
	if status.Completed && channelLink != "" {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Join channel", channelLink)))
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Help", callbackHelp)))
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

func helpText(cfg service.Config) string {
	return fmt.Sprintf("*How it works*\n1. /start the bot\n2. Get your personal referral link\n3. Share it with %d friends\n4. Each referral gives %d points\n5. Complete %d referrals\n6. Send a join request to the channel and get approved automatically\n\n*Commands*\n/start - start the bot and get your link\n/status - check your progress\n/help - this message\n\nOnly registered users who completed %d referrals are approved.",
		cfg.RequiredReferrals, cfg.PointsPerReferral, cfg.RequiredReferrals, cfg.RequiredReferrals)
}

func helpKeyboard(botUsername string) *tgbotapi.InlineKeyboardMarkup {
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("Home", callbackHome)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("My status", callbackStatus)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonURL("Start bot", fmt.Sprintf("https://t.me/%s?start=start", botUsername))),
	)
	return &markup
}

func statsText(stats *model.Stats) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Admin statistics*\n\nTotal users: %d\nCompleted referrals: %d\nPending users: %d\n\n*Recently completed:*\n",
		stats.TotalUsers, stats.CompletedUsers, stats.PendingUsers)
	if len(stats.Recent) == 0 {
		b.WriteString("No users have completed referrals yet.")
		return b.String()
	}
	for _, u := range stats.Recent {
		fmt.Fprintf(&b, "- %s (@%s) - ID: `%d` - %d referrals\n",
			escape(orDefault(u.FirstName, "Unknown")),
			escape(orDefault(u.Username, "N/A")),
			u.TelegramID, u.Referrals)
	}
	return b.String()
}

const (
	notStartedText = "You haven't started the bot yet. Use /start."
	adminOnlyText  = "This command is for administrators only."
	failureText    = "Something went wrong, please try again later."
)
