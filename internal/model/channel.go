package model

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionDecline Decision = "decline"
)

type MembershipStatus string

const (
	MembershipMember  MembershipStatus = "member"
	MembershipAdmin   MembershipStatus = "admin"
	MembershipCreator MembershipStatus = "creator"
	MembershipNone    MembershipStatus = "none"
	MembershipUnknown MembershipStatus = "unknown"
)

func (m MembershipStatus) InChannel() bool {
	return m == MembershipMember || m == MembershipAdmin || m == MembershipCreator
}

type StartCommand struct {
	TelegramID   int64
	Profile      Profile
	ReferrerCode string
}

type JoinRequest struct {
	TelegramID int64
	ChatID     int64
}

type EventKind string

const (
	EventPointsAwarded   EventKind = "POINTS_AWARDED"
	EventQuotaReached    EventKind = "QUOTA_REACHED"
	EventAdminCompletion EventKind = "ADMIN_COMPLETION"
)

// NotificationPayload carries what a sink needs to render a message. The
// subject is the user the event is about, which differs from the recipient
// for admin events.
type NotificationPayload struct {
	SubjectID         int64  `json:"subject_id"`
	FirstName         string `json:"first_name,omitempty"`
	Username          string `json:"username,omitempty"`
	Points            int    `json:"points"`
	PointsAwarded     int    `json:"points_awarded"`
	ReferralCount     int    `json:"referral_count"`
	RequiredReferrals int    `json:"required_referrals"`
	ChannelLink       string `json:"channel_link,omitempty"`
}

type Notification struct {
	ID          uuid.UUID           `json:"id"`
	RecipientID int64               `json:"recipient_id"`
	Kind        EventKind           `json:"kind"`
	Payload     NotificationPayload `json:"payload"`
	CreatedAt   time.Time           `json:"created_at"`
}
