package model

import "time"

type Profile struct {
	FirstName string
	Username  string
}

type UserRecord struct {
	Points          int        `json:"points"`
	Referrals       []int64    `json:"referrals"`
	HasReceivedLink bool       `json:"has_received_link"`
	IsApproved      bool       `json:"is_approved"`
	FirstName       string     `json:"first_name,omitempty"`
	Username        string     `json:"username,omitempty"`
	RegisteredAt    time.Time  `json:"registered_at"`
	LastActivityAt  time.Time  `json:"last_activity"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty"`
}

func (u *UserRecord) HasReferral(telegramID int64) bool {
	for _, id := range u.Referrals {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (u *UserRecord) Clone() *UserRecord {
	c := *u
	c.Referrals = make([]int64, len(u.Referrals))
	copy(c.Referrals, u.Referrals)
	if u.ApprovedAt != nil {
		t := *u.ApprovedAt
		c.ApprovedAt = &t
	}
	return &c
}

// Snapshot is the whole persisted store. Version is bumped by every
// successful save and is used to detect concurrent writers.
type Snapshot struct {
	Version int64                 `json:"version"`
	Users   map[int64]*UserRecord `json:"users"`
}

func NewSnapshot() *Snapshot {
	return &Snapshot{Users: make(map[int64]*UserRecord)}
}

func (s *Snapshot) User(telegramID int64) (*UserRecord, bool) {
	u, ok := s.Users[telegramID]
	return u, ok
}

// ReferrerOf reports which user, if any, already has telegramID in their
// referrals.
func (s *Snapshot) ReferrerOf(telegramID int64) (int64, bool) {
	for id, u := range s.Users {
		if u.HasReferral(telegramID) {
			return id, true
		}
	}
	return 0, false
}

func (s *Snapshot) Clone() *Snapshot {
	c := &Snapshot{
		Version: s.Version,
		Users:   make(map[int64]*UserRecord, len(s.Users)),
	}
	for id, u := range s.Users {
		c.Users[id] = u.Clone()
	}
	return c
}

type ReferralResult struct {
	Referrer         *UserRecord
	ReferrerID       int64
	ReferralCount    int
	PointsAwarded    int
	Recorded         bool
	Rewarded         bool
	QuotaJustReached bool
}

type UserStatus struct {
	TelegramID   int64
	Record       *UserRecord
	Required     int
	Remaining    int
	Completed    bool
	ReferralLink string
	Membership   MembershipStatus
}

type CompletedUser struct {
	TelegramID     int64
	FirstName      string
	Username       string
	Referrals      int
	Points         int
	LastActivityAt time.Time
}

type Stats struct {
	TotalUsers     int
	CompletedUsers int
	PendingUsers   int
	Recent         []CompletedUser
}
