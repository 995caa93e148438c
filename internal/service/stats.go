package service

import (
	"context"
	"fmt"
	"sort"

	"referral_gate_bot/internal/model"
)

const recentCompletedLimit = 10

type StatsService struct {
	repo SnapshotRepository
	cfg  Config
}

func NewStatsService(repo SnapshotRepository, cfg Config) *StatsService {
	return &StatsService{
		repo: repo,
		cfg:  cfg,
	}
}

func (s *StatsService) Stats(ctx context.Context) (*model.Stats, error) {
	snapshot, err := s.repo.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stats: %w", err)
	}

	stats := &model.Stats{TotalUsers: len(snapshot.Users)}
	completed := make([]model.CompletedUser, 0)
	for id, u := range snapshot.Users {
		if !QuotaMet(u, s.cfg) {
			continue
		}
		completed = append(completed, model.CompletedUser{
			TelegramID:     id,
			FirstName:      u.FirstName,
			Username:       u.Username,
			Referrals:      len(u.Referrals),
			Points:         u.Points,
			LastActivityAt: u.LastActivityAt,
		})
	}

	stats.CompletedUsers = len(completed)
	stats.PendingUsers = stats.TotalUsers - stats.CompletedUsers

	sort.Slice(completed, func(i, j int) bool {
		if completed[i].LastActivityAt.Equal(completed[j].LastActivityAt) {
			return completed[i].TelegramID < completed[j].TelegramID
		}
		return completed[i].LastActivityAt.Before(completed[j].LastActivityAt)
	})
	if len(completed) > recentCompletedLimit {
		completed = completed[len(completed)-recentCompletedLimit:]
	}
	stats.Recent = completed

	return stats, nil
}
