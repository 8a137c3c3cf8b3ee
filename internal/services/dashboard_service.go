package services

import (
	"context"

	"pwanotify/internal/authz"
	"pwanotify/internal/models"
	"pwanotify/internal/repositories"
)

type DashboardService struct {
	users         repositories.UserRepository
	subscriptions repositories.SubscriptionRepository
	notifications repositories.NotificationRepository
}

func NewDashboardService(users repositories.UserRepository, subs repositories.SubscriptionRepository, notes repositories.NotificationRepository) *DashboardService {
	return &DashboardService{users: users, subscriptions: subs, notifications: notes}
}

func (s *DashboardService) Stats(ctx context.Context) (*models.DashboardStats, error) {
	var (
		st  models.DashboardStats
		err error
	)
	if st.TotalClients, err = s.users.CountByRole(ctx, authz.RoleClient); err != nil {
		return nil, err
	}
	if st.VerifiedClients, err = s.users.CountVerifiedByRole(ctx, authz.RoleClient); err != nil {
		return nil, err
	}
	if st.Admins, err = s.users.CountByRole(ctx, authz.RoleAdmin); err != nil {
		return nil, err
	}
	if st.Subscriptions, err = s.subscriptions.Count(ctx); err != nil {
		return nil, err
	}
	if st.Notifications, err = s.notifications.Count(ctx); err != nil {
		return nil, err
	}
	return &st, nil
}
