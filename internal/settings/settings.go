// Package settings holds the notification configuration shared by the filter,
// the notifier and the HTTP settings endpoint.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
)

// Persister stores settings durably.
type Persister interface {
	LoadSettings(ctx context.Context) (models.NotificationSettings, bool, error)
	SaveSettings(ctx context.Context, s models.NotificationSettings) error
}

// Manager is the in-memory view of the notification settings. Setters write
// through to the Persister before updating memory.
type Manager struct {
	mu        sync.RWMutex
	current   models.NotificationSettings
	persister Persister
}

func NewManager(persister Persister, defaults models.NotificationSettings) *Manager {
	return &Manager{persister: persister, current: defaults}
}

// Load replaces the in-memory settings with the persisted ones, if any.
func (m *Manager) Load(ctx context.Context) error {
	s, found, err := m.persister.LoadSettings(ctx)
	if err != nil {
		return err
	}
	if !found {
		slog.Info("No saved notification settings, using defaults")
		return nil
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	slog.Info("Loaded notification settings", "channel_id", s.ChannelID, "monthly_sales_cutoff", s.MonthlySalesCutoff)
	return nil
}

func (m *Manager) Snapshot() models.NotificationSettings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Manager) NotificationChannel() string {
	return m.Snapshot().ChannelID
}

func (m *Manager) MonthlySalesCutoff() int {
	return m.Snapshot().MonthlySalesCutoff
}

func (m *Manager) SetNotificationChannel(ctx context.Context, channelID string) error {
	return m.update(ctx, func(s *models.NotificationSettings) error {
		s.ChannelID = channelID
		return nil
	})
}

func (m *Manager) SetMonthlySalesCutoff(ctx context.Context, cutoff int) error {
	return m.update(ctx, func(s *models.NotificationSettings) error {
		if cutoff < 0 {
			return fmt.Errorf("monthly sales cutoff must not be negative, got %d", cutoff)
		}
		s.MonthlySalesCutoff = cutoff
		return nil
	})
}

func (m *Manager) update(ctx context.Context, mutate func(*models.NotificationSettings) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.current
	if err := mutate(&next); err != nil {
		return err
	}
	if err := m.persister.SaveSettings(ctx, next); err != nil {
		return err
	}
	m.current = next
	return nil
}
