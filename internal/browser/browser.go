// Package browser owns headless browser sessions: launching a persistent
// profile with a fresh fingerprint, exposing a small page capability, and
// guaranteeing the session is closed on every exit path.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/fingerprint"
)

// ErrLaunch is returned when a browser session cannot be started.
var ErrLaunch = errors.New("browser session launch failed")

// DefaultTimeout bounds a single navigation or wait.
const DefaultTimeout = 30 * time.Second

// Page is the capability the scraper needs from a browser tab. Structured
// extraction runs over Content snapshots.
type Page interface {
	Goto(ctx context.Context, url string) error
	WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	Press(ctx context.Context, selector, key string) error
	WaitForNetworkIdle(ctx context.Context) error
	Title(ctx context.Context) (string, error)
	Text(ctx context.Context, selector string) (string, error)
	Content(ctx context.Context) (string, error)
}

// Session is one launched browser context with a single page.
type Session interface {
	Page() Page
	Close() error
}

// Launcher hands out sessions.
type Launcher interface {
	Acquire(ctx context.Context) (Session, error)
}

// Driver starts browser contexts for a concrete automation backend.
type Driver interface {
	Launch(ctx context.Context, profile fingerprint.Profile) (Session, error)
	Close() error
}

// Options configure how sessions are launched.
type Options struct {
	ProfileDir string
	Headless   bool
}

// Factory is the Launcher used in production. All sessions share one
// persistent profile directory, so at most one is open at a time.
type Factory struct {
	driver      Driver
	provisioner *fingerprint.Provisioner
	slot        chan struct{}
}

func NewFactory(driver Driver, provisioner *fingerprint.Provisioner) *Factory {
	return &Factory{
		driver:      driver,
		provisioner: provisioner,
		slot:        make(chan struct{}, 1),
	}
}

// Acquire waits for the profile to be free, then launches a session with a
// freshly provisioned fingerprint.
func (f *Factory) Acquire(ctx context.Context) (Session, error) {
	select {
	case f.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	profile := f.provisioner.New()
	sess, err := f.driver.Launch(ctx, profile)
	if err != nil {
		<-f.slot
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	slog.Debug("Browser session acquired", "user_agent", profile.UserAgent, "platform", profile.Platform)
	return &slottedSession{Session: sess, release: func() { <-f.slot }}, nil
}

// Close shuts the driver down.
func (f *Factory) Close() error {
	return f.driver.Close()
}

type slottedSession struct {
	Session
	release func()
	closed  bool
}

func (s *slottedSession) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	defer s.release()
	return s.Session.Close()
}

// WithSession acquires a session, runs fn with its page and closes the
// session afterwards, including when fn fails or panics.
func WithSession(ctx context.Context, l Launcher, fn func(ctx context.Context, page Page) error) (err error) {
	sess, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sess.Close(); closeErr != nil {
			slog.Warn("Failed to close browser session", "error", closeErr)
		}
	}()
	return fn(ctx, sess.Page())
}
