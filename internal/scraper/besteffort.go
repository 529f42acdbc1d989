package scraper

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
)

// bestEffort runs one unit of page work. Transient failures are logged with
// the unit's attributes and swallowed so the caller's loop moves on. Only
// cancellation and stage-fatal errors come back.
func bestEffort(ctx context.Context, unit string, fn func() error, attrs ...any) error {
	err := fn()
	if err == nil {
		return nil
	}
	if isFatal(ctx, err) {
		return err
	}
	slog.Warn("Skipping failed "+unit, append(attrs, "error", err)...)
	return nil
}

func isFatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, browser.ErrLaunch) ||
		errors.Is(err, ErrRegionSetup)
}
