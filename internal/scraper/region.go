package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

// ErrRegionSetup is returned when the delivery postcode cannot be confirmed.
var ErrRegionSetup = errors.New("region setup failed")

const (
	cookieBannerTimeout  = 5 * time.Second
	locationCheckRetries = 5
)

// SetupRegion sets the storefront's delivery location to the configured
// postcode and verifies the header shows it. The choice persists in the
// browser profile for later sessions.
func (c *Client) SetupRegion(ctx context.Context) error {
	slog.Info("Setting delivery region", "postcode", c.config.Postcode)
	err := browser.WithSession(ctx, c.launcher, func(ctx context.Context, page browser.Page) error {
		if err := c.pacer.Throttle(ctx); err != nil {
			return err
		}
		if err := page.Goto(ctx, c.config.AmazonBaseURL); err != nil {
			return fmt.Errorf("%w: failed to load home page: %w", ErrRegionSetup, err)
		}

		sel := c.selectors.Region
		if err := bestEffort(ctx, "cookie banner", func() error {
			if err := page.WaitForSelector(ctx, sel.CookieAccept, cookieBannerTimeout); err != nil {
				return err
			}
			return page.Click(ctx, sel.CookieAccept)
		}); err != nil {
			return err
		}

		if err := page.Click(ctx, sel.LocationOpen); err != nil {
			return fmt.Errorf("%w: failed to open location editor: %w", ErrRegionSetup, err)
		}
		if err := page.WaitForSelector(ctx, sel.PostcodeInput, browser.DefaultTimeout); err != nil {
			return fmt.Errorf("%w: postcode input never appeared: %w", ErrRegionSetup, err)
		}
		if err := c.pacer.Pause(ctx, pacing.BeforeFormFill); err != nil {
			return err
		}
		if err := page.Fill(ctx, sel.PostcodeInput, c.config.Postcode); err != nil {
			return fmt.Errorf("%w: failed to enter postcode: %w", ErrRegionSetup, err)
		}
		if err := page.Click(ctx, sel.PostcodeApply); err != nil {
			return fmt.Errorf("%w: failed to apply postcode: %w", ErrRegionSetup, err)
		}

		// Some layouts show a confirmation dialog, others reload straight away.
		if sel.PostcodeConfirm != "" {
			if err := bestEffort(ctx, "postcode confirmation", func() error {
				if err := page.WaitForSelector(ctx, sel.PostcodeConfirm, cookieBannerTimeout); err != nil {
					return err
				}
				return page.Click(ctx, sel.PostcodeConfirm)
			}); err != nil {
				return err
			}
		}

		return c.verifyRegion(ctx, page)
	})
	if err != nil {
		return err
	}
	slog.Info("Delivery region confirmed", "postcode", c.config.Postcode)
	return nil
}

func (c *Client) verifyRegion(ctx context.Context, page browser.Page) error {
	want := outwardCode(c.config.Postcode)
	var last string
	for i := 0; i < locationCheckRetries; i++ {
		if err := page.WaitForNetworkIdle(ctx); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		text, err := page.Text(ctx, c.selectors.Region.LocationIndicator)
		if err == nil {
			last = text
			if strings.Contains(strings.ToUpper(text), want) {
				return nil
			}
		}
		if err := c.pacer.Pause(ctx, pacing.BeforeFormFill); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w: location indicator shows %q, want %s", ErrRegionSetup, last, want)
}

// outwardCode is the part of a UK postcode before the space, e.g. "GU9".
func outwardCode(postcode string) string {
	fields := strings.Fields(strings.ToUpper(postcode))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
