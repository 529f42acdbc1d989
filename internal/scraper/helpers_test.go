package scraper

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/config"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

func testConfig() *config.Config {
	return &config.Config{
		AmazonBaseURL:  "https://www.amazon.co.uk",
		Postcode:       "GU9 7QU",
		MaxSearchPages: 5,
		LinkBatchSize:  2,
		MaxShowMore:    3,
	}
}

func newTestClient(t testing.TB, launcher browser.Launcher) *Client {
	t.Helper()
	noSleep := func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	c, err := New(testConfig(), launcher, pacing.NewWithSleep(noSleep), DefaultSelectors())
	if err != nil {
		t.Fatalf("New() returned unexpected error: %v", err)
	}
	return c
}

func mustJSON(t testing.TB, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("json.Marshal() returned unexpected error: %v", err)
	}
	return data
}
