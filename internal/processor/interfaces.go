package processor

import (
	"context"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
)

// SearchTermSource supplies the terms to search for on every attempt.
type SearchTermSource interface {
	ListSearchTerms(ctx context.Context) ([]string, error)
}

// ResultFilter turns harvested candidates into the final result set and
// reports how many candidates it saw.
type ResultFilter interface {
	Apply(ctx context.Context, candidates []models.ProductDetails) ([]models.ProductDetails, int, error)
}

// ScrapeRunner runs a full scrape and returns the filtered products.
type ScrapeRunner interface {
	RunScrape(ctx context.Context) ([]models.ProductDetails, int, error)
}

// PromotionNotifier abstracts the notification layer.
type PromotionNotifier interface {
	SendPromotion(ctx context.Context, channelID string, promo models.PromotionRecord) error
}

// ChannelSource supplies the notification channel.
type ChannelSource interface {
	NotificationChannel() string
}

// TitleCleaner shortens product titles for display.
type TitleCleaner interface {
	CleanTitles(ctx context.Context, titles []string) ([]string, error)
}

// RecentTrimmer drops stale recent-product entries.
type RecentTrimmer interface {
	TrimRecentProducts(ctx context.Context, olderThan time.Time) (int, error)
}
