package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/models"
)

type Processor interface {
	ProcessPromotions(ctx context.Context) error
}

// PromoProcessor runs a scrape and announces every resulting promotion.
type PromoProcessor struct {
	runner   ScrapeRunner
	notifier PromotionNotifier
	channel  ChannelSource
	cleaner  TitleCleaner
	trimmer  RecentTrimmer
	window   time.Duration
	now      func() time.Time
}

// New wires a PromoProcessor. cleaner and trimmer may be nil.
func New(runner ScrapeRunner, n PromotionNotifier, channel ChannelSource, cleaner TitleCleaner, trimmer RecentTrimmer, window time.Duration) *PromoProcessor {
	return &PromoProcessor{
		runner:   runner,
		notifier: n,
		channel:  channel,
		cleaner:  cleaner,
		trimmer:  trimmer,
		window:   window,
		now:      time.Now,
	}
}

func (p *PromoProcessor) ProcessPromotions(ctx context.Context) error {
	products, total, err := p.runner.RunScrape(ctx)
	if err != nil {
		return err
	}

	promotions := groupByPromotion(products)
	slog.Info("Processing promotions", "promotions", len(promotions), "products", len(products), "candidates", total)

	channelID := p.channel.NotificationChannel()
	sent := 0
	for _, promo := range promotions {
		p.cleanTitles(ctx, &promo)
		if err := p.notifier.SendPromotion(ctx, channelID, promo); err != nil {
			slog.Error("Failed to send promotion notification", "promo_code", promo.Code, "error", err)
			continue
		}
		sent++
	}

	if p.trimmer != nil {
		if _, err := p.trimmer.TrimRecentProducts(ctx, p.now().Add(-p.window)); err != nil {
			slog.Warn("Failed to trim recent products", "error", err)
		}
	}

	slog.Info("Promotion processing complete", "sent", sent, "failed", len(promotions)-sent)
	return nil
}

func (p *PromoProcessor) cleanTitles(ctx context.Context, promo *models.PromotionRecord) {
	if p.cleaner == nil || len(promo.Products) == 0 {
		return
	}
	titles := make([]string, len(promo.Products))
	for i, prod := range promo.Products {
		titles[i] = prod.ProductTitle
	}
	cleaned, err := p.cleaner.CleanTitles(ctx, titles)
	if err != nil {
		slog.Warn("AI title cleanup failed, using original titles", "promo_code", promo.Code, "error", err)
		return
	}
	if len(cleaned) != len(titles) {
		return
	}
	for i := range promo.Products {
		promo.Products[i].ProductTitle = cleaned[i]
	}
}

// groupByPromotion collects products into one record per promotion code,
// in order of first appearance.
func groupByPromotion(products []models.ProductDetails) []models.PromotionRecord {
	index := make(map[string]int)
	var out []models.PromotionRecord
	for _, prod := range products {
		i, ok := index[prod.PromotionCode]
		if !ok {
			i = len(out)
			index[prod.PromotionCode] = i
			out = append(out, models.PromotionRecord{
				Code:         prod.PromotionCode,
				Title:        prod.PromotionTitle,
				PromotionURL: prod.PromotionURL,
			})
		}
		out[i].Products = append(out[i].Products, prod)
	}
	return out
}
