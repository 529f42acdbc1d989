package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

const showMoreTimeout = 3 * time.Second

// HarvestPromotions opens every promotion landing page, keeps the ones whose
// title matches an allowed shape, and searches each for the given terms to
// collect the participating products. Each promotion gets its own session.
func (c *Client) HarvestPromotions(ctx context.Context, codes, terms []string) ([]models.PromotionRecord, error) {
	var records []models.PromotionRecord
	for i, code := range codes {
		if i > 0 {
			if err := c.pacer.Pause(ctx, pacing.BetweenBatches); err != nil {
				return nil, err
			}
		}

		var record *models.PromotionRecord
		err := browser.WithSession(ctx, c.launcher, func(ctx context.Context, page browser.Page) error {
			return bestEffort(ctx, "promotion", func() error {
				var err error
				record, err = c.harvestPromotion(ctx, page, code, terms)
				return err
			}, "promo_code", code)
		})
		if err != nil {
			return nil, err
		}
		if record != nil {
			records = append(records, *record)
		}
	}

	slog.Info("Promotion harvest complete", "codes", len(codes), "promotions", len(records))
	return records, nil
}

// harvestPromotion returns nil when the promotion's title is not allowed.
func (c *Client) harvestPromotion(ctx context.Context, page browser.Page, code string, terms []string) (*models.PromotionRecord, error) {
	promoURL := c.promotionURL(code)
	if err := c.pacer.Throttle(ctx); err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, promoURL); err != nil {
		return nil, fmt.Errorf("failed to load promotion page: %w", err)
	}

	title := models.UnknownPromotionTitle
	if pageTitle, err := page.Title(ctx); err == nil {
		if cleaned := cleanPromotionTitle(pageTitle, c.selectors.Promotion); cleaned != "" {
			title = cleaned
		}
	} else {
		slog.Warn("Failed to read promotion title", "promo_code", code, "error", err)
	}
	if !c.titles.Match(title) {
		slog.Warn("Discarding promotion with unrecognised title", "promo_code", code, "title", title)
		return nil, nil
	}

	record := &models.PromotionRecord{Code: code, Title: title, PromotionURL: promoURL}
	seen := make(map[string]struct{})
	for i, term := range terms {
		if i > 0 {
			if err := c.pacer.Pause(ctx, pacing.BetweenSearches); err != nil {
				return nil, err
			}
		}
		err := bestEffort(ctx, "promotion search", func() error {
			return c.searchPromotion(ctx, page, term, func(card productCard) {
				if _, ok := seen[card.ASIN]; ok {
					return
				}
				seen[card.ASIN] = struct{}{}
				record.Products = append(record.Products, models.ProductDetails{
					ASIN:            card.ASIN,
					ProductTitle:    card.Title,
					ProductURL:      card.URL,
					ProductImageURL: card.ImageURL,
					ProductPrice:    card.Price,
					ProductSales:    card.Sales,
					PromotionCode:   code,
					PromotionTitle:  title,
					PromotionURL:    promoURL,
				})
			})
		}, "promo_code", code, "term", term)
		if err != nil {
			return nil, err
		}
	}

	slog.Info("Promotion harvested", "promo_code", code, "title", title, "products", len(record.Products))
	return record, nil
}

// searchPromotion runs one in-page search and expands the results with the
// "show more" control, reporting the cards visible after every settle.
func (c *Client) searchPromotion(ctx context.Context, page browser.Page, term string, emit func(productCard)) error {
	sel := c.selectors.Promotion
	if err := c.pacer.Pause(ctx, pacing.BeforeFormFill); err != nil {
		return err
	}
	if err := page.Fill(ctx, sel.SearchInput, term); err != nil {
		return fmt.Errorf("failed to enter search term: %w", err)
	}
	if err := page.Press(ctx, sel.SearchInput, sel.SearchSubmitKey); err != nil {
		return fmt.Errorf("failed to submit search: %w", err)
	}
	if err := page.WaitForNetworkIdle(ctx); err != nil {
		return fmt.Errorf("search results never settled: %w", err)
	}
	if err := c.collectCards(ctx, page, emit); err != nil {
		return err
	}

	for n := 0; n < c.config.MaxShowMore; n++ {
		if err := page.WaitForSelector(ctx, sel.ShowMore, showMoreTimeout); err != nil {
			break
		}
		if err := c.pacer.Pause(ctx, pacing.BetweenShowMore); err != nil {
			return err
		}
		if err := page.Click(ctx, sel.ShowMore); err != nil {
			slog.Debug("Show more control stopped responding", "term", term, "clicks", n, "error", err)
			break
		}
		if err := page.WaitForNetworkIdle(ctx); err != nil {
			return fmt.Errorf("expanded results never settled: %w", err)
		}
		if err := c.collectCards(ctx, page, emit); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) collectCards(ctx context.Context, page browser.Page, emit func(productCard)) error {
	html, err := page.Content(ctx)
	if err != nil {
		return err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return err
	}
	for _, card := range extractProductCards(doc, c.selectors.Promotion, c.config.AmazonBaseURL) {
		emit(card)
	}
	return nil
}
