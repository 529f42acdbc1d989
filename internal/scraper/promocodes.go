package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

// ExtractPromoCodes visits each product link and collects the promotion codes
// advertised on it. Links are processed in batches, each in a fresh browser
// session, so no single identity loads too many pages. Codes are unique and
// sorted.
func (c *Client) ExtractPromoCodes(ctx context.Context, links []string) ([]string, error) {
	seen := make(map[string]struct{})
	var codes []string

	batchSize := max(c.config.LinkBatchSize, 1)
	batchNum := 0
	for batch := range slices.Chunk(links, batchSize) {
		if batchNum > 0 {
			if err := c.pacer.Pause(ctx, pacing.BetweenBatches); err != nil {
				return nil, err
			}
		}
		batchNum++

		err := browser.WithSession(ctx, c.launcher, func(ctx context.Context, page browser.Page) error {
			for i, link := range batch {
				if i > 0 {
					if err := c.pacer.Pause(ctx, pacing.BetweenLinks); err != nil {
						return err
					}
				}
				err := bestEffort(ctx, "product page", func() error {
					found, err := c.scrapeProductPage(ctx, page, link)
					if err != nil {
						return err
					}
					for _, code := range found {
						if _, ok := seen[code]; ok {
							continue
						}
						seen[code] = struct{}{}
						codes = append(codes, code)
					}
					return nil
				}, "link", link, "batch", batchNum)
				if err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		slog.Debug("Link batch processed", "batch", batchNum, "size", len(batch), "codes_so_far", len(codes))
	}

	slices.Sort(codes)
	slog.Info("Promo code extraction complete", "links", len(links), "codes", len(codes))
	return codes, nil
}

func (c *Client) scrapeProductPage(ctx context.Context, page browser.Page, link string) ([]string, error) {
	if err := c.pacer.Throttle(ctx); err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to load product page: %w", err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	return extractPromoCodes(doc, c.selectors.Product, c.promoHref), nil
}
