package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

const (
	nextPageTimeout = 5 * time.Second

	// maxPageFailures consecutive failed pages end a term early.
	maxPageFailures = 3
)

// DiscoverLinks searches every term and collects the product links of results
// flagged with a promotion, up to the configured page limit per term. A page
// that fails to load is skipped; pagination stops only when a loaded page has
// no next-page control. Links are unique and sorted.
func (c *Client) DiscoverLinks(ctx context.Context, terms []string) ([]string, error) {
	seen := make(map[string]struct{})
	var links []string

	err := browser.WithSession(ctx, c.launcher, func(ctx context.Context, page browser.Page) error {
		for i, term := range terms {
			if i > 0 {
				if err := c.pacer.Pause(ctx, pacing.BetweenSearches); err != nil {
					return err
				}
			}

			found, failures := 0, 0
			for pageNum := 1; pageNum <= c.config.MaxSearchPages; pageNum++ {
				if pageNum > 1 {
					if err := c.pacer.Pause(ctx, pacing.BetweenPages); err != nil {
						return err
					}
				}

				loaded, hasNext := false, false
				err := bestEffort(ctx, "search page", func() error {
					pageLinks, err := c.scrapeSearchPage(ctx, page, term, pageNum)
					if err != nil {
						return err
					}
					for _, link := range pageLinks {
						if _, ok := seen[link]; ok {
							continue
						}
						seen[link] = struct{}{}
						links = append(links, link)
						found++
					}
					loaded = true
					hasNext = page.WaitForSelector(ctx, c.selectors.Search.NextPage, nextPageTimeout) == nil
					return nil
				}, "term", term, "page", pageNum)
				if err != nil {
					return err
				}
				if !loaded {
					failures++
					if failures >= maxPageFailures {
						slog.Warn("Too many failed search pages, moving to next term", "term", term, "page", pageNum)
						break
					}
					continue
				}
				failures = 0
				if !hasNext {
					break
				}
			}
			slog.Info("Search term processed", "term", term, "new_links", found)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(links)
	slog.Info("Link discovery complete", "terms", len(terms), "links", len(links))
	return links, nil
}

func (c *Client) scrapeSearchPage(ctx context.Context, page browser.Page, term string, pageNum int) ([]string, error) {
	if err := c.pacer.Throttle(ctx); err != nil {
		return nil, err
	}
	if err := page.Goto(ctx, c.searchURL(term, pageNum)); err != nil {
		return nil, fmt.Errorf("failed to load search page: %w", err)
	}
	if err := page.WaitForSelector(ctx, c.selectors.Search.ResultsContainer, browser.DefaultTimeout); err != nil {
		return nil, fmt.Errorf("search results never appeared: %w", err)
	}
	html, err := page.Content(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(html)
	if err != nil {
		return nil, err
	}
	return extractResultLinks(doc, c.selectors.Search, c.config.AmazonBaseURL), nil
}
