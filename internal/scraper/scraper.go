// Package scraper drives the browser through the four scraping stages: region
// setup, search-link discovery, promo-code extraction and promotion harvest.
package scraper

import (
	"context"
	"fmt"
	"net/url"
	"regexp"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/config"
	"github.com/pauljones0/amazon-promo-bot/internal/models"
	"github.com/pauljones0/amazon-promo-bot/internal/pacing"
)

type Scraper interface {
	SetupRegion(ctx context.Context) error
	DiscoverLinks(ctx context.Context, terms []string) ([]string, error)
	ExtractPromoCodes(ctx context.Context, links []string) ([]string, error)
	HarvestPromotions(ctx context.Context, codes, terms []string) ([]models.PromotionRecord, error)
}

type Client struct {
	launcher  browser.Launcher
	pacer     *pacing.Controller
	selectors SelectorConfig
	titles    *titleMatcher
	promoHref *regexp.Regexp
	config    *config.Config
}

func New(cfg *config.Config, launcher browser.Launcher, pacer *pacing.Controller, selectors SelectorConfig) (*Client, error) {
	titles, err := selectors.titleMatcher()
	if err != nil {
		return nil, err
	}
	promoHref, err := regexp.Compile(selectors.Product.PromotionHref)
	if err != nil {
		return nil, fmt.Errorf("invalid promotion href pattern: %w", err)
	}
	return &Client{
		launcher:  launcher,
		pacer:     pacer,
		selectors: selectors,
		titles:    titles,
		promoHref: promoHref,
		config:    cfg,
	}, nil
}

func (c *Client) searchURL(term string, page int) string {
	return fmt.Sprintf("%s/s?k=%s&page=%d", c.config.AmazonBaseURL, url.QueryEscape(term), page)
}

func (c *Client) promotionURL(code string) string {
	return fmt.Sprintf("%s/promotion/psp/%s", c.config.AmazonBaseURL, url.PathEscape(code))
}
