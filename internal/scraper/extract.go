package scraper

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/amazon-promo-bot/internal/util"
)

func parseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page content: %w", err)
	}
	return doc, nil
}

// extractResultLinks returns the normalized product URLs of search results
// that carry a promotion marker, in page order.
func extractResultLinks(doc *goquery.Document, sel SearchSelectors, base string) []string {
	var links []string
	doc.Find(sel.ResultItem).Each(func(_ int, item *goquery.Selection) {
		if item.Find(sel.PromotionMarker).Length() == 0 {
			return
		}
		href, ok := item.Find(sel.ProductAnchor).First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		normalized, err := util.NormalizeProductURL(base, strings.TrimSpace(href))
		if err != nil {
			return
		}
		links = append(links, normalized)
	})
	return links
}

// extractPromoCodes pulls promotion codes out of promotion links on a
// product page.
func extractPromoCodes(doc *goquery.Document, sel ProductSelectors, hrefPattern *regexp.Regexp) []string {
	var codes []string
	doc.Find(sel.PromotionAnchor).Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		if m := hrefPattern.FindStringSubmatch(href); len(m) > 1 && m[1] != "" {
			codes = append(codes, m[1])
		}
	})
	return codes
}

type productCard struct {
	ASIN     string
	Title    string
	URL      string
	ImageURL string
	Price    string
	Sales    int
}

func extractProductCards(doc *goquery.Document, sel PromotionSelectors, base string) []productCard {
	var cards []productCard
	doc.Find(sel.ProductCard).Each(func(_ int, s *goquery.Selection) {
		var card productCard
		if sel.CardASINAttr != "" {
			card.ASIN = strings.TrimSpace(s.AttrOr(sel.CardASINAttr, ""))
		}

		if href, ok := s.Find(sel.CardLink).First().Attr("href"); ok {
			if normalized, err := util.NormalizeProductURL(base, strings.TrimSpace(href)); err == nil {
				card.URL = normalized
			}
		}
		if card.ASIN == "" {
			card.ASIN = util.ExtractASIN(card.URL)
		}
		if card.ASIN == "" {
			return
		}
		if card.URL == "" {
			card.URL = base + "/dp/" + card.ASIN
		}

		card.Title = strings.Join(strings.Fields(s.Find(sel.CardTitle).First().Text()), " ")
		if img := s.Find(sel.CardImage).First(); img.Length() > 0 {
			card.ImageURL = img.AttrOr("src", "")
		}
		card.Price = strings.TrimSpace(s.Find(sel.CardPrice).First().Text())
		if sel.CardSales != "" {
			card.Sales = util.ParseSalesVolume(s.Find(sel.CardSales).First().Text())
		}
		cards = append(cards, card)
	})
	return cards
}

// cleanPromotionTitle strips the storefront decoration from a page title.
func cleanPromotionTitle(pageTitle string, sel PromotionSelectors) string {
	title := strings.TrimSpace(pageTitle)
	title = strings.TrimPrefix(title, strings.TrimSpace(sel.TitlePrefix))
	title = strings.TrimSuffix(title, strings.TrimSpace(sel.TitleSuffix))
	return strings.TrimSpace(title)
}

// titleMatcher is the allow-list of promotion title shapes worth harvesting.
type titleMatcher struct {
	patterns []*regexp.Regexp
}

func (c SelectorConfig) titleMatcher() (*titleMatcher, error) {
	m := &titleMatcher{}
	for _, p := range c.Promotion.TitlePatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("selector config %s: bad title pattern %q: %w", c.Version, p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

func (m *titleMatcher) Match(title string) bool {
	for _, re := range m.patterns {
		if re.MatchString(title) {
			return true
		}
	}
	return false
}
