package scraper

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// SelectorConfig is the versioned table of selectors and patterns tuned to the
// target site's markup. It is data, not code, because the markup changes often.
type SelectorConfig struct {
	Version   string             `json:"version"`
	Region    RegionSelectors    `json:"region"`
	Search    SearchSelectors    `json:"search"`
	Product   ProductSelectors   `json:"product"`
	Promotion PromotionSelectors `json:"promotion"`
}

type RegionSelectors struct {
	CookieAccept      string `json:"cookie_accept"`
	LocationOpen      string `json:"location_open"`
	PostcodeInput     string `json:"postcode_input"`
	PostcodeApply     string `json:"postcode_apply"`
	PostcodeConfirm   string `json:"postcode_confirm"`
	LocationIndicator string `json:"location_indicator"`
}

type SearchSelectors struct {
	ResultsContainer string `json:"results_container"`
	ResultItem       string `json:"result_item"`      // e.g., "div.s-result-item"
	PromotionMarker  string `json:"promotion_marker"` // e.g., ".s-coupon-unclipped"
	ProductAnchor    string `json:"product_anchor"`
	NextPage         string `json:"next_page"`
}

type ProductSelectors struct {
	PromotionAnchor string `json:"promotion_anchor"`
	PromotionHref   string `json:"promotion_href"` // regex, first group is the code
}

type PromotionSelectors struct {
	TitlePrefix     string   `json:"title_prefix"`
	TitleSuffix     string   `json:"title_suffix"`
	TitlePatterns   []string `json:"title_patterns"`
	SearchInput     string   `json:"search_input"`
	SearchSubmitKey string   `json:"search_submit_key"`
	ShowMore        string   `json:"show_more"`
	ProductCard     string   `json:"product_card"`
	CardASINAttr    string   `json:"card_asin_attr"`
	CardTitle       string   `json:"card_title"`
	CardLink        string   `json:"card_link"`
	CardImage       string   `json:"card_image"`
	CardPrice       string   `json:"card_price"`
	CardSales       string   `json:"card_sales"`
}

// LoadSelectors loads the selector configuration from the specified JSON file.
func LoadSelectors(path string) (SelectorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to read selector config file: %w", err)
	}

	return LoadSelectorsFromBytes(data)
}

// LoadSelectorsFromBytes parses selector configuration from raw JSON bytes.
// This supports loading from embedded data via go:embed.
func LoadSelectorsFromBytes(data []byte) (SelectorConfig, error) {
	var config SelectorConfig
	if err := json.Unmarshal(data, &config); err != nil {
		return SelectorConfig{}, fmt.Errorf("failed to parse selector config JSON: %w", err)
	}
	if err := config.Validate(); err != nil {
		return SelectorConfig{}, err
	}

	return config, nil
}

// Validate reports missing required selectors and uncompilable patterns.
func (c SelectorConfig) Validate() error {
	required := map[string]string{
		"region.location_open":        c.Region.LocationOpen,
		"region.postcode_input":       c.Region.PostcodeInput,
		"region.postcode_apply":       c.Region.PostcodeApply,
		"region.location_indicator":   c.Region.LocationIndicator,
		"search.results_container":    c.Search.ResultsContainer,
		"search.result_item":          c.Search.ResultItem,
		"search.promotion_marker":     c.Search.PromotionMarker,
		"search.product_anchor":       c.Search.ProductAnchor,
		"search.next_page":            c.Search.NextPage,
		"product.promotion_anchor":    c.Product.PromotionAnchor,
		"product.promotion_href":      c.Product.PromotionHref,
		"promotion.search_input":      c.Promotion.SearchInput,
		"promotion.search_submit_key": c.Promotion.SearchSubmitKey,
		"promotion.show_more":         c.Promotion.ShowMore,
		"promotion.product_card":      c.Promotion.ProductCard,
	}
	for name, v := range required {
		if v == "" {
			return fmt.Errorf("selector config %s: missing %s", c.Version, name)
		}
	}
	if len(c.Promotion.TitlePatterns) == 0 {
		return fmt.Errorf("selector config %s: no promotion title patterns", c.Version)
	}
	if _, err := c.titleMatcher(); err != nil {
		return err
	}
	if _, err := regexp.Compile(c.Product.PromotionHref); err != nil {
		return fmt.Errorf("selector config %s: bad promotion_href pattern: %w", c.Version, err)
	}
	return nil
}

// DefaultSelectors returns the fallback configuration if no JSON file is loaded.
// The embedded selectors.json should be preferred.
func DefaultSelectors() SelectorConfig {
	return SelectorConfig{
		Version: "builtin",
		Region: RegionSelectors{
			CookieAccept:      "#sp-cc-accept",
			LocationOpen:      "#nav-global-location-popover-link",
			PostcodeInput:     "#GLUXZipUpdateInput",
			PostcodeApply:     "#GLUXZipUpdate input.a-button-input",
			PostcodeConfirm:   "#GLUXConfirmClose",
			LocationIndicator: "#glow-ingress-line2",
		},
		Search: SearchSelectors{
			ResultsContainer: ".s-main-slot",
			ResultItem:       "div.s-result-item",
			PromotionMarker:  ".s-coupon-unclipped, .s-coupon-clipped",
			ProductAnchor:    "a.a-link-normal.s-no-outline",
			NextPage:         "a.s-pagination-next",
		},
		Product: ProductSelectors{
			PromotionAnchor: "a[href*='/promotion/psp/']",
			PromotionHref:   `/promotion/psp/([A-Za-z0-9]+)`,
		},
		Promotion: PromotionSelectors{
			TitlePrefix: "Amazon.co.uk: ",
			TitleSuffix: " | Amazon.co.uk",
			TitlePatterns: []string{
				`(?i)^get \d+ for the price of \d+`,
				`(?i)^save \d+% on any \d+`,
				`(?i)^buy \d+,? get \d+ free`,
			},
			SearchInput:     "input#keywordSearchInputText",
			SearchSubmitKey: "Enter",
			ShowMore:        "#showMore",
			ProductCard:     "#productGrid div[data-asin]",
			CardASINAttr:    "data-asin",
			CardTitle:       ".a-size-base-plus, .a-text-normal",
			CardLink:        "a.a-link-normal",
			CardImage:       "img",
			CardPrice:       ".a-price .a-offscreen",
			CardSales:       "span:contains('bought')",
		},
	}
}
