package scraper

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadConfig_Embedded(t *testing.T) {
	sel := LoadConfig("")
	if sel.Version == "builtin" {
		t.Fatal("Expected embedded selectors.json to load instead of defaults")
	}
	if err := sel.Validate(); err != nil {
		t.Errorf("Embedded selectors failed validation: %v", err)
	}
	if sel.Promotion.ProductCard == "" || len(sel.Promotion.TitlePatterns) == 0 {
		t.Errorf("Embedded selectors incomplete: %+v", sel.Promotion)
	}
}

func TestLoadConfig_OverrideFile(t *testing.T) {
	override := DefaultSelectors()
	override.Version = "test-override"
	override.Search.NextPage = "li.a-last a"

	path := filepath.Join(t.TempDir(), "selectors.json")
	if err := os.WriteFile(path, mustJSON(t, override), 0o600); err != nil {
		t.Fatalf("failed to write override: %v", err)
	}

	sel := LoadConfig(path)
	if sel.Version != "test-override" || sel.Search.NextPage != "li.a-last a" {
		t.Errorf("Expected override file to win, got version %s", sel.Version)
	}
}

func TestLoadConfig_BadOverrideFallsBack(t *testing.T) {
	sel := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	if sel.Version == "" {
		t.Error("Expected a usable selector config when the override is missing")
	}
}

func TestLoadSelectorsFromBytes_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*SelectorConfig)
		wantErr string
	}{
		{"missing product card", func(c *SelectorConfig) { c.Promotion.ProductCard = "" }, "promotion.product_card"},
		{"no title patterns", func(c *SelectorConfig) { c.Promotion.TitlePatterns = nil }, "title patterns"},
		{"bad title pattern", func(c *SelectorConfig) { c.Promotion.TitlePatterns = []string{"(unclosed"} }, "bad title pattern"},
		{"bad href pattern", func(c *SelectorConfig) { c.Product.PromotionHref = "[" }, "promotion_href"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultSelectors()
			tt.mutate(&cfg)
			_, err := LoadSelectorsFromBytes(mustJSON(t, cfg))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}

	if _, err := LoadSelectorsFromBytes([]byte("{not json")); err == nil {
		t.Error("Expected malformed JSON to be rejected")
	}
}
