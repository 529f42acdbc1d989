package scraper

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/pauljones0/amazon-promo-bot/internal/browser"
	"github.com/pauljones0/amazon-promo-bot/internal/browser/browsertest"
)

const base = "https://www.amazon.co.uk"

func searchResult(asin string, promoted bool) string {
	marker := ""
	if promoted {
		marker = `<span class="s-coupon-unclipped">Save 5% with voucher</span>`
	}
	return fmt.Sprintf(`<div class="s-result-item" data-asin="%[1]s">
		<a class="a-link-normal s-no-outline" href="/Some-Kettle/dp/%[1]s/ref=sr_1_1?keywords=kettle&qid=1">x</a>%[2]s</div>`, asin, marker)
}

func searchPage(next bool, items ...string) string {
	nav := ""
	if next {
		nav = `<a class="s-pagination-next" href="#">Next</a>`
	}
	return `<html><body><div class="s-main-slot">` + strings.Join(items, "") + `</div>` + nav + `</body></html>`
}

func TestSetupRegion(t *testing.T) {
	home := `<html><body>
		<div id="sp-cc-accept">Accept</div>
		<a id="nav-global-location-popover-link">Deliver to</a>
		<div id="glow-ingress-line2">Update location</div>
		<input id="GLUXZipUpdateInput">
		<span id="GLUXZipUpdate"><input class="a-button-input" type="submit"></span>
	</body></html>`
	confirmed := `<html><body><div id="glow-ingress-line2">Farnham GU9 7</div></body></html>`

	t.Run("confirms postcode", func(t *testing.T) {
		page := &browsertest.Page{
			Pages:      map[string]string{base: home},
			AfterClick: map[string]string{"#GLUXZipUpdate input.a-button-input": confirmed},
		}
		launcher := &browsertest.Launcher{Page: page}
		c := newTestClient(t, launcher)

		if err := c.SetupRegion(context.Background()); err != nil {
			t.Fatalf("SetupRegion() returned unexpected error: %v", err)
		}
		if page.Filled != "GU9 7QU" {
			t.Errorf("Expected postcode to be entered, got %q", page.Filled)
		}
		if !slices.Contains(page.Clicks, "#sp-cc-accept") {
			t.Error("Expected cookie banner to be accepted")
		}
		if launcher.Acquired() != 1 || launcher.Closed() != 1 {
			t.Errorf("Expected one session opened and closed, got %d/%d", launcher.Acquired(), launcher.Closed())
		}
	})

	t.Run("fails when indicator never updates", func(t *testing.T) {
		page := &browsertest.Page{Pages: map[string]string{base: home}}
		launcher := &browsertest.Launcher{Page: page}
		c := newTestClient(t, launcher)

		err := c.SetupRegion(context.Background())
		if !errors.Is(err, ErrRegionSetup) {
			t.Fatalf("Expected ErrRegionSetup, got %v", err)
		}
		if launcher.Closed() != 1 {
			t.Errorf("Expected session to be closed on failure, got %d closes", launcher.Closed())
		}
	})

	t.Run("cookie banner is optional", func(t *testing.T) {
		noBanner := `<html><body>
			<a id="nav-global-location-popover-link">Deliver to</a>
			<input id="GLUXZipUpdateInput">
			<span id="GLUXZipUpdate"><input class="a-button-input" type="submit"></span>
		</body></html>`
		page := &browsertest.Page{
			Pages:      map[string]string{base: noBanner},
			AfterClick: map[string]string{"#GLUXZipUpdate input.a-button-input": confirmed},
		}
		c := newTestClient(t, &browsertest.Launcher{Page: page})

		if err := c.SetupRegion(context.Background()); err != nil {
			t.Fatalf("SetupRegion() returned unexpected error: %v", err)
		}
	})

	t.Run("missing location control is fatal", func(t *testing.T) {
		page := &browsertest.Page{Pages: map[string]string{base: `<html><body></body></html>`}}
		c := newTestClient(t, &browsertest.Launcher{Page: page})

		if err := c.SetupRegion(context.Background()); !errors.Is(err, ErrRegionSetup) {
			t.Fatalf("Expected ErrRegionSetup, got %v", err)
		}
	})
}

func TestDiscoverLinks(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{})
	page := &browsertest.Page{Pages: map[string]string{
		c.searchURL("kettle", 1): searchPage(true,
			searchResult("B0KETTLE01", true),
			searchResult("B0KETTLE02", false),
		),
		c.searchURL("kettle", 2): searchPage(false,
			searchResult("B0KETTLE03", true),
			searchResult("B0KETTLE01", true),
		),
		c.searchURL("toaster", 2): searchPage(false, searchResult("B0TOAST001", true)),
	}}
	launcher := &browsertest.Launcher{Page: page}
	c.launcher = launcher

	links, err := c.DiscoverLinks(context.Background(), []string{"kettle", "toaster"})
	if err != nil {
		t.Fatalf("DiscoverLinks() returned unexpected error: %v", err)
	}

	want := []string{base + "/dp/B0KETTLE01", base + "/dp/B0KETTLE03", base + "/dp/B0TOAST001"}
	if !slices.Equal(links, want) {
		t.Errorf("DiscoverLinks() = %v, want %v", links, want)
	}
	if slices.Contains(page.Visited, c.searchURL("kettle", 3)) {
		t.Error("Expected pagination to stop when no next page control is present")
	}
	if !slices.Contains(page.Visited, c.searchURL("toaster", 1)) {
		t.Error("Expected the second term to be searched after the first")
	}
	if !slices.Contains(page.Visited, c.searchURL("toaster", 2)) {
		t.Error("Expected a failed first page not to end the term")
	}
	if launcher.Acquired() != 1 || launcher.Closed() != 1 {
		t.Errorf("Expected one session for discovery, got %d acquired, %d closed", launcher.Acquired(), launcher.Closed())
	}
}

func TestDiscoverLinks_SkipsFailedPages(t *testing.T) {
	tests := []struct {
		name        string
		pages       map[int]string
		wantLinks   []string
		wantVisited []int
	}{
		{
			name: "first page fails",
			pages: map[int]string{
				2: searchPage(true, searchResult("B0TOAST002", true)),
				3: searchPage(false, searchResult("B0TOAST003", true)),
			},
			wantLinks:   []string{base + "/dp/B0TOAST002", base + "/dp/B0TOAST003"},
			wantVisited: []int{1, 2, 3},
		},
		{
			name: "middle page fails",
			pages: map[int]string{
				1: searchPage(true, searchResult("B0TOAST001", true)),
				3: searchPage(false, searchResult("B0TOAST003", true)),
			},
			wantLinks:   []string{base + "/dp/B0TOAST001", base + "/dp/B0TOAST003"},
			wantVisited: []int{1, 2, 3},
		},
		{
			name: "consecutive failures end the term",
			pages: map[int]string{
				5: searchPage(false, searchResult("B0TOAST005", true)),
			},
			wantLinks:   nil,
			wantVisited: []int{1, 2, 3},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, &browsertest.Launcher{})
			pages := map[string]string{}
			for n, html := range tt.pages {
				pages[c.searchURL("toaster", n)] = html
			}
			page := &browsertest.Page{Pages: pages}
			c.launcher = &browsertest.Launcher{Page: page}

			links, err := c.DiscoverLinks(context.Background(), []string{"toaster"})
			if err != nil {
				t.Fatalf("DiscoverLinks() returned unexpected error: %v", err)
			}
			if !slices.Equal(links, tt.wantLinks) {
				t.Errorf("DiscoverLinks() = %v, want %v", links, tt.wantLinks)
			}
			var want []string
			for _, n := range tt.wantVisited {
				want = append(want, c.searchURL("toaster", n))
			}
			if !slices.Equal(page.Visited, want) {
				t.Errorf("Visited %v, want %v", page.Visited, want)
			}
		})
	}
}

func TestDiscoverLinks_RespectsPageLimit(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{})
	c.config.MaxSearchPages = 2
	pages := map[string]string{}
	for i := 1; i <= 4; i++ {
		pages[c.searchURL("kettle", i)] = searchPage(true, searchResult(fmt.Sprintf("B0KETTLE0%d", i), true))
	}
	page := &browsertest.Page{Pages: pages}
	c.launcher = &browsertest.Launcher{Page: page}

	links, err := c.DiscoverLinks(context.Background(), []string{"kettle"})
	if err != nil {
		t.Fatalf("DiscoverLinks() returned unexpected error: %v", err)
	}
	if len(links) != 2 {
		t.Errorf("Expected 2 links from 2 pages, got %v", links)
	}
}

func productPage(codes ...string) string {
	html := `<html><body><div id="centerCol">`
	for _, code := range codes {
		html += fmt.Sprintf(`<a href="/promotion/psp/%s?ref=psp_pc_a_%s">Save on any 2</a>`, code, code)
	}
	return html + `</div></body></html>`
}

func TestExtractPromoCodes(t *testing.T) {
	links := []string{
		base + "/dp/B0KETTLE01",
		base + "/dp/B0KETTLE02",
		base + "/dp/B0KETTLE03",
	}
	page := &browsertest.Page{Pages: map[string]string{
		links[0]: productPage("ABC123"),
		// links[1] fails to load
		links[2]: productPage("ABC123", "XYZ789"),
	}}
	launcher := &browsertest.Launcher{Page: page}
	c := newTestClient(t, launcher)

	codes, err := c.ExtractPromoCodes(context.Background(), links)
	if err != nil {
		t.Fatalf("ExtractPromoCodes() returned unexpected error: %v", err)
	}

	if want := []string{"ABC123", "XYZ789"}; !slices.Equal(codes, want) {
		t.Errorf("ExtractPromoCodes() = %v, want %v", codes, want)
	}
	if launcher.Acquired() != 2 {
		t.Errorf("Expected a fresh session per batch of 2 (2 sessions), got %d", launcher.Acquired())
	}
	if launcher.Closed() != launcher.Acquired() {
		t.Errorf("Expected every session closed, got %d of %d", launcher.Closed(), launcher.Acquired())
	}
	if len(page.Visited) != 3 {
		t.Errorf("Expected every link visited once, got %v", page.Visited)
	}
}

func TestExtractPromoCodes_LaunchFailureIsFatal(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{Err: errors.New("chrome not found")})

	_, err := c.ExtractPromoCodes(context.Background(), []string{base + "/dp/B0KETTLE01"})
	if !errors.Is(err, browser.ErrLaunch) {
		t.Fatalf("Expected ErrLaunch, got %v", err)
	}
}

func TestExtractPromoCodes_Empty(t *testing.T) {
	launcher := &browsertest.Launcher{Page: &browsertest.Page{}}
	c := newTestClient(t, launcher)

	codes, err := c.ExtractPromoCodes(context.Background(), nil)
	if err != nil {
		t.Fatalf("ExtractPromoCodes() returned unexpected error: %v", err)
	}
	if len(codes) != 0 || launcher.Acquired() != 0 {
		t.Errorf("Expected no codes and no sessions, got %v and %d sessions", codes, launcher.Acquired())
	}
}

func promoLanding() string {
	return `<html><body><input id="keywordSearchInputText"></body></html>`
}

func promoCard(asin, title, price, sales string) string {
	salesHTML := ""
	if sales != "" {
		salesHTML = fmt.Sprintf(`<span class="a-size-base a-color-secondary">%s bought in past month</span>`, sales)
	}
	return fmt.Sprintf(`<div data-asin="%[1]s">
		<a class="a-link-normal" href="/dp/%[1]s?ref=psp"><img src="https://m.media-amazon.com/images/I/%[1]s.jpg"></a>
		<span class="a-size-base-plus">%[2]s</span>
		<span class="a-price"><span class="a-offscreen">%[3]s</span></span>%[4]s</div>`, asin, title, price, salesHTML)
}

func promoResults(showMore bool, cards ...string) string {
	more := ""
	if showMore {
		more = `<a id="showMore">Show more</a>`
	}
	html := `<html><body><input id="keywordSearchInputText"><div id="productGrid">`
	for _, card := range cards {
		html += card
	}
	return html + `</div>` + more + `</body></html>`
}

func TestHarvestPromotions(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{})
	abc := c.promotionURL("ABC123")
	xyz := c.promotionURL("XYZ789")

	page := &browsertest.Page{
		ShowMore: "#showMore",
		Pages: map[string]string{
			abc: promoLanding(),
			xyz: promoLanding(),
		},
		Titles: map[string]string{
			abc: "Amazon.co.uk: Save 20% on any 2",
			xyz: "Amazon.co.uk: Free delivery on your first order",
		},
		Searches: map[string][]string{
			abc + "|kettle": {
				promoResults(true, promoCard("B0KETTLE01", "Steel Kettle", "£24.99", "500+")),
				promoResults(false,
					promoCard("B0KETTLE01", "Steel Kettle", "£24.99", "500+"),
					promoCard("B0KETTLE02", "Glass Kettle", "£29.99", "1K+"),
				),
			},
			abc + "|toaster": {
				promoResults(false, promoCard("B0TOAST001", "2-Slice Toaster", "£19.99", "")),
			},
		},
	}
	launcher := &browsertest.Launcher{Page: page}
	c.launcher = launcher

	records, err := c.HarvestPromotions(context.Background(), []string{"ABC123", "XYZ789", "GONE00"}, []string{"kettle", "toaster"})
	if err != nil {
		t.Fatalf("HarvestPromotions() returned unexpected error: %v", err)
	}

	if len(records) != 1 {
		t.Fatalf("Expected only the allowed promotion, got %d records", len(records))
	}
	rec := records[0]
	if rec.Code != "ABC123" || rec.Title != "Save 20% on any 2" || rec.PromotionURL != abc {
		t.Errorf("Unexpected promotion record: %+v", rec)
	}

	var asins []string
	for _, p := range rec.Products {
		asins = append(asins, p.ASIN)
		if p.PromotionCode != "ABC123" || p.PromotionTitle != rec.Title || p.PromotionURL != abc {
			t.Errorf("Product %s lost its promotion fields: %+v", p.ASIN, p)
		}
	}
	if want := []string{"B0KETTLE01", "B0KETTLE02", "B0TOAST001"}; !slices.Equal(asins, want) {
		t.Errorf("Harvested ASINs = %v, want %v", asins, want)
	}

	first := rec.Products[0]
	if first.ProductURL != base+"/dp/B0KETTLE01" {
		t.Errorf("Expected canonical product URL, got %s", first.ProductURL)
	}
	if first.ProductSales != 500 || first.ProductPrice != "£24.99" || first.ProductTitle != "Steel Kettle" {
		t.Errorf("Unexpected card fields: %+v", first)
	}
	if rec.Products[1].ProductSales != 1000 {
		t.Errorf("Expected 1K+ to parse as 1000, got %d", rec.Products[1].ProductSales)
	}
	if rec.Products[2].ProductSales != 0 {
		t.Errorf("Expected missing sales text to yield 0, got %d", rec.Products[2].ProductSales)
	}

	if launcher.Acquired() != 3 || launcher.Closed() != 3 {
		t.Errorf("Expected one session per promo code, got %d acquired, %d closed", launcher.Acquired(), launcher.Closed())
	}
}

func TestHarvestPromotions_UnknownTitleIsDiscarded(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{})
	abc := c.promotionURL("ABC123")
	page := &browsertest.Page{
		Pages:  map[string]string{abc: promoLanding()},
		Titles: map[string]string{abc: ""},
	}
	c.launcher = &browsertest.Launcher{Page: page}

	records, err := c.HarvestPromotions(context.Background(), []string{"ABC123"}, []string{"kettle"})
	if err != nil {
		t.Fatalf("HarvestPromotions() returned unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("Expected promotion with no title to be discarded, got %+v", records)
	}
}

func TestHarvestPromotions_Cancelled(t *testing.T) {
	c := newTestClient(t, &browsertest.Launcher{Page: &browsertest.Page{}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.HarvestPromotions(ctx, []string{"ABC123"}, []string{"kettle"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
}
