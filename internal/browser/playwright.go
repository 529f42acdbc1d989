package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/pauljones0/amazon-promo-bot/internal/fingerprint"
)

// PlaywrightDriver launches Chromium persistent contexts through playwright-go.
type PlaywrightDriver struct {
	opts Options

	mu sync.Mutex
	pw *playwright.Playwright
}

func NewPlaywrightDriver(opts Options) *PlaywrightDriver {
	return &PlaywrightDriver{opts: opts}
}

func (d *PlaywrightDriver) runtime() (*playwright.Playwright, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw != nil {
		return d.pw, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}
	d.pw = pw
	return pw, nil
}

func (d *PlaywrightDriver) Launch(ctx context.Context, profile fingerprint.Profile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := d.runtime()
	if err != nil {
		return nil, err
	}

	dir, err := ensureProfileDir(d.opts.ProfileDir)
	if err != nil {
		return nil, err
	}

	bctx, err := pw.Chromium.LaunchPersistentContext(dir, persistentContextOptions(d.opts, profile))
	if err != nil {
		return nil, fmt.Errorf("could not launch persistent context: %w", err)
	}

	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(profile.InitScript())}); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("could not add init script: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("could not open page: %w", err)
	}
	page.SetDefaultTimeout(float64(DefaultTimeout.Milliseconds()))

	return &playwrightSession{bctx: bctx, page: &playwrightPage{page: page}}, nil
}

func (d *PlaywrightDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pw == nil {
		return nil
	}
	err := d.pw.Stop()
	d.pw = nil
	return err
}

func persistentContextOptions(opts Options, profile fingerprint.Profile) playwright.BrowserTypeLaunchPersistentContextOptions {
	return playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          playwright.Bool(opts.Headless),
		Args:              profile.LaunchArgs(),
		UserAgent:         playwright.String(profile.UserAgent),
		Locale:            playwright.String(profile.Locale),
		TimezoneId:        playwright.String(profile.Timezone),
		Geolocation:       &playwright.Geolocation{Latitude: profile.Latitude, Longitude: profile.Longitude},
		Permissions:       []string{"geolocation"},
		Viewport:          &playwright.Size{Width: 1920, Height: 1080},
		IgnoreHttpsErrors: playwright.Bool(true),
		AcceptDownloads:   playwright.Bool(true),
		ExtraHttpHeaders:  map[string]string{"Accept-Language": acceptLanguage(profile.Languages)},
	}
}

func ensureProfileDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("could not resolve profile dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o700); err != nil {
		return "", fmt.Errorf("could not create profile dir %s: %w", abs, err)
	}
	return abs, nil
}

type playwrightSession struct {
	bctx playwright.BrowserContext
	page *playwrightPage
}

func (s *playwrightSession) Page() Page { return s.page }

func (s *playwrightSession) Close() error {
	return s.bctx.Close()
}

type playwrightPage struct {
	page playwright.Page
}

func (p *playwrightPage) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(DefaultTimeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *playwrightPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	})
}

func (p *playwrightPage) Click(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Click()
}

func (p *playwrightPage) Fill(ctx context.Context, selector, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Fill(value)
}

func (p *playwrightPage) Press(ctx context.Context, selector, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.Locator(selector).First().Press(key)
}

func (p *playwrightPage) WaitForNetworkIdle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State: playwright.LoadStateNetworkidle,
	})
}

func (p *playwrightPage) Title(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Title()
}

func (p *playwrightPage) Text(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Locator(selector).First().InnerText()
}

func (p *playwrightPage) Content(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return p.page.Content()
}
