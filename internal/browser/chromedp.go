package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/emulation"
	cdppage "github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/pauljones0/amazon-promo-bot/internal/fingerprint"
)

// ChromedpDriver launches Chrome over the DevTools protocol with chromedp.
type ChromedpDriver struct {
	opts Options
}

func NewChromedpDriver(opts Options) *ChromedpDriver {
	return &ChromedpDriver{opts: opts}
}

func (d *ChromedpDriver) Launch(ctx context.Context, profile fingerprint.Profile) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir, err := ensureProfileDir(d.opts.ProfileDir)
	if err != nil {
		return nil, err
	}

	// The browser outlives the caller's request context and is torn down by Close.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), execAllocatorOptions(d.opts, dir, profile)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	err = awaitStartup(ctx, DefaultTimeout, func() error {
		return chromedp.Run(tabCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				_, err := cdppage.AddScriptToEvaluateOnNewDocument(profile.InitScript()).Do(ctx)
				return err
			}),
			cdpbrowser.GrantPermissions([]cdpbrowser.PermissionType{cdpbrowser.PermissionTypeGeolocation}),
			emulation.SetGeolocationOverride().
				WithLatitude(profile.Latitude).
				WithLongitude(profile.Longitude).
				WithAccuracy(50),
			emulation.SetTimezoneOverride(profile.Timezone),
			emulation.SetLocaleOverride().WithLocale(profile.Locale),
			emulation.SetUserAgentOverride(profile.UserAgent).
				WithAcceptLanguage(acceptLanguage(profile.Languages)).
				WithPlatform(profile.Platform),
		)
	}, func() {
		cancelTab()
		cancelAlloc()
	})
	if err != nil {
		return nil, fmt.Errorf("could not start chrome: %w", err)
	}

	return &chromedpSession{
		page: &chromedpPage{ctx: tabCtx},
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
	}, nil
}

// awaitStartup runs start and waits at most timeout or until ctx is done. On
// failure abort is called, which also unblocks a start that is still running.
// The browser itself is not tied to ctx and lives until the session closes.
func awaitStartup(ctx context.Context, timeout time.Duration, start func() error, abort func()) error {
	done := make(chan error, 1)
	go func() { done <- start() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	case <-timer.C:
		err = fmt.Errorf("chrome startup exceeded %s", timeout)
	}
	if err != nil {
		abort()
	}
	return err
}

// Close is a no-op; every session owns its own Chrome process.
func (d *ChromedpDriver) Close() error { return nil }

func execAllocatorOptions(opts Options, dir string, profile fingerprint.Profile) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.UserDataDir(dir),
		chromedp.Flag("headless", opts.Headless),
		chromedp.UserAgent(profile.UserAgent),
		chromedp.WindowSize(1920, 1080),
		chromedp.NoSandbox,
		chromedp.IgnoreCertErrors,
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-features", "IsolateOrigins,site-per-process"),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("lang", profile.Locale),
	)
	return allocOpts
}

func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, l := range languages {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, 1-0.1*float64(i)))
	}
	return strings.Join(parts, ",")
}

type chromedpSession struct {
	page   *chromedpPage
	cancel context.CancelFunc
}

func (s *chromedpSession) Page() Page { return s.page }

func (s *chromedpSession) Close() error {
	// Cancelling the allocator context closes the browser and waits for it to exit.
	s.cancel()
	return nil
}

type chromedpPage struct {
	ctx context.Context
}

func (p *chromedpPage) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(p.ctx, timeout)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Goto(ctx context.Context, url string) error {
	if err := p.run(ctx, DefaultTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (p *chromedpPage) WaitForSelector(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromedpPage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, DefaultTimeout, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromedpPage) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, DefaultTimeout,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

func (p *chromedpPage) Press(ctx context.Context, selector, key string) error {
	k, ok := keyNames[key]
	if !ok {
		k = key
	}
	return p.run(ctx, DefaultTimeout, chromedp.SendKeys(selector, k, chromedp.ByQuery))
}

// WaitForNetworkIdle approximates idle by waiting for the document to be ready.
func (p *chromedpPage) WaitForNetworkIdle(ctx context.Context) error {
	return p.run(ctx, DefaultTimeout, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, DefaultTimeout, chromedp.Title(&title))
	return title, err
}

func (p *chromedpPage) Text(ctx context.Context, selector string) (string, error) {
	var text string
	err := p.run(ctx, DefaultTimeout, chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible))
	return text, err
}

func (p *chromedpPage) Content(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, DefaultTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

var keyNames = map[string]string{
	"Enter":  kb.Enter,
	"Escape": kb.Escape,
	"Tab":    kb.Tab,
}
