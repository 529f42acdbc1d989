// Package browsertest provides an in-memory browser.Page and browser.Launcher
// that serve canned HTML, for testing code that drives the browser.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/pauljones0/amazon-promo-bot/internal/browser"
)

// Page serves canned HTML per URL and evaluates selectors against the
// current content with goquery.
type Page struct {
	Pages  map[string]string
	Titles map[string]string
	// AfterClick swaps the content when the selector is clicked.
	AfterClick map[string]string
	// Searches maps "url|term" to the content shown after submitting term on
	// url, followed by the content after each click on ShowMore.
	Searches map[string][]string
	ShowMore string

	Visited []string
	Clicks  []string
	Filled  string

	url    string
	html   string
	seq    []string
	seqIdx int
}

var _ browser.Page = (*Page)(nil)

func (p *Page) Goto(_ context.Context, url string) error {
	p.Visited = append(p.Visited, url)
	html, ok := p.Pages[url]
	if !ok {
		return fmt.Errorf("net::ERR_CONNECTION_RESET at %s", url)
	}
	p.url, p.html, p.seq = url, html, nil
	return nil
}

func (p *Page) find(selector string) (*goquery.Selection, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.html))
	if err != nil {
		return nil, err
	}
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return nil, fmt.Errorf("selector %q not found", selector)
	}
	return sel, nil
}

func (p *Page) WaitForSelector(_ context.Context, selector string, _ time.Duration) error {
	_, err := p.find(selector)
	return err
}

func (p *Page) Click(_ context.Context, selector string) error {
	if _, err := p.find(selector); err != nil {
		return err
	}
	p.Clicks = append(p.Clicks, selector)
	if html, ok := p.AfterClick[selector]; ok {
		p.html = html
		return nil
	}
	if selector == p.ShowMore && p.seqIdx+1 < len(p.seq) {
		p.seqIdx++
		p.html = p.seq[p.seqIdx]
	}
	return nil
}

func (p *Page) Fill(_ context.Context, selector, value string) error {
	if _, err := p.find(selector); err != nil {
		return err
	}
	p.Filled = value
	return nil
}

func (p *Page) Press(_ context.Context, selector, _ string) error {
	if _, err := p.find(selector); err != nil {
		return err
	}
	seq, ok := p.Searches[p.url+"|"+p.Filled]
	if !ok || len(seq) == 0 {
		return errors.New("search returned an error page")
	}
	p.seq, p.seqIdx, p.html = seq, 0, seq[0]
	return nil
}

func (p *Page) WaitForNetworkIdle(context.Context) error { return nil }

func (p *Page) Title(context.Context) (string, error) {
	return p.Titles[p.url], nil
}

func (p *Page) Text(_ context.Context, selector string) (string, error) {
	sel, err := p.find(selector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.First().Text()), nil
}

func (p *Page) Content(context.Context) (string, error) {
	return p.html, nil
}

// Launcher hands out sessions backed by Page and counts them.
type Launcher struct {
	Page *Page
	Err  error

	mu       sync.Mutex
	acquired int
	closed   int
}

var _ browser.Launcher = (*Launcher)(nil)

func (l *Launcher) Acquire(context.Context) (browser.Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, fmt.Errorf("%w: %w", browser.ErrLaunch, l.Err)
	}
	l.acquired++
	return session{l: l}, nil
}

// Acquired returns how many sessions were handed out.
func (l *Launcher) Acquired() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.acquired
}

// Closed returns how many sessions were closed.
func (l *Launcher) Closed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type session struct {
	l *Launcher
}

func (s session) Page() browser.Page { return s.l.Page }

func (s session) Close() error {
	s.l.mu.Lock()
	defer s.l.mu.Unlock()
	s.l.closed++
	return nil
}
