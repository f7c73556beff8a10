package cdp

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/dshills/textstorm/internal/logging"
)

// navigateTimeout bounds page navigation and load.
const navigateTimeout = 30 * time.Second

// Options configures the browser connection.
type Options struct {
	// ControlURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches a local browser.
	ControlURL string

	// Headless launches the local browser without a window. Expansion
	// needs a user at the keyboard, so this is mainly for tests.
	Headless bool

	Logger *logging.Logger
}

// Browser owns a rod browser and the pages attached to it.
type Browser struct {
	browser *rod.Browser
	lnch    *launcher.Launcher
	logger  *logging.Logger

	mu     sync.Mutex
	closed bool
}

// Connect launches or connects to Chrome.
func Connect(ctx context.Context, opts Options) (*Browser, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	b := &Browser{logger: logger.WithComponent("browser")}

	wsURL := opts.ControlURL
	if wsURL == "" {
		l := launcher.New().Headless(opts.Headless).Context(ctx)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("cdp: launch: %w", err)
		}
		wsURL = u
		b.lnch = l
		b.logger.Info("launched local chrome at %s", wsURL)
	} else {
		b.logger.Info("connecting to %s", wsURL)
	}

	rb := rod.New().ControlURL(wsURL).Context(ctx)
	if err := rb.Connect(); err != nil {
		b.cleanup()
		return nil, fmt.Errorf("cdp: connect: %w", err)
	}
	b.browser = rb
	return b, nil
}

// Open creates a tab, navigates to pageURL and attaches to it.
func (b *Browser) Open(ctx context.Context, pageURL string) (*Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("cdp: create tab: %w", err)
	}

	navCtx, cancel := context.WithTimeout(ctx, navigateTimeout)
	defer cancel()
	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("cdp: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		b.logger.Warn("wait load for %s: %v", pageURL, err)
	}
	return Attach(ctx, page, b.logger)
}

// Pages attaches to every open tab.
func (b *Browser) Pages(ctx context.Context) ([]*Page, error) {
	pages, err := b.browser.Pages()
	if err != nil {
		return nil, fmt.Errorf("cdp: list pages: %w", err)
	}
	out := make([]*Page, 0, len(pages))
	for _, page := range pages {
		p, err := Attach(ctx, page, b.logger)
		if err != nil {
			b.logger.Warn("skipping tab: %v", err)
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Close disconnects and stops a launched browser.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	if b.browser != nil {
		err = b.browser.Close()
	}
	b.cleanup()
	return err
}

func (b *Browser) cleanup() {
	if b.lnch != nil {
		b.lnch.Cleanup()
		b.lnch = nil
	}
}
