// Package browser drives a real Chrome session against x.com. It reuses
// an auth_token session cookie instead of automating the login flow, and
// paces every interaction so the session reads as hand-driven.
package browser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"starling/internal/config"
	"starling/internal/logging"
)

// ErrNotLoggedIn reports that x.com rejected the session cookie.
var ErrNotLoggedIn = errors.New("not logged in")

const (
	baseURL    = "https://x.com"
	homeURL    = baseURL + "/home"
	composeURL = baseURL + "/compose/post"
)

// X renders everything behind data-testid hooks; these are the ones the
// engine touches.
const (
	selTweet        = `article[data-testid="tweet"]`
	selTweetText    = `[data-testid="tweetText"]`
	selComposeBox   = `[data-testid="tweetTextarea_0"]`
	selComposeSend  = `[data-testid="tweetButton"]`
	selReplyButton  = `[data-testid="reply"]`
	selLikeButton   = `[data-testid="like"]`
	selUnlike       = `[data-testid="unlike"]`
	selRetweet      = `[data-testid="retweet"]`
	selUnretweet    = `[data-testid="unretweet"]`
	selRetweetYes   = `[data-testid="retweetConfirm"]`
	selAddToThread  = `[data-testid="addButton"]`
	selMetricsGroup = `[role="group"]`
	selPromoted     = `[data-testid="placementTracking"]`
)

// stealthScript hides the obvious automation tells before any site
// script runs.
const stealthScript = `(() => {
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
	window.chrome = window.chrome || { runtime: {} };
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
	Object.defineProperty(navigator, 'plugins', {
		get: () => [{ name: 'PDF Viewer' }, { name: 'Chrome PDF Viewer' }]
	});
	const originalQuery = window.navigator.permissions.query;
	window.navigator.permissions.query = (parameters) => (
		parameters.name === 'notifications'
			? Promise.resolve({ state: Notification.permission })
			: originalQuery(parameters)
	);
})();`

// Driver owns one Chrome instance and one page it reuses for every
// action.
type Driver struct {
	browser *rod.Browser
	page    *rod.Page
	rng     *rand.Rand
	timeout time.Duration
}

// Open launches Chrome, installs the session cookie and prepares a page.
// Leakless is off to avoid antivirus false positives on the helper
// binary.
func Open(cfg config.BrowserConfig) (*Driver, error) {
	if cfg.AuthToken == "" {
		return nil, fmt.Errorf("browser auth token not set")
	}
	l := launcher.New().Headless(cfg.Headless).Leakless(false)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect chrome: %w", err)
	}
	if err := b.SetCookies([]*proto.NetworkCookieParam{{
		Name:     "auth_token",
		Value:    cfg.AuthToken,
		Domain:   ".x.com",
		Path:     "/",
		HTTPOnly: true,
		Secure:   true,
	}}); err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("set auth cookie: %w", err)
	}
	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	page.EvalOnNewDocument(stealthScript)
	timeout := time.Duration(cfg.PageTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	logging.Info("browser ready", map[string]any{"headless": cfg.Headless})
	return &Driver{
		browser: b,
		page:    page,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		timeout: timeout,
	}, nil
}

// Close shuts the browser down.
func (d *Driver) Close() error {
	if d.browser == nil {
		return nil
	}
	return d.browser.Close()
}

// CheckLogin loads the home timeline and verifies the cookie still
// holds a session.
func (d *Driver) CheckLogin(ctx context.Context) error {
	p := d.p(ctx)
	if err := p.Navigate(homeURL); err != nil {
		return fmt.Errorf("navigate home: %w", err)
	}
	if err := p.WaitLoad(); err != nil {
		return fmt.Errorf("load home: %w", err)
	}
	d.sleepRange(ctx, 1500, 3000)
	info, err := p.Info()
	if err != nil {
		return err
	}
	if strings.Contains(info.URL, "/login") || strings.Contains(info.URL, "/i/flow") {
		return ErrNotLoggedIn
	}
	return nil
}

// p binds the shared page to the caller's context and the configured
// per-operation timeout.
func (d *Driver) p(ctx context.Context) *rod.Page {
	return d.page.Context(ctx).Timeout(d.timeout)
}

// sleepRange pauses a random duration in [minMs, maxMs], returning early
// on cancel.
func (d *Driver) sleepRange(ctx context.Context, minMs, maxMs int) {
	if maxMs < minMs {
		maxMs = minMs
	}
	delay := time.Duration(minMs+d.rng.Intn(maxMs-minMs+1)) * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
	}
}

// typeHuman enters text one rune at a time with uneven pacing: slower
// around punctuation, with occasional longer re-read pauses.
func (d *Driver) typeHuman(ctx context.Context, el *rod.Element, text string) error {
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := el.Input(string(r)); err != nil {
			return fmt.Errorf("type text: %w", err)
		}
		if r == ' ' || r == ',' || r == '.' {
			d.sleepRange(ctx, 60, 140)
		} else {
			d.sleepRange(ctx, 25, 90)
		}
		if d.rng.Float64() < 0.04 {
			d.sleepRange(ctx, 250, 700)
		}
	}
	return nil
}

// scrollFeed nudges the timeline down a few screens to trigger lazy
// loading.
func (d *Driver) scrollFeed(ctx context.Context, p *rod.Page) {
	steps := 2 + d.rng.Intn(3)
	for i := 0; i < steps; i++ {
		px := 400 + d.rng.Intn(500)
		_, _ = p.Eval(`(dy) => window.scrollBy({top: dy, behavior: "smooth"})`, px)
		d.sleepRange(ctx, 500, 1400)
	}
}
