package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserReadinessProbe checks that a sandbox's forwarded preview URL
// actually renders, by driving a headless Chromium instance through
// go-rod — the same launcher.New().NoSandbox(...).Headless(...) and
// rod.New().ControlURL(...).MustConnect() shape the retrieved pack's
// browser end-to-end test harness uses, adapted here to return errors
// instead of panicking (Must* calls are a test-only convenience; production
// code must be able to report a closed preview tunnel as a plain error).
type BrowserReadinessProbe struct {
	pollInterval time.Duration
}

// NewBrowserReadinessProbe returns a probe that polls at the given
// interval (500ms if zero).
func NewBrowserReadinessProbe(pollInterval time.Duration) *BrowserReadinessProbe {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &BrowserReadinessProbe{pollInterval: pollInterval}
}

// RendersOK launches a headless browser, navigates to url, and reports
// whether the page loaded without a network/DNS-level failure. It does not
// inspect the page's content — a forwarded preview tunnel that accepts the
// connection and serves any document counts as "rendering" for readiness
// purposes; agent-type-specific content checks belong to the runtime
// readiness hooks in internal/runtime, not this provider-level probe.
func (p *BrowserReadinessProbe) RendersOK(ctx context.Context, url string) (bool, error) {
	l := launcher.New().NoSandbox(true).Headless(true)
	controlURL, err := l.Launch()
	if err != nil {
		return false, fmt.Errorf("launching headless browser: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return false, fmt.Errorf("connecting to browser: %w", err)
	}
	defer browser.MustClose()

	page, err := browser.Page(proto.TargetCreateTarget{URL: url})
	if err != nil {
		if isConnectionRefused(err) {
			return false, nil
		}
		return false, fmt.Errorf("navigating to %s: %w", url, err)
	}
	defer page.MustClose()

	if err := page.Context(ctx).WaitLoad(); err != nil {
		return false, nil
	}
	return true, nil
}

// isConnectionRefused reports whether err looks like a transient
// connection failure (tunnel not forwarded yet) rather than a real probe
// error worth surfacing.
func isConnectionRefused(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "err_connection_refused") ||
		strings.Contains(msg, "err_name_not_resolved") ||
		strings.Contains(msg, "net::err")
}

// WaitUntilRenders polls RendersOK every pollInterval until it reports
// true, timeout elapses, or ctx is done.
func (p *BrowserReadinessProbe) WaitUntilRenders(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		ok, err := p.RendersOK(ctx, url)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("preview URL %s did not render within %s", url, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pollInterval):
		}
	}
}
