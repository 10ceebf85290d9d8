package browser

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"

	"github.com/hazyhaar/regscan/internal/lookup"
)

// Portal selectors. The lookup form carries the code field plus three
// name fields that must be present (and empty) for the search action.
const (
	selCMP        = `input[name="cmp"]`
	selPaternal   = `input[name="appaterno"]`
	selMaternal   = `input[name="apmaterno"]`
	selGivenNames = `input[name="nombres"]`
	selSubmit     = `input[type="submit"][value="Buscar"]`
	selDetailLink = `a[href*="datos-colegiado-detallado.php"]`
)

const (
	challengeAction  = "colegiados_busqueda"
	challengeReadyJS = `() => !!(window.grecaptcha && grecaptcha.execute)`
)

// TabConfig configures one lookup tab.
type TabConfig struct {
	// BaseURL of the portal, with trailing slash.
	BaseURL string
	// SiteKey is the portal's challenge site key, read from the page's
	// own script block; the tab runs the site's flow, never a bypass.
	SiteKey string
	// NavTimeout bounds each navigation. Default 60s.
	NavTimeout time.Duration
	// DebugDir receives page snapshots and screenshots on failures.
	// Empty disables dumping.
	DebugDir string
	// Identifier is used for log and debug artifact naming only.
	Identifier string
}

func (c *TabConfig) defaults() {
	if c.NavTimeout <= 0 {
		c.NavTimeout = 60 * time.Second
	}
}

// LookupTab wraps a stealth Rod page for one lookup attempt. It
// implements lookup.Session.
type LookupTab struct {
	page *rod.Page
	cfg  TabConfig
	mgr  *Manager
}

// OpenLookupTab creates a fresh stealth page on the managed browser.
func OpenLookupTab(mgr *Manager, cfg TabConfig) (*LookupTab, error) {
	cfg.defaults()

	b := mgr.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: no active browser")
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, fmt.Errorf("browser: create stealth page: %w", err)
	}

	return &LookupTab{page: page, cfg: cfg, mgr: mgr}, nil
}

// Navigate loads the portal's lookup form and waits for the code field
// to render. The home page occasionally hangs on slow resources, so a
// failed first load is retried once before giving up.
func (t *LookupTab) Navigate(ctx context.Context) error {
	home, err := t.resolve("index.php")
	if err != nil {
		return err
	}

	var lastErr error
	for try := 0; try < 2; try++ {
		navCtx, cancel := context.WithTimeout(ctx, t.cfg.NavTimeout)
		p := t.page.Context(navCtx)

		if err := p.Navigate(home); err != nil {
			cancel()
			lastErr = fmt.Errorf("browser: navigate %s: %w", home, err)
			continue
		}
		if err := p.WaitLoad(); err != nil {
			t.mgr.cfg.Logger.Debug("browser: wait load", "url", home, "error", err)
		}

		el, err := p.Element(selCMP)
		if err == nil {
			err = el.WaitVisible()
		}
		cancel()
		if err == nil {
			return nil
		}
		lastErr = fmt.Errorf("browser: lookup form not rendered: %w", err)

		if err := sleepCtx(ctx, 2*time.Second); err != nil {
			return err
		}
	}
	return lastErr
}

// FillIdentifier types the code with human cadence and clears the three
// name fields, mirroring a person tabbing through the form.
func (t *LookupTab) FillIdentifier(ctx context.Context, code string) error {
	p := t.page.Context(ctx)

	el, err := p.Element(selCMP)
	if err != nil {
		return fmt.Errorf("browser: cmp field: %w", err)
	}
	if err := humanType(ctx, el, code); err != nil {
		return fmt.Errorf("browser: type cmp: %w", err)
	}

	for _, sel := range []string{selPaternal, selMaternal, selGivenNames} {
		el, err := p.Element(sel)
		if err != nil {
			return fmt.Errorf("browser: field %s: %w", sel, err)
		}
		if err := clearField(ctx, el); err != nil {
			return fmt.Errorf("browser: clear %s: %w", sel, err)
		}
	}
	return nil
}

// TriggerChallenge runs the portal's own challenge flow and injects the
// returned token into the hidden response field.
func (t *LookupTab) TriggerChallenge(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	p := t.page.Context(readyCtx)

	if err := p.Wait(rod.Eval(challengeReadyJS)); err != nil {
		return lookup.Failf(lookup.KindChallengeTimeout, "challenge script not ready: %v", err)
	}

	res, err := t.page.Context(ctx).Eval(
		`(siteKey) => grecaptcha.execute(siteKey, { action: "`+challengeAction+`" })`,
		t.cfg.SiteKey,
	)
	if err != nil {
		return lookup.Failf(lookup.KindChallengeTimeout, "challenge execute: %v", err)
	}
	token := res.Value.Str()
	if token == "" {
		return lookup.Failf(lookup.KindChallengeRejected, "challenge returned empty token")
	}

	_, err = t.page.Context(ctx).Eval(`(token) => {
		const el = document.getElementById("g-recaptcha-response");
		if (el) { el.value = token; }
	}`, token)
	if err != nil {
		return fmt.Errorf("browser: inject token: %w", err)
	}
	return nil
}

// Submit clicks the search button.
func (t *LookupTab) Submit(ctx context.Context) error {
	el, err := t.page.Context(ctx).Element(selSubmit)
	if err != nil {
		return fmt.Errorf("browser: submit button: %w", err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click submit: %w", err)
	}
	return nil
}

// AwaitOutcome polls until the page reaches a terminal state: the detail
// link rendered (followed and snapshotted), an explicit no-match message,
// or the deadline. At the deadline the current page is returned as the
// snapshot so the classifier can tell a rejected form from noise; only a
// page that cannot be read at all surfaces the deadline error.
func (t *LookupTab) AwaitOutcome(ctx context.Context) ([]byte, error) {
	// Settle pause: the portal generates the detail link a moment
	// after the post-submit render.
	settle := 3*time.Second + 500*time.Millisecond + time.Duration(rand.Int64N(int64(time.Second)))
	_ = sleepCtx(ctx, settle)

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		if html, done, err := t.checkTerminal(ctx); done {
			return html, err
		}

		select {
		case <-ctx.Done():
			html, err := t.snapshot()
			if err != nil {
				return nil, fmt.Errorf("browser: await outcome: %w", ctx.Err())
			}
			return html, nil
		case <-ticker.C:
		}
	}
}

// checkTerminal looks for the detail link and follows it, or detects the
// no-match message. done is false while the page is still in flux.
func (t *LookupTab) checkTerminal(ctx context.Context) (html []byte, done bool, err error) {
	p := t.page.Context(ctx)

	has, el, herr := p.Has(selDetailLink)
	if herr == nil && has {
		href, aerr := el.Attribute("href")
		if aerr != nil || href == nil || *href == "" {
			return nil, true, fmt.Errorf("browser: detail link without href")
		}
		detail, rerr := t.resolve(*href)
		if rerr != nil {
			return nil, true, rerr
		}
		if nerr := p.Navigate(detail); nerr != nil {
			return nil, true, fmt.Errorf("browser: navigate detail: %w", nerr)
		}
		if lerr := p.WaitLoad(); lerr != nil {
			t.mgr.cfg.Logger.Debug("browser: detail wait load", "error", lerr)
		}
		snap, serr := t.snapshot()
		if serr != nil {
			return nil, true, serr
		}
		return snap, true, nil
	}

	snap, serr := t.snapshot()
	if serr != nil {
		return nil, false, nil // page mid-navigation, keep polling
	}
	if containsNoMatch(snap) {
		return snap, true, nil
	}
	return nil, false, nil
}

// snapshot reads the current page HTML with its own short deadline so it
// stays usable after the outer context expires.
func (t *LookupTab) snapshot() ([]byte, error) {
	h, err := t.page.Timeout(5 * time.Second).HTML()
	if err != nil {
		return nil, fmt.Errorf("browser: read page: %w", err)
	}
	return []byte(h), nil
}

// DumpDebug saves the page HTML and a screenshot for diagnosis.
// Best-effort: failures are logged, never propagated.
func (t *LookupTab) DumpDebug(label string) {
	if t.cfg.DebugDir == "" {
		return
	}
	log := t.mgr.cfg.Logger

	if err := os.MkdirAll(t.cfg.DebugDir, 0o755); err != nil {
		log.Error("browser: debug dir", "error", err)
		return
	}

	base := fmt.Sprintf("cmp_%s_%s", t.cfg.Identifier, label)
	p := t.page.Timeout(10 * time.Second)

	if h, err := p.HTML(); err == nil {
		path := filepath.Join(t.cfg.DebugDir, base+".html")
		if werr := os.WriteFile(path, []byte(h), 0o644); werr != nil {
			log.Error("browser: write debug html", "path", path, "error", werr)
		}
	}
	if img, err := p.Screenshot(true, &proto.PageCaptureScreenshot{}); err == nil {
		path := filepath.Join(t.cfg.DebugDir, base+".png")
		if werr := os.WriteFile(path, img, 0o644); werr != nil {
			log.Error("browser: write debug screenshot", "path", path, "error", werr)
		}
	}
	log.Warn("browser: debug artifacts saved", "cmp", t.cfg.Identifier, "label", label)
}

// Close closes the tab. Safe to call more than once.
func (t *LookupTab) Close() {
	if t.page != nil {
		if err := t.page.Close(); err != nil {
			t.mgr.cfg.Logger.Debug("browser: close tab", "error", err)
		}
		t.page = nil
	}
}

// containsNoMatch detects the portal's explicit no-results message. The
// phrase carries no accented characters, so an upper-case substring
// check is stable.
func containsNoMatch(snapshot []byte) bool {
	return bytes.Contains(bytes.ToUpper(snapshot), []byte("NO SE ENCONTRARON"))
}

func (t *LookupTab) resolve(ref string) (string, error) {
	base, err := url.Parse(t.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("browser: base url: %w", err)
	}
	u, err := base.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("browser: resolve %q: %w", ref, err)
	}
	return u.String(), nil
}
