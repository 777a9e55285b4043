package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/errander/internal/capability"
)

// Driver runs a fresh headless Chrome context per call. Calls carry their
// own bounded timeout so a stuck navigation fails fast instead of hanging
// the run.
type Driver struct {
	Timeout   time.Duration
	UserAgent string
}

// New returns a Driver with sane defaults.
func New() *Driver {
	return &Driver{
		Timeout:   45 * time.Second,
		UserAgent: "errander/1.0 (+https://github.com/mohammad-safakhou/errander)",
	}
}

func (d *Driver) run(ctx context.Context, url string, actions ...chromedp.Action) error {
	if strings.TrimSpace(url) == "" {
		return errors.New("invalid url")
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.UserAgent(d.UserAgent),
	)
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	all := append([]chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}, actions...)
	if err := chromedp.Run(bctx, all...); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Screenshot captures a full-page screenshot of url as PNG bytes.
func (d *Driver) Screenshot(ctx context.Context, url string) ([]byte, error) {
	var buf []byte
	if err := d.run(ctx, url, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, err
	}
	return buf, nil
}

// PDF prints url to PDF bytes.
func (d *Driver) PDF(ctx context.Context, url string) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, url, chromedp.ActionFunc(func(ctx context.Context) error {
		data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return buf, nil
}

// Links enumerates the anchors on url. Normalisation, de-duplication and
// ranking are the caller's concern (capability.SelectLinks).
func (d *Driver) Links(ctx context.Context, url string) ([]capability.Link, error) {
	var links []capability.Link
	err := d.run(ctx, url, chromedp.Evaluate(
		`Array.from(document.querySelectorAll('a[href]')).map(a => ({href: a.href, text: (a.innerText || '').trim()}))`,
		&links,
	))
	if err != nil {
		return nil, err
	}
	return links, nil
}

// FetchHTML returns the rendered outer HTML of url.
func (d *Driver) FetchHTML(ctx context.Context, url string) (string, error) {
	var html string
	if err := d.run(ctx, url, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

var _ capability.Browser = (*Driver)(nil)
