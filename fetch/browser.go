package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Browser renders JS-heavy product pages in headless Chrome. Each Render
// call gets its own browser context so a wedged page cannot poison the
// next fetch.
type Browser struct {
	options []chromedp.ExecAllocatorOption
	timeout time.Duration
	logger  *zap.Logger
}

// NewBrowser creates a headless browser renderer.
func NewBrowser(userAgent string, timeout time.Duration, logger *zap.Logger) *Browser {
	return &Browser{
		options: append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.DisableGPU,
			chromedp.NoSandbox,
			chromedp.Headless,
			chromedp.UserAgent(userAgent),
			chromedp.Flag("accept-language", "en-US,en;q=0.9"),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
		),
		timeout: timeout,
		logger:  logger,
	}
}

// Render navigates to rawURL and returns the rendered document HTML.
func (b *Browser) Render(ctx context.Context, rawURL string) (string, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, b.options...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	timeoutCtx, timeoutCancel := context.WithTimeout(taskCtx, b.timeout)
	defer timeoutCancel()

	b.logger.Debug("rendering page", zap.String("url", rawURL))

	var html string
	err := chromedp.Run(timeoutCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitVisible("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}
