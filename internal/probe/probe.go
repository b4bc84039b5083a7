// Package probe investigates phishing links in a sandboxed headless browser.
// It runs off the event path: findings land in the session notes and enrich
// the final report, they never gate detection.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"honeypot/internal/config"
)

const defaultProbeTimeout = 15 * time.Second

// Prober loads a suspicious URL with chromedp and summarizes where it leads.
// Scam pages hide behind shorteners and meta refreshes that a plain HTTP GET
// does not follow, so a real browser does the walking.
type Prober struct {
	headless bool
	timeout  time.Duration
	logger   *slog.Logger
}

func New(cfg config.ProbeConfig, logger *slog.Logger) *Prober {
	timeout := defaultProbeTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return &Prober{
		headless: cfg.Headless,
		timeout:  timeout,
		logger:   logger,
	}
}

// Probe navigates to rawURL and returns a one-line finding: the final
// location after redirects and the page title.
func (p *Prober) Probe(ctx context.Context, rawURL string) (string, error) {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
	)
	if p.headless {
		opts = append(opts, chromedp.Headless)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()
	taskCtx, timeoutCancel := context.WithTimeout(taskCtx, p.timeout)
	defer timeoutCancel()

	var finalURL, title string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Location(&finalURL),
		chromedp.Title(&title),
	)
	if err != nil {
		return "", fmt.Errorf("probe %s: %w", rawURL, err)
	}

	p.logger.Info("link probed", "url", rawURL, "final", finalURL, "title", title)
	return summarize(rawURL, finalURL, title), nil
}

func summarize(rawURL, finalURL, title string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Link %s", rawURL)
	if finalURL != "" && finalURL != rawURL {
		fmt.Fprintf(&sb, " redirects to %s", finalURL)
	}
	if title != "" {
		fmt.Fprintf(&sb, " (page title: %q)", title)
	}
	sb.WriteString(".")
	return sb.String()
}
