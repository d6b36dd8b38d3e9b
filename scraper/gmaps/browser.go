// Package gmaps drives Google Maps through a headless browser: one shared
// browser process per run, one tab context per postcode session.
package gmaps

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/chromedp/chromedp"

	"gmaps-scraper/config"
	"gmaps-scraper/utils"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// Browser owns the chromedp allocator shared by all postcode sessions of a
// run. It must be closed when the run ends.
type Browser struct {
	rootCtx     context.Context
	cancelRoot  context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *utils.Logger
}

// NewBrowser builds the allocator. The browser process itself launches on
// Start, so a missing binary surfaces as a run-level failure before any
// postcode is dispatched.
func NewBrowser(cfg *config.Config, logger *utils.Logger) *Browser {
	chromeBin := findChromeBinary(cfg.ChromeBin)
	if chromeBin != "" {
		logger.Info("[gmaps] Using browser binary: %s", chromeBin)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)

	// Suppress chromedp log noise; this context also pins the single
	// browser process that all session tabs hang off.
	rootCtx, cancelRoot := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(string, ...interface{}) {}))

	return &Browser{
		rootCtx:     rootCtx,
		cancelRoot:  cancelRoot,
		cancelAlloc: cancelAlloc,
		logger:      logger,
	}
}

// Start launches the browser process. Failure here means no sessions run.
func (b *Browser) Start() error {
	if err := chromedp.Run(b.rootCtx); err != nil {
		return fmt.Errorf("gmaps: browser failed to start: %w", err)
	}
	return nil
}

// Close tears down every remaining tab and the browser process.
func (b *Browser) Close() {
	b.cancelRoot()
	b.cancelAlloc()
}

// findChromeBinary locates a Chrome/Chromium binary, preferring the
// configured path.
func findChromeBinary(configured string) string {
	if configured != "" {
		return configured
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
