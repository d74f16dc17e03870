package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

var unsafeLabel = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// DebugDumper persists a screenshot and the HTML of a failed browser visit.
// A nil *DebugDumper discards everything.
type DebugDumper struct {
	dir    string
	logger *zap.Logger
	now    func() time.Time
}

// NewDebugDumper returns a dumper writing into dir, or nil when dir is empty.
func NewDebugDumper(dir string, logger *zap.Logger) *DebugDumper {
	if dir == "" {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebugDumper{dir: dir, logger: logger, now: time.Now}
}

// Save writes <dir>/<label>-<timestamp>.html and, when png is non-empty, the matching .png.
// It returns the path prefix shared by both files.
func (d *DebugDumper) Save(label, html string, png []byte) (string, error) {
	if d == nil {
		return "", nil
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create debug dir: %w", err)
	}
	if label = unsafeLabel.ReplaceAllString(label, "_"); label == "" {
		label = "page"
	}
	base := filepath.Join(d.dir, fmt.Sprintf("%s-%s", label, d.now().UTC().Format("20060102T150405.000")))

	if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("failed to write html dump: %w", err)
	}
	if len(png) > 0 {
		if err := os.WriteFile(base+".png", png, 0o644); err != nil {
			return "", fmt.Errorf("failed to write screenshot: %w", err)
		}
	}
	return base, nil
}

// Capture grabs the current tab's screenshot and HTML and saves them. Failures are logged only.
func (d *DebugDumper) Capture(tabCtx context.Context, label string) {
	if d == nil {
		return
	}
	ctx, cancel := context.WithTimeout(tabCtx, dumpTimeout)
	defer cancel()

	var (
		html string
		png  []byte
	)
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		d.logger.Warn("debug dump: failed to read html", zap.String("label", label), zap.Error(err))
	}
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&png, 80)); err != nil {
		d.logger.Warn("debug dump: failed to take screenshot", zap.String("label", label), zap.Error(err))
	}

	base, err := d.Save(label, html, png)
	if err != nil {
		d.logger.Warn("debug dump failed", zap.String("label", label), zap.Error(err))
		return
	}
	d.logger.Info("debug dump written", zap.String("label", label), zap.String("path", base))
}
