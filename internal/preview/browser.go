package preview

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/sirupsen/logrus"
)

var errBrowserUnavailable = errors.New("no browser available for in-page extraction")

// blockSelector matches the elements counted while waiting for the page to populate.
const blockSelector = "p, h1, h2, h3"

// cleanTextJS drops ad, navigation and comment subtrees and returns the
// remaining body text.
const cleanTextJS = `() => {
	const junk = [
		'script', 'style', 'noscript', 'iframe', 'nav', 'header', 'footer', 'aside', 'form',
		'[class*="ad-"]', '[class*="advert"]', '[id*="ad-"]', '[class*="sponsor"]',
		'[class*="nav"]', '[class*="menu"]', '[role="navigation"]',
		'[class*="comment"]', '[id*="comment"]', '[class*="share"]', '[class*="cookie"]'
	];
	junk.forEach(sel => document.querySelectorAll(sel).forEach(el => el.remove()));
	const root = document.querySelector('article') || document.querySelector('main') || document.body;
	return root ? root.innerText : '';
}`

// BrowserExtractor loads the page in a headless browser and reads the
// rendered text once enough paragraphs or headings exist.
type BrowserExtractor struct {
	attempts  int
	interval  time.Duration
	minBlocks int
	minLen    int
	log       logrus.FieldLogger
}

// NewBrowserExtractor polls up to attempts times, interval apart, for minBlocks elements.
func NewBrowserExtractor(attempts int, interval time.Duration, minBlocks, minLen int, logger logrus.FieldLogger) *BrowserExtractor {
	return &BrowserExtractor{
		attempts:  attempts,
		interval:  interval,
		minBlocks: minBlocks,
		minLen:    minLen,
		log:       logger.WithField("component", "browser"),
	}
}

// Name identifies the extractor in logs and metrics.
func (e *BrowserExtractor) Name() string { return "browser" }

// Extract renders u in headless Chrome and returns the text of its block elements.
func (e *BrowserExtractor) Extract(ctx context.Context, u string) (string, error) {
	path, ok := launcher.LookPath()
	if !ok {
		return "", errBrowserUnavailable
	}

	l := launcher.New().Bin(path).Context(ctx)
	defer l.Kill()

	controlURL, err := l.Launch()
	if err != nil {
		return "", fmt.Errorf("launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return "", fmt.Errorf("connect to browser: %w", err)
	}
	defer func() {
		if closeErr := browser.Close(); closeErr != nil {
			e.log.WithError(closeErr).Debug("close browser")
		}
	}()

	page, err := browser.Page(proto.TargetCreateTarget{URL: u})
	if err != nil {
		return "", fmt.Errorf("open page: %w", err)
	}
	page = page.Context(ctx)

	if err := page.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for page load: %w", err)
	}

	if err := e.waitForBlocks(ctx, page); err != nil {
		return "", err
	}

	res, err := page.Eval(cleanTextJS)
	if err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}

	text := CollapseWhitespace(res.Value.Str())
	if utf8.RuneCountInString(text) <= e.minLen {
		return "", fmt.Errorf("%w: %d characters", errTooShort, utf8.RuneCountInString(text))
	}
	return text, nil
}

func (e *BrowserExtractor) waitForBlocks(ctx context.Context, page *rod.Page) error {
	for attempt := 1; attempt <= e.attempts; attempt++ {
		els, err := page.Elements(blockSelector)
		if err == nil && len(els) >= e.minBlocks {
			return nil
		}
		if attempt == e.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.interval):
		}
	}
	return fmt.Errorf("page never showed %d content blocks", e.minBlocks)
}
