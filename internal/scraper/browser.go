package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
)

// Grid UI selectors. The portal renders results in a Kendo-style grid; an
// upstream redesign breaks these, which surfaces as an ExtractionError.
const (
	selSearchInput = `input[name="searchQuery"]`
	selSearchForm  = `form.property-search`
	selGrid        = `.k-grid`
	selGridContent = `.k-grid-content`
	selGridRows    = `.k-grid-content table tbody tr`
	selNoRecords   = `.k-grid-norecords`
	selPagerNext   = `.k-pager-nav[title="Go to the next page"]`
)

// stealthScript hides the usual automation fingerprints before navigation
const stealthScript = `
	Object.defineProperty(navigator, 'webdriver', { get: () => undefined, configurable: true });
	Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5], configurable: true });
	Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'], configurable: true });
	if (!window.chrome) { window.chrome = {}; }
	window.chrome.runtime = {};
`

// widenPageSizeScript asks the grid's client-side API for a 1000-row page,
// which avoids pagination entirely when the grid exposes it
const widenPageSizeScript = `(() => {
	const el = document.querySelector('.k-grid');
	if (!el || !window.jQuery) { return false; }
	const grid = window.jQuery(el).data('kendoGrid');
	if (!grid || !grid.dataSource) { return false; }
	grid.dataSource.pageSize(1000);
	return true;
})()`

// gridSettledScript reports once the grid shows either rows or the explicit
// no-records indicator
const gridSettledScript = `(() => {
	const rows = document.querySelectorAll('.k-grid-content table tbody tr');
	if (rows.length > 0) { return true; }
	const empty = document.querySelector('.k-grid-norecords');
	return empty !== null && empty.offsetParent !== null;
})()`

// BrowserScraper is the fallback scraping path: it drives a headless browser
// through the portal's search UI when the direct API cannot be used. Each
// invocation gets its own isolated browser context so concurrent workers
// never share page state or cookies.
type BrowserScraper struct {
	logger arbor.ILogger

	searchPageURL string
	userAgent     string
	headless      bool
	timeout       time.Duration
	maxGridPages  int

	typeDelayMin  time.Duration
	typeDelayMax  time.Duration
	humanPauseMin time.Duration
	humanPauseMax time.Duration
}

// NewBrowserScraper creates the fallback scraper from configuration
func NewBrowserScraper(portal *common.PortalConfig, config *common.ScraperConfig, logger arbor.ILogger) *BrowserScraper {
	maxGridPages := portal.MaxGridPages
	if maxGridPages <= 0 {
		maxGridPages = 50
	}

	return &BrowserScraper{
		logger:        logger,
		searchPageURL: portal.SearchPageURL,
		userAgent:     portal.UserAgent,
		headless:      config.Headless,
		timeout:       common.Duration(config.BrowserTimeout, 3*time.Minute),
		maxGridPages:  maxGridPages,
		typeDelayMin:  common.Duration(config.TypeDelayMin, 50*time.Millisecond),
		typeDelayMax:  common.Duration(config.TypeDelayMax, 150*time.Millisecond),
		humanPauseMin: common.Duration(config.HumanPauseMin, 500*time.Millisecond),
		humanPauseMax: common.Duration(config.HumanPauseMax, 1500*time.Millisecond),
	}
}

// Scrape performs a full grid search for a term and extracts every row.
// Zero rows with an explicit no-records indicator is a success.
func (b *BrowserScraper) Scrape(ctx context.Context, searchTerm string) ([]models.PropertyRecord, error) {
	browserCtx, cancel := b.newBrowserContext(ctx)
	defer cancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, b.timeout)
	defer runCancel()

	b.logger.Debug().
		Str("search_term", searchTerm).
		Str("url", b.searchPageURL).
		Msg("Starting browser-path scrape")

	if err := chromedp.Run(runCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(stealthScript).Do(ctx)
			return err
		}),
		chromedp.Navigate(b.searchPageURL),
		chromedp.WaitVisible(selSearchInput, chromedp.ByQuery),
	); err != nil {
		return nil, &ExtractionError{Selector: selSearchInput, Cause: fmt.Errorf("search page did not render: %w", err)}
	}

	if err := b.typeSearchTerm(runCtx, searchTerm); err != nil {
		return nil, err
	}

	b.humanPause()

	if err := chromedp.Run(runCtx,
		chromedp.Submit(selSearchForm, chromedp.ByQuery),
	); err != nil {
		return nil, &ExtractionError{Selector: selSearchForm, Cause: fmt.Errorf("failed to submit search: %w", err)}
	}

	b.humanPause()

	// Wait for the grid to settle on rows or on the explicit empty state
	var settled bool
	if err := chromedp.Run(runCtx,
		chromedp.Poll(gridSettledScript, &settled, chromedp.WithPollingTimeout(45*time.Second)),
	); err != nil || !settled {
		return nil, &ExtractionError{Selector: selGrid, Cause: fmt.Errorf("results grid never settled: %w", err)}
	}

	if empty, err := b.isNoRecords(runCtx); err != nil {
		return nil, err
	} else if empty {
		b.logger.Debug().Str("search_term", searchTerm).Msg("Grid reports no records")
		return []models.PropertyRecord{}, nil
	}

	// Prefer widening the page size over paginating
	var widened bool
	if err := chromedp.Run(runCtx, chromedp.Evaluate(widenPageSizeScript, &widened)); err != nil {
		widened = false
	}
	if widened {
		// Page size change triggers a reload of the grid body
		if err := chromedp.Run(runCtx,
			chromedp.Poll(gridSettledScript, &settled, chromedp.WithPollingTimeout(30*time.Second)),
		); err != nil {
			return nil, &ExtractionError{Selector: selGrid, Cause: fmt.Errorf("grid did not reload after widening page size: %w", err)}
		}
	}

	scrapedAt := time.Now()
	var records []models.PropertyRecord

	for gridPage := 1; gridPage <= b.maxGridPages; gridPage++ {
		rows, err := b.extractRows(runCtx)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			records = append(records, mapGridRow(row, searchTerm, scrapedAt))
		}

		b.logger.Debug().
			Str("search_term", searchTerm).
			Int("grid_page", gridPage).
			Int("page_rows", len(rows)).
			Int("total_rows", len(records)).
			Msg("Grid page extracted")

		if widened {
			break
		}

		more, err := b.nextPage(runCtx)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
		if gridPage == b.maxGridPages {
			b.logger.Warn().
				Str("search_term", searchTerm).
				Int("max_grid_pages", b.maxGridPages).
				Msg("Grid pagination hit safety cap")
		}
	}

	return records, nil
}

// newBrowserContext builds an isolated allocator + browser context pair.
// Both cancel funcs collapse into one so every exit path releases the
// browser.
func (b *BrowserScraper) newBrowserContext(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(b.userAgent),
		chromedp.Flag("headless", b.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("excludeSwitches", "enable-automation"),
		chromedp.Flag("useAutomationExtension", false),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	return browserCtx, func() {
		browserCancel()
		allocCancel()
	}
}

// typeSearchTerm types the query character by character with randomized
// delays so the input timing looks human
func (b *BrowserScraper) typeSearchTerm(ctx context.Context, searchTerm string) error {
	if err := chromedp.Run(ctx,
		chromedp.Click(selSearchInput, chromedp.ByQuery),
	); err != nil {
		return &ExtractionError{Selector: selSearchInput, Cause: err}
	}

	for _, ch := range searchTerm {
		if err := chromedp.Run(ctx,
			chromedp.SendKeys(selSearchInput, string(ch), chromedp.ByQuery),
		); err != nil {
			return &ExtractionError{Selector: selSearchInput, Cause: err}
		}
		time.Sleep(randomDelay(b.typeDelayMin, b.typeDelayMax))
	}
	return nil
}

func (b *BrowserScraper) humanPause() {
	time.Sleep(randomDelay(b.humanPauseMin, b.humanPauseMax))
}

func (b *BrowserScraper) isNoRecords(ctx context.Context) (bool, error) {
	var empty bool
	script := `(() => {
		const el = document.querySelector('.k-grid-norecords');
		return el !== null && el.offsetParent !== null;
	})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &empty)); err != nil {
		return false, &ExtractionError{Selector: selNoRecords, Cause: err}
	}
	return empty, nil
}

// extractRows pulls the rendered grid HTML and parses rows by structural
// position. The grid is scrolled fully right first so virtualized trailing
// columns are materialized in the DOM.
func (b *BrowserScraper) extractRows(ctx context.Context) ([]gridRow, error) {
	var gridHTML string
	scrollRight := `(() => {
		const c = document.querySelector('.k-grid-content');
		if (c) { c.scrollLeft = c.scrollWidth; }
		return true;
	})()`

	var scrolled bool
	if err := chromedp.Run(ctx,
		chromedp.Evaluate(scrollRight, &scrolled),
		chromedp.Sleep(250*time.Millisecond),
		chromedp.OuterHTML(selGrid, &gridHTML, chromedp.ByQuery),
	); err != nil {
		return nil, &ExtractionError{Selector: selGrid, Cause: err}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(gridHTML))
	if err != nil {
		return nil, &ExtractionError{Selector: selGrid, Cause: fmt.Errorf("failed to parse grid HTML: %w", err)}
	}

	var rows []gridRow
	doc.Find(".k-grid-content table tbody tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("td")
		if cells.Length() < 7 {
			return
		}
		cell := func(i int) string {
			return strings.TrimSpace(cells.Eq(i).Text())
		}
		row := gridRow{
			ParcelID:       cell(0),
			OwnerName:      cell(1),
			PropertyType:   cell(2),
			City:           cell(3),
			Address:        cell(4),
			AssessedValue:  cell(5),
			AppraisedValue: cell(6),
		}
		if cells.Length() > 7 {
			row.GeoID = cell(7)
		}
		if cells.Length() > 8 {
			row.LegalDescription = cell(8)
		}
		if row.ParcelID != "" {
			rows = append(rows, row)
		}
	})

	return rows, nil
}

// nextPage advances the grid pager. Returns false when the pager reports the
// last page.
func (b *BrowserScraper) nextPage(ctx context.Context) (bool, error) {
	var disabled bool
	script := `(() => {
		const btn = document.querySelector('.k-pager-nav[title="Go to the next page"]');
		if (!btn) { return true; }
		return btn.classList.contains('k-state-disabled') || btn.disabled === true;
	})()`
	if err := chromedp.Run(ctx, chromedp.Evaluate(script, &disabled)); err != nil {
		return false, &ExtractionError{Selector: selPagerNext, Cause: err}
	}
	if disabled {
		return false, nil
	}

	b.humanPause()

	var settled bool
	if err := chromedp.Run(ctx,
		chromedp.Click(selPagerNext, chromedp.ByQuery),
		chromedp.Poll(gridSettledScript, &settled, chromedp.WithPollingTimeout(30*time.Second)),
	); err != nil {
		return false, &ExtractionError{Selector: selPagerNext, Cause: fmt.Errorf("grid did not settle after paging: %w", err)}
	}
	return true, nil
}

func randomDelay(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}
