// -----------------------------------------------------------------------
// Token Lifecycle Manager
// The portal only issues bearer tokens as a side effect of a real
// browser-originated search, so refresh drives a headless browser through
// a throwaway query and captures the Authorization header off the
// outgoing request.
// -----------------------------------------------------------------------

package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
)

// Token is the immutable credential snapshot. Readers always see a whole
// value: the manager swaps the pointer, never mutates fields in place.
type Token struct {
	Value       string
	RefreshedAt time.Time
}

// Manager owns the single shared bearer credential
type Manager struct {
	current atomic.Pointer[Token]

	refreshCount atomic.Int64
	failureCount atomic.Int64
	autoRunning  atomic.Bool

	refreshMu sync.Mutex // Serializes browser-driven refreshes
	cron      *cron.Cron
	cronID    cron.EntryID

	logger arbor.ILogger

	searchPageURL  string
	userAgent      string
	probeTerm      string
	headless       bool
	refreshTimeout time.Duration
	static         bool
}

// NewManager creates the token manager. A statically-configured long-lived
// credential is used verbatim and disables the browser refresh path.
func NewManager(config *common.Config, logger arbor.ILogger) *Manager {
	m := &Manager{
		cron:           cron.New(),
		logger:         logger,
		searchPageURL:  config.Portal.SearchPageURL,
		userAgent:      config.Portal.UserAgent,
		probeTerm:      config.Token.ProbeTerm,
		headless:       config.Token.Headless,
		refreshTimeout: common.Duration(config.Token.RefreshTimeout, 90*time.Second),
	}

	if static := strings.TrimSpace(config.Token.StaticToken); static != "" {
		m.static = true
		m.current.Store(&Token{Value: static, RefreshedAt: time.Now()})
		logger.Info().Msg("Static credential configured, browser-driven token refresh disabled")
	}

	return m
}

// Token returns the current bearer value without blocking
func (m *Manager) Token() (string, bool) {
	t := m.current.Load()
	if t == nil || t.Value == "" {
		return "", false
	}
	return t.Value, true
}

// ForceRefresh synchronously refreshes the credential. A failure leaves the
// previous token in place; it may still be plausibly valid.
func (m *Manager) ForceRefresh(ctx context.Context) error {
	return m.Refresh(ctx)
}

// Refresh captures a fresh token through the browser. Concurrent callers
// serialize; a caller that waited behind a successful refresh reuses it
// instead of burning another browser session.
func (m *Manager) Refresh(ctx context.Context) error {
	if m.static {
		return nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if t := m.current.Load(); t != nil && time.Since(t.RefreshedAt) < 10*time.Second {
		return nil
	}

	value, err := m.captureToken(ctx)
	if err != nil {
		m.failureCount.Add(1)
		m.logger.Warn().
			Err(err).
			Int64("failure_count", m.failureCount.Load()).
			Msg("Token refresh failed, keeping previous token")
		return fmt.Errorf("token refresh failed: %w", err)
	}

	m.current.Store(&Token{Value: value, RefreshedAt: time.Now()})
	m.refreshCount.Add(1)

	m.logger.Info().
		Int64("refresh_count", m.refreshCount.Load()).
		Msg("Bearer token refreshed")

	return nil
}

// captureToken drives an isolated headless browser through a throwaway
// search and listens for the Authorization header on the outgoing XHR
func (m *Manager) captureToken(ctx context.Context) (string, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.UserAgent(m.userAgent),
		chromedp.Flag("headless", m.headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	runCtx, runCancel := context.WithTimeout(browserCtx, m.refreshTimeout)
	defer runCancel()

	tokenChan := make(chan string, 1)

	chromedp.ListenTarget(runCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok {
			return
		}
		authHeader, exists := req.Request.Headers["Authorization"]
		if !exists {
			return
		}
		if auth, ok := authHeader.(string); ok && strings.HasPrefix(auth, "Bearer ") {
			select {
			case tokenChan <- strings.TrimPrefix(auth, "Bearer "):
			default:
			}
		}
	})

	if err := chromedp.Run(runCtx,
		network.Enable(),
		chromedp.Navigate(m.searchPageURL),
		chromedp.WaitVisible(`input[name="searchQuery"]`, chromedp.ByQuery),
		chromedp.SendKeys(`input[name="searchQuery"]`, m.probeTerm, chromedp.ByQuery),
		chromedp.Submit(`form.property-search`, chromedp.ByQuery),
	); err != nil {
		return "", fmt.Errorf("probe search failed: %w", err)
	}

	select {
	case token := <-tokenChan:
		return token, nil
	case <-runCtx.Done():
		return "", fmt.Errorf("no authorized request observed: %w", runCtx.Err())
	}
}

// StartAutoRefresh begins refreshing on the given schedule: either a plain
// interval ("4m") or a cron expression. The refresh loop runs independently
// of any worker; its failures never propagate to scrape callers.
func (m *Manager) StartAutoRefresh(schedule string) error {
	if m.static {
		m.logger.Debug().Msg("Auto-refresh skipped: static credential in use")
		return nil
	}
	if m.autoRunning.Load() {
		return fmt.Errorf("auto-refresh already running")
	}

	spec := schedule
	if _, err := time.ParseDuration(schedule); err == nil {
		spec = "@every " + schedule
	}

	id, err := m.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout+10*time.Second)
		defer cancel()
		// Failures are retried on the next tick, never fatal
		_ = m.Refresh(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule token refresh: %w", err)
	}

	m.cronID = id
	m.cron.Start()
	m.autoRunning.Store(true)

	m.logger.Info().
		Str("schedule", schedule).
		Msg("Token auto-refresh started")

	return nil
}

// StopAutoRefresh halts the refresh timer
func (m *Manager) StopAutoRefresh() {
	if !m.autoRunning.Swap(false) {
		return
	}
	m.cron.Remove(m.cronID)
	m.cron.Stop()
	m.logger.Info().Msg("Token auto-refresh stopped")
}

// Health exposes the manager's refresh statistics
func (m *Manager) Health() models.TokenHealth {
	t := m.current.Load()

	health := models.TokenHealth{
		HasToken:             t != nil && t.Value != "",
		RefreshCount:         m.refreshCount.Load(),
		FailureCount:         m.failureCount.Load(),
		IsAutoRefreshRunning: m.autoRunning.Load(),
	}
	if t != nil {
		health.TimeSinceLastRefresh = time.Since(t.RefreshedAt)
	}

	total := health.RefreshCount + health.FailureCount
	if total > 0 {
		health.FailureRate = float64(health.FailureCount) / float64(total)
	}

	health.Healthy = health.HasToken && (total == 0 || health.FailureRate < 0.5)
	return health
}

// Shutdown stops auto-refresh and clears the credential
func (m *Manager) Shutdown() {
	m.StopAutoRefresh()
	m.current.Store(nil)
}
