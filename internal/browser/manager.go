// Package browser attaches the DevTools network instrumentation to tabs on
// the target site and feeds their events into the pipeline.
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	"tv-alert-mirror/internal/metrics"
	"tv-alert-mirror/internal/pending"
	"tv-alert-mirror/internal/pipeline"
)

// State of one tab's instrumentation lifecycle.
type State int

const (
	StateDetached State = iota
	StateAttaching
	StateAttached
)

// cdpNoResource is the protocol error code for an evicted response body.
const cdpNoResource = -32000

// Options configure the manager.
type Options struct {
	// DevToolsURL is the running browser's debugging endpoint, http or ws.
	DevToolsURL string
	// TargetHost limits attachment to tabs whose URL contains it.
	TargetHost string
	// PendingSweepInterval drives expiry of abandoned pending requests.
	PendingSweepInterval time.Duration
}

type tab struct {
	state  State
	page   *rod.Page
	cancel context.CancelFunc
}

// Manager tracks tab lifecycle: detached → attaching → attached → detached.
// Attach and detach failures are logged, never retried; the tab simply stays
// in its prior state.
type Manager struct {
	opts   Options
	pipe   *pipeline.Pipeline
	table  *pending.Table
	logger zerolog.Logger

	mu      sync.Mutex
	browser *rod.Browser
	tabs    map[proto.TargetTargetID]*tab
}

// NewManager constructs a Manager feeding the given pipeline.
func NewManager(opts Options, pipe *pipeline.Pipeline, table *pending.Table, logger zerolog.Logger) *Manager {
	if opts.PendingSweepInterval <= 0 {
		opts.PendingSweepInterval = pending.DefaultTTL
	}
	return &Manager{
		opts:   opts,
		pipe:   pipe,
		table:  table,
		logger: logger.With().Str("component", "browser").Logger(),
		tabs:   make(map[proto.TargetTargetID]*tab),
	}
}

// Run connects to the browser and blocks, reconnecting with exponential
// backoff until the context is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	go m.sweepPending(ctx)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 0

	return backoff.Retry(func() error {
		if err := m.connect(ctx); err != nil {
			m.logger.Warn().Err(err).Str("url", m.opts.DevToolsURL).Msg("failed to connect to browser")
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}

		policy.Reset()
		m.watch(ctx)

		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		m.logger.Warn().Msg("browser connection lost, reconnecting")
		return errors.New("browser connection lost")
	}, backoff.WithContext(policy, ctx))
}

func (m *Manager) connect(ctx context.Context) error {
	controlURL, err := launcher.ResolveURL(m.opts.DevToolsURL)
	if err != nil {
		return err
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return err
	}

	m.mu.Lock()
	m.browser = browser
	m.tabs = make(map[proto.TargetTargetID]*tab)
	m.mu.Unlock()

	m.logger.Info().Str("url", controlURL).Msg("connected to browser")
	return nil
}

// watch discovers targets and reacts to navigation and tab removal. Blocks
// until the connection drops or the context is cancelled.
func (m *Manager) watch(ctx context.Context) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()
	if browser == nil {
		return
	}

	if err := (proto.TargetSetDiscoverTargets{Discover: true}).Call(browser); err != nil {
		m.logger.Error().Err(err).Msg("failed to enable target discovery")
		return
	}

	m.attachExisting(ctx, browser)

	wait := browser.EachEvent(
		func(ev *proto.TargetTargetInfoChanged) {
			m.onTargetChanged(ctx, browser, ev.TargetInfo)
		},
		func(ev *proto.TargetTargetCreated) {
			m.onTargetChanged(ctx, browser, ev.TargetInfo)
		},
		func(ev *proto.TargetTargetDestroyed) {
			m.detach(ev.TargetID)
		},
	)
	wait()

	m.detachAll()
}

func (m *Manager) attachExisting(ctx context.Context, browser *rod.Browser) {
	pages, err := browser.Pages()
	if err != nil {
		m.logger.Warn().Err(err).Msg("failed to list existing pages")
		return
	}
	for _, page := range pages {
		info, err := page.Info()
		if err != nil {
			continue
		}
		m.onTargetChanged(ctx, browser, &proto.TargetTargetInfo{
			TargetID: page.TargetID,
			Type:     "page",
			URL:      info.URL,
		})
	}
}

func (m *Manager) onTargetChanged(ctx context.Context, browser *rod.Browser, info *proto.TargetTargetInfo) {
	if info == nil || info.Type != "page" {
		return
	}
	if !strings.Contains(info.URL, m.opts.TargetHost) {
		return
	}

	m.mu.Lock()
	if existing, ok := m.tabs[info.TargetID]; ok && existing.state != StateDetached {
		m.mu.Unlock()
		return
	}
	m.tabs[info.TargetID] = &tab{state: StateAttaching}
	m.mu.Unlock()

	m.attach(ctx, browser, info.TargetID)
}

func (m *Manager) attach(ctx context.Context, browser *rod.Browser, targetID proto.TargetTargetID) {
	logger := m.logger.With().Str("tab", string(targetID)).Logger()

	page, err := browser.PageFromTarget(targetID)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to attach instrumentation")
		m.setDetached(targetID)
		return
	}

	tabCtx, cancel := context.WithCancel(ctx)
	page = page.Context(tabCtx)

	if err := (proto.NetworkEnable{}).Call(page); err != nil {
		logger.Warn().Err(err).Msg("failed to enable network tracking")
		cancel()
		m.setDetached(targetID)
		return
	}

	tabID := string(targetID)
	fetchBody := m.bodyFetcher(page)
	wait := page.EachEvent(
		func(ev *proto.NetworkRequestWillBeSent) {
			if ev.Request == nil {
				return
			}
			m.pipe.HandleRequest(tabID, string(ev.RequestID), ev.Request.URL, ev.Request.PostData)
		},
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil {
				return
			}
			m.pipe.HandleResponse(tabCtx, pipeline.ResponseEvent{
				TabID:     tabID,
				RequestID: string(ev.RequestID),
				URL:       ev.Response.URL,
			}, fetchBody)
		},
	)
	go wait()

	m.mu.Lock()
	m.tabs[targetID] = &tab{state: StateAttached, page: page, cancel: cancel}
	m.mu.Unlock()
	metrics.TabAttached(1)
	logger.Info().Msg("network tracking enabled")
}

// bodyFetcher retrieves a response body from the tab's debugging session.
// Bodies are evicted by the browser faster than processing can occur under
// heavy traffic; that surfaces as ErrBodyUnavailable.
func (m *Manager) bodyFetcher(page *rod.Page) pipeline.BodyFetcher {
	return func(ctx context.Context, requestID string) (string, error) {
		res, err := proto.NetworkGetResponseBody{
			RequestID: proto.NetworkRequestID(requestID),
		}.Call(page.Context(ctx))
		if err != nil {
			var protoErr *cdp.Error
			if errors.As(err, &protoErr) && protoErr.Code == cdpNoResource {
				return "", pipeline.ErrBodyUnavailable
			}
			return "", err
		}
		if res.Base64Encoded {
			decoded, decodeErr := base64.StdEncoding.DecodeString(res.Body)
			if decodeErr != nil {
				return "", decodeErr
			}
			return string(decoded), nil
		}
		return res.Body, nil
	}
}

func (m *Manager) detach(targetID proto.TargetTargetID) {
	m.mu.Lock()
	entry, ok := m.tabs[targetID]
	delete(m.tabs, targetID)
	m.mu.Unlock()
	if !ok || entry.state != StateAttached {
		return
	}
	// The tab is usually already gone; failures here are expected and the
	// session dies with the target either way.
	if entry.cancel != nil {
		entry.cancel()
	}
	metrics.TabAttached(-1)
	m.logger.Info().Str("tab", string(targetID)).Msg("instrumentation detached")
}

func (m *Manager) detachAll() {
	m.mu.Lock()
	tabs := m.tabs
	m.tabs = make(map[proto.TargetTargetID]*tab)
	m.mu.Unlock()
	for id, entry := range tabs {
		if entry.state == StateAttached {
			if entry.cancel != nil {
				entry.cancel()
			}
			metrics.TabAttached(-1)
			m.logger.Debug().Str("tab", string(id)).Msg("instrumentation detached")
		}
	}
}

func (m *Manager) setDetached(targetID proto.TargetTargetID) {
	m.mu.Lock()
	m.tabs[targetID] = &tab{state: StateDetached}
	m.mu.Unlock()
}

// AttachedTabs reports how many tabs are currently instrumented.
func (m *Manager) AttachedTabs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, entry := range m.tabs {
		if entry.state == StateAttached {
			count++
		}
	}
	return count
}

func (m *Manager) sweepPending(ctx context.Context) {
	ticker := time.NewTicker(m.opts.PendingSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.table.Sweep()
		}
	}
}
