// Package pipeline correlates intercepted network events with their
// requests and merges the payloads into the durable store.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tv-alert-mirror/internal/endpoint"
	"tv-alert-mirror/internal/metrics"
	"tv-alert-mirror/internal/notify"
	"tv-alert-mirror/internal/pending"
	"tv-alert-mirror/internal/records"
	"tv-alert-mirror/internal/storage"
)

// ErrBodyUnavailable marks a response body the browser already evicted.
// Expected under load; the event is dropped, never retried.
var ErrBodyUnavailable = errors.New("pipeline: response body no longer available")

// BodyFetcher retrieves a response body on demand.
type BodyFetcher func(ctx context.Context, requestID string) (string, error)

// ResponseEvent is one response-received instrumentation event.
type ResponseEvent struct {
	TabID     string
	RequestID string
	URL       string
}

// envelope is the remote service's response wrapper. The success marker is
// required; anything else is dropped without retry.
type envelope struct {
	S      string          `json:"s"`
	R      json.RawMessage `json:"r"`
	ErrMsg string          `json:"errmsg"`
}

type idListBody struct {
	Payload struct {
		AlertIDs []int64 `json:"alert_ids"`
		FireIDs  []int64 `json:"fire_ids"`
	} `json:"payload"`
	FireIDs []int64 `json:"fire_ids"`
}

// Options tune a Pipeline.
type Options struct {
	MaxLogsPerAlert int
	LogRetention    time.Duration
	Now             func() time.Time
}

// Pipeline owns the correlation and merge path from instrumentation events
// to the durable store and the change notifier.
type Pipeline struct {
	pendingTable *pending.Table
	gate         *Gate
	store        storage.KV
	notifier     notify.Notifier
	logger       zerolog.Logger

	maxLogsPerAlert int
	logRetention    time.Duration
	now             func() time.Time
}

// New wires a Pipeline. The pending table and gate are injected so tests
// and tabs can share or isolate them explicitly.
func New(table *pending.Table, gate *Gate, store storage.KV, notifier notify.Notifier, logger zerolog.Logger, opts Options) *Pipeline {
	p := &Pipeline{
		pendingTable:    table,
		gate:            gate,
		store:           store,
		notifier:        notifier,
		logger:          logger.With().Str("component", "pipeline").Logger(),
		maxLogsPerAlert: opts.MaxLogsPerAlert,
		logRetention:    opts.LogRetention,
		now:             opts.Now,
	}
	if p.maxLogsPerAlert <= 0 {
		p.maxLogsPerAlert = records.DefaultMaxLogsPerAlert
	}
	if p.logRetention <= 0 {
		p.logRetention = records.DefaultLogRetention
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.notifier == nil {
		p.notifier = notify.Nop{}
	}
	return p
}

// HandleRequest records a request-will-be-sent event. Only allow-listed
// URLs are stored, which bounds table growth.
func (p *Pipeline) HandleRequest(tabID, requestID, url, body string) {
	if !endpoint.IsTracked(url) {
		return
	}
	metrics.ObserveEvent("request")
	p.pendingTable.Record(requestID, url, body)
}

// HandleResponse processes a response-received event end to end. Every
// failure is scoped to this one event: logged, counted, dropped.
func (p *Pipeline) HandleResponse(ctx context.Context, event ResponseEvent, fetchBody BodyFetcher) {
	kind, tracked := endpoint.Classify(event.URL)
	if !tracked {
		return
	}
	metrics.ObserveEvent("response")
	logger := p.logger.With().
		Str("request_id", event.RequestID).
		Str("tab_id", event.TabID).
		Stringer("endpoint", kind).
		Logger()

	if !p.gate.ShouldProcess(p.now()) {
		metrics.DropEvent(metrics.ReasonDebounced)
		logger.Debug().Msg("response suppressed by debounce gate")
		return
	}

	body, err := fetchBody(ctx, event.RequestID)
	if err != nil {
		if errors.Is(err, ErrBodyUnavailable) {
			metrics.DropEvent(metrics.ReasonBodyUnavailable)
			logger.Debug().Msg("response body no longer available")
			return
		}
		metrics.DropEvent(metrics.ReasonBodyUnavailable)
		logger.Warn().Err(err).Msg("failed to fetch response body")
		return
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		metrics.DropEvent(metrics.ReasonMalformed)
		logger.Warn().Err(err).Msg("failed to parse response body")
		p.pendingTable.Expire(event.RequestID)
		return
	}
	if env.S != "ok" {
		metrics.DropEvent(metrics.ReasonMalformed)
		logger.Warn().Str("status", env.S).Str("errmsg", env.ErrMsg).Msg("response missing success marker")
		return
	}

	if err := p.dispatch(ctx, kind, event.RequestID, env, logger); err != nil {
		logger.Error().Err(err).Msg("failed to process response")
	}
}

// dispatch routes a successful envelope by operation kind.
func (p *Pipeline) dispatch(ctx context.Context, kind endpoint.Kind, requestID string, env envelope, logger zerolog.Logger) error {
	switch kind {
	case endpoint.KindListAlerts:
		var raws []json.RawMessage
		if err := json.Unmarshal(env.R, &raws); err != nil {
			metrics.DropEvent(metrics.ReasonMalformed)
			return fmt.Errorf("decode list_alerts result: %w", err)
		}
		return p.ApplyAlertList(ctx, raws)

	case endpoint.KindCreateAlert:
		return p.applySingleAlert(ctx, kind, env.R)

	case endpoint.KindModifyRestartAlert:
		return p.applySingleAlert(ctx, kind, env.R)

	case endpoint.KindListFires:
		var raws []json.RawMessage
		if err := json.Unmarshal(env.R, &raws); err != nil {
			metrics.DropEvent(metrics.ReasonMalformed)
			return fmt.Errorf("decode list_fires result: %w", err)
		}
		return p.ApplyFires(ctx, raws)

	default:
		// stop/restart/delete responses carry no identifying payload: the
		// target ids only exist in the original request body, so a lost
		// correlation is a hard stop for this event.
		entry, ok := p.pendingTable.Lookup(requestID)
		if !ok {
			metrics.DropEvent(metrics.ReasonLostCorrelation)
			logger.Warn().Msg("no request data found for id-list operation")
			return nil
		}
		if err := p.applyIDList(ctx, kind, entry.Body); err != nil {
			return err
		}
		p.pendingTable.Expire(requestID)
		return nil
	}
}

// ApplyAlertList replaces the stored alerts collection with the parse of a
// full listing, preserving response order.
func (p *Pipeline) ApplyAlertList(ctx context.Context, raws []json.RawMessage) error {
	alerts := records.ParseAlertList(raws, p.logger)
	if err := storage.SaveAlerts(ctx, p.store, alerts); err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}
	metrics.Merge(endpoint.KindListAlerts.String())
	p.logger.Info().Int("count", len(alerts)).Msg("alerts collection replaced")
	p.publishAlerts(ctx, alerts)
	return nil
}

func (p *Pipeline) applySingleAlert(ctx context.Context, kind endpoint.Kind, raw json.RawMessage) error {
	record, err := records.ParseAlert(raw)
	if err != nil {
		metrics.DropEvent(metrics.ReasonMalformed)
		return fmt.Errorf("parse %s payload: %w", kind, err)
	}

	alerts, err := storage.LoadAlerts(ctx, p.store)
	if err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}

	if kind == endpoint.KindCreateAlert {
		alerts = records.MergeCreate(alerts, record)
	} else {
		alerts = records.MergeModify(alerts, record)
	}

	if err := storage.SaveAlerts(ctx, p.store, alerts); err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}
	metrics.Merge(kind.String())
	p.logger.Info().Int64("alert_id", record.ID).Stringer("endpoint", kind).Msg("alert merged")
	p.publishAlerts(ctx, alerts)
	return nil
}

// ApplyFires folds a batch of fire payloads into the stored logs.
func (p *Pipeline) ApplyFires(ctx context.Context, raws []json.RawMessage) error {
	logs, err := storage.LoadLogs(ctx, p.store)
	if err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}

	logs, added := records.MergeFires(logs, raws, p.maxLogsPerAlert, p.logger)
	if err := storage.SaveLogs(ctx, p.store, logs); err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}
	metrics.Merge(endpoint.KindListFires.String())
	p.logger.Info().Int("new_logs", added).Int("total", len(logs)).Msg("fires merged")
	p.publishLogs(ctx, logs)
	return nil
}

func (p *Pipeline) applyIDList(ctx context.Context, kind endpoint.Kind, body string) error {
	ids, err := parseIDList(kind, body)
	if err != nil {
		metrics.DropEvent(metrics.ReasonMalformed)
		return fmt.Errorf("parse %s request body: %w", kind, err)
	}

	if kind == endpoint.KindDeleteFires {
		logs, err := storage.LoadLogs(ctx, p.store)
		if err != nil {
			metrics.DropEvent(metrics.ReasonStorage)
			return err
		}
		logs = records.DeleteFires(logs, ids)
		if err := storage.SaveLogs(ctx, p.store, logs); err != nil {
			metrics.DropEvent(metrics.ReasonStorage)
			return err
		}
		metrics.Merge(kind.String())
		p.logger.Info().Int("deleted", len(ids)).Msg("fires deleted")
		p.publishLogs(ctx, logs)
		return nil
	}

	alerts, err := storage.LoadAlerts(ctx, p.store)
	if err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}

	var action string
	switch kind {
	case endpoint.KindStopAlerts:
		alerts = records.FlipStatus(alerts, ids, records.StatusInactive)
		action = notify.ActionStop
	case endpoint.KindRestartAlerts:
		alerts = records.FlipStatus(alerts, ids, records.StatusActive)
		action = notify.ActionRestart
	case endpoint.KindDeleteAlerts:
		alerts = records.DeleteAlerts(alerts, ids)
		action = notify.ActionDelete
	default:
		return fmt.Errorf("endpoint %s does not correlate by request", kind)
	}

	if err := storage.SaveAlerts(ctx, p.store, alerts); err != nil {
		metrics.DropEvent(metrics.ReasonStorage)
		return err
	}
	metrics.Merge(kind.String())
	p.logger.Info().Ints64("alert_ids", ids).Str("action", action).Msg("alert status merged")

	event, err := notify.AlertsAction(ids, action)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to build notification")
		return nil
	}
	p.publish(ctx, event)
	return nil
}

// SweepLogs drops log records past the retention window. Runs on a fixed
// schedule, independent of the per-alert cap.
func (p *Pipeline) SweepLogs(ctx context.Context) error {
	logs, err := storage.LoadLogs(ctx, p.store)
	if err != nil {
		return err
	}
	kept := records.SweepLogs(logs, p.now(), p.logRetention)
	if len(kept) == len(logs) {
		return nil
	}
	if err := storage.SaveLogs(ctx, p.store, kept); err != nil {
		return err
	}
	p.logger.Info().Int("removed", len(logs)-len(kept)).Msg("old logs swept")
	return nil
}

func parseIDList(kind endpoint.Kind, body string) ([]int64, error) {
	var parsed idListBody
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, err
	}
	var ids []int64
	if kind == endpoint.KindDeleteFires {
		ids = parsed.Payload.FireIDs
		if len(ids) == 0 {
			ids = parsed.FireIDs
		}
	} else {
		ids = parsed.Payload.AlertIDs
	}
	if ids == nil {
		return nil, fmt.Errorf("request body carries no target ids")
	}
	return ids, nil
}

func (p *Pipeline) publishAlerts(ctx context.Context, alerts []records.AlertRecord) {
	event, err := notify.AlertsUpdated(alerts)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to build notification")
		return
	}
	p.publish(ctx, event)
}

func (p *Pipeline) publishLogs(ctx context.Context, logs []records.LogRecord) {
	event, err := notify.LogsUpdated(logs)
	if err != nil {
		p.logger.Warn().Err(err).Msg("failed to build notification")
		return
	}
	p.publish(ctx, event)
}

func (p *Pipeline) publish(ctx context.Context, event notify.Event) {
	if err := p.notifier.Notify(ctx, event); err != nil {
		p.logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to deliver notification")
	}
}
