package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"tv-alert-mirror/internal/records"
)

// Top-level state keys. customValidationRules belongs to the presentation
// layer; the pipeline never reads or writes it.
const (
	KeyAlerts                = "alerts"
	KeyLogs                  = "logs"
	KeyCustomValidationRules = "customValidationRules"
)

// KV is the durable store contract: asynchronous key/value persistence for
// the mirrored collections. Each call may fail; failures propagate to the
// caller, which decides whether to retry or abandon. There are no
// transactions across keys; each merger only ever touches one collection.
type KV interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	Set(ctx context.Context, values map[string]json.RawMessage) error
	Clear(ctx context.Context) error
}

// LoadAlerts reads the alerts collection; an absent key reads as empty.
func LoadAlerts(ctx context.Context, kv KV) ([]records.AlertRecord, error) {
	raw, err := kv.Get(ctx, KeyAlerts)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}
	value, ok := raw[KeyAlerts]
	if !ok || len(value) == 0 {
		return []records.AlertRecord{}, nil
	}
	var alerts []records.AlertRecord
	if err := json.Unmarshal(value, &alerts); err != nil {
		return nil, fmt.Errorf("decode stored alerts: %w", err)
	}
	return alerts, nil
}

// SaveAlerts replaces the alerts collection.
func SaveAlerts(ctx context.Context, kv KV, alerts []records.AlertRecord) error {
	value, err := json.Marshal(alerts)
	if err != nil {
		return fmt.Errorf("encode alerts: %w", err)
	}
	if err := kv.Set(ctx, map[string]json.RawMessage{KeyAlerts: value}); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	return nil
}

// LoadLogs reads the logs collection; an absent key reads as empty.
func LoadLogs(ctx context.Context, kv KV) ([]records.LogRecord, error) {
	raw, err := kv.Get(ctx, KeyLogs)
	if err != nil {
		return nil, fmt.Errorf("load logs: %w", err)
	}
	value, ok := raw[KeyLogs]
	if !ok || len(value) == 0 {
		return []records.LogRecord{}, nil
	}
	var logs []records.LogRecord
	if err := json.Unmarshal(value, &logs); err != nil {
		return nil, fmt.Errorf("decode stored logs: %w", err)
	}
	return logs, nil
}

// SaveLogs replaces the logs collection.
func SaveLogs(ctx context.Context, kv KV, logs []records.LogRecord) error {
	value, err := json.Marshal(logs)
	if err != nil {
		return fmt.Errorf("encode logs: %w", err)
	}
	if err := kv.Set(ctx, map[string]json.RawMessage{KeyLogs: value}); err != nil {
		return fmt.Errorf("save logs: %w", err)
	}
	return nil
}

// Seed initialises absent collections with empty values, mirroring the
// install-time defaults.
func Seed(ctx context.Context, kv KV) error {
	existing, err := kv.Get(ctx, KeyAlerts, KeyLogs)
	if err != nil {
		return fmt.Errorf("seed state: %w", err)
	}
	seed := make(map[string]json.RawMessage)
	if _, ok := existing[KeyAlerts]; !ok {
		seed[KeyAlerts] = json.RawMessage(`[]`)
	}
	if _, ok := existing[KeyLogs]; !ok {
		seed[KeyLogs] = json.RawMessage(`[]`)
	}
	if len(seed) == 0 {
		return nil
	}
	return kv.Set(ctx, seed)
}
