// Package notify broadcasts typed change events to presentation clients.
// Delivery is fire and forget: no connected listener is not an error.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"tv-alert-mirror/internal/records"
)

// EventType tags a change notification.
type EventType string

const (
	// EventAlertsUpdated signals a change to the alerts collection.
	EventAlertsUpdated EventType = "ALERTS_UPDATED"
	// EventLogsUpdated signals a change to the logs collection.
	EventLogsUpdated EventType = "LOGS_UPDATED"
)

// Actions carried by id-list alert notifications.
const (
	ActionStop    = "stop"
	ActionRestart = "restart"
	ActionDelete  = "delete"
)

// Event is one change notification.
type Event struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data"`
}

// AlertsActionData is the payload of id-list alert notifications.
type AlertsActionData struct {
	AlertIDs []int64 `json:"alertIds"`
	Action   string  `json:"action"`
}

// Notifier delivers change events to whoever is listening.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// AlertsUpdated builds a full-collection alerts notification.
func AlertsUpdated(alerts []records.AlertRecord) (Event, error) {
	data, err := json.Marshal(alerts)
	if err != nil {
		return Event{}, fmt.Errorf("encode alerts notification: %w", err)
	}
	return Event{Type: EventAlertsUpdated, Data: data}, nil
}

// AlertsAction builds an id-list alerts notification.
func AlertsAction(ids []int64, action string) (Event, error) {
	data, err := json.Marshal(AlertsActionData{AlertIDs: ids, Action: action})
	if err != nil {
		return Event{}, fmt.Errorf("encode alerts action notification: %w", err)
	}
	return Event{Type: EventAlertsUpdated, Data: data}, nil
}

// LogsUpdated builds a full-collection logs notification.
func LogsUpdated(logs []records.LogRecord) (Event, error) {
	data, err := json.Marshal(logs)
	if err != nil {
		return Event{}, fmt.Errorf("encode logs notification: %w", err)
	}
	return Event{Type: EventLogsUpdated, Data: data}, nil
}

// Nop discards every event. Used when the hub is disabled.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Event) error { return nil }

var _ Notifier = Nop{}
