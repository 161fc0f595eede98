package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tv-alert-mirror/internal/notify"
	"tv-alert-mirror/internal/pending"
	"tv-alert-mirror/internal/storage"
)

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(_ context.Context, event notify.Event) error {
	c.events = append(c.events, event)
	return nil
}

type fixture struct {
	pipe     *Pipeline
	table    *pending.Table
	store    *storage.MemoryStore
	notifier *captureNotifier
	clock    *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	current := time.Unix(1000, 0)
	now := func() time.Time { return current }

	store := storage.NewMemoryStore()
	notifier := &captureNotifier{}
	table := pending.NewTable(zerolog.Nop(), pending.WithClock(now))
	pipe := New(table, NewGate(time.Second), store, notifier, zerolog.Nop(), Options{Now: now})

	return &fixture{pipe: pipe, table: table, store: store, notifier: notifier, clock: &current}
}

func (f *fixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func staticBody(body string) BodyFetcher {
	return func(context.Context, string) (string, error) {
		return body, nil
	}
}

func alertEnvelope(id int64, name string) string {
	return fmt.Sprintf(`{"s":"ok","r":{
		"alert_id": %d,
		"name": %q,
		"symbol": "{\"symbol\":{\"symbol\":\"BTCUSD\"}}",
		"resolution": "60",
		"message": "fired",
		"active": true
	}}`, id, name)
}

func responseFor(kind string) ResponseEvent {
	return ResponseEvent{
		TabID:     "tab-1",
		RequestID: "req-" + kind,
		URL:       "https://pricealerts.tradingview.com/" + kind,
	}
}

func storedAlerts(t *testing.T, store storage.KV) []map[string]any {
	t.Helper()
	raw, err := store.Get(context.Background(), storage.KeyAlerts)
	if err != nil {
		t.Fatalf("读取 alerts 失败: %v", err)
	}
	value, ok := raw[storage.KeyAlerts]
	if !ok {
		return nil
	}
	var alerts []map[string]any
	if err := json.Unmarshal(value, &alerts); err != nil {
		t.Fatalf("解析 alerts 失败: %v", err)
	}
	return alerts
}

func storedLogs(t *testing.T, store storage.KV) []map[string]any {
	t.Helper()
	raw, err := store.Get(context.Background(), storage.KeyLogs)
	if err != nil {
		t.Fatalf("读取 logs 失败: %v", err)
	}
	value, ok := raw[storage.KeyLogs]
	if !ok {
		return nil
	}
	var logs []map[string]any
	if err := json.Unmarshal(value, &logs); err != nil {
		t.Fatalf("解析 logs 失败: %v", err)
	}
	return logs
}

func TestHandleResponseListAlerts(t *testing.T) {
	f := newFixture(t)
	body := `{"s":"ok","r":[{
		"alert_id": 7,
		"name": "btc",
		"symbol": "{\"symbol\":{\"symbol\":\"BTCUSD\"}}",
		"resolution": "240",
		"message": "crossed",
		"active": true
	}]}`

	f.pipe.HandleResponse(context.Background(), responseFor("list_alerts"), staticBody(body))

	alerts := storedAlerts(t, f.store)
	if len(alerts) != 1 {
		t.Fatalf("应存储 1 条 alert: %d", len(alerts))
	}
	if alerts[0]["ticker"] != "BTCUSD, 4h" {
		t.Fatalf("ticker 不正确: %v", alerts[0]["ticker"])
	}

	if len(f.notifier.events) != 1 || f.notifier.events[0].Type != notify.EventAlertsUpdated {
		t.Fatalf("应发出一条 ALERTS_UPDATED 通知: %#v", f.notifier.events)
	}
}

func TestHandleResponseIgnoresUntrackedURL(t *testing.T) {
	f := newFixture(t)
	event := ResponseEvent{TabID: "tab-1", RequestID: "req-x", URL: "https://example.com/list_alerts"}

	f.pipe.HandleResponse(context.Background(), event, func(context.Context, string) (string, error) {
		t.Fatal("未跟踪的 URL 不应取响应体")
		return "", nil
	})
}

func TestHandleResponseDebounced(t *testing.T) {
	f := newFixture(t)
	body := `{"s":"ok","r":[]}`

	f.pipe.HandleResponse(context.Background(), responseFor("list_alerts"), staticBody(body))
	f.advance(200 * time.Millisecond)

	fetched := false
	f.pipe.HandleResponse(context.Background(), responseFor("list_fires"), func(context.Context, string) (string, error) {
		fetched = true
		return body, nil
	})
	if fetched {
		t.Fatal("防抖窗口内的事件应在取响应体前被抑制")
	}

	f.advance(1100 * time.Millisecond)
	f.pipe.HandleResponse(context.Background(), responseFor("list_fires"), staticBody(body))
	if len(f.notifier.events) != 2 {
		t.Fatalf("窗口外的事件应被处理: %d", len(f.notifier.events))
	}
}

func TestHandleResponseBodyUnavailable(t *testing.T) {
	f := newFixture(t)

	f.pipe.HandleResponse(context.Background(), responseFor("list_alerts"), func(context.Context, string) (string, error) {
		return "", ErrBodyUnavailable
	})

	if len(f.notifier.events) != 0 {
		t.Fatal("响应体缺失时不应产生任何变更")
	}
	if len(storedAlerts(t, f.store)) != 0 {
		t.Fatal("存储不应被写入")
	}
}

func TestHandleResponseMissingSuccessMarker(t *testing.T) {
	f := newFixture(t)

	f.pipe.HandleResponse(context.Background(), responseFor("list_alerts"), staticBody(`{"s":"error","errmsg":"boom"}`))
	if len(f.notifier.events) != 0 {
		t.Fatal("缺少成功标记的响应应被丢弃")
	}
}

func TestHandleResponseMalformedBodyExpiresPending(t *testing.T) {
	f := newFixture(t)
	event := responseFor("stop_alerts")
	f.pipe.HandleRequest(event.TabID, event.RequestID, event.URL, `{"payload":{"alert_ids":[1]}}`)

	f.pipe.HandleResponse(context.Background(), event, staticBody("not json"))
	if _, ok := f.table.Lookup(event.RequestID); ok {
		t.Fatal("解析失败后应清除对应的请求记录")
	}
}

func TestHandleResponseCreateAlert(t *testing.T) {
	f := newFixture(t)

	f.pipe.HandleResponse(context.Background(), responseFor("create_alert"), staticBody(alertEnvelope(5, "new")))

	alerts := storedAlerts(t, f.store)
	if len(alerts) != 1 || alerts[0]["id"] != float64(5) {
		t.Fatalf("创建的 alert 应被存储: %#v", alerts)
	}
	if alerts[0]["status"] != "active" {
		t.Fatalf("创建后状态应为 active: %v", alerts[0]["status"])
	}
}

func TestHandleResponseStopAlerts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.pipe.ApplyAlertList(ctx, []json.RawMessage{
		json.RawMessage(`{"alert_id": 1, "symbol": "{\"symbol\":{\"symbol\":\"BTCUSD\"}}", "resolution": "60", "active": true}`),
	}); err != nil {
		t.Fatalf("预置 alerts 失败: %v", err)
	}
	f.notifier.events = nil
	f.advance(2 * time.Second)

	event := responseFor("stop_alerts")
	f.pipe.HandleRequest(event.TabID, event.RequestID, event.URL, `{"payload":{"alert_ids":[1]}}`)
	f.pipe.HandleResponse(ctx, event, staticBody(`{"s":"ok"}`))

	alerts := storedAlerts(t, f.store)
	if alerts[0]["status"] != "inactive" {
		t.Fatalf("stop 后状态应为 inactive: %v", alerts[0]["status"])
	}
	if alerts[0]["isEnabled"] != true {
		t.Fatalf("stop 不应改写 isEnabled: %v", alerts[0]["isEnabled"])
	}

	if len(f.notifier.events) != 1 {
		t.Fatalf("应发出一条动作通知: %d", len(f.notifier.events))
	}
	var data notify.AlertsActionData
	if err := json.Unmarshal(f.notifier.events[0].Data, &data); err != nil {
		t.Fatalf("解析通知失败: %v", err)
	}
	if data.Action != notify.ActionStop || len(data.AlertIDs) != 1 || data.AlertIDs[0] != 1 {
		t.Fatalf("通知内容不正确: %#v", data)
	}

	if _, ok := f.table.Lookup(event.RequestID); ok {
		t.Fatal("处理完成后请求记录应被清除")
	}
}

func TestHandleResponseLostCorrelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.pipe.ApplyAlertList(ctx, []json.RawMessage{
		json.RawMessage(`{"alert_id": 1, "symbol": "{\"symbol\":{\"symbol\":\"BTCUSD\"}}", "resolution": "60", "active": true}`),
	}); err != nil {
		t.Fatalf("预置 alerts 失败: %v", err)
	}
	f.notifier.events = nil
	f.advance(2 * time.Second)

	// 没有对应的请求记录: 事件应被整体丢弃
	f.pipe.HandleResponse(ctx, responseFor("delete_alerts"), staticBody(`{"s":"ok"}`))

	alerts := storedAlerts(t, f.store)
	if len(alerts) != 1 || alerts[0]["status"] != "active" {
		t.Fatalf("失联事件不应改动存储: %#v", alerts)
	}
	if len(f.notifier.events) != 0 {
		t.Fatal("失联事件不应发出通知")
	}
}

func TestHandleResponseDeleteFires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.pipe.ApplyFires(ctx, []json.RawMessage{
		json.RawMessage(`{"fire_id": 10, "alert_id": 1, "fire_time": "2024-05-01T12:00:00Z"}`),
		json.RawMessage(`{"fire_id": 11, "alert_id": 1, "fire_time": "2024-05-01T12:01:00Z"}`),
	}); err != nil {
		t.Fatalf("预置 logs 失败: %v", err)
	}
	f.notifier.events = nil
	f.advance(2 * time.Second)

	event := responseFor("delete_fires")
	f.pipe.HandleRequest(event.TabID, event.RequestID, event.URL, `{"payload":{"fire_ids":[10]}}`)
	f.pipe.HandleResponse(ctx, event, staticBody(`{"s":"ok"}`))

	logs := storedLogs(t, f.store)
	if len(logs) != 1 || logs[0]["id"] != float64(11) {
		t.Fatalf("删除结果不正确: %#v", logs)
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0].Type != notify.EventLogsUpdated {
		t.Fatalf("应发出一条 LOGS_UPDATED 通知: %#v", f.notifier.events)
	}
}

func TestHandleRequestOnlyTracked(t *testing.T) {
	f := newFixture(t)

	f.pipe.HandleRequest("tab-1", "req-1", "https://example.com/api", "body")
	if f.table.Len() != 0 {
		t.Fatal("未跟踪的请求不应入表")
	}

	f.pipe.HandleRequest("tab-1", "req-2", "https://pricealerts.tradingview.com/delete_fires", "body")
	if f.table.Len() != 1 {
		t.Fatal("跟踪的请求应入表")
	}
}

func TestSweepLogsRemovesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	now := *f.clock
	old := now.Add(-8 * 24 * time.Hour)
	fresh := now.Add(-time.Hour)
	raws := []json.RawMessage{
		json.RawMessage(fmt.Sprintf(`{"fire_id": 1, "alert_id": 1, "fire_time": %q}`, old.UTC().Format(time.RFC3339))),
		json.RawMessage(fmt.Sprintf(`{"fire_id": 2, "alert_id": 1, "fire_time": %q}`, fresh.UTC().Format(time.RFC3339))),
	}
	if err := f.pipe.ApplyFires(ctx, raws); err != nil {
		t.Fatalf("预置 logs 失败: %v", err)
	}

	if err := f.pipe.SweepLogs(ctx); err != nil {
		t.Fatalf("SweepLogs 应成功: %v", err)
	}

	logs := storedLogs(t, f.store)
	if len(logs) != 1 || logs[0]["id"] != float64(2) {
		t.Fatalf("过期记录应被清除: %#v", logs)
	}
}

func TestApplyIDListRejectsMissingIDs(t *testing.T) {
	f := newFixture(t)
	event := responseFor("stop_alerts")
	f.pipe.HandleRequest(event.TabID, event.RequestID, event.URL, `{"payload":{}}`)

	f.pipe.HandleResponse(context.Background(), event, staticBody(`{"s":"ok"}`))
	if len(f.notifier.events) != 0 {
		t.Fatal("缺少目标 id 的请求体不应产生变更")
	}
}
