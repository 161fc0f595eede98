package storage

import (
	"context"
	"encoding/json"
	"testing"

	"tv-alert-mirror/internal/records"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	alerts := []records.AlertRecord{{ID: 1, Name: "btc", Status: records.StatusActive, Description: json.RawMessage(`""`)}}
	if err := SaveAlerts(ctx, store, alerts); err != nil {
		t.Fatalf("SaveAlerts 应成功: %v", err)
	}

	loaded, err := LoadAlerts(ctx, store)
	if err != nil {
		t.Fatalf("LoadAlerts 应成功: %v", err)
	}
	if len(loaded) != 1 || loaded[0].ID != 1 || loaded[0].Name != "btc" {
		t.Fatalf("读回内容不正确: %#v", loaded)
	}
}

func TestLoadAbsentKeyReadsEmpty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	alerts, err := LoadAlerts(ctx, store)
	if err != nil {
		t.Fatalf("缺失的 key 不应报错: %v", err)
	}
	if len(alerts) != 0 {
		t.Fatalf("缺失的 key 应读为空集合: %#v", alerts)
	}

	logs, err := LoadLogs(ctx, store)
	if err != nil || len(logs) != 0 {
		t.Fatalf("缺失的 logs 应读为空集合: %v / %#v", err, logs)
	}
}

func TestSeedInitialisesAbsentKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	existing := []records.AlertRecord{{ID: 1}}
	if err := SaveAlerts(ctx, store, existing); err != nil {
		t.Fatalf("SaveAlerts 应成功: %v", err)
	}

	if err := Seed(ctx, store); err != nil {
		t.Fatalf("Seed 应成功: %v", err)
	}

	values, err := store.Get(ctx, KeyAlerts, KeyLogs)
	if err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if string(values[KeyLogs]) != `[]` {
		t.Fatalf("缺失的 logs 应初始化为空数组: %s", values[KeyLogs])
	}
	if string(values[KeyAlerts]) == `[]` {
		t.Fatal("已存在的 alerts 不应被覆盖")
	}
}

func TestMemoryStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Set(ctx, map[string]json.RawMessage{KeyAlerts: json.RawMessage(`[]`)}); err != nil {
		t.Fatalf("Set 应成功: %v", err)
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear 应成功: %v", err)
	}
	values, err := store.Get(ctx, KeyAlerts)
	if err != nil {
		t.Fatalf("Get 应成功: %v", err)
	}
	if _, ok := values[KeyAlerts]; ok {
		t.Fatal("Clear 后不应残留任何 key")
	}
}
