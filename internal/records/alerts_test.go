package records

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestParseAlertListDropsBadEntries(t *testing.T) {
	raws := []json.RawMessage{
		alertPayload(`{"alert_id": 1, "name": "first"}`),
		json.RawMessage(`{"alert_id": "broken"}`),
		alertPayload(`{"alert_id": 2, "name": "second"}`),
	}

	alerts := ParseAlertList(raws, noopLogger())
	if len(alerts) != 2 {
		t.Fatalf("应保留 2 条记录, 实际 %d", len(alerts))
	}
	if alerts[0].ID != 1 || alerts[1].ID != 2 {
		t.Fatalf("顺序应与响应一致: %d, %d", alerts[0].ID, alerts[1].ID)
	}
}

func TestMergeCreateForcesActive(t *testing.T) {
	existing := []AlertRecord{{ID: 1, Status: StatusActive}}
	created := AlertRecord{ID: 2, Status: StatusInactive, IsEnabled: false}

	merged := MergeCreate(existing, created)
	if len(merged) != 2 {
		t.Fatalf("应有 2 条记录, 实际 %d", len(merged))
	}
	if merged[0].ID != 2 {
		t.Fatalf("新记录应置于最前: %d", merged[0].ID)
	}
	if merged[0].Status != StatusActive {
		t.Fatalf("创建后状态应强制为 active: %q", merged[0].Status)
	}
	if merged[0].IsEnabled {
		t.Fatal("IsEnabled 不应被改写")
	}
}

func TestMergeModifyReplacesByID(t *testing.T) {
	existing := []AlertRecord{
		{ID: 1, Name: "a"},
		{ID: 2, Name: "b", Status: StatusInactive},
		{ID: 3, Name: "c"},
	}

	merged := MergeModify(existing, AlertRecord{ID: 2, Name: "b2", Status: StatusInactive})
	if len(merged) != 3 {
		t.Fatalf("替换不应改变数量: %d", len(merged))
	}
	if merged[1].Name != "b2" || merged[1].Status != StatusActive {
		t.Fatalf("记录应原位替换且状态为 active: %q / %q", merged[1].Name, merged[1].Status)
	}
}

func TestMergeModifyAppendsUnknownID(t *testing.T) {
	existing := []AlertRecord{{ID: 1}}
	merged := MergeModify(existing, AlertRecord{ID: 9})
	if len(merged) != 2 || merged[1].ID != 9 {
		t.Fatalf("未知 id 应追加到末尾: %#v", merged)
	}
}

func TestFlipStatusLeavesIsEnabled(t *testing.T) {
	alerts := []AlertRecord{
		{ID: 1, Status: StatusActive, IsEnabled: true},
		{ID: 2, Status: StatusActive, IsEnabled: true},
	}

	flipped := FlipStatus(alerts, []int64{2}, StatusInactive)
	if flipped[0].Status != StatusActive {
		t.Fatalf("未命中的记录不应变化: %q", flipped[0].Status)
	}
	if flipped[1].Status != StatusInactive {
		t.Fatalf("命中的记录应翻转状态: %q", flipped[1].Status)
	}
	if !flipped[1].IsEnabled {
		t.Fatal("翻转状态时 IsEnabled 应保持不变")
	}
}

func TestDeleteAlerts(t *testing.T) {
	alerts := []AlertRecord{{ID: 1}, {ID: 2}, {ID: 3}}
	remaining := DeleteAlerts(alerts, []int64{1, 3})
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("删除结果不正确: %#v", remaining)
	}

	unchanged := DeleteAlerts(alerts, []int64{99})
	if len(unchanged) != 3 {
		t.Fatalf("未命中的删除不应移除记录: %d", len(unchanged))
	}
}
