package records

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func firePayload(fireID, alertID int64, fireTime string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"fire_id": %d, "alert_id": %d, "fire_time": %q, "name": "alert", "message": "fired"}`,
		fireID, alertID, fireTime,
	))
}

func TestParseFire(t *testing.T) {
	record, err := ParseFire(firePayload(10, 1, "2024-05-01T12:00:00Z"))
	if err != nil {
		t.Fatalf("ParseFire 应成功: %v", err)
	}
	if record.ID != 10 || record.AlertID != 1 {
		t.Fatalf("id 解析不正确: %d / %d", record.ID, record.AlertID)
	}
	want := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	if record.Timestamp != want {
		t.Fatalf("时间戳不正确: %d, 期望 %d", record.Timestamp, want)
	}

	if _, err := ParseFire(json.RawMessage(`{"fire_id": "x"}`)); err == nil {
		t.Fatal("非法 fire_id 应报错")
	}
}

func TestMergeFiresDeduplicates(t *testing.T) {
	logs := []LogRecord{{ID: 10, AlertID: 1, Timestamp: 1}}
	fires := []json.RawMessage{
		firePayload(10, 1, "2024-05-01T12:00:00Z"),
		firePayload(11, 1, "2024-05-01T12:01:00Z"),
		firePayload(11, 1, "2024-05-01T12:01:00Z"),
	}

	merged, added := MergeFires(logs, fires, 0, noopLogger())
	if added != 1 {
		t.Fatalf("应只新增 1 条, 实际 %d", added)
	}
	if len(merged) != 2 {
		t.Fatalf("合并结果应为 2 条: %d", len(merged))
	}
	if merged[0].ID != 11 {
		t.Fatalf("新记录应插入最前: %d", merged[0].ID)
	}
}

func TestMergeFiresEnforcesPerAlertCap(t *testing.T) {
	var logs []LogRecord
	var fires []json.RawMessage
	for i := int64(0); i < 5; i++ {
		fires = append(fires, firePayload(100+i, 1, "2024-05-01T12:00:00Z"))
	}
	fires = append(fires, firePayload(200, 2, "2024-05-01T12:00:00Z"))

	merged, added := MergeFires(logs, fires, 3, noopLogger())
	if added != 6 {
		t.Fatalf("新增数量不正确: %d", added)
	}

	perAlert := make(map[int64]int)
	for _, log := range merged {
		perAlert[log.AlertID]++
	}
	if perAlert[1] != 3 {
		t.Fatalf("alert 1 应被裁剪到 3 条, 实际 %d", perAlert[1])
	}
	if perAlert[2] != 1 {
		t.Fatalf("alert 2 不应被裁剪: %d", perAlert[2])
	}

	// 被逐出的是插入顺序最旧的, 留下的应是最新插入的三条
	kept := make(map[int64]bool)
	for _, log := range merged {
		if log.AlertID == 1 {
			kept[log.ID] = true
		}
	}
	for _, id := range []int64{102, 103, 104} {
		if !kept[id] {
			t.Fatalf("最新插入的记录 %d 应被保留: %#v", id, kept)
		}
	}
}

func TestMergeFiresDefaultCap(t *testing.T) {
	var fires []json.RawMessage
	for i := int64(0); i < 105; i++ {
		fires = append(fires, firePayload(1000+i, 1, "2024-05-01T12:00:00Z"))
	}

	merged, _ := MergeFires(nil, fires, 0, noopLogger())
	if len(merged) != DefaultMaxLogsPerAlert {
		t.Fatalf("默认上限应为 %d 条, 实际 %d", DefaultMaxLogsPerAlert, len(merged))
	}
	// 保留的应是最近插入的 100 条
	for _, log := range merged {
		if log.ID < 1005 {
			t.Fatalf("最早插入的记录应被逐出: %d", log.ID)
		}
	}
}

func TestMergeFiresEvictedIDCanReturn(t *testing.T) {
	var fires []json.RawMessage
	for i := int64(0); i < 3; i++ {
		fires = append(fires, firePayload(100+i, 1, "2024-05-01T12:00:00Z"))
	}

	merged, _ := MergeFires(nil, fires, 2, noopLogger())
	// 100 被逐出后再次出现, 不应再被去重拦截
	merged, added := MergeFires(merged, []json.RawMessage{firePayload(100, 1, "2024-05-01T12:00:00Z")}, 2, noopLogger())
	if added != 1 {
		t.Fatalf("被逐出的 id 重新出现时应再次插入: %d", added)
	}
	if merged[0].ID != 100 {
		t.Fatalf("重新插入的记录应在最前: %d", merged[0].ID)
	}
}

func TestDeleteFires(t *testing.T) {
	logs := []LogRecord{{ID: 1}, {ID: 2}, {ID: 3}}
	remaining := DeleteFires(logs, []int64{2})
	if len(remaining) != 2 || remaining[0].ID != 1 || remaining[1].ID != 3 {
		t.Fatalf("删除结果不正确: %#v", remaining)
	}
}

func TestSweepLogs(t *testing.T) {
	now := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	logs := []LogRecord{
		{ID: 1, Timestamp: now.Add(-8 * 24 * time.Hour).UnixMilli()},
		{ID: 2, Timestamp: now.Add(-6 * 24 * time.Hour).UnixMilli()},
		{ID: 3, Timestamp: now.UnixMilli()},
	}

	kept := SweepLogs(logs, now, 7*24*time.Hour)
	if len(kept) != 2 {
		t.Fatalf("应剩余 2 条记录: %d", len(kept))
	}
	if kept[0].ID != 2 || kept[1].ID != 3 {
		t.Fatalf("保留的记录不正确: %#v", kept)
	}

	boundary := []LogRecord{{ID: 4, Timestamp: now.Add(-7 * 24 * time.Hour).UnixMilli()}}
	if got := SweepLogs(boundary, now, 7*24*time.Hour); len(got) != 0 {
		t.Fatalf("恰好到期的记录应被清除: %#v", got)
	}
}
