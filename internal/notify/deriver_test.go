package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"vivarium/pkg/domain"
)

var deriveNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func baseSnapshot() domain.Snapshot {
	return domain.Snapshot{Notification: domain.DefaultNotificationPolicy()}
}

func TestProtocolExpiryNotifications(t *testing.T) {
	snap := baseSnapshot()
	snap.Protocols = []domain.Protocol{
		{ID: "P-EXP", Active: true, ExpiresAt: deriveNow.Add(-24 * time.Hour)},
		{ID: "P-SOON", Active: true, ExpiresAt: deriveNow.Add(3 * 24 * time.Hour)},
		{ID: "P-FAR", Active: true, ExpiresAt: deriveNow.Add(40 * 24 * time.Hour)},
		{ID: "P-OFF", Active: false, ExpiresAt: deriveNow.Add(-24 * time.Hour)},
	}

	items := BuildNotifications(snap, nil, deriveNow)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	byId := map[string]domain.NotificationItem{}
	for _, item := range items {
		byId[item.ID] = item
	}
	expired := byId["protocol:P-EXP"]
	if expired.Title != "协议已过期" || expired.Severity != domain.SeverityCritical || expired.Content != "P-EXP 已过期，请立即处理" {
		t.Fatalf("unexpected expired item %+v", expired)
	}
	soon := byId["protocol:P-SOON"]
	if soon.Title != "协议即将到期" || soon.Severity != domain.SeverityHigh || soon.Content != "P-SOON 将在 3 天内到期" {
		t.Fatalf("unexpected soon item %+v", soon)
	}
}

func TestOverdueTaskNotifications(t *testing.T) {
	snap := baseSnapshot()
	snap.Tasks = []domain.LabTask{
		{ID: "T-10", Title: "巡检", Status: domain.TaskTodo, DueAt: deriveNow.Add(-10 * time.Hour)},
		{ID: "T-50", Title: "复核", Status: domain.TaskOverdue, DueAt: deriveNow.Add(-50 * time.Hour)},
		{ID: "T-30", Title: "换垫料", Status: domain.TaskTodo, DueAt: deriveNow.Add(-30 * time.Hour)},
		{ID: "T-DONE", Title: "完成项", Status: domain.TaskDone, DueAt: deriveNow.Add(-99 * time.Hour)},
		{ID: "T-FUTURE", Title: "未来项", Status: domain.TaskTodo, DueAt: deriveNow.Add(4 * time.Hour)},
	}

	items := BuildNotifications(snap, nil, deriveNow)
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	wantOrder := []string{"task:T-50", "task:T-30", "task:T-10"}
	wantSeverity := []domain.Severity{domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium}
	for i := range wantOrder {
		if items[i].ID != wantOrder[i] || items[i].Severity != wantSeverity[i] {
			t.Fatalf("unexpected item %d: %+v", i, items[i])
		}
	}
	if items[0].Content != "复核 已逾期 50h" {
		t.Fatalf("unexpected content %q", items[0].Content)
	}
}

func TestOverdueTaskNotificationsTakeTop20(t *testing.T) {
	snap := baseSnapshot()
	for i := 0; i < 25; i++ {
		snap.Tasks = append(snap.Tasks, domain.LabTask{
			ID:     fmt.Sprintf("T-%02d", i),
			Title:  "巡检",
			Status: domain.TaskOverdue,
			DueAt:  deriveNow.Add(-time.Duration(i+1) * time.Hour),
		})
	}
	items := BuildNotifications(snap, nil, deriveNow)
	if len(items) != 20 {
		t.Fatalf("expected 20 items, got %d", len(items))
	}
	if items[0].ID != "task:T-24" {
		t.Fatalf("expected most-overdue first, got %s", items[0].ID)
	}
}

func TestCageCapacityNotifications(t *testing.T) {
	snap := baseSnapshot()
	snap.Cages = []domain.Cage{
		{ID: "C-NEAR", Status: domain.CageActive, CapacityLimit: 10, AnimalIDs: make([]string, 9)},
		{ID: "C-OVER", Status: domain.CageActive, CapacityLimit: 4, AnimalIDs: make([]string, 5)},
		{ID: "C-OK", Status: domain.CageActive, CapacityLimit: 10, AnimalIDs: make([]string, 3)},
		{ID: "C-CLOSED", Status: domain.CageClosed, CapacityLimit: 2, AnimalIDs: make([]string, 5)},
	}

	items := BuildNotifications(snap, nil, deriveNow)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	byId := map[string]domain.NotificationItem{}
	for _, item := range items {
		byId[item.ID] = item
	}
	near := byId["cage:C-NEAR"]
	if near.Title != "笼位接近容量上限" || near.Severity != domain.SeverityMedium || near.Content != "C-NEAR 当前 9/10" {
		t.Fatalf("unexpected near item %+v", near)
	}
	over := byId["cage:C-OVER"]
	if over.Title != "笼位超容量" || over.Severity != domain.SeverityCritical || over.Content != "C-OVER 当前 5/4" {
		t.Fatalf("unexpected over item %+v", over)
	}
}

func TestSyncFailureNotificationsKeepEventTime(t *testing.T) {
	snap := baseSnapshot()
	created := deriveNow.Add(-6 * time.Hour)
	snap.SyncEvents = []domain.SyncEvent{
		{ID: "SYNC-1", EventType: "animal.move", Status: domain.SyncFailed, RetryCount: 2, CreatedAt: created},
		{ID: "SYNC-2", EventType: "task.complete", Status: domain.SyncPending, CreatedAt: deriveNow},
	}

	items := BuildNotifications(snap, nil, deriveNow)
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.ID != "sync:SYNC-1" || item.Severity != domain.SeverityHigh || !item.CreatedAt.Equal(created) {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Content != "animal.move 失败，已重试 2 次" {
		t.Fatalf("unexpected content %q", item.Content)
	}
}

func TestPolicyTogglesDisableFamilies(t *testing.T) {
	snap := baseSnapshot()
	snap.Notification = domain.NotificationPolicy{ProtocolExpiryLeadDays: 14}
	snap.Protocols = []domain.Protocol{{ID: "P-EXP", Active: true, ExpiresAt: deriveNow.Add(-time.Hour)}}
	snap.Tasks = []domain.LabTask{{ID: "T-1", Status: domain.TaskOverdue, DueAt: deriveNow.Add(-30 * time.Hour)}}
	snap.Cages = []domain.Cage{{ID: "C-1", Status: domain.CageActive, CapacityLimit: 2, AnimalIDs: make([]string, 5)}}
	snap.SyncEvents = []domain.SyncEvent{{ID: "SYNC-1", Status: domain.SyncFailed, CreatedAt: deriveNow}}

	if items := BuildNotifications(snap, nil, deriveNow); len(items) != 0 {
		t.Fatalf("expected no items with all toggles off, got %d", len(items))
	}
}

func TestNotificationsSortedNewestFirstAndMergeReadMarks(t *testing.T) {
	snap := baseSnapshot()
	snap.Protocols = []domain.Protocol{{ID: "P-EXP", Active: true, ExpiresAt: deriveNow.Add(-time.Hour)}}
	snap.SyncEvents = []domain.SyncEvent{{ID: "SYNC-1", EventType: "animal.move", Status: domain.SyncFailed, CreatedAt: deriveNow.Add(-2 * time.Hour)}}

	readAt := deriveNow.Add(-time.Minute)
	marks := map[string]time.Time{"sync:SYNC-1": readAt}
	items := BuildNotifications(snap, marks, deriveNow)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if !strings.HasPrefix(items[0].ID, "protocol:") {
		t.Fatalf("expected the newer item first, got %s", items[0].ID)
	}
	if items[0].ReadAt != nil {
		t.Fatal("expected unread protocol item")
	}
	if items[1].ReadAt == nil || !items[1].ReadAt.Equal(readAt) {
		t.Fatalf("expected read mark merged, got %+v", items[1].ReadAt)
	}
}

func TestReadMarks(t *testing.T) {
	marks := NewReadMarks()
	marks.MarkRead("task:T-1", deriveNow)
	marks.MarkAllRead([]string{"task:T-2", "sync:S-1"}, deriveNow.Add(time.Minute))

	snap := marks.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 marks, got %d", len(snap))
	}
	if !snap["task:T-1"].Equal(deriveNow) || !snap["sync:S-1"].Equal(deriveNow.Add(time.Minute)) {
		t.Fatalf("unexpected marks %+v", snap)
	}

	// the snapshot is a copy
	snap["task:T-3"] = deriveNow
	if len(marks.Snapshot()) != 3 {
		t.Fatal("expected tracker unaffected by snapshot mutation")
	}
}
