// Package notify derives the alert feed from a snapshot. Derivation is a
// pure function of (snapshot, read marks, now); read state lives outside the
// snapshot and is merged in by notification id.
package notify

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"vivarium/pkg/domain"
)

// BuildNotifications re-derives the feed from scratch. Rule families run
// independently and each honors its policy toggle: protocol expiry within
// the lead window, overdue tasks (most overdue first, top 20), active cage
// occupancy, and failed sync events (top 20). The result is sorted newest
// first.
func BuildNotifications(snap domain.Snapshot, readMarks map[string]time.Time, now time.Time) []domain.NotificationItem {
	policy := snap.Notification
	var items []domain.NotificationItem

	readAt := func(id string) *time.Time {
		if t, ok := readMarks[id]; ok {
			marked := t
			return &marked
		}
		return nil
	}

	if policy.EnableProtocolExpiry {
		lead := time.Duration(policy.ProtocolExpiryLeadDays) * 24 * time.Hour
		for _, p := range snap.Protocols {
			if !p.Active {
				continue
			}
			remaining := p.ExpiresAt.Sub(now)
			if remaining > lead {
				continue
			}
			expired := remaining < 0
			id := "protocol:" + p.ID
			item := domain.NotificationItem{
				ID:         id,
				Title:      "协议即将到期",
				Content:    fmt.Sprintf("%s 将在 %d 天内到期", p.ID, maxInt64(int64(remaining/(24*time.Hour)), 0)),
				Severity:   domain.SeverityHigh,
				CreatedAt:  now,
				EntityType: domain.EntityProtocol,
				EntityID:   p.ID,
				ReadAt:     readAt(id),
			}
			if expired {
				item.Title = "协议已过期"
				item.Content = fmt.Sprintf("%s 已过期，请立即处理", p.ID)
				item.Severity = domain.SeverityCritical
			}
			items = append(items, item)
		}
	}

	if policy.EnableOverdueTask {
		var overdue []domain.LabTask
		for _, t := range snap.Tasks {
			if t.Status == domain.TaskOverdue || (t.Status == domain.TaskTodo && t.DueAt.Before(now)) {
				overdue = append(overdue, t)
			}
		}
		sort.SliceStable(overdue, func(i, j int) bool {
			return now.Sub(overdue[i].DueAt) > now.Sub(overdue[j].DueAt)
		})
		if len(overdue) > 20 {
			overdue = overdue[:20]
		}
		for _, t := range overdue {
			hours := int64(now.Sub(t.DueAt).Hours())
			if hours < 0 {
				hours = 0
			}
			severity := domain.SeverityMedium
			switch {
			case hours >= 48:
				severity = domain.SeverityCritical
			case hours >= 24:
				severity = domain.SeverityHigh
			}
			id := "task:" + t.ID
			items = append(items, domain.NotificationItem{
				ID:         id,
				Title:      "任务逾期提醒",
				Content:    fmt.Sprintf("%s 已逾期 %dh", t.Title, hours),
				Severity:   severity,
				CreatedAt:  now,
				EntityType: domain.EntityTask,
				EntityID:   t.ID,
				ReadAt:     readAt(id),
			})
		}
	}

	if policy.EnableCageCapacity {
		for _, c := range snap.Cages {
			if c.Status != domain.CageActive {
				continue
			}
			over := len(c.AnimalIDs) - c.CapacityLimit
			near := c.OccupancyRatio() >= 0.9
			if over <= 0 && !near {
				continue
			}
			title := "笼位接近容量上限"
			severity := domain.SeverityMedium
			if over > 0 {
				title = "笼位超容量"
				severity = domain.SeverityCritical
			}
			id := "cage:" + c.ID
			items = append(items, domain.NotificationItem{
				ID:         id,
				Title:      title,
				Content:    fmt.Sprintf("%s 当前 %d/%d", c.ID, len(c.AnimalIDs), c.CapacityLimit),
				Severity:   severity,
				CreatedAt:  now,
				EntityType: domain.EntityCage,
				EntityID:   c.ID,
				ReadAt:     readAt(id),
			})
		}
	}

	if policy.EnableSyncFailure {
		taken := 0
		for _, e := range snap.SyncEvents {
			if e.Status != domain.SyncFailed {
				continue
			}
			if taken >= 20 {
				break
			}
			taken++
			id := "sync:" + e.ID
			items = append(items, domain.NotificationItem{
				ID:         id,
				Title:      "同步失败",
				Content:    fmt.Sprintf("%s 失败，已重试 %d 次", e.EventType, e.RetryCount),
				Severity:   domain.SeverityHigh,
				CreatedAt:  e.CreatedAt,
				EntityType: domain.EntitySync,
				EntityID:   e.ID,
				ReadAt:     readAt(id),
			})
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items
}

// ReadMarks tracks which notification ids the user has seen. Derivation
// rebuilds the feed on every snapshot change, so read state keyed by the
// stable notification id is the only part that survives between runs.
type ReadMarks struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

// NewReadMarks returns an empty read-state tracker.
func NewReadMarks() *ReadMarks {
	return &ReadMarks{marks: make(map[string]time.Time)}
}

// MarkRead records the notification as read at the given time.
func (r *ReadMarks) MarkRead(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.marks[id] = at
}

// MarkAllRead records every given notification id as read at the given time.
func (r *ReadMarks) MarkAllRead(ids []string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		r.marks[id] = at
	}
}

// Snapshot returns a copy of the current read marks.
func (r *ReadMarks) Snapshot() map[string]time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]time.Time, len(r.marks))
	for k, v := range r.marks {
		out[k] = v
	}
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
