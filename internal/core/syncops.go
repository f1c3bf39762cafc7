package core

import (
	"fmt"
	"time"

	"vivarium/pkg/domain"
)

// RetrySyncEvent puts a failed or pending event back to pending and bumps its
// retry counter. Sync-queue operations never queue sync events of their own.
func (s *Service) RetrySyncEvent(syncEventId, operator string) domain.Outcome {
	return s.apply(domain.CapSyncManage, operator, "sync.retry", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var target domain.SyncEvent
		found := false
		for _, e := range next.SyncEvents {
			if e.ID == syncEventId {
				target = e
				found = true
				break
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "同步事件不存在")
		}
		if target.Status == domain.SyncSynced {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "已同步事件无需重试")
		}

		tried := now
		for i := range next.SyncEvents {
			if next.SyncEvents[i].ID == syncEventId {
				next.SyncEvents[i].Status = domain.SyncPending
				next.SyncEvents[i].LastTriedAt = &tried
				next.SyncEvents[i].RetryCount++
			}
		}

		a := audit{
			action:   "SYNC_RETRY",
			entity:   domain.EntitySync,
			entityID: syncEventId,
			summary:  "手动重试同步事件",
		}
		return a, nil, domain.Success()
	})
}

// SyncPendingEvents flushes the queue: every pending or failed event becomes
// synced. Fails when the queue holds nothing to deliver.
func (s *Service) SyncPendingEvents(operator string) domain.Outcome {
	return s.apply(domain.CapSyncManage, operator, "sync.flush", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		flushed := 0
		tried := now
		for i := range next.SyncEvents {
			if next.SyncEvents[i].Status == domain.SyncPending || next.SyncEvents[i].Status == domain.SyncFailed {
				next.SyncEvents[i].Status = domain.SyncSynced
				next.SyncEvents[i].LastTriedAt = &tried
				next.SyncEvents[i].RetryCount++
				flushed++
			}
		}
		if flushed == 0 {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "没有待同步事件")
		}

		a := audit{
			action:   "SYNC_FLUSH",
			entity:   domain.EntitySync,
			entityID: "batch",
			summary:  fmt.Sprintf("同步队列已处理 %d 条事件", flushed),
		}
		return a, nil, domain.Success()
	})
}

// MarkSyncFailed records a delivery failure reported by the remote
// dispatcher. The event goes to failed so the notification deriver and the
// manual retry surface pick it up.
func (s *Service) MarkSyncFailed(syncEventId string) domain.Outcome {
	return s.apply("", "system", "sync.mark_failed", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		found := false
		tried := now
		for i := range next.SyncEvents {
			if next.SyncEvents[i].ID == syncEventId {
				next.SyncEvents[i].Status = domain.SyncFailed
				next.SyncEvents[i].LastTriedAt = &tried
				found = true
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "同步事件不存在")
		}

		a := audit{
			action:   "SYNC_MARK_FAILED",
			entity:   domain.EntitySync,
			entityID: syncEventId,
			summary:  "同步事件投递失败",
		}
		return a, nil, domain.Success()
	})
}

// MarkSyncDelivered records a successful remote delivery for the event.
func (s *Service) MarkSyncDelivered(syncEventId string) domain.Outcome {
	return s.apply("", "system", "sync.mark_delivered", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		found := false
		tried := now
		for i := range next.SyncEvents {
			if next.SyncEvents[i].ID == syncEventId {
				next.SyncEvents[i].Status = domain.SyncSynced
				next.SyncEvents[i].LastTriedAt = &tried
				found = true
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "同步事件不存在")
		}

		a := audit{
			action:   "SYNC_DELIVERED",
			entity:   domain.EntitySync,
			entityID: syncEventId,
			summary:  "同步事件已送达",
		}
		return a, nil, domain.Success()
	})
}
