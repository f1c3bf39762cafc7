package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// ApplyTaskEscalation rewrites every non-done task past its due time: the
// status becomes Overdue, the priority is raised to the configured threshold
// priority when the overdue duration crosses 24h or 48h (keeping whichever of
// current and target is more urgent), and the task is handed to the overdue
// fallback assignee when one is configured. Fails when nothing changed.
func (s *Service) ApplyTaskEscalation(operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.escalation.apply", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		config := next.EscalationConfig
		fallback := strings.TrimSpace(config.AutoAssignOverdueTo)
		changed := 0

		for i, task := range next.Tasks {
			if task.Status == domain.TaskDone || !task.DueAt.Before(now) {
				continue
			}
			overdue := now.Sub(task.DueAt)

			updated := task
			updated.Status = domain.TaskOverdue
			if config.Enable48h && overdue >= 48*time.Hour {
				updated.Priority = domain.MoreUrgent(updated.Priority, config.PriorityAt48h)
			} else if config.Enable24h && overdue >= 24*time.Hour {
				updated.Priority = domain.MoreUrgent(updated.Priority, config.PriorityAt24h)
			}
			if fallback != "" {
				updated.Assignee = fallback
			}

			if updated != task {
				changed++
				next.Tasks[i] = updated
			}
		}

		if changed == 0 {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "没有需要升级的任务")
		}

		a := audit{
			action:   "TASK_ESCALATION_APPLY",
			entity:   domain.EntityTask,
			entityID: "batch",
			summary:  fmt.Sprintf("应用升级规则，更新 %d 条任务", changed),
		}
		return a, &syncMsg{event: "task.escalation.apply", payload: fmt.Sprintf("changed=%d", changed)}, domain.Success()
	})
}
