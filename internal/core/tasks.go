package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// CompleteTask marks the task done. Completing an already-done task is a
// no-op success.
func (s *Service) CompleteTask(taskId, operator string) domain.Outcome {
	if t, ok := s.store.Snapshot().FindTask(taskId); ok && t.Status == domain.TaskDone && s.granted(domain.CapTaskComplete) {
		return domain.Success()
	}
	return s.apply(domain.CapTaskComplete, operator, "task.complete", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		target, ok := next.FindTask(taskId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "任务不存在")
		}
		for i := range next.Tasks {
			if next.Tasks[i].ID == taskId {
				done := now
				next.Tasks[i].Status = domain.TaskDone
				next.Tasks[i].CompletedAt = &done
			}
		}
		a := audit{
			action:   "TASK_COMPLETE",
			entity:   domain.EntityTask,
			entityID: taskId,
			summary:  fmt.Sprintf("完成任务: %s", target.Title),
		}
		return a, &syncMsg{event: "task.complete", payload: "task=" + taskId}, domain.Success()
	})
}

// SaveTaskTemplate creates a named reusable task definition.
func (s *Service) SaveTaskTemplate(name, detail string, priority domain.TaskPriority, dueInHours int, entityType domain.EntityType, operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.template.save", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		cleanName := strings.TrimSpace(name)
		if cleanName == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "模板名称不能为空")
		}
		if dueInHours < 1 || dueInHours > 24*30 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "到期小时需在 1-720")
		}
		if strings.TrimSpace(string(entityType)) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "实体类型不能为空")
		}
		for _, t := range next.TaskTemplates {
			if strings.EqualFold(t.Name, cleanName) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "模板名称已存在")
			}
		}

		cleanDetail := strings.TrimSpace(detail)
		if cleanDetail == "" {
			cleanDetail = cleanName + " 执行项"
		}
		template := domain.TaskTemplate{
			ID:              s.ids.Next("TTM-"),
			Name:            cleanName,
			Detail:          cleanDetail,
			DefaultPriority: priority,
			DueInHours:      dueInHours,
			EntityType:      entityType,
		}
		next.TaskTemplates = append([]domain.TaskTemplate{template}, next.TaskTemplates...)

		a := audit{
			action:   "TASK_TEMPLATE_SAVE",
			entity:   domain.EntityTaskTemplate,
			entityID: template.ID,
			summary:  fmt.Sprintf("创建任务模板 %s", template.Name),
		}
		return a, &syncMsg{event: "task.template.save", payload: "template=" + template.ID}, domain.Success()
	})
}

// DeleteTaskTemplate removes a task template.
func (s *Service) DeleteTaskTemplate(templateId, operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.template.delete", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var name string
		found := false
		kept := next.TaskTemplates[:0]
		for _, t := range next.TaskTemplates {
			if t.ID == templateId {
				found = true
				name = t.Name
				continue
			}
			kept = append(kept, t)
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "模板不存在")
		}
		next.TaskTemplates = kept

		a := audit{
			action:   "TASK_TEMPLATE_DELETE",
			entity:   domain.EntityTaskTemplate,
			entityID: templateId,
			summary:  fmt.Sprintf("删除任务模板 %s", name),
		}
		return a, &syncMsg{event: "task.template.delete", payload: "template=" + templateId}, domain.Success()
	})
}

// CreateTaskFromTemplate instantiates a task from the template; the due time
// is now plus the template's due-in window.
func (s *Service) CreateTaskFromTemplate(templateId, assignee, operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.template.apply", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var template domain.TaskTemplate
		found := false
		for _, t := range next.TaskTemplates {
			if t.ID == templateId {
				template = t
				found = true
				break
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "模板不存在")
		}

		cleanAssignee := strings.TrimSpace(assignee)
		if cleanAssignee == "" {
			cleanAssignee = "未指派"
		}
		task := domain.LabTask{
			ID:         s.ids.Next("TSK-"),
			Title:      template.Name,
			Detail:     template.Detail,
			DueAt:      now.Add(time.Duration(template.DueInHours) * time.Hour),
			Priority:   template.DefaultPriority,
			Status:     domain.TaskTodo,
			EntityType: template.EntityType,
			EntityID:   "template:" + templateId,
			Assignee:   cleanAssignee,
		}
		next.Tasks = append([]domain.LabTask{task}, next.Tasks...)

		a := audit{
			action:   "TASK_CREATE_FROM_TEMPLATE",
			entity:   domain.EntityTask,
			entityID: task.ID,
			summary:  fmt.Sprintf("由模板 %s 创建任务", template.Name),
		}
		return a, &syncMsg{event: "task.template.apply", payload: fmt.Sprintf("template=%s task=%s", templateId, task.ID)}, domain.Success()
	})
}

// ReassignTask hands a task to a new assignee. Reassigning to the current
// assignee is a no-op success.
func (s *Service) ReassignTask(taskId, assignee, operator string) domain.Outcome {
	cleanAssignee := strings.TrimSpace(assignee)
	if t, ok := s.store.Snapshot().FindTask(taskId); ok && t.Assignee == cleanAssignee && cleanAssignee != "" && s.granted(domain.CapTaskManage) {
		return domain.Success()
	}
	return s.apply(domain.CapTaskManage, operator, "task.reassign", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if cleanAssignee == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "指派人不能为空")
		}
		if _, ok := next.FindTask(taskId); !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "任务不存在")
		}
		for i := range next.Tasks {
			if next.Tasks[i].ID == taskId {
				next.Tasks[i].Assignee = cleanAssignee
			}
		}
		a := audit{
			action:   "TASK_REASSIGN",
			entity:   domain.EntityTask,
			entityID: taskId,
			summary:  fmt.Sprintf("任务指派给 %s", cleanAssignee),
		}
		return a, &syncMsg{event: "task.reassign", payload: fmt.Sprintf("task=%s assignee=%s", taskId, cleanAssignee)}, domain.Success()
	})
}

// ReassignTasks hands a batch of tasks to a new assignee; every id must exist.
func (s *Service) ReassignTasks(taskIds []string, assignee, operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.reassign.batch", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		ids := uniqueSet(taskIds)
		if len(ids) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "请选择要指派的任务")
		}
		cleanAssignee := strings.TrimSpace(assignee)
		if cleanAssignee == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "指派人不能为空")
		}
		existing := map[string]bool{}
		for _, t := range next.Tasks {
			existing[t.ID] = true
		}
		for id := range ids {
			if !existing[id] {
				return audit{}, nil, domain.Fail(domain.KindNotFound, "存在无效任务")
			}
		}
		for i := range next.Tasks {
			if ids[next.Tasks[i].ID] {
				next.Tasks[i].Assignee = cleanAssignee
			}
		}
		a := audit{
			action:   "TASK_REASSIGN_BATCH",
			entity:   domain.EntityTask,
			entityID: "batch",
			summary:  fmt.Sprintf("批量指派 %d 条任务给 %s", len(ids), cleanAssignee),
		}
		return a, &syncMsg{event: "task.reassign.batch", payload: fmt.Sprintf("count=%d assignee=%s", len(ids), cleanAssignee)}, domain.Success()
	})
}

// SetTaskEscalationConfig replaces the escalation thresholds.
func (s *Service) SetTaskEscalationConfig(config domain.TaskEscalationConfig, operator string) domain.Outcome {
	return s.apply(domain.CapTaskManage, operator, "task.config.update", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		next.EscalationConfig = config
		a := audit{
			action:   "TASK_ESCALATION_CONFIG",
			entity:   domain.EntityConfig,
			entityID: "global",
			summary:  fmt.Sprintf("更新任务升级规则：24h=%t,48h=%t", config.Enable24h, config.Enable48h),
		}
		return a, &syncMsg{event: "task.config.update", payload: fmt.Sprintf("24h=%t 48h=%t", config.Enable24h, config.Enable48h)}, domain.Success()
	})
}

func uniqueSet(ids []string) map[string]bool {
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out
}
