package core

import (
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// CreateExperiment starts a titled experiment over a cohort. Active cohort
// members move into the experiment state and a start event is logged.
func (s *Service) CreateExperiment(cohortId, title, operator string) domain.Outcome {
	return s.apply(domain.CapExperimentWrite, operator, "experiment.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "实验操作", now); out.Failed() {
			return audit{}, nil, out
		}
		if strings.TrimSpace(title) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "实验标题不能为空")
		}
		cohort, ok := next.FindCohort(cohortId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "Cohort 不存在")
		}

		experiment := domain.ExperimentSession{
			ID:        s.ids.Next("EXP-"),
			CohortID:  cohortId,
			Title:     title,
			Status:    domain.ExperimentActive,
			StartedAt: now,
		}
		startEvent := domain.ExperimentEvent{
			ID:           s.ids.Next("EVT-"),
			ExperimentID: experiment.ID,
			EventType:    "start",
			Note:         "实验启动",
			CreatedAt:    now,
			Operator:     operator,
		}

		members := uniqueSet(cohort.AnimalIDs)
		for i := range next.Animals {
			if members[next.Animals[i].ID] && next.Animals[i].Status == domain.AnimalActive {
				next.Animals[i].Status = domain.AnimalInExperiment
			}
		}
		next.Experiments = append([]domain.ExperimentSession{experiment}, next.Experiments...)
		next.ExperimentEvents = append([]domain.ExperimentEvent{startEvent}, next.ExperimentEvents...)

		a := audit{
			action:   "EXPERIMENT_CREATE",
			entity:   domain.EntityExperiment,
			entityID: experiment.ID,
			summary:  "创建实验 " + title,
		}
		return a, &syncMsg{event: "experiment.create", payload: "experiment=" + experiment.ID}, domain.Success()
	})
}

// AddExperimentEvent appends a log entry to an experiment. Archived
// experiments reject new events.
func (s *Service) AddExperimentEvent(experimentId, eventType, note, operator string) domain.Outcome {
	return s.apply(domain.CapExperimentWrite, operator, "experiment.event", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		experiment, ok := next.FindExperiment(experimentId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "实验不存在")
		}
		if experiment.Status == domain.ExperimentArchived {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "已归档实验不可追加事件")
		}

		cleanType := strings.TrimSpace(eventType)
		if cleanType == "" {
			cleanType = "record"
		}
		cleanNote := strings.TrimSpace(note)
		if cleanNote == "" {
			cleanNote = "无备注"
		}
		event := domain.ExperimentEvent{
			ID:           s.ids.Next("EVT-"),
			ExperimentID: experimentId,
			EventType:    cleanType,
			Note:         cleanNote,
			CreatedAt:    now,
			Operator:     operator,
		}
		next.ExperimentEvents = append([]domain.ExperimentEvent{event}, next.ExperimentEvents...)

		a := audit{
			action:   "EXPERIMENT_EVENT_ADD",
			entity:   domain.EntityExperiment,
			entityID: experimentId,
			summary:  "追加事件 " + cleanType,
		}
		return a, &syncMsg{event: "experiment.event", payload: "experiment=" + experimentId}, domain.Success()
	})
}

// ArchiveExperiment closes the experiment and returns its still-enrolled
// cohort members to active status.
func (s *Service) ArchiveExperiment(experimentId, operator string) domain.Outcome {
	return s.apply(domain.CapExperimentWrite, operator, "experiment.archive", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		experiment, ok := next.FindExperiment(experimentId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "实验不存在")
		}
		if experiment.Status == domain.ExperimentArchived {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "实验已归档")
		}

		ended := now
		for i := range next.Experiments {
			if next.Experiments[i].ID == experimentId {
				next.Experiments[i].Status = domain.ExperimentArchived
				next.Experiments[i].EndedAt = &ended
			}
		}
		if cohort, ok := next.FindCohort(experiment.CohortID); ok {
			members := uniqueSet(cohort.AnimalIDs)
			for i := range next.Animals {
				if members[next.Animals[i].ID] && next.Animals[i].Status == domain.AnimalInExperiment {
					next.Animals[i].Status = domain.AnimalActive
				}
			}
		}

		a := audit{
			action:   "EXPERIMENT_ARCHIVE",
			entity:   domain.EntityExperiment,
			entityID: experimentId,
			summary:  "实验归档",
		}
		return a, &syncMsg{event: "experiment.archive", payload: "experiment=" + experimentId}, domain.Success()
	})
}
