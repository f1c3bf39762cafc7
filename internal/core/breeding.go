package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// CreateBreedingPlan pairs a male and a female, moves both into breeding
// status, and schedules the plug-check (day 3) and weaning (day 21) tasks.
func (s *Service) CreateBreedingPlan(maleId, femaleId string, protocolId *string, notes, operator string) domain.Outcome {
	return s.apply(domain.CapBreedingWrite, operator, "breeding.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "繁育操作", now); out.Failed() {
			return audit{}, nil, out
		}
		male, ok := next.FindAnimal(maleId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "雄鼠不存在")
		}
		female, ok := next.FindAnimal(femaleId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "雌鼠不存在")
		}
		if male.Sex != domain.SexMale {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "选择的雄鼠性别不正确")
		}
		if female.Sex != domain.SexFemale {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "选择的雌鼠性别不正确")
		}
		if male.Status == domain.AnimalDead || female.Status == domain.AnimalDead {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "死亡个体不可用于配种")
		}

		normalizedProtocol := normalizeOptional(protocolId)
		if normalizedProtocol != nil {
			p, ok := next.FindProtocol(*normalizedProtocol)
			if !ok || !p.Active {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "协议无效或已禁用")
			}
			if p.ExpiresAt.Before(now) {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "协议已过期，无法执行配种")
			}
		}

		day := 24 * time.Hour
		plan := domain.BreedingPlan{
			ID:                  s.ids.Next("BR-"),
			MaleID:              maleId,
			FemaleID:            femaleId,
			ProtocolID:          normalizedProtocol,
			MatedAt:             now,
			ExpectedPlugCheckAt: now.Add(3 * day),
			ExpectedWeanAt:      now.Add(21 * day),
			Notes:               notes,
		}
		plugTask := domain.LabTask{
			ID:         s.ids.Next("TSK-"),
			Title:      "查栓检查",
			Detail:     fmt.Sprintf("配种计划 %s 的查栓检查", plan.ID),
			DueAt:      plan.ExpectedPlugCheckAt,
			Priority:   domain.PriorityHigh,
			Status:     domain.TaskTodo,
			EntityType: domain.EntityBreeding,
			EntityID:   plan.ID,
		}
		weanTask := domain.LabTask{
			ID:         s.ids.Next("TSK-"),
			Title:      "断奶分笼",
			Detail:     fmt.Sprintf("配种计划 %s 的断奶安排", plan.ID),
			DueAt:      plan.ExpectedWeanAt,
			Priority:   domain.PriorityCritical,
			Status:     domain.TaskTodo,
			EntityType: domain.EntityBreeding,
			EntityID:   plan.ID,
		}

		for i := range next.Animals {
			if next.Animals[i].ID == maleId || next.Animals[i].ID == femaleId {
				next.Animals[i].Status = domain.AnimalBreeding
			}
		}
		next.BreedingPlans = append([]domain.BreedingPlan{plan}, next.BreedingPlans...)
		next.Tasks = append([]domain.LabTask{plugTask, weanTask}, next.Tasks...)

		a := audit{
			action:   "BREEDING_CREATE",
			entity:   domain.EntityBreeding,
			entityID: plan.ID,
			summary:  fmt.Sprintf("创建配种计划：%s x %s", maleId, femaleId),
		}
		return a, &syncMsg{event: "breeding.create", payload: "plan=" + plan.ID}, domain.Success()
	})
}

// RecordPlugCheck records the plug result once per plan. A negative result
// releases both parents back to active and closes the plug-check task either
// way.
func (s *Service) RecordPlugCheck(planId string, positive bool, operator string) domain.Outcome {
	return s.apply(domain.CapBreedingWrite, operator, "breeding.plug_check", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "繁育操作", now); out.Failed() {
			return audit{}, nil, out
		}
		plan, ok := next.FindPlan(planId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "配种计划不存在")
		}
		if plan.PlugCheckedAt != nil {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "该计划已完成查栓")
		}

		checked := now
		for i := range next.BreedingPlans {
			if next.BreedingPlans[i].ID == planId {
				next.BreedingPlans[i].PlugCheckedAt = &checked
				result := positive
				next.BreedingPlans[i].PlugPositive = &result
			}
		}
		if !positive {
			for i := range next.Animals {
				if next.Animals[i].ID == plan.MaleID || next.Animals[i].ID == plan.FemaleID {
					next.Animals[i].Status = domain.AnimalActive
				}
			}
		}
		closePlanTasks(next, planId, "查栓", now)

		result := "阴性"
		if positive {
			result = "阳性"
		}
		a := audit{
			action:   "BREEDING_PLUG_CHECK",
			entity:   domain.EntityBreeding,
			entityID: planId,
			summary:  "查栓结果: " + result,
		}
		return a, &syncMsg{event: "breeding.plug_check", payload: fmt.Sprintf("plan=%s positive=%t", planId, positive)}, domain.Success()
	})
}

// RecordBirth registers a litter for the plan. Pups inherit lineage, cage,
// and protocol from the parents and must fit the mother's cage.
func (s *Service) RecordBirth(planId string, pupCount int, strain, genotype *string, operator string) domain.Outcome {
	return s.apply(domain.CapBreedingWrite, operator, "breeding.birth_record", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "繁育操作", now); out.Failed() {
			return audit{}, nil, out
		}
		if pupCount < 1 || pupCount > 30 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "产仔数量需在 1-30")
		}
		plan, ok := next.FindPlan(planId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "配种计划不存在")
		}
		if plan.PlugPositive != nil && !*plan.PlugPositive {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "查栓阴性计划不可登记产仔")
		}
		if plan.WeanedAt != nil {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "已断奶计划不可重复登记产仔")
		}
		father, ok := next.FindAnimal(plan.MaleID)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "雄鼠不存在")
		}
		mother, ok := next.FindAnimal(plan.FemaleID)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "雌鼠不存在")
		}

		strainValue := optionalOr(strain, mother.Strain)
		if !next.StrainAllowed(strainValue) {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "品系不在主数据字典中")
		}
		genotypeValue := optionalOr(genotype, mother.Genotype)
		if !next.GenotypeAllowed(genotypeValue) {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "基因型不在模板字典中")
		}

		targetCage, ok := next.FindCage(mother.CageID)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "母鼠所在笼位不存在")
		}
		if targetCage.FreeCapacity() < pupCount {
			return audit{}, nil, domain.Fail(domain.KindCapacityExceeded, "母鼠笼位容量不足，无法登记产仔")
		}

		protocol := plan.ProtocolID
		if protocol == nil {
			protocol = mother.ProtocolID
		}
		pups := make([]domain.Animal, 0, pupCount)
		for i := 0; i < pupCount; i++ {
			pups = append(pups, domain.Animal{
				ID:         s.ids.Next("A"),
				Identifier: s.ids.Next("P"),
				Sex:        domain.SexUnknown,
				BornAt:     now,
				Strain:     strainValue,
				Genotype:   genotypeValue,
				Status:     domain.AnimalActive,
				CageID:     mother.CageID,
				ProtocolID: protocol,
				FatherID:   &father.ID,
				MotherID:   &mother.ID,
			})
		}

		next.Animals = append(append([]domain.Animal(nil), pups...), next.Animals...)
		for i := range next.Cages {
			if next.Cages[i].ID == mother.CageID {
				for _, pup := range pups {
					next.Cages[i].AnimalIDs = append(next.Cages[i].AnimalIDs, pup.ID)
				}
			}
		}

		a := audit{
			action:   "BREEDING_BIRTH_RECORD",
			entity:   domain.EntityBreeding,
			entityID: planId,
			summary:  fmt.Sprintf("登记产仔 %d 只，父本 %s，母本 %s", len(pups), father.Identifier, mother.Identifier),
		}
		return a, &syncMsg{event: "breeding.birth_record", payload: fmt.Sprintf("plan=%s count=%d", planId, len(pups))}, domain.Success()
	})
}

// CompleteWeaning marks the plan weaned, releases the parents back to active,
// and closes the weaning task.
func (s *Service) CompleteWeaning(planId, operator string) domain.Outcome {
	return s.apply(domain.CapBreedingWrite, operator, "breeding.wean", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "繁育操作", now); out.Failed() {
			return audit{}, nil, out
		}
		plan, ok := next.FindPlan(planId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "配种计划不存在")
		}
		if plan.WeanedAt != nil {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "该计划已完成断奶")
		}
		if plan.PlugPositive != nil && !*plan.PlugPositive {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "查栓阴性计划不可执行断奶")
		}

		weaned := now
		for i := range next.BreedingPlans {
			if next.BreedingPlans[i].ID == planId {
				next.BreedingPlans[i].WeanedAt = &weaned
			}
		}
		for i := range next.Animals {
			if next.Animals[i].ID == plan.MaleID || next.Animals[i].ID == plan.FemaleID {
				next.Animals[i].Status = domain.AnimalActive
			}
		}
		closePlanTasks(next, planId, "断奶", now)

		a := audit{
			action:   "BREEDING_WEAN_COMPLETE",
			entity:   domain.EntityBreeding,
			entityID: planId,
			summary:  "断奶流程已完成",
		}
		return a, &syncMsg{event: "breeding.wean", payload: "plan=" + planId}, domain.Success()
	})
}

// ReopenWeaning reverses a completed weaning: the plan loses its weaned mark,
// the parents go back to breeding, and the weaning task reopens.
func (s *Service) ReopenWeaning(planId, operator string) domain.Outcome {
	return s.apply(domain.CapBreedingWrite, operator, "breeding.wean_reopen", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		plan, ok := next.FindPlan(planId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "配种计划不存在")
		}
		if plan.WeanedAt == nil {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "该计划尚未完成断奶，无需撤销")
		}

		for i := range next.BreedingPlans {
			if next.BreedingPlans[i].ID == planId {
				next.BreedingPlans[i].WeanedAt = nil
			}
		}
		for i := range next.Animals {
			if next.Animals[i].ID == plan.MaleID || next.Animals[i].ID == plan.FemaleID {
				next.Animals[i].Status = domain.AnimalBreeding
			}
		}
		for i := range next.Tasks {
			t := next.Tasks[i]
			if t.EntityType == domain.EntityBreeding && t.EntityID == planId && strings.Contains(t.Title, "断奶") {
				next.Tasks[i].Status = domain.TaskTodo
				next.Tasks[i].CompletedAt = nil
			}
		}

		a := audit{
			action:   "BREEDING_WEAN_REOPEN",
			entity:   domain.EntityBreeding,
			entityID: planId,
			summary:  "断奶流程撤销并恢复待执行",
		}
		return a, &syncMsg{event: "breeding.wean_reopen", payload: "plan=" + planId}, domain.Success()
	})
}

func closePlanTasks(next *domain.Snapshot, planId, titlePart string, now time.Time) {
	for i := range next.Tasks {
		t := next.Tasks[i]
		if t.EntityType == domain.EntityBreeding && t.EntityID == planId && strings.Contains(t.Title, titlePart) {
			done := now
			next.Tasks[i].Status = domain.TaskDone
			next.Tasks[i].CompletedAt = &done
		}
	}
}

func optionalOr(value *string, fallback string) string {
	if value == nil {
		return fallback
	}
	clean := strings.TrimSpace(*value)
	if clean == "" {
		return fallback
	}
	return clean
}
