package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// MoveAnimals relocates the animals into the target cage. The target must
// exist and have room for the incoming set, no moving animal may be dead, and
// every bound protocol must still be usable. On success the animals leave
// every cage currently holding them.
func (s *Service) MoveAnimals(animalIds []string, targetCageId, operator string) domain.Outcome {
	return s.apply(domain.CapMoveAnimal, operator, "animal.move", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		ids := uniqueSet(animalIds)
		if len(ids) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "请先选择要转移的个体")
		}
		targetCage, ok := next.FindCage(targetCageId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "目标笼不存在")
		}

		var moving []domain.Animal
		for _, a := range next.Animals {
			if ids[a.ID] {
				moving = append(moving, a)
			}
		}
		if len(moving) != len(ids) {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "部分个体不存在")
		}
		allInTarget := true
		for _, a := range moving {
			if a.CageID != targetCageId {
				allInTarget = false
			}
			if a.Status == domain.AnimalDead {
				return audit{}, nil, domain.Fail(domain.KindInvalidState, "死亡个体不可转笼")
			}
		}
		if allInTarget {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "个体已在目标笼")
		}
		if out := validateAnimalProtocols(next, moving, now); out.Failed() {
			return audit{}, nil, out
		}

		projected := uniqueSet(targetCage.AnimalIDs)
		for id := range ids {
			projected[id] = true
		}
		if len(projected) > targetCage.CapacityLimit {
			return audit{}, nil, domain.Fail(domain.KindCapacityExceeded, "目标笼容量不足")
		}

		for i := range next.Animals {
			if ids[next.Animals[i].ID] {
				next.Animals[i].CageID = targetCageId
			}
		}
		for i, cage := range next.Cages {
			if cage.ID == targetCageId {
				members := append([]string(nil), cage.AnimalIDs...)
				for _, id := range animalIds {
					if ids[id] && !contains(members, id) {
						members = append(members, id)
					}
				}
				next.Cages[i].AnimalIDs = members
				continue
			}
			next.Cages[i].AnimalIDs = removeAll(cage.AnimalIDs, ids)
		}

		a := audit{
			action:   "ANIMAL_MOVE",
			entity:   domain.EntityAnimal,
			entityID: strings.Join(sortedKeys(ids), ","),
			summary:  fmt.Sprintf("转笼到 %s，数量 %d", targetCageId, len(ids)),
		}
		return a, &syncMsg{event: "animal.move", payload: fmt.Sprintf("target=%s count=%d", targetCageId, len(ids))}, domain.Success()
	})
}

// MergeCages moves every occupant of the source cage into the target and
// closes the source. Both cages must be active.
func (s *Service) MergeCages(sourceCageId, targetCageId, operator string) domain.Outcome {
	return s.apply(domain.CapMoveAnimal, operator, "cage.merge", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if sourceCageId == targetCageId {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "源笼与目标笼不能相同")
		}
		source, ok := next.FindCage(sourceCageId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "源笼不存在")
		}
		target, ok := next.FindCage(targetCageId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "目标笼不存在")
		}
		if source.Status != domain.CageActive || target.Status != domain.CageActive {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "仅支持活跃笼位并笼")
		}
		if len(source.AnimalIDs) == 0 {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "源笼没有可并入个体")
		}

		merged := append([]string(nil), target.AnimalIDs...)
		for _, id := range source.AnimalIDs {
			if !contains(merged, id) {
				merged = append(merged, id)
			}
		}
		if len(merged) > target.CapacityLimit {
			return audit{}, nil, domain.Fail(domain.KindCapacityExceeded, "目标笼容量不足，无法并笼")
		}

		sourceSet := uniqueSet(source.AnimalIDs)
		for i := range next.Animals {
			if sourceSet[next.Animals[i].ID] {
				next.Animals[i].CageID = targetCageId
			}
		}
		for i := range next.Cages {
			switch next.Cages[i].ID {
			case sourceCageId:
				next.Cages[i].AnimalIDs = nil
				next.Cages[i].Status = domain.CageClosed
			case targetCageId:
				next.Cages[i].AnimalIDs = merged
			}
		}

		a := audit{
			action:   "CAGE_MERGE",
			entity:   domain.EntityCage,
			entityID: sourceCageId + "->" + targetCageId,
			summary:  fmt.Sprintf("并笼完成，转移 %d 只个体", len(source.AnimalIDs)),
		}
		return a, &syncMsg{event: "cage.merge", payload: fmt.Sprintf("source=%s,target=%s", sourceCageId, targetCageId)}, domain.Success()
	})
}

// SplitCage carves a new cage off the source and moves the selected animals
// into it. The new cage id must not collide and the moved set must fit its
// capacity.
func (s *Service) SplitCage(sourceCageId, newCageId, roomCode, rackCode, slotCode string, capacityLimit int, animalIds []string, operator string) domain.Outcome {
	return s.apply(domain.CapMoveAnimal, operator, "cage.split", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if strings.TrimSpace(newCageId) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "新笼编号不能为空")
		}
		if capacityLimit < 1 || capacityLimit > 99 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "笼容量需在 1-99")
		}
		moving := uniqueSet(animalIds)
		if len(moving) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "请先选择拆分个体")
		}
		if _, exists := next.FindCage(newCageId); exists {
			return audit{}, nil, domain.Fail(domain.KindDuplicate, "新笼编号已存在")
		}
		source, ok := next.FindCage(sourceCageId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "源笼不存在")
		}
		if source.Status != domain.CageActive {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "仅支持从活跃笼位拆笼")
		}
		sourceSet := uniqueSet(source.AnimalIDs)
		for id := range moving {
			if !sourceSet[id] {
				return audit{}, nil, domain.Fail(domain.KindInvalidState, "存在不在源笼中的个体")
			}
		}
		if len(moving) > capacityLimit {
			return audit{}, nil, domain.Fail(domain.KindCapacityExceeded, "目标新笼容量不足")
		}

		var movingAnimals []domain.Animal
		for _, a := range next.Animals {
			if moving[a.ID] {
				movingAnimals = append(movingAnimals, a)
			}
		}
		if out := validateAnimalProtocols(next, movingAnimals, now); out.Failed() {
			return audit{}, nil, out
		}

		newCage := domain.Cage{
			ID:            newCageId,
			RoomCode:      orDefault(roomCode, source.RoomCode),
			RackCode:      orDefault(rackCode, source.RackCode),
			SlotCode:      orDefault(slotCode, source.SlotCode),
			CapacityLimit: capacityLimit,
			AnimalIDs:     sortedKeys(moving),
			Status:        domain.CageActive,
		}

		for i := range next.Animals {
			if moving[next.Animals[i].ID] {
				next.Animals[i].CageID = newCageId
			}
		}
		for i := range next.Cages {
			if next.Cages[i].ID == sourceCageId {
				next.Cages[i].AnimalIDs = removeAll(next.Cages[i].AnimalIDs, moving)
			}
		}
		next.Cages = append([]domain.Cage{newCage}, next.Cages...)

		a := audit{
			action:   "CAGE_SPLIT",
			entity:   domain.EntityCage,
			entityID: sourceCageId + "->" + newCageId,
			summary:  fmt.Sprintf("拆笼完成，迁移 %d 只个体", len(moving)),
		}
		return a, &syncMsg{event: "cage.split", payload: fmt.Sprintf("source=%s,new=%s,count=%d", sourceCageId, newCageId, len(moving))}, domain.Success()
	})
}

// CreateCage registers an empty active cage. Ids are normalized to upper case
// and must be unique case-insensitively.
func (s *Service) CreateCage(cageId, roomCode, rackCode, slotCode string, capacityLimit int, operator string) domain.Outcome {
	return s.apply(domain.CapCreateResources, operator, "cage.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		normalized := strings.ToUpper(strings.TrimSpace(cageId))
		if normalized == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "笼编号不能为空")
		}
		if capacityLimit < 1 || capacityLimit > 99 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "笼容量需在 1-99")
		}
		for _, c := range next.Cages {
			if strings.EqualFold(c.ID, normalized) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "笼编号已存在")
			}
		}

		cage := domain.Cage{
			ID:            normalized,
			RoomCode:      orDefault(strings.ToUpper(strings.TrimSpace(roomCode)), "A1"),
			RackCode:      orDefault(strings.ToUpper(strings.TrimSpace(rackCode)), "R1"),
			SlotCode:      orDefault(strings.ToUpper(strings.TrimSpace(slotCode)), "01"),
			CapacityLimit: capacityLimit,
			Status:        domain.CageActive,
		}
		next.Cages = append([]domain.Cage{cage}, next.Cages...)

		a := audit{
			action:   "CAGE_CREATE",
			entity:   domain.EntityCage,
			entityID: cage.ID,
			summary:  fmt.Sprintf("创建笼位 %s/%s/%s", cage.RoomCode, cage.RackCode, cage.SlotCode),
		}
		return a, &syncMsg{event: "cage.create", payload: "cage=" + cage.ID}, domain.Success()
	})
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func removeAll(list []string, drop map[string]bool) []string {
	var kept []string
	for _, v := range list {
		if !drop[v] {
			kept = append(kept, v)
		}
	}
	return kept
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
