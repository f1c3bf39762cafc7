package core

import (
	"sync"

	"vivarium/pkg/domain"
)

// weaningUndo retains the rollback information for the most recent wizard
// run. One undo slot only; a new run overwrites it.
type weaningUndo struct {
	planId            string
	originalCageByPup map[string]string
}

// wizardState guards the single undo slot.
type wizardState struct {
	mu   sync.Mutex
	last *weaningUndo
}

// CanUndoWeaning reports whether an undoable wizard run is retained.
func (s *Service) CanUndoWeaning() bool {
	s.wizard.mu.Lock()
	defer s.wizard.mu.Unlock()
	return s.wizard.last != nil
}

// RunWeaningWizard distributes the pups of a weaning-ready plan across the
// target cages and completes the weaning. Each pup goes to the target cage
// with the most remaining free capacity, recomputed after every assignment;
// if the pups cannot all fit, the wizard aborts before any mutation. When a
// later step fails, the completed relocations are rolled back. A successful
// run retains rollback information for one manual undo.
func (s *Service) RunWeaningWizard(planId string, pupIds, targetCageIds []string, operator string) domain.Outcome {
	if !s.granted(domain.CapBreedingWrite) || !s.granted(domain.CapMoveAnimal) {
		return domain.Failf(domain.KindPermissionDenied, "缺少权限: %s / %s",
			domain.CapBreedingWrite.DisplayName(), domain.CapMoveAnimal.DisplayName())
	}
	if len(pupIds) == 0 {
		return domain.Fail(domain.KindMalformedInput, "请至少选择 1 只幼鼠")
	}
	targets := dedupe(targetCageIds)
	if len(targets) == 0 {
		return domain.Fail(domain.KindMalformedInput, "请至少选择 1 个目标笼位")
	}

	snap := s.store.Snapshot()
	pups := dedupe(pupIds)
	originalCages := make(map[string]string, len(pups))
	for _, id := range pups {
		a, ok := snap.FindAnimal(id)
		if !ok {
			return domain.Fail(domain.KindNotFound, "部分幼鼠不存在，请重新选择")
		}
		originalCages[id] = a.CageID
	}

	assignment, ok := recommendWeaningAssignments(snap, pups, targets)
	if !ok {
		return domain.Fail(domain.KindCapacityExceeded, "目标笼位容量不足，无法自动分笼")
	}

	var moved []string
	for _, group := range assignment {
		if out := s.MoveAnimals(group.pupIds, group.cageId, operator); out.Failed() {
			s.rollbackMoves(moved, originalCages, operator)
			return out
		}
		moved = append(moved, group.pupIds...)
	}

	if out := s.CompleteWeaning(planId, operator); out.Failed() {
		s.rollbackMoves(moved, originalCages, operator)
		return out
	}

	s.wizard.mu.Lock()
	s.wizard.last = &weaningUndo{planId: planId, originalCageByPup: originalCages}
	s.wizard.mu.Unlock()
	return domain.Success()
}

// UndoLastWeaningWizard reverses the most recent wizard run: every pup moves
// back to its pre-wizard cage and the plan's weaning reopens. The undo slot
// is consumed on success.
func (s *Service) UndoLastWeaningWizard(operator string) domain.Outcome {
	if !s.granted(domain.CapBreedingWrite) || !s.granted(domain.CapMoveAnimal) {
		return domain.Failf(domain.KindPermissionDenied, "缺少权限: %s / %s",
			domain.CapBreedingWrite.DisplayName(), domain.CapMoveAnimal.DisplayName())
	}
	s.wizard.mu.Lock()
	undo := s.wizard.last
	s.wizard.mu.Unlock()
	if undo == nil {
		return domain.Fail(domain.KindInvalidState, "没有可撤销的断奶操作")
	}

	moved := make([]string, 0, len(undo.originalCageByPup))
	for id := range undo.originalCageByPup {
		moved = append(moved, id)
	}
	s.rollbackMoves(moved, undo.originalCageByPup, operator)
	if out := s.ReopenWeaning(undo.planId, operator); out.Failed() {
		return out
	}

	s.wizard.mu.Lock()
	s.wizard.last = nil
	s.wizard.mu.Unlock()
	return domain.Success()
}

// cageAssignment groups the pups destined for one target cage, in assignment
// order.
type cageAssignment struct {
	cageId string
	pupIds []string
}

// recommendWeaningAssignments greedily picks, for each pup in turn, the
// target cage with the most free capacity left. Returns false when some pup
// cannot be placed.
func recommendWeaningAssignments(snap domain.Snapshot, pupIds, targetCageIds []string) ([]cageAssignment, bool) {
	type slot struct {
		cageId string
		free   int
	}
	var slots []slot
	for _, id := range targetCageIds {
		if cage, ok := snap.FindCage(id); ok {
			slots = append(slots, slot{cageId: cage.ID, free: cage.FreeCapacity()})
		}
	}
	if len(slots) == 0 {
		return nil, false
	}

	byCage := map[string]*cageAssignment{}
	var order []string
	for _, pupId := range pupIds {
		best := -1
		for i, sl := range slots {
			if sl.free > 0 && (best == -1 || sl.free > slots[best].free) {
				best = i
			}
		}
		if best == -1 {
			return nil, false
		}
		slots[best].free--
		target := slots[best].cageId
		if byCage[target] == nil {
			byCage[target] = &cageAssignment{cageId: target}
			order = append(order, target)
		}
		byCage[target].pupIds = append(byCage[target].pupIds, pupId)
	}

	out := make([]cageAssignment, 0, len(order))
	for _, cageId := range order {
		out = append(out, *byCage[cageId])
	}
	return out, true
}

// rollbackMoves sends the moved pups back to their recorded original cages,
// grouped per source cage. Rollback is best effort; a cage that refuses the
// return (for example, filled meanwhile) keeps the pup where it is.
func (s *Service) rollbackMoves(moved []string, originalCageByPup map[string]string, operator string) {
	groups := map[string][]string{}
	var order []string
	for _, pupId := range moved {
		cageId, ok := originalCageByPup[pupId]
		if !ok {
			continue
		}
		if _, seen := groups[cageId]; !seen {
			order = append(order, cageId)
		}
		groups[cageId] = append(groups[cageId], pupId)
	}
	for _, cageId := range order {
		s.MoveAnimals(groups[cageId], cageId, operator)
	}
}

func dedupe(ids []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
