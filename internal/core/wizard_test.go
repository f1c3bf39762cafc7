package core

import (
	"testing"

	"vivarium/pkg/domain"
)

func birthTwoPups(t *testing.T, svc *Service) []string {
	t.Helper()
	mustOK(t, svc.RecordBirth("BR-1999", 2, nil, nil, "tester"))
	snap := svc.Snapshot()
	return []string{snap.Animals[0].ID, snap.Animals[1].ID}
}

func TestRunWeaningWizardDistributesAndWeans(t *testing.T) {
	svc := newTestService(t)
	pups := birthTwoPups(t, svc)

	mustOK(t, svc.RunWeaningWizard("BR-1999", pups, []string{"C-103"}, "tester"))

	snap := svc.Snapshot()
	for _, id := range pups {
		a, _ := snap.FindAnimal(id)
		if a.CageID != "C-103" {
			t.Fatalf("expected pup %s in C-103, got %s", id, a.CageID)
		}
	}
	plan, _ := snap.FindPlan("BR-1999")
	if plan.WeanedAt == nil {
		t.Fatal("expected plan weaned")
	}
	for _, id := range []string{"A004", "A005"} {
		a, _ := snap.FindAnimal(id)
		if a.Status != domain.AnimalActive {
			t.Fatalf("expected parent %s released, got %s", id, a.Status)
		}
	}
	if !svc.CanUndoWeaning() {
		t.Fatal("expected an undoable wizard run")
	}
}

func TestUndoLastWeaningWizardRestoresCages(t *testing.T) {
	svc := newTestService(t)
	pups := birthTwoPups(t, svc)
	mustOK(t, svc.RunWeaningWizard("BR-1999", pups, []string{"C-103"}, "tester"))

	mustOK(t, svc.UndoLastWeaningWizard("tester"))

	snap := svc.Snapshot()
	for _, id := range pups {
		a, _ := snap.FindAnimal(id)
		if a.CageID != "C-102" {
			t.Fatalf("expected pup %s back in C-102, got %s", id, a.CageID)
		}
	}
	plan, _ := snap.FindPlan("BR-1999")
	if plan.WeanedAt != nil {
		t.Fatal("expected weaning reopened")
	}
	if svc.CanUndoWeaning() {
		t.Fatal("expected undo slot consumed")
	}
	out := svc.UndoLastWeaningWizard("tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "没有可撤销的断奶操作" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestRunWeaningWizardAbortsBeforeMutation(t *testing.T) {
	svc := newTestService(t)
	pups := birthTwoPups(t, svc)
	seq := svc.Store().Current().Seq

	out := svc.RunWeaningWizard("BR-1999", pups, []string{"C-999"}, "tester")
	mustFail(t, out, domain.KindCapacityExceeded)
	if out.Reason != "目标笼位容量不足，无法自动分笼" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	if svc.Store().Current().Seq != seq {
		t.Fatal("expected no mutation when targets cannot fit")
	}
}

func TestRunWeaningWizardValidation(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.RunWeaningWizard("BR-1999", nil, []string{"C-103"}, "tester"), domain.KindMalformedInput)
	mustFail(t, svc.RunWeaningWizard("BR-1999", []string{"A-GHOST"}, nil, "tester"), domain.KindMalformedInput)
	mustFail(t, svc.RunWeaningWizard("BR-1999", []string{"A-GHOST"}, []string{"C-103"}, "tester"), domain.KindNotFound)
}

func TestRunWeaningWizardRollsBackMovesOnLateFailure(t *testing.T) {
	svc := newTestService(t)
	pups := birthTwoPups(t, svc)

	// weaning already done: the wizard's final step must fail and the
	// completed relocations must be reversed
	mustOK(t, svc.CompleteWeaning("BR-1999", "tester"))
	out := svc.RunWeaningWizard("BR-1999", pups, []string{"C-103"}, "tester")
	mustFail(t, out, domain.KindInvalidState)

	snap := svc.Snapshot()
	for _, id := range pups {
		a, _ := snap.FindAnimal(id)
		if a.CageID != "C-102" {
			t.Fatalf("expected pup %s rolled back to C-102, got %s", id, a.CageID)
		}
	}
	if svc.CanUndoWeaning() {
		t.Fatal("expected no undo slot after a failed run")
	}
}

func TestRecommendWeaningAssignmentsGreedy(t *testing.T) {
	snap := SeedSnapshot(testNow)
	// C-103 and C-101 both start with two free slots
	assignment, ok := recommendWeaningAssignments(snap, []string{"p1", "p2", "p3"}, []string{"C-103", "C-101"})
	if !ok {
		t.Fatal("expected a feasible assignment")
	}
	if len(assignment) != 2 {
		t.Fatalf("expected two target groups, got %d", len(assignment))
	}
	first, second := assignment[0], assignment[1]
	if first.cageId != "C-103" || len(first.pupIds) != 2 || first.pupIds[0] != "p1" || first.pupIds[1] != "p3" {
		t.Fatalf("unexpected first group %+v", first)
	}
	if second.cageId != "C-101" || len(second.pupIds) != 1 || second.pupIds[0] != "p2" {
		t.Fatalf("unexpected second group %+v", second)
	}

	if _, ok := recommendWeaningAssignments(snap, []string{"p1", "p2", "p3"}, []string{"C-103"}); ok {
		t.Fatal("expected infeasible assignment for three pups into two slots")
	}
	if _, ok := recommendWeaningAssignments(snap, []string{"p1"}, []string{"C-999"}); ok {
		t.Fatal("expected failure for unknown targets")
	}
}
