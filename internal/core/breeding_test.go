package core

import (
	"testing"
	"time"

	"vivarium/pkg/domain"
)

func TestCreateBreedingPlanSchedulesTasks(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.CreateBreedingPlan("A001", "A003", strPtr("P-NEURO-2026-001"), "第一轮", "tester"))

	snap := svc.Snapshot()
	plan := snap.BreedingPlans[0]
	if !plan.MatedAt.Equal(testNow) {
		t.Fatalf("expected mated at fixture time, got %v", plan.MatedAt)
	}
	if !plan.ExpectedPlugCheckAt.Equal(testNow.Add(3 * 24 * time.Hour)) {
		t.Fatalf("expected plug check on day 3, got %v", plan.ExpectedPlugCheckAt)
	}
	if !plan.ExpectedWeanAt.Equal(testNow.Add(21 * 24 * time.Hour)) {
		t.Fatalf("expected weaning on day 21, got %v", plan.ExpectedWeanAt)
	}

	for _, id := range []string{"A001", "A003"} {
		a, _ := snap.FindAnimal(id)
		if a.Status != domain.AnimalBreeding {
			t.Fatalf("expected %s in breeding status, got %s", id, a.Status)
		}
	}

	plug, wean := snap.Tasks[0], snap.Tasks[1]
	if plug.Title != "查栓检查" || plug.Priority != domain.PriorityHigh || plug.EntityID != plan.ID {
		t.Fatalf("unexpected plug task %+v", plug)
	}
	if wean.Title != "断奶分笼" || wean.Priority != domain.PriorityCritical || !wean.DueAt.Equal(plan.ExpectedWeanAt) {
		t.Fatalf("unexpected weaning task %+v", wean)
	}
}

func TestCreateBreedingPlanRejectsWrongSexOrDeadParent(t *testing.T) {
	svc := newTestService(t)
	out := svc.CreateBreedingPlan("A002", "A003", nil, "", "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "选择的雄鼠性别不正确" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	out = svc.CreateBreedingPlan("A001", "A009", nil, "", "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "选择的雌鼠性别不正确" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}

	mustOK(t, svc.UpdateAnimalStatus("A011", domain.AnimalDead, "tester"))
	out = svc.CreateBreedingPlan("A011", "A003", nil, "", "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "死亡个体不可用于配种" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}

	mustFail(t, svc.CreateBreedingPlan("A-GHOST", "A003", nil, "", "tester"), domain.KindNotFound)
	mustFail(t, svc.CreateBreedingPlan("A001", "A-GHOST", nil, "", "tester"), domain.KindNotFound)
}

func TestCreateBreedingPlanValidatesProtocol(t *testing.T) {
	svc := newTestService(t)
	out := svc.CreateBreedingPlan("A001", "A003", strPtr("P-METAB-2025-011"), "", "tester")
	mustFail(t, out, domain.KindProtocolInvalid)
	if out.Reason != "协议无效或已禁用" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}

	// re-enable the expired protocol: still rejected, now for the expiry
	asAdmin(t, svc)
	mustOK(t, svc.SetProtocolState("P-METAB-2025-011", true, "admin"))
	out = svc.CreateBreedingPlan("A001", "A003", strPtr("P-METAB-2025-011"), "", "tester")
	mustFail(t, out, domain.KindProtocolInvalid)
	if out.Reason != "协议已过期，无法执行配种" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestRecordPlugCheckIsOncePerPlan(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RecordPlugCheck("BR-1999", true, "tester"))

	snap := svc.Snapshot()
	plan, _ := snap.FindPlan("BR-1999")
	if plan.PlugCheckedAt == nil || plan.PlugPositive == nil || !*plan.PlugPositive {
		t.Fatalf("expected positive plug check recorded, got %+v", plan)
	}
	task, _ := snap.FindTask("TSK-1002")
	if task.Status != domain.TaskDone || task.CompletedAt == nil {
		t.Fatalf("expected plug-check task closed, got %+v", task)
	}

	out := svc.RecordPlugCheck("BR-1999", false, "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "该计划已完成查栓" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestRecordPlugCheckNegativeReleasesParents(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RecordPlugCheck("BR-1999", false, "tester"))

	snap := svc.Snapshot()
	for _, id := range []string{"A004", "A005"} {
		a, _ := snap.FindAnimal(id)
		if a.Status != domain.AnimalActive {
			t.Fatalf("expected %s released to active, got %s", id, a.Status)
		}
	}
}

func TestRecordBirthCreatesPupsInMotherCage(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RecordBirth("BR-1999", 2, nil, nil, "tester"))

	snap := svc.Snapshot()
	for i := 0; i < 2; i++ {
		pup := snap.Animals[i]
		if pup.CageID != "C-102" || pup.Strain != "BALB/c" || pup.Genotype != "-/+" {
			t.Fatalf("unexpected pup %+v", pup)
		}
		if pup.FatherID == nil || *pup.FatherID != "A004" || pup.MotherID == nil || *pup.MotherID != "A005" {
			t.Fatalf("expected lineage recorded, got %+v", pup)
		}
		if pup.ProtocolID == nil || *pup.ProtocolID != "P-IMMUNE-2026-003" {
			t.Fatalf("expected inherited plan protocol, got %+v", pup.ProtocolID)
		}
	}
	cage, _ := snap.FindCage("C-102")
	if len(cage.AnimalIDs) != 5 {
		t.Fatalf("expected 5 occupants after birth, got %d", len(cage.AnimalIDs))
	}
}

func TestRecordBirthRejectsOverCapacityLitter(t *testing.T) {
	svc := newTestService(t)
	// C-102 has two free slots
	out := svc.RecordBirth("BR-1999", 3, nil, nil, "tester")
	mustFail(t, out, domain.KindCapacityExceeded)
	if out.Reason != "母鼠笼位容量不足，无法登记产仔" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.RecordBirth("BR-1999", 0, nil, nil, "tester"), domain.KindMalformedInput)
	mustFail(t, svc.RecordBirth("BR-1999", 31, nil, nil, "tester"), domain.KindMalformedInput)
	mustFail(t, svc.RecordBirth("BR-GHOST", 2, nil, nil, "tester"), domain.KindNotFound)
}

func TestRecordBirthRejectsNegativePlugPlan(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RecordPlugCheck("BR-1999", false, "tester"))
	out := svc.RecordBirth("BR-1999", 2, nil, nil, "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "查栓阴性计划不可登记产仔" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestRecordBirthValidatesOverriddenCatalogValues(t *testing.T) {
	svc := newTestService(t)
	out := svc.RecordBirth("BR-1999", 2, strPtr("FVB"), nil, "tester")
	mustFail(t, out, domain.KindInvalidState)
	out = svc.RecordBirth("BR-1999", 2, nil, strPtr("fl/fl"), "tester")
	mustFail(t, out, domain.KindInvalidState)
}

func TestCompleteWeaningAndReopen(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.CompleteWeaning("BR-1999", "tester"))

	snap := svc.Snapshot()
	plan, _ := snap.FindPlan("BR-1999")
	if plan.WeanedAt == nil {
		t.Fatal("expected weaned mark set")
	}
	for _, id := range []string{"A004", "A005"} {
		a, _ := snap.FindAnimal(id)
		if a.Status != domain.AnimalActive {
			t.Fatalf("expected %s released to active, got %s", id, a.Status)
		}
	}
	mustFail(t, svc.CompleteWeaning("BR-1999", "tester"), domain.KindInvalidState)

	mustOK(t, svc.ReopenWeaning("BR-1999", "tester"))
	snap = svc.Snapshot()
	plan, _ = snap.FindPlan("BR-1999")
	if plan.WeanedAt != nil {
		t.Fatal("expected weaned mark cleared after reopen")
	}
	for _, id := range []string{"A004", "A005"} {
		a, _ := snap.FindAnimal(id)
		if a.Status != domain.AnimalBreeding {
			t.Fatalf("expected %s back in breeding, got %s", id, a.Status)
		}
	}
}

func TestCompleteWeaningRejectsNegativePlug(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RecordPlugCheck("BR-1999", false, "tester"))
	out := svc.CompleteWeaning("BR-1999", "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "查栓阴性计划不可执行断奶" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestReopenWeaningRequiresWeanedPlan(t *testing.T) {
	svc := newTestService(t)
	out := svc.ReopenWeaning("BR-1999", "tester")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "该计划尚未完成断奶，无需撤销" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.ReopenWeaning("BR-GHOST", "tester"), domain.KindNotFound)
}
