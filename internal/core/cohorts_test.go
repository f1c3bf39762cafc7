package core

import (
	"strings"
	"testing"

	"vivarium/pkg/domain"
)

func findTemplate(t *testing.T, svc *Service, id string) (domain.CohortTemplate, bool) {
	t.Helper()
	for _, tpl := range svc.Snapshot().CohortTemplates {
		if tpl.ID == id {
			return tpl, true
		}
	}
	return domain.CohortTemplate{}, false
}

func TestCreateCohortLocksMatchedAnimals(t *testing.T) {
	svc := newTestService(t)
	female := domain.SexFemale
	filter := CohortFilter{Strain: strPtr("C57BL/6J"), Sex: &female}
	mustOK(t, svc.CreateCohort("三月雌性队列", filter, false, "", "tester"))

	cohort := svc.Snapshot().Cohorts[0]
	if !cohort.Locked || len(cohort.AnimalIDs) != 3 {
		t.Fatalf("unexpected cohort %+v", cohort)
	}
	want := []string{"A002", "A003", "A010"}
	for i, id := range want {
		if cohort.AnimalIDs[i] != id {
			t.Fatalf("expected members %v, got %v", want, cohort.AnimalIDs)
		}
	}
	if cohort.BlindCodes != nil {
		t.Fatal("expected no blind codes when coding disabled")
	}
	if !strings.Contains(cohort.CriteriaSummary, "strain=C57BL/6J") || !strings.Contains(cohort.CriteriaSummary, "blind=disabled") {
		t.Fatalf("unexpected summary %q", cohort.CriteriaSummary)
	}
}

func TestCreateCohortAssignsBlindCodes(t *testing.T) {
	svc := newTestService(t)
	female := domain.SexFemale
	filter := CohortFilter{Strain: strPtr("C57BL/6J"), Sex: &female}
	mustOK(t, svc.CreateCohort("盲法队列", filter, true, "", "tester"))

	cohort := svc.Snapshot().Cohorts[0]
	want := map[string]string{"A002": "BL-001", "A003": "BL-002", "A010": "BL-003"}
	for id, code := range want {
		if cohort.BlindCodes[id] != code {
			t.Fatalf("expected %s -> %s, got %q", id, code, cohort.BlindCodes[id])
		}
	}

	// the prefix is trimmed and upper-cased
	mustOK(t, svc.CreateCohort("自定义前缀", filter, true, " mz ", "tester"))
	cohort = svc.Snapshot().Cohorts[0]
	if cohort.BlindCodes["A002"] != "MZ-001" {
		t.Fatalf("expected MZ-001, got %q", cohort.BlindCodes["A002"])
	}
}

func TestCreateCohortAgeWindowFilters(t *testing.T) {
	svc := newTestService(t)
	female := domain.SexFemale
	// A010 is six weeks old and falls outside the window
	filter := CohortFilter{Strain: strPtr("C57BL/6J"), Sex: &female, MinWeeks: intPtr(10)}
	mustOK(t, svc.CreateCohort("成年雌性", filter, false, "", "tester"))

	cohort := svc.Snapshot().Cohorts[0]
	if len(cohort.AnimalIDs) != 2 || cohort.AnimalIDs[0] != "A002" || cohort.AnimalIDs[1] != "A003" {
		t.Fatalf("expected [A002 A003], got %v", cohort.AnimalIDs)
	}
}

func TestCreateCohortValidation(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.CreateCohort("  ", CohortFilter{}, false, "", "tester"), domain.KindMalformedInput)
	out := svc.CreateCohort("空队列", CohortFilter{MinWeeks: intPtr(100)}, false, "", "tester")
	mustFail(t, out, domain.KindNotFound)
	if out.Reason != "没有满足条件的个体" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestSaveCohortTemplateUpsertsByName(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.SaveCohortTemplate("NOD Screening", CohortFilter{Strain: strPtr("NOD")}, "tester"))
	snap := svc.Snapshot()
	if len(snap.CohortTemplates) != 3 {
		t.Fatalf("expected 3 templates, got %d", len(snap.CohortTemplates))
	}
	created := snap.CohortTemplates[0]
	if created.Name != "NOD Screening" || created.Strain == nil || *created.Strain != "NOD" {
		t.Fatalf("unexpected template %+v", created)
	}

	// matching an existing name case-insensitively updates in place
	mustOK(t, svc.SaveCohortTemplate("week10-14 female +/-", CohortFilter{MinWeeks: intPtr(8), MaxWeeks: intPtr(12)}, "tester"))
	snap = svc.Snapshot()
	if len(snap.CohortTemplates) != 3 {
		t.Fatalf("expected upsert, got %d templates", len(snap.CohortTemplates))
	}
	updated, _ := findTemplate(t, svc, "CTP-1001")
	if updated.MinWeeks == nil || *updated.MinWeeks != 8 || updated.MaxWeeks == nil || *updated.MaxWeeks != 12 {
		t.Fatalf("expected updated age window, got %+v", updated)
	}

	mustFail(t, svc.SaveCohortTemplate(" ", CohortFilter{}, "tester"), domain.KindMalformedInput)
	out := svc.SaveCohortTemplate("倒置窗口", CohortFilter{MinWeeks: intPtr(12), MaxWeeks: intPtr(8)}, "tester")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "周龄范围不合法" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestUpdateCohortTemplateRejectsNameCollision(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.SaveCohortTemplate("NOD Screening", CohortFilter{Strain: strPtr("NOD")}, "tester"))

	out := svc.UpdateCohortTemplate("CTP-1001", "nod screening", CohortFilter{}, "tester")
	mustFail(t, out, domain.KindDuplicate)
	if out.Reason != "模板名称已存在" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.UpdateCohortTemplate("CTP-GHOST", "新名字", CohortFilter{}, "tester"), domain.KindNotFound)

	mustOK(t, svc.UpdateCohortTemplate("CTP-1001", "改名后的模板", CohortFilter{Strain: strPtr("ICR")}, "tester"))
	renamed, _ := findTemplate(t, svc, "CTP-1001")
	if renamed.Name != "改名后的模板" || renamed.Strain == nil || *renamed.Strain != "ICR" {
		t.Fatalf("unexpected template %+v", renamed)
	}
}

func TestDeleteCohortTemplate(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.DeleteCohortTemplate("CTP-GHOST", "tester"), domain.KindNotFound)
	mustOK(t, svc.DeleteCohortTemplate("CTP-1001", "tester"))
	if _, ok := findTemplate(t, svc, "CTP-1001"); ok {
		t.Fatal("expected template removed")
	}
}

func TestApplyCohortTemplateBumpsUsage(t *testing.T) {
	svc := newTestService(t)
	before, _ := findTemplate(t, svc, "CTP-1001")
	mustOK(t, svc.ApplyCohortTemplate("CTP-1001", "tester"))
	after, _ := findTemplate(t, svc, "CTP-1001")
	if after.UsageCount != before.UsageCount+1 {
		t.Fatalf("expected usage bump, got %d -> %d", before.UsageCount, after.UsageCount)
	}
	mustFail(t, svc.ApplyCohortTemplate("CTP-GHOST", "tester"), domain.KindNotFound)
}
