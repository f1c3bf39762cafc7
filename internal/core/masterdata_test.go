package core

import (
	"sort"
	"testing"

	"vivarium/pkg/domain"
)

func TestAddStrainKeepsCatalogSorted(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.AddStrain("FVB", "tester"), domain.KindPermissionDenied)

	asAdmin(t, svc)
	mustOK(t, svc.AddStrain(" FVB ", "admin"))
	catalog := svc.Snapshot().StrainCatalog
	if !sort.StringsAreSorted(catalog) {
		t.Fatalf("expected sorted catalog, got %v", catalog)
	}
	found := false
	for _, entry := range catalog {
		if entry == "FVB" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected FVB in catalog, got %v", catalog)
	}

	out := svc.AddStrain("c57bl/6j", "admin")
	mustFail(t, out, domain.KindDuplicate)
	if out.Reason != "品系已存在" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.AddStrain("  ", "admin"), domain.KindMalformedInput)
}

func TestRemoveStrainBlockedWhileInUse(t *testing.T) {
	svc := newTestService(t)
	asAdmin(t, svc)
	out := svc.RemoveStrain("NOD", "admin")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "仍有个体使用该品系，无法删除" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.RemoveStrain("FVB", "admin"), domain.KindNotFound)

	mustOK(t, svc.AddStrain("FVB", "admin"))
	mustOK(t, svc.RemoveStrain("fvb", "admin"))
	for _, entry := range svc.Snapshot().StrainCatalog {
		if entry == "FVB" {
			t.Fatal("expected FVB removed")
		}
	}
}

func TestGenotypeCatalogLifecycle(t *testing.T) {
	svc := newTestService(t)
	asAdmin(t, svc)
	out := svc.AddGenotype("wt", "admin")
	mustFail(t, out, domain.KindDuplicate)
	if out.Reason != "基因型模板已存在" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.AddGenotype("", "admin"), domain.KindMalformedInput)

	// no animal carries -/-
	mustOK(t, svc.RemoveGenotype("-/-", "admin"))
	out = svc.RemoveGenotype("+/+", "admin")
	mustFail(t, out, domain.KindInvalidState)
	if out.Reason != "仍有个体使用该基因型，无法删除" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	mustFail(t, svc.RemoveGenotype("fl/fl", "admin"), domain.KindNotFound)

	mustOK(t, svc.AddGenotype("fl/fl", "admin"))
	if !sort.StringsAreSorted(svc.Snapshot().GenotypeCatalog) {
		t.Fatal("expected sorted genotype catalog")
	}
}
