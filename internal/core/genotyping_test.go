package core

import (
	"strings"
	"testing"

	"vivarium/pkg/domain"
)

func TestRegisterSampleAppendsRecord(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RegisterSample("A003", domain.SampleTail, "tester"))

	sample := svc.Snapshot().Samples[0]
	if !strings.HasPrefix(sample.ID, "SMP-") || sample.AnimalID != "A003" || sample.Type != domain.SampleTail {
		t.Fatalf("unexpected sample %+v", sample)
	}
	mustFail(t, svc.RegisterSample("A-GHOST", domain.SampleEar, "tester"), domain.KindNotFound)
}

func TestCreateGenotypingBatchAssignsPlatePositions(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.RegisterSample("A009", domain.SampleEar, "tester"))
	extra := svc.Snapshot().Samples[0].ID

	mustOK(t, svc.CreateGenotypingBatch("三月批次", []string{"SMP-1003", extra}, "tester"))

	snap := svc.Snapshot()
	batch := snap.GenotypingBatches[0]
	if batch.Status != domain.BatchSubmitted || len(batch.SampleIDs) != 2 {
		t.Fatalf("unexpected batch %+v", batch)
	}
	s1, _ := snap.FindSample("SMP-1003")
	if s1.BatchID == nil || *s1.BatchID != batch.ID || s1.PlatePosition == nil || *s1.PlatePosition != "A01" {
		t.Fatalf("unexpected first sample %+v", s1)
	}
	s2, _ := snap.FindSample(extra)
	if s2.PlatePosition == nil || *s2.PlatePosition != "A02" {
		t.Fatalf("unexpected second sample %+v", s2)
	}
}

func TestCreateGenotypingBatchValidation(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.CreateGenotypingBatch(" ", []string{"SMP-1003"}, "tester"), domain.KindMalformedInput)
	mustFail(t, svc.CreateGenotypingBatch("批次", nil, "tester"), domain.KindMalformedInput)
	out := svc.CreateGenotypingBatch("批次", []string{"SMP-GHOST"}, "tester")
	mustFail(t, out, domain.KindNotFound)
	if out.Reason != "存在无效样本" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
}

func TestPlatePositionRowMajor(t *testing.T) {
	cases := []struct {
		index int
		want  string
	}{
		{0, "A01"},
		{11, "A12"},
		{12, "B01"},
		{23, "B12"},
		{95, "H12"},
		{-3, "A01"},
	}
	for _, tc := range cases {
		if got := platePosition(tc.index); got != tc.want {
			t.Fatalf("platePosition(%d) = %q, want %q", tc.index, got, tc.want)
		}
	}
}

func TestImportGenotypingResultsIncrementsVersion(t *testing.T) {
	svc := newTestService(t)
	// GTR-1001 already holds GeneX +/- v1 confirmed for SMP-1001
	mustOK(t, svc.ImportGenotypingResults("GBT-1001", "sample_id,marker,call\nSMP-1001,GeneX,+/-", "Dr.Wang", "tester"))

	snap := svc.Snapshot()
	head := snap.GenotypingResults[0]
	if head.Version != 2 || head.Conflict || !head.Confirmed {
		t.Fatalf("expected confirmed v2, got %+v", head)
	}
	batch, _ := snap.FindBatch("GBT-1001")
	if batch.Status != domain.BatchCompleted {
		t.Fatalf("expected completed batch, got %s", batch.Status)
	}
	report := snap.LastImportReport
	if report == nil || report.ImportedCount != 1 || report.ConflictCount != 0 || report.FailedCount != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	// a second import of the same pair keeps climbing
	mustOK(t, svc.ImportGenotypingResults("GBT-1001", "SMP-1001,genex,+/-", "Dr.Wang", "tester"))
	if got := svc.Snapshot().GenotypingResults[0].Version; got != 3 {
		t.Fatalf("expected version 3 after re-import, got %d", got)
	}
}

func TestImportGenotypingResultsFlagsConfirmedConflicts(t *testing.T) {
	svc := newTestService(t)
	mustOK(t, svc.ImportGenotypingResults("GBT-1001", "SMP-1001,GeneX,-/-", "Dr.Wang", "tester"))

	snap := svc.Snapshot()
	head := snap.GenotypingResults[0]
	if !head.Conflict || head.Confirmed || head.Version != 2 {
		t.Fatalf("expected unconfirmed conflict v2, got %+v", head)
	}
	if snap.LastImportReport.ConflictCount != 1 {
		t.Fatalf("expected 1 conflict in report, got %d", snap.LastImportReport.ConflictCount)
	}
}

func TestImportGenotypingResultsPartialFailureStillCommits(t *testing.T) {
	svc := newTestService(t)
	csv := "SMP-1001,GeneX,+/-\nSMP-1003,GeneX,+/+"
	out := svc.ImportGenotypingResults("GBT-1001", csv, "Dr.Wang", "tester")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "部分导入成功：失败 1 条，可重试失败行" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}

	// the good row and the report committed despite the failed outcome
	snap := svc.Snapshot()
	if svc.Store().Current().Seq != 2 {
		t.Fatalf("expected committed revision, got %d", svc.Store().Current().Seq)
	}
	if snap.GenotypingResults[0].SampleID != "SMP-1001" {
		t.Fatal("expected the valid row imported")
	}
	report := snap.LastImportReport
	if report.ImportedCount != 1 || report.FailedCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if !strings.Contains(report.FailedRowsCSV, "SMP-1003,GeneX,+/+") {
		t.Fatalf("expected retry CSV to carry the rejected row, got %q", report.FailedRowsCSV)
	}
	if snap.AuditEvents[0].Action != "GENOTYPING_IMPORT" {
		t.Fatal("expected import audit event")
	}
}

func TestImportGenotypingResultsAllRowsInvalid(t *testing.T) {
	svc := newTestService(t)
	out := svc.ImportGenotypingResults("GBT-1001", "broken-line", "Dr.Wang", "tester")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "导入失败：所有记录均不合法" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	// the failure report itself is retained
	report := svc.Snapshot().LastImportReport
	if report == nil || report.ImportedCount != 0 || report.FailedCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestImportGenotypingResultsValidation(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.ImportGenotypingResults("GBT-GHOST", "SMP-1001,GeneX,+/-", "Dr.Wang", "tester"), domain.KindNotFound)
	out := svc.ImportGenotypingResults("GBT-1001", "SMP-1001,GeneX,+/-", " ", "tester")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "请填写reviewer" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	out = svc.ImportGenotypingResults("GBT-1001", "", "Dr.Wang", "tester")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "没有可导入的结果，请使用 sample_id,marker,call 格式" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	if svc.Store().Current().Seq != 1 {
		t.Fatal("expected no revision for an empty import")
	}
}

func TestConfirmGenotypingResultResolvesConflict(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.ConfirmGenotypingResult("GTR-1001", "tester"), domain.KindInvalidState)
	mustFail(t, svc.ConfirmGenotypingResult("GTR-GHOST", "tester"), domain.KindNotFound)

	mustOK(t, svc.ImportGenotypingResults("GBT-1001", "SMP-1001,GeneX,-/-", "Dr.Wang", "tester"))
	conflicted := svc.Snapshot().GenotypingResults[0]
	if !conflicted.Conflict {
		t.Fatalf("expected a conflicted result, got %+v", conflicted)
	}
	mustOK(t, svc.ConfirmGenotypingResult(conflicted.ID, "tester"))
	resolved := svc.Snapshot().GenotypingResults[0]
	if resolved.Conflict || !resolved.Confirmed {
		t.Fatalf("expected resolved result, got %+v", resolved)
	}
}
