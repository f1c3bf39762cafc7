package core

import (
	"testing"
	"time"

	"vivarium/pkg/domain"
)

func TestSetProtocolStateRecordsTransition(t *testing.T) {
	svc := newTestService(t)
	mustFail(t, svc.SetProtocolState("P-NEURO-2026-001", false, "tester"), domain.KindPermissionDenied)

	asAdmin(t, svc)
	mustOK(t, svc.SetProtocolState("P-NEURO-2026-001", false, "admin"))
	snap := svc.Snapshot()
	p, _ := snap.FindProtocol("P-NEURO-2026-001")
	if p.Active {
		t.Fatal("expected protocol disabled")
	}
	head := snap.AuditEvents[0]
	if head.Action != "PROTOCOL_TOGGLE" || head.BeforeFields["active"] != "true" || head.AfterFields["active"] != "false" {
		t.Fatalf("unexpected audit %+v", head)
	}
	mustFail(t, svc.SetProtocolState("P-GHOST", true, "admin"), domain.KindNotFound)
}

func TestUpsertTrainingRecordMatchesCaseInsensitively(t *testing.T) {
	svc := newTestService(t)
	asAdmin(t, svc)
	count := len(svc.Snapshot().TrainingRecords)

	mustOK(t, svc.UpsertTrainingRecord(domain.TrainingRecord{
		Username:  "ALICE",
		Active:    true,
		ExpiresAt: testNow.Add(365 * 24 * time.Hour),
		Note:      "年度复训",
	}, "admin"))
	snap := svc.Snapshot()
	if len(snap.TrainingRecords) != count {
		t.Fatalf("expected in-place replace, got %d records", len(snap.TrainingRecords))
	}
	r, ok := snap.FindTraining("ALICE")
	if !ok || r.Note != "年度复训" {
		t.Fatalf("unexpected record %+v", r)
	}

	mustFail(t, svc.UpsertTrainingRecord(domain.TrainingRecord{Username: " "}, "admin"), domain.KindMalformedInput)
	mustFail(t, svc.UpsertTrainingRecord(domain.TrainingRecord{Username: "Carol"}, "admin"), domain.KindMalformedInput)

	mustOK(t, svc.UpsertTrainingRecord(domain.TrainingRecord{
		Username:  "Carol",
		Active:    true,
		ExpiresAt: testNow.Add(30 * 24 * time.Hour),
	}, "admin"))
	if len(svc.Snapshot().TrainingRecords) != count+1 {
		t.Fatal("expected a new roster entry")
	}
}

func TestRemoveTrainingRecord(t *testing.T) {
	svc := newTestService(t)
	asAdmin(t, svc)
	mustFail(t, svc.RemoveTrainingRecord("  ", "admin"), domain.KindMalformedInput)
	mustFail(t, svc.RemoveTrainingRecord("Carol", "admin"), domain.KindNotFound)
	mustOK(t, svc.RemoveTrainingRecord("alice", "admin"))
	if _, ok := svc.Snapshot().FindTraining("Alice"); ok {
		t.Fatal("expected record removed")
	}
}

func TestSetNotificationPolicyBoundsLeadDays(t *testing.T) {
	svc := newTestService(t)
	asAdmin(t, svc)
	policy := domain.DefaultNotificationPolicy()
	policy.ProtocolExpiryLeadDays = 0
	out := svc.SetNotificationPolicy(policy, "admin")
	mustFail(t, out, domain.KindMalformedInput)
	if out.Reason != "协议提醒天数需在 1-60 之间" {
		t.Fatalf("unexpected reason %q", out.Reason)
	}
	policy.ProtocolExpiryLeadDays = 61
	mustFail(t, svc.SetNotificationPolicy(policy, "admin"), domain.KindMalformedInput)

	policy.ProtocolExpiryLeadDays = 7
	policy.EnableSyncFailure = false
	mustOK(t, svc.SetNotificationPolicy(policy, "admin"))
	got := svc.Snapshot().Notification
	if got.ProtocolExpiryLeadDays != 7 || got.EnableSyncFailure {
		t.Fatalf("unexpected policy %+v", got)
	}
}
