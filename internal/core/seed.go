package core

import (
	"time"

	"vivarium/pkg/domain"
)

func strPtr(v string) *string { return &v }

func floatPtr(v float64) *float64 { return &v }

func timePtr(t time.Time) *time.Time { return &t }

// SeedSnapshot builds the demo facility used on first boot and by tests: four
// active cages, a dozen animals across four strains, one breeding plan with
// open plug-check and weaning tasks, a completed genotyping batch, a locked
// cohort running a pilot experiment, and a sync queue with one stuck event.
func SeedSnapshot(now time.Time) domain.Snapshot {
	day := 24 * time.Hour
	hour := time.Hour

	protocols := []domain.Protocol{
		{ID: "P-NEURO-2026-001", Title: "神经退行性疾病模型", ExpiresAt: now.Add(10 * day), Active: true},
		{ID: "P-IMMUNE-2026-003", Title: "免疫治疗评估", ExpiresAt: now.Add(40 * day), Active: true},
		{ID: "P-METAB-2025-011", Title: "代谢与肥胖模型", ExpiresAt: now.Add(-2 * day), Active: false},
	}

	animals := []domain.Animal{
		{ID: "A001", Identifier: "E24001", Sex: domain.SexMale, BornAt: now.Add(-90 * day), Strain: "C57BL/6J", Genotype: "+/+", Status: domain.AnimalActive, CageID: "C-101", ProtocolID: strPtr("P-NEURO-2026-001")},
		{ID: "A002", Identifier: "E24002", Sex: domain.SexFemale, BornAt: now.Add(-89 * day), Strain: "C57BL/6J", Genotype: "+/-", Status: domain.AnimalActive, CageID: "C-101", ProtocolID: strPtr("P-NEURO-2026-001")},
		{ID: "A003", Identifier: "E24003", Sex: domain.SexFemale, BornAt: now.Add(-88 * day), Strain: "C57BL/6J", Genotype: "+/+", Status: domain.AnimalActive, CageID: "C-101", ProtocolID: strPtr("P-NEURO-2026-001")},
		{ID: "A004", Identifier: "E24004", Sex: domain.SexMale, BornAt: now.Add(-120 * day), Strain: "BALB/c", Genotype: "+/+", Status: domain.AnimalBreeding, CageID: "C-102", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A005", Identifier: "E24005", Sex: domain.SexFemale, BornAt: now.Add(-117 * day), Strain: "BALB/c", Genotype: "-/+", Status: domain.AnimalBreeding, CageID: "C-102", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A006", Identifier: "E24006", Sex: domain.SexFemale, BornAt: now.Add(-60 * day), Strain: "BALB/c", Genotype: "-/+", Status: domain.AnimalActive, CageID: "C-102", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A007", Identifier: "E24007", Sex: domain.SexMale, BornAt: now.Add(-50 * day), Strain: "NOD", Genotype: "+/+", Status: domain.AnimalInExperiment, CageID: "C-103", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A008", Identifier: "E24008", Sex: domain.SexFemale, BornAt: now.Add(-52 * day), Strain: "NOD", Genotype: "+/+", Status: domain.AnimalInExperiment, CageID: "C-103", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A009", Identifier: "E24009", Sex: domain.SexMale, BornAt: now.Add(-42 * day), Strain: "C57BL/6J", Genotype: "-/+", Status: domain.AnimalActive, CageID: "C-104", ProtocolID: strPtr("P-NEURO-2026-001")},
		{ID: "A010", Identifier: "E24010", Sex: domain.SexFemale, BornAt: now.Add(-44 * day), Strain: "C57BL/6J", Genotype: "-/+", Status: domain.AnimalActive, CageID: "C-104", ProtocolID: strPtr("P-NEURO-2026-001")},
		{ID: "A011", Identifier: "E24011", Sex: domain.SexMale, BornAt: now.Add(-32 * day), Strain: "ICR", Genotype: "+/+", Status: domain.AnimalActive, CageID: "C-104", ProtocolID: strPtr("P-IMMUNE-2026-003")},
		{ID: "A012", Identifier: "E24012", Sex: domain.SexFemale, BornAt: now.Add(-34 * day), Strain: "ICR", Genotype: "+/+", Status: domain.AnimalRetired, CageID: "C-104"},
	}

	cages := []domain.Cage{
		{ID: "C-101", RoomCode: "A1", RackCode: "R1", SlotCode: "01", CapacityLimit: 5, AnimalIDs: []string{"A001", "A002", "A003"}, Status: domain.CageActive},
		{ID: "C-102", RoomCode: "A1", RackCode: "R1", SlotCode: "02", CapacityLimit: 5, AnimalIDs: []string{"A004", "A005", "A006"}, Status: domain.CageActive},
		{ID: "C-103", RoomCode: "A1", RackCode: "R2", SlotCode: "01", CapacityLimit: 4, AnimalIDs: []string{"A007", "A008"}, Status: domain.CageActive},
		{ID: "C-104", RoomCode: "A2", RackCode: "R1", SlotCode: "03", CapacityLimit: 6, AnimalIDs: []string{"A009", "A010", "A011", "A012"}, Status: domain.CageActive},
	}

	plans := []domain.BreedingPlan{
		{
			ID: "BR-1999", MaleID: "A004", FemaleID: "A005", ProtocolID: strPtr("P-IMMUNE-2026-003"),
			MatedAt: now.Add(-2 * day), ExpectedPlugCheckAt: now.Add(day), ExpectedWeanAt: now.Add(19 * day),
			Notes: "第二轮验证配对",
		},
	}

	samples := []domain.Sample{
		{ID: "SMP-1001", AnimalID: "A002", Type: domain.SampleEar, SampledAt: now.Add(-5 * day), Operator: "Alice", BatchID: strPtr("GBT-1001"), PlatePosition: strPtr("A01")},
		{ID: "SMP-1002", AnimalID: "A010", Type: domain.SampleTail, SampledAt: now.Add(-5 * day), Operator: "Alice", BatchID: strPtr("GBT-1001"), PlatePosition: strPtr("A02")},
		{ID: "SMP-1003", AnimalID: "A003", Type: domain.SampleEar, SampledAt: now.Add(-day), Operator: "Alice"},
	}

	batches := []domain.GenotypingBatch{
		{ID: "GBT-1001", Name: "2026-02 Neuro Batch", SampleIDs: []string{"SMP-1001", "SMP-1002"}, Status: domain.BatchCompleted, CreatedAt: now.Add(-5 * day)},
	}

	results := []domain.GenotypingResult{
		{ID: "GTR-1001", SampleID: "SMP-1001", BatchID: "GBT-1001", Marker: "GeneX", CallValue: "+/-", Version: 1, Reviewer: "Dr.Wang", ReviewedAt: now.Add(-4 * day), Confirmed: true},
		{ID: "GTR-1002", SampleID: "SMP-1002", BatchID: "GBT-1001", Marker: "GeneX", CallValue: "-/-", Version: 1, Reviewer: "Dr.Wang", ReviewedAt: now.Add(-4 * day), Confirmed: true},
	}

	cohorts := []domain.Cohort{
		{ID: "COH-1501", Name: "Neuro-Week12-Female", CriteriaSummary: "strain=C57BL/6J; genotype=+/-; sex=Female; age=10-14", AnimalIDs: []string{"A002", "A010"}, Locked: true, CreatedAt: now.Add(-3 * day)},
	}

	cohortTemplates := []domain.CohortTemplate{
		{
			ID: "CTP-1001", Name: "Week10-14 Female +/-",
			Strain: strPtr("C57BL/6J"), Genotype: strPtr("+/-"), Sex: sexPtr(domain.SexFemale),
			MinWeeks: intPtr(10), MaxWeeks: intPtr(14), UsageCount: 2,
			CreatedAt: now.Add(-7 * day), UpdatedAt: now.Add(-2 * day),
		},
	}

	attachments := []domain.AnimalAttachment{
		{ID: "ATT-1001", AnimalID: "A002", Label: "健康检查报告", BlobKey: "animals/A002/health.pdf", CreatedAt: now.Add(-3 * day), Operator: "Alice"},
	}

	animalEvents := []domain.AnimalEvent{
		{ID: "AEV-1001", AnimalID: "A002", EventType: "weight", Note: "周例行称重", WeightGram: floatPtr(21.3), CreatedAt: now.Add(-2 * day), Operator: "Alice"},
		{ID: "AEV-1002", AnimalID: "A010", EventType: "health", Note: "皮毛状态正常", CreatedAt: now.Add(-day), Operator: "Alice"},
	}

	training := []domain.TrainingRecord{
		{Username: "Alice", ExpiresAt: now.Add(60 * day), Active: true, Note: "动物实验培训"},
		{Username: "tester", ExpiresAt: now.Add(60 * day), Active: true, Note: "测试账号"},
	}

	experiments := []domain.ExperimentSession{
		{ID: "EXP-1701", CohortID: "COH-1501", Title: "Morris Water Maze Pilot", Status: domain.ExperimentActive, StartedAt: now.Add(-2 * day)},
	}

	experimentEvents := []domain.ExperimentEvent{
		{ID: "EVT-1801", ExperimentID: "EXP-1701", EventType: "dose", Note: "给予药物 5mg/kg", CreatedAt: now.Add(-day), Operator: "Alice"},
		{ID: "EVT-1802", ExperimentID: "EXP-1701", EventType: "behavior", Note: "第3天行为测试完成", CreatedAt: now.Add(-8 * hour), Operator: "Alice"},
	}

	tasks := []domain.LabTask{
		{ID: "TSK-1001", Title: "笼位巡检", Detail: "检查 A1 房间笼位状态", DueAt: now.Add(4 * hour), Priority: domain.PriorityMedium, Status: domain.TaskTodo, EntityType: domain.EntityCage, EntityID: "A1"},
		{ID: "TSK-1002", Title: "查栓检查", Detail: "配种 BR-1999 查栓", DueAt: now.Add(day), Priority: domain.PriorityHigh, Status: domain.TaskTodo, EntityType: domain.EntityBreeding, EntityID: "BR-1999"},
		{ID: "TSK-1003", Title: "断奶准备", Detail: "为 C-102 配种准备断奶笼", DueAt: now.Add(6 * day), Priority: domain.PriorityCritical, Status: domain.TaskTodo, EntityType: domain.EntityCage, EntityID: "C-102"},
		{ID: "TSK-1004", Title: "协议续期", Detail: "P-NEURO-2026-001 将在10天后到期", DueAt: now.Add(2 * day), Priority: domain.PriorityCritical, Status: domain.TaskTodo, EntityType: domain.EntityProtocol, EntityID: "P-NEURO-2026-001"},
		{ID: "TSK-1005", Title: "历史导入复核", Detail: "确认昨日导入记录", DueAt: now.Add(-5 * hour), Priority: domain.PriorityLow, Status: domain.TaskOverdue, EntityType: domain.EntityConfig, EntityID: "import-job-77"},
	}

	taskTemplates := []domain.TaskTemplate{
		{ID: "TTM-1001", Name: "每日笼位巡检", Detail: "检查房间内笼位状态并记录异常", DefaultPriority: domain.PriorityMedium, DueInHours: 24, EntityType: domain.EntityCage},
		{ID: "TTM-1002", Name: "周度合规复核", Detail: "检查协议有效期与关键操作留痕", DefaultPriority: domain.PriorityHigh, DueInHours: 72, EntityType: domain.EntityProtocol},
	}

	syncEvents := []domain.SyncEvent{
		{ID: "SYNC-9001", EventType: "task.complete", PayloadSummary: "task=TSK-0999", Status: domain.SyncPending, CreatedAt: now.Add(-4 * hour)},
		{ID: "SYNC-9000", EventType: "animal.move", PayloadSummary: "target=C-102 count=1", Status: domain.SyncFailed, CreatedAt: now.Add(-10 * hour), LastTriedAt: timePtr(now.Add(-8 * hour)), RetryCount: 1},
	}

	audits := []domain.AuditEvent{
		{ID: "AUD-1001", Action: "SEED_DATA", EntityType: domain.EntityConfig, EntityID: "bootstrap", Summary: "初始化演示数据", Operator: "system", CreatedAt: now.Add(-12 * hour)},
	}

	return domain.Snapshot{
		CurrentRole:       domain.RoleResearcher,
		Protocols:         protocols,
		Cages:             cages,
		Animals:           animals,
		BreedingPlans:     plans,
		Samples:           samples,
		GenotypingBatches: batches,
		GenotypingResults: results,
		Cohorts:           cohorts,
		CohortTemplates:   cohortTemplates,
		StrainCatalog:     []string{"C57BL/6J", "BALB/c", "NOD", "ICR"},
		GenotypeCatalog:   []string{"+/+", "+/-", "-/+", "-/-", "WT", "KO"},
		Attachments:       attachments,
		AnimalEvents:      animalEvents,
		TrainingRecords:   training,
		Experiments:       experiments,
		ExperimentEvents:  experimentEvents,
		Tasks:             tasks,
		TaskTemplates:     taskTemplates,
		EscalationConfig:  domain.DefaultTaskEscalationConfig(),
		Notification:      domain.DefaultNotificationPolicy(),
		SyncEvents:        syncEvents,
		AuditEvents:       audits,
	}
}

func sexPtr(v domain.Sex) *domain.Sex { return &v }

func intPtr(v int) *int { return &v }
