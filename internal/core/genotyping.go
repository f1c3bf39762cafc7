package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/internal/csvio"
	"vivarium/pkg/domain"
)

// RegisterSample records a tissue sample taken from the animal.
func (s *Service) RegisterSample(animalId string, sampleType domain.SampleType, operator string) domain.Outcome {
	return s.apply(domain.CapGenotypingWrite, operator, "sample.register", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if out := validateTraining(next, operator, "分型采样", now); out.Failed() {
			return audit{}, nil, out
		}
		animal, ok := next.FindAnimal(animalId)
		if !ok {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "个体不存在")
		}
		sample := domain.Sample{
			ID:        s.ids.Next("SMP-"),
			AnimalID:  animalId,
			Type:      sampleType,
			SampledAt: now,
			Operator:  operator,
		}
		next.Samples = append([]domain.Sample{sample}, next.Samples...)

		a := audit{
			action:   "SAMPLE_REGISTER",
			entity:   domain.EntitySample,
			entityID: sample.ID,
			summary:  fmt.Sprintf("为 %s 采样 %s", animal.Identifier, sampleType.DisplayName()),
		}
		return a, &syncMsg{event: "sample.register", payload: "sample=" + sample.ID}, domain.Success()
	})
}

// CreateGenotypingBatch groups the samples into a submitted batch and assigns
// each distinct sample a 96-well plate position in row-major order.
func (s *Service) CreateGenotypingBatch(name string, sampleIds []string, operator string) domain.Outcome {
	return s.apply(domain.CapGenotypingWrite, operator, "genotyping.batch", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if strings.TrimSpace(name) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "批次名称不能为空")
		}
		if len(sampleIds) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "请先选择样本")
		}
		sampleSet := uniqueSet(sampleIds)
		matched := 0
		for _, sm := range next.Samples {
			if sampleSet[sm.ID] {
				matched++
			}
		}
		if matched != len(sampleSet) {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "存在无效样本")
		}

		batch := domain.GenotypingBatch{
			ID:        s.ids.Next("GBT-"),
			Name:      name,
			SampleIDs: append([]string(nil), sampleIds...),
			Status:    domain.BatchSubmitted,
			CreatedAt: now,
		}
		positions := map[string]string{}
		index := 0
		for _, id := range sampleIds {
			if _, seen := positions[id]; seen {
				continue
			}
			positions[id] = platePosition(index)
			index++
		}
		for i := range next.Samples {
			if sampleSet[next.Samples[i].ID] {
				next.Samples[i].BatchID = &batch.ID
				pos := positions[next.Samples[i].ID]
				next.Samples[i].PlatePosition = &pos
			}
		}
		next.GenotypingBatches = append([]domain.GenotypingBatch{batch}, next.GenotypingBatches...)

		a := audit{
			action:   "GENOTYPING_BATCH_CREATE",
			entity:   domain.EntityGenotypeBatch,
			entityID: batch.ID,
			summary:  fmt.Sprintf("创建分型批次 %s，样本 %d 个并分配板位", batch.Name, len(sampleIds)),
		}
		return a, &syncMsg{event: "genotyping.batch", payload: "batch=" + batch.ID}, domain.Success()
	})
}

// ImportGenotypingResults imports marker calls for a batch from CSV text in
// sample_id,marker,call format. Versions increment per sample and marker, and
// a row conflicts when a confirmed prior call disagrees. An import report
// with a retry CSV of the rejected rows is stored whenever any row parsed,
// including partial and fully failed imports, so this operation commits
// state on some error paths and cannot go through the shared apply helper.
func (s *Service) ImportGenotypingResults(batchId, csvText, reviewer, operator string) domain.Outcome {
	now := s.now()
	var userOutcome domain.Outcome
	rev, out := s.store.Apply(func(next *domain.Snapshot) domain.Outcome {
		userOutcome = domain.Success()
		if !next.Overrides.Granted(next.CurrentRole, domain.CapGenotypingWrite) {
			return domain.Failf(domain.KindPermissionDenied, "缺少权限: %s", domain.CapGenotypingWrite.DisplayName())
		}
		batch, ok := next.FindBatch(batchId)
		if !ok {
			return domain.Fail(domain.KindNotFound, "分型批次不存在")
		}
		if strings.TrimSpace(reviewer) == "" {
			return domain.Fail(domain.KindMalformedInput, "请填写reviewer")
		}

		rows, issues := csvio.ParseGenotypingRows(csvText)
		if len(rows) == 0 && len(issues) > 0 {
			storeImportReport(next, batchId, reviewer, 0, 0, issues, now)
			userOutcome = domain.Fail(domain.KindMalformedInput, "导入失败：所有记录均不合法")
			return domain.Success()
		}
		if len(rows) == 0 {
			return domain.Fail(domain.KindMalformedInput, "没有可导入的结果，请使用 sample_id,marker,call 格式")
		}

		inBatch := uniqueSet(batch.SampleIDs)
		var created []domain.GenotypingResult
		conflictCount := 0
		for _, row := range rows {
			if !inBatch[row.SampleID] {
				issues = append(issues, domain.GenotypingImportIssue{
					LineNumber: row.LineNumber,
					Reason:     fmt.Sprintf("样本 %s 不在批次 %s 中", row.SampleID, batchId),
					RawLine:    fmt.Sprintf("%s,%s,%s", row.SampleID, row.Marker, row.CallValue),
				})
				continue
			}

			version := 0
			conflict := false
			consider := func(r domain.GenotypingResult) {
				if r.SampleID != row.SampleID || !strings.EqualFold(r.Marker, row.Marker) {
					return
				}
				if r.Version > version {
					version = r.Version
				}
				if r.Confirmed && r.CallValue != row.CallValue {
					conflict = true
				}
			}
			for _, r := range next.GenotypingResults {
				consider(r)
			}
			for _, r := range created {
				consider(r)
			}
			if conflict {
				conflictCount++
			}

			created = append(created, domain.GenotypingResult{
				ID:         s.ids.Next("GTR-"),
				SampleID:   row.SampleID,
				BatchID:    batchId,
				Marker:     row.Marker,
				CallValue:  row.CallValue,
				Version:    version + 1,
				Reviewer:   reviewer,
				ReviewedAt: now,
				Conflict:   conflict,
				Confirmed:  !conflict,
			})
		}

		if len(created) == 0 {
			storeImportReport(next, batchId, reviewer, 0, 0, issues, now)
			userOutcome = domain.Fail(domain.KindMalformedInput, "没有有效结果（样本可能不在该批次）")
			return domain.Success()
		}

		for i := range next.GenotypingBatches {
			if next.GenotypingBatches[i].ID == batchId {
				next.GenotypingBatches[i].Status = domain.BatchCompleted
			}
		}
		next.GenotypingResults = append(append([]domain.GenotypingResult(nil), created...), next.GenotypingResults...)
		storeImportReport(next, batchId, reviewer, len(created), conflictCount, issues, now)

		s.appendAudit(next, audit{
			action:   "GENOTYPING_IMPORT",
			entity:   domain.EntityGenotypeBatch,
			entityID: batchId,
			summary:  fmt.Sprintf("导入分型结果 %d 条，冲突 %d 条，失败 %d 条", len(created), conflictCount, len(issues)),
		}, operator, now)
		s.appendSync(next, syncMsg{event: "genotyping.import", payload: fmt.Sprintf("batch=%s results=%d", batchId, len(created))}, now)

		if len(issues) > 0 {
			userOutcome = domain.Failf(domain.KindMalformedInput, "部分导入成功：失败 %d 条，可重试失败行", len(issues))
		}
		return domain.Success()
	})
	if out.Failed() {
		s.observe("genotyping.import", operator, rev, out)
		return out
	}
	s.observe("genotyping.import", operator, rev, userOutcome)
	if userOutcome.Failed() {
		// The report still committed, so the hooks must see the revision.
		for _, hook := range s.hooks {
			go hook(rev)
		}
	}
	return userOutcome
}

// ConfirmGenotypingResult resolves a conflicting call by accepting it.
func (s *Service) ConfirmGenotypingResult(resultId, operator string) domain.Outcome {
	return s.apply(domain.CapGenotypingWrite, operator, "genotyping.confirm", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var target domain.GenotypingResult
		found := false
		for _, r := range next.GenotypingResults {
			if r.ID == resultId {
				target = r
				found = true
				break
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "结果不存在")
		}
		if !target.Conflict {
			return audit{}, nil, domain.Fail(domain.KindInvalidState, "该结果无需确认")
		}
		for i := range next.GenotypingResults {
			if next.GenotypingResults[i].ID == resultId {
				next.GenotypingResults[i].Conflict = false
				next.GenotypingResults[i].Confirmed = true
			}
		}

		a := audit{
			action:   "GENOTYPING_CONFIRM",
			entity:   domain.EntityGenotypeCall,
			entityID: resultId,
			summary:  fmt.Sprintf("确认冲突分型结果 %s/%s", target.SampleID, target.Marker),
		}
		return a, &syncMsg{event: "genotyping.confirm", payload: "result=" + resultId}, domain.Success()
	})
}

func storeImportReport(next *domain.Snapshot, batchId, reviewer string, importedCount, conflictCount int, issues []domain.GenotypingImportIssue, now time.Time) {
	next.LastImportReport = &domain.GenotypingImportReport{
		BatchID:       batchId,
		Reviewer:      reviewer,
		ImportedCount: importedCount,
		ConflictCount: conflictCount,
		FailedCount:   len(issues),
		Issues:        issues,
		FailedRowsCSV: csvio.BuildRetryCSV(issues),
		ImportedAt:    now,
	}
}

// platePosition maps a zero-based index onto a 96-well plate, row-major.
func platePosition(index int) string {
	if index < 0 {
		index = 0
	}
	row := rune('A' + (index/12)%8)
	return fmt.Sprintf("%c%02d", row, index%12+1)
}
