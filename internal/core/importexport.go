package core

import (
	"fmt"
	"strings"
	"time"

	"vivarium/internal/csvio"
	"vivarium/pkg/domain"
)

// ImportAnimalsCSV bulk-creates animals from CSV text. Rows referencing
// unknown cages are dropped silently; a row referencing a strain or genotype
// outside a configured catalog, or an unusable protocol, aborts the whole
// import. Imported animals get a synthetic birth date of 70 days ago.
func (s *Service) ImportAnimalsCSV(csvText, operator string) domain.Outcome {
	return s.apply(domain.CapImportExportManage, operator, "animal.import", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if strings.TrimSpace(csvText) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "CSV 内容为空")
		}
		rows := csvio.ParseAnimalRows(csvText)
		if len(rows) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "未识别到有效 CSV 行")
		}

		validCages := map[string]bool{}
		for _, c := range next.Cages {
			validCages[c.ID] = true
		}
		var validRows []csvio.AnimalRow
		for _, row := range rows {
			if validCages[row.CageID] {
				validRows = append(validRows, row)
			}
		}
		if len(validRows) == 0 {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "CSV 中未包含有效笼位")
		}
		for _, row := range validRows {
			if !next.StrainAllowed(row.Strain) || !next.GenotypeAllowed(row.Genotype) {
				return audit{}, nil, domain.Failf(domain.KindInvalidState, "CSV存在不在主数据字典中的品系或基因型：%s/%s", row.Strain, row.Genotype)
			}
		}

		created := make([]domain.Animal, 0, len(validRows))
		for _, row := range validRows {
			created = append(created, domain.Animal{
				ID:         s.ids.Next("A"),
				Identifier: row.Identifier,
				Sex:        row.Sex,
				BornAt:     now.Add(-70 * 24 * time.Hour),
				Strain:     row.Strain,
				Genotype:   row.Genotype,
				Status:     domain.AnimalActive,
				CageID:     row.CageID,
				ProtocolID: row.ProtocolID,
			})
		}
		for _, animal := range created {
			if animal.ProtocolID == nil {
				continue
			}
			p, ok := next.FindProtocol(*animal.ProtocolID)
			if !ok || !p.Usable(now) {
				return audit{}, nil, domain.Fail(domain.KindProtocolInvalid, "存在协议不可用或过期的导入数据")
			}
		}

		next.Animals = append(append([]domain.Animal(nil), created...), next.Animals...)
		for i := range next.Cages {
			for _, animal := range created {
				if animal.CageID == next.Cages[i].ID {
					next.Cages[i].AnimalIDs = append(next.Cages[i].AnimalIDs, animal.ID)
				}
			}
		}

		a := audit{
			action:   "CSV_IMPORT_ANIMAL",
			entity:   domain.EntityAnimal,
			entityID: "batch",
			summary:  fmt.Sprintf("导入个体 %d 条", len(created)),
		}
		return a, &syncMsg{event: "animal.import", payload: fmt.Sprintf("count=%d", len(created))}, domain.Success()
	})
}

// ExportAnimalsCSV renders the animal roster export.
func (s *Service) ExportAnimalsCSV() string {
	return csvio.ExportAnimals(s.store.Snapshot())
}

// ExportComplianceCSV renders the audit log export.
func (s *Service) ExportComplianceCSV() string {
	return csvio.ExportCompliance(s.store.Snapshot())
}

// ExportCohortBlindCSV renders the cohort's blind code table; empty when the
// cohort is missing or not blind coded.
func (s *Service) ExportCohortBlindCSV(cohortId string) string {
	return csvio.ExportCohortBlind(s.store.Snapshot(), cohortId)
}
