package core

import (
	"sort"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// AddStrain appends a strain to the whitelist. Entries are unique
// case-insensitively and the catalog stays sorted.
func (s *Service) AddStrain(strain, operator string) domain.Outcome {
	return s.apply(domain.CapMasterDataEdit, operator, "master.strain.add", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		clean := strings.TrimSpace(strain)
		if clean == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "品系不能为空")
		}
		for _, entry := range next.StrainCatalog {
			if strings.EqualFold(entry, clean) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "品系已存在")
			}
		}
		next.StrainCatalog = append(next.StrainCatalog, clean)
		sort.Strings(next.StrainCatalog)

		a := audit{
			action:   "STRAIN_CATALOG_ADD",
			entity:   domain.EntityMasterData,
			entityID: clean,
			summary:  "新增品系字典项 " + clean,
		}
		return a, &syncMsg{event: "master.strain.add", payload: "strain=" + clean}, domain.Success()
	})
}

// RemoveStrain deletes a strain from the whitelist. Removal is blocked while
// any animal still uses the strain.
func (s *Service) RemoveStrain(strain, operator string) domain.Outcome {
	return s.apply(domain.CapMasterDataEdit, operator, "master.strain.remove", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		clean := strings.TrimSpace(strain)
		if clean == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "品系不能为空")
		}
		for _, a := range next.Animals {
			if strings.EqualFold(a.Strain, clean) {
				return audit{}, nil, domain.Fail(domain.KindInvalidState, "仍有个体使用该品系，无法删除")
			}
		}
		kept, removed := removeFold(next.StrainCatalog, clean)
		if !removed {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "品系不存在")
		}
		next.StrainCatalog = kept

		a := audit{
			action:   "STRAIN_CATALOG_REMOVE",
			entity:   domain.EntityMasterData,
			entityID: clean,
			summary:  "移除品系字典项 " + clean,
		}
		return a, &syncMsg{event: "master.strain.remove", payload: "strain=" + clean}, domain.Success()
	})
}

// AddGenotype appends a genotype template to the whitelist.
func (s *Service) AddGenotype(genotype, operator string) domain.Outcome {
	return s.apply(domain.CapMasterDataEdit, operator, "master.genotype.add", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		clean := strings.TrimSpace(genotype)
		if clean == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "基因型模板不能为空")
		}
		for _, entry := range next.GenotypeCatalog {
			if strings.EqualFold(entry, clean) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "基因型模板已存在")
			}
		}
		next.GenotypeCatalog = append(next.GenotypeCatalog, clean)
		sort.Strings(next.GenotypeCatalog)

		a := audit{
			action:   "GENOTYPE_CATALOG_ADD",
			entity:   domain.EntityMasterData,
			entityID: clean,
			summary:  "新增基因型模板 " + clean,
		}
		return a, &syncMsg{event: "master.genotype.add", payload: "genotype=" + clean}, domain.Success()
	})
}

// RemoveGenotype deletes a genotype template from the whitelist. Removal is
// blocked while any animal still uses the genotype.
func (s *Service) RemoveGenotype(genotype, operator string) domain.Outcome {
	return s.apply(domain.CapMasterDataEdit, operator, "master.genotype.remove", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		clean := strings.TrimSpace(genotype)
		if clean == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "基因型模板不能为空")
		}
		for _, a := range next.Animals {
			if strings.EqualFold(a.Genotype, clean) {
				return audit{}, nil, domain.Fail(domain.KindInvalidState, "仍有个体使用该基因型，无法删除")
			}
		}
		kept, removed := removeFold(next.GenotypeCatalog, clean)
		if !removed {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "基因型模板不存在")
		}
		next.GenotypeCatalog = kept

		a := audit{
			action:   "GENOTYPE_CATALOG_REMOVE",
			entity:   domain.EntityMasterData,
			entityID: clean,
			summary:  "移除基因型模板 " + clean,
		}
		return a, &syncMsg{event: "master.genotype.remove", payload: "genotype=" + clean}, domain.Success()
	})
}

func removeFold(catalog []string, value string) ([]string, bool) {
	var kept []string
	removed := false
	for _, entry := range catalog {
		if strings.EqualFold(entry, value) {
			removed = true
			continue
		}
		kept = append(kept, entry)
	}
	return kept, removed
}
