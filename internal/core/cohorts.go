package core

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"vivarium/pkg/domain"
)

// CohortFilter is the animal selection criteria shared by cohorts and cohort
// templates. Nil fields are wildcards. Genotype matches as a substring.
type CohortFilter struct {
	Strain   *string
	Genotype *string
	Sex      *domain.Sex
	MinWeeks *int
	MaxWeeks *int
}

func (f CohortFilter) matches(a domain.Animal, now time.Time) bool {
	if a.Status != domain.AnimalActive && a.Status != domain.AnimalInExperiment {
		return false
	}
	if f.Strain != nil && *f.Strain != "" && !strings.EqualFold(a.Strain, *f.Strain) {
		return false
	}
	if f.Genotype != nil && *f.Genotype != "" && !strings.Contains(strings.ToLower(a.Genotype), strings.ToLower(*f.Genotype)) {
		return false
	}
	if f.Sex != nil && a.Sex != *f.Sex {
		return false
	}
	if f.MinWeeks != nil && a.AgeInWeeks(now) < *f.MinWeeks {
		return false
	}
	if f.MaxWeeks != nil && a.AgeInWeeks(now) > *f.MaxWeeks {
		return false
	}
	return true
}

func (f CohortFilter) summary(blindCoding bool) string {
	wildcard := func(v *string) string {
		if v == nil || *v == "" {
			return "*"
		}
		return *v
	}
	sexPart := "*"
	if f.Sex != nil {
		sexPart = string(*f.Sex)
	}
	agePart := func(v *int) string {
		if v == nil {
			return "*"
		}
		return fmt.Sprintf("%d", *v)
	}
	blind := "disabled"
	if blindCoding {
		blind = "enabled"
	}
	return fmt.Sprintf("strain=%s; genotype=%s; sex=%s; age=%s-%s; blind=%s",
		wildcard(f.Strain), wildcard(f.Genotype), sexPart, agePart(f.MinWeeks), agePart(f.MaxWeeks), blind)
}

// CreateCohort locks the set of animals matching the filter. When blind
// coding is enabled, sequential codes PREFIX-NNN are assigned over the
// matched set sorted by animal id.
func (s *Service) CreateCohort(name string, filter CohortFilter, blindCoding bool, blindCodePrefix, operator string) domain.Outcome {
	return s.apply(domain.CapCohortWrite, operator, "cohort.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		if strings.TrimSpace(name) == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "Cohort 名称不能为空")
		}
		var matched []string
		for _, a := range next.Animals {
			if filter.matches(a, now) {
				matched = append(matched, a.ID)
			}
		}
		if len(matched) == 0 {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "没有满足条件的个体")
		}

		var blindCodes map[string]string
		if blindCoding {
			prefix := strings.ToUpper(strings.TrimSpace(blindCodePrefix))
			if prefix == "" {
				prefix = "BL"
			}
			sorted := append([]string(nil), matched...)
			sort.Strings(sorted)
			blindCodes = make(map[string]string, len(sorted))
			for i, animalId := range sorted {
				blindCodes[animalId] = fmt.Sprintf("%s-%03d", prefix, i+1)
			}
		}

		cohort := domain.Cohort{
			ID:              s.ids.Next("COH-"),
			Name:            name,
			CriteriaSummary: filter.summary(blindCoding),
			AnimalIDs:       matched,
			BlindCodes:      blindCodes,
			Locked:          true,
			CreatedAt:       now,
		}
		next.Cohorts = append([]domain.Cohort{cohort}, next.Cohorts...)

		a := audit{
			action:   "COHORT_CREATE",
			entity:   domain.EntityCohort,
			entityID: cohort.ID,
			summary:  fmt.Sprintf("创建 cohort %s，纳入 %d 只", cohort.Name, len(matched)),
		}
		return a, &syncMsg{event: "cohort.create", payload: "cohort=" + cohort.ID}, domain.Success()
	})
}

// SaveCohortTemplate creates a filter preset, or updates the existing preset
// with the same name case-insensitively.
func (s *Service) SaveCohortTemplate(name string, filter CohortFilter, operator string) domain.Outcome {
	return s.apply(domain.CapCohortWrite, operator, "cohort.template.create", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		cleanName := strings.TrimSpace(name)
		if cleanName == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "模板名称不能为空")
		}
		if filter.MinWeeks != nil && filter.MaxWeeks != nil && *filter.MinWeeks > *filter.MaxWeeks {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "周龄范围不合法")
		}

		for i, t := range next.CohortTemplates {
			if strings.EqualFold(t.Name, cleanName) {
				next.CohortTemplates[i].Strain = filter.Strain
				next.CohortTemplates[i].Genotype = filter.Genotype
				next.CohortTemplates[i].Sex = filter.Sex
				next.CohortTemplates[i].MinWeeks = filter.MinWeeks
				next.CohortTemplates[i].MaxWeeks = filter.MaxWeeks
				next.CohortTemplates[i].UpdatedAt = now
				a := audit{
					action:   "COHORT_TEMPLATE_UPDATE",
					entity:   domain.EntityCohortPreset,
					entityID: t.ID,
					summary:  "更新 Cohort 模板 " + cleanName,
				}
				return a, nil, domain.Success()
			}
		}

		template := domain.CohortTemplate{
			ID:        s.ids.Next("CTP-"),
			Name:      cleanName,
			Strain:    filter.Strain,
			Genotype:  filter.Genotype,
			Sex:       filter.Sex,
			MinWeeks:  filter.MinWeeks,
			MaxWeeks:  filter.MaxWeeks,
			CreatedAt: now,
			UpdatedAt: now,
		}
		next.CohortTemplates = append([]domain.CohortTemplate{template}, next.CohortTemplates...)

		a := audit{
			action:   "COHORT_TEMPLATE_CREATE",
			entity:   domain.EntityCohortPreset,
			entityID: template.ID,
			summary:  "创建 Cohort 模板 " + cleanName,
		}
		return a, &syncMsg{event: "cohort.template.create", payload: "template=" + template.ID}, domain.Success()
	})
}

// UpdateCohortTemplate rewrites an existing preset. The new name must not
// collide with another preset.
func (s *Service) UpdateCohortTemplate(templateId, name string, filter CohortFilter, operator string) domain.Outcome {
	return s.apply(domain.CapCohortWrite, operator, "cohort.template.update", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		cleanName := strings.TrimSpace(name)
		if cleanName == "" {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "模板名称不能为空")
		}
		if filter.MinWeeks != nil && filter.MaxWeeks != nil && *filter.MinWeeks > *filter.MaxWeeks {
			return audit{}, nil, domain.Fail(domain.KindMalformedInput, "周龄范围不合法")
		}
		var existing domain.CohortTemplate
		found := false
		for _, t := range next.CohortTemplates {
			if t.ID == templateId {
				existing = t
				found = true
			} else if strings.EqualFold(t.Name, cleanName) {
				return audit{}, nil, domain.Fail(domain.KindDuplicate, "模板名称已存在")
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "模板不存在")
		}

		for i := range next.CohortTemplates {
			if next.CohortTemplates[i].ID == templateId {
				next.CohortTemplates[i].Name = cleanName
				next.CohortTemplates[i].Strain = filter.Strain
				next.CohortTemplates[i].Genotype = filter.Genotype
				next.CohortTemplates[i].Sex = filter.Sex
				next.CohortTemplates[i].MinWeeks = filter.MinWeeks
				next.CohortTemplates[i].MaxWeeks = filter.MaxWeeks
				next.CohortTemplates[i].UpdatedAt = now
			}
		}

		a := audit{
			action:   "COHORT_TEMPLATE_UPDATE",
			entity:   domain.EntityCohortPreset,
			entityID: templateId,
			summary:  fmt.Sprintf("更新 Cohort 模板 %s -> %s", existing.Name, cleanName),
		}
		return a, &syncMsg{event: "cohort.template.update", payload: "template=" + templateId}, domain.Success()
	})
}

// DeleteCohortTemplate removes a filter preset.
func (s *Service) DeleteCohortTemplate(templateId, operator string) domain.Outcome {
	return s.apply(domain.CapCohortWrite, operator, "cohort.template.delete", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var name string
		found := false
		kept := next.CohortTemplates[:0]
		for _, t := range next.CohortTemplates {
			if t.ID == templateId {
				found = true
				name = t.Name
				continue
			}
			kept = append(kept, t)
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "模板不存在")
		}
		next.CohortTemplates = kept

		a := audit{
			action:   "COHORT_TEMPLATE_DELETE",
			entity:   domain.EntityCohortPreset,
			entityID: templateId,
			summary:  "删除 Cohort 模板 " + name,
		}
		return a, &syncMsg{event: "cohort.template.delete", payload: "template=" + templateId}, domain.Success()
	})
}

// ApplyCohortTemplate bumps the preset's usage counter. The caller reads the
// preset's filter back out of the snapshot to drive a cohort creation form.
func (s *Service) ApplyCohortTemplate(templateId, operator string) domain.Outcome {
	return s.apply(domain.CapCohortWrite, operator, "cohort.template.apply", func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome) {
		var name string
		found := false
		for i, t := range next.CohortTemplates {
			if t.ID == templateId {
				next.CohortTemplates[i].UsageCount++
				next.CohortTemplates[i].UpdatedAt = now
				name = t.Name
				found = true
			}
		}
		if !found {
			return audit{}, nil, domain.Fail(domain.KindNotFound, "模板不存在")
		}

		a := audit{
			action:   "COHORT_TEMPLATE_APPLY",
			entity:   domain.EntityCohortPreset,
			entityID: templateId,
			summary:  "应用 Cohort 模板 " + name,
		}
		return a, &syncMsg{event: "cohort.template.apply", payload: "template=" + templateId}, domain.Success()
	})
}
