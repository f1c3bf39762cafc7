package csvio

import (
	"sort"
	"strconv"
	"strings"

	"vivarium/pkg/domain"
)

// ExportAnimals renders the full animal roster.
func ExportAnimals(snap domain.Snapshot) string {
	lines := []string{"animal_id,identifier,sex,strain,genotype,status,cage_id,protocol_id,father_id,mother_id"}
	for _, a := range snap.Animals {
		lines = append(lines, strings.Join([]string{
			a.ID,
			a.Identifier,
			string(a.Sex),
			a.Strain,
			a.Genotype,
			string(a.Status),
			a.CageID,
			derefOrEmpty(a.ProtocolID),
			derefOrEmpty(a.FatherID),
			derefOrEmpty(a.MotherID),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// ExportCompliance renders the audit log. Commas inside summaries are
// replaced with spaces so the line stays parseable.
func ExportCompliance(snap domain.Snapshot) string {
	lines := []string{"audit_id,action,entity_type,entity_id,summary,operator,created_at,before_fields,after_fields"}
	for _, e := range snap.AuditEvents {
		lines = append(lines, strings.Join([]string{
			e.ID,
			e.Action,
			string(e.EntityType),
			e.EntityID,
			strings.ReplaceAll(e.Summary, ",", " "),
			e.Operator,
			strconv.FormatInt(e.CreatedAt.UnixMilli(), 10),
			serializeAuditFields(e.BeforeFields),
			serializeAuditFields(e.AfterFields),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// ExportCohortBlind renders the cohort's blind code table sorted by code.
// Returns empty when the cohort is missing or not blind coded.
func ExportCohortBlind(snap domain.Snapshot, cohortId string) string {
	cohort, ok := snap.FindCohort(cohortId)
	if !ok || len(cohort.BlindCodes) == 0 {
		return ""
	}
	animalsById := make(map[string]domain.Animal, len(snap.Animals))
	for _, a := range snap.Animals {
		animalsById[a.ID] = a
	}

	type entry struct{ animalId, code string }
	entries := make([]entry, 0, len(cohort.BlindCodes))
	for animalId, code := range cohort.BlindCodes {
		entries = append(entries, entry{animalId, code})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].code < entries[j].code })

	lines := []string{"blind_code,animal_id,identifier,strain,genotype,cage_id,status"}
	for _, e := range entries {
		a := animalsById[e.animalId]
		lines = append(lines, strings.Join([]string{
			e.code,
			e.animalId,
			a.Identifier,
			a.Strain,
			a.Genotype,
			a.CageID,
			string(a.Status),
		}, ","))
	}
	return strings.Join(lines, "\n")
}

// serializeAuditFields joins key=value pairs with semicolons, sorted by key.
// Separator characters inside keys or values are replaced with spaces.
func serializeAuditFields(fields map[string]string) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, sanitizeField(k)+"="+sanitizeField(fields[k]))
	}
	return strings.Join(pairs, ";")
}

func sanitizeField(value string) string {
	replacer := strings.NewReplacer(",", " ", ";", " ", "=", " ")
	return replacer.Replace(value)
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
