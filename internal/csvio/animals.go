package csvio

import (
	"strings"

	"vivarium/pkg/domain"
)

// AnimalRow is one parsed line of an animal import CSV. Columns:
// identifier,sex,strain,genotype,cage_id[,protocol_id].
type AnimalRow struct {
	Identifier string
	Sex        domain.Sex
	Strain     string
	Genotype   string
	CageID     string
	ProtocolID *string
}

// ParseAnimalRows splits the CSV text into animal rows. Blank lines, a
// leading identifier header, and lines with fewer than five columns are
// skipped silently.
func ParseAnimalRows(csvText string) []AnimalRow {
	var rows []AnimalRow
	for _, rawLine := range strings.Split(csvText, "\n") {
		line := strings.TrimSpace(rawLine)
		if line == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "identifier") {
			continue
		}
		cols := splitTrimmed(line)
		if len(cols) < 5 {
			continue
		}
		row := AnimalRow{
			Identifier: cols[0],
			Sex:        parseSex(cols[1]),
			Strain:     cols[2],
			Genotype:   cols[3],
			CageID:     cols[4],
		}
		if len(cols) > 5 && cols[5] != "" {
			pid := cols[5]
			row.ProtocolID = &pid
		}
		rows = append(rows, row)
	}
	return rows
}

func parseSex(token string) domain.Sex {
	switch strings.ToLower(token) {
	case "male", "m", "雄":
		return domain.SexMale
	case "female", "f", "雌":
		return domain.SexFemale
	default:
		return domain.SexUnknown
	}
}
