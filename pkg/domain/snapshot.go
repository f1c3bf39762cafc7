package domain

import (
	"strings"
	"time"
)

// Snapshot is the complete facility state. Mutations never modify a snapshot
// in place; they clone it, edit the clone, and install the clone as the next
// revision. Collections keep insertion order, newest first where noted.
type Snapshot struct {
	CurrentRole      Role                    `json:"current_role"`
	Overrides        RolePermissionOverrides `json:"role_permission_overrides"`
	Protocols        []Protocol              `json:"protocols"`
	Cages            []Cage                  `json:"cages"`
	Animals          []Animal                `json:"animals"`
	BreedingPlans    []BreedingPlan          `json:"breeding_plans"`
	Samples          []Sample                `json:"samples"`
	GenotypingBatches []GenotypingBatch      `json:"genotyping_batches"`
	GenotypingResults []GenotypingResult     `json:"genotyping_results"`
	Cohorts          []Cohort                `json:"cohorts"`
	CohortTemplates  []CohortTemplate        `json:"cohort_templates,omitempty"`
	StrainCatalog    []string                `json:"strain_catalog,omitempty"`
	GenotypeCatalog  []string                `json:"genotype_catalog,omitempty"`
	Attachments      []AnimalAttachment      `json:"animal_attachments,omitempty"`
	AnimalEvents     []AnimalEvent           `json:"animal_events,omitempty"`
	TrainingRecords  []TrainingRecord        `json:"training_records,omitempty"`
	Experiments      []ExperimentSession     `json:"experiments"`
	ExperimentEvents []ExperimentEvent       `json:"experiment_events"`
	Tasks            []LabTask               `json:"tasks"`
	TaskTemplates    []TaskTemplate          `json:"task_templates,omitempty"`
	EscalationConfig TaskEscalationConfig    `json:"task_escalation_config"`
	Notification     NotificationPolicy      `json:"notification_policy"`
	SyncEvents       []SyncEvent             `json:"sync_events"`
	AuditEvents      []AuditEvent            `json:"audit_events"`
	LastImportReport *GenotypingImportReport `json:"last_genotyping_import_report,omitempty"`
}

func cloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy of the snapshot. Entities holding slices or maps
// of their own are copied element by element so the revisions never alias.
func (s Snapshot) Clone() Snapshot {
	next := s
	next.Overrides = RolePermissionOverrides{
		ResearcherDenied: cloneSlice(s.Overrides.ResearcherDenied),
		PIDenied:         cloneSlice(s.Overrides.PIDenied),
		AdminDenied:      cloneSlice(s.Overrides.AdminDenied),
	}
	next.Protocols = cloneSlice(s.Protocols)
	next.Cages = make([]Cage, len(s.Cages))
	for i, c := range s.Cages {
		c.AnimalIDs = cloneSlice(c.AnimalIDs)
		next.Cages[i] = c
	}
	next.Animals = cloneSlice(s.Animals)
	next.BreedingPlans = cloneSlice(s.BreedingPlans)
	next.Samples = cloneSlice(s.Samples)
	next.GenotypingBatches = make([]GenotypingBatch, len(s.GenotypingBatches))
	for i, b := range s.GenotypingBatches {
		b.SampleIDs = cloneSlice(b.SampleIDs)
		next.GenotypingBatches[i] = b
	}
	next.GenotypingResults = cloneSlice(s.GenotypingResults)
	next.Cohorts = make([]Cohort, len(s.Cohorts))
	for i, c := range s.Cohorts {
		c.AnimalIDs = cloneSlice(c.AnimalIDs)
		c.BlindCodes = cloneStringMap(c.BlindCodes)
		next.Cohorts[i] = c
	}
	next.CohortTemplates = cloneSlice(s.CohortTemplates)
	next.StrainCatalog = cloneSlice(s.StrainCatalog)
	next.GenotypeCatalog = cloneSlice(s.GenotypeCatalog)
	next.Attachments = cloneSlice(s.Attachments)
	next.AnimalEvents = cloneSlice(s.AnimalEvents)
	next.TrainingRecords = cloneSlice(s.TrainingRecords)
	next.Experiments = cloneSlice(s.Experiments)
	next.ExperimentEvents = cloneSlice(s.ExperimentEvents)
	next.Tasks = cloneSlice(s.Tasks)
	next.TaskTemplates = cloneSlice(s.TaskTemplates)
	next.SyncEvents = cloneSlice(s.SyncEvents)
	next.AuditEvents = make([]AuditEvent, len(s.AuditEvents))
	for i, e := range s.AuditEvents {
		e.BeforeFields = cloneStringMap(e.BeforeFields)
		e.AfterFields = cloneStringMap(e.AfterFields)
		next.AuditEvents[i] = e
	}
	if s.LastImportReport != nil {
		report := *s.LastImportReport
		report.Issues = cloneSlice(report.Issues)
		next.LastImportReport = &report
	}
	return next
}

// FindProtocol returns the protocol with the given id.
func (s Snapshot) FindProtocol(id string) (Protocol, bool) {
	for _, p := range s.Protocols {
		if p.ID == id {
			return p, true
		}
	}
	return Protocol{}, false
}

// FindCage returns the cage with the given id.
func (s Snapshot) FindCage(id string) (Cage, bool) {
	for _, c := range s.Cages {
		if c.ID == id {
			return c, true
		}
	}
	return Cage{}, false
}

// FindAnimal returns the animal with the given id.
func (s Snapshot) FindAnimal(id string) (Animal, bool) {
	for _, a := range s.Animals {
		if a.ID == id {
			return a, true
		}
	}
	return Animal{}, false
}

// FindPlan returns the breeding plan with the given id.
func (s Snapshot) FindPlan(id string) (BreedingPlan, bool) {
	for _, p := range s.BreedingPlans {
		if p.ID == id {
			return p, true
		}
	}
	return BreedingPlan{}, false
}

// FindSample returns the sample with the given id.
func (s Snapshot) FindSample(id string) (Sample, bool) {
	for _, sm := range s.Samples {
		if sm.ID == id {
			return sm, true
		}
	}
	return Sample{}, false
}

// FindBatch returns the genotyping batch with the given id.
func (s Snapshot) FindBatch(id string) (GenotypingBatch, bool) {
	for _, b := range s.GenotypingBatches {
		if b.ID == id {
			return b, true
		}
	}
	return GenotypingBatch{}, false
}

// FindCohort returns the cohort with the given id.
func (s Snapshot) FindCohort(id string) (Cohort, bool) {
	for _, c := range s.Cohorts {
		if c.ID == id {
			return c, true
		}
	}
	return Cohort{}, false
}

// FindExperiment returns the experiment session with the given id.
func (s Snapshot) FindExperiment(id string) (ExperimentSession, bool) {
	for _, e := range s.Experiments {
		if e.ID == id {
			return e, true
		}
	}
	return ExperimentSession{}, false
}

// FindTask returns the task with the given id.
func (s Snapshot) FindTask(id string) (LabTask, bool) {
	for _, t := range s.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return LabTask{}, false
}

// FindTraining returns the training record for the given username.
func (s Snapshot) FindTraining(username string) (TrainingRecord, bool) {
	for _, r := range s.TrainingRecords {
		if r.Username == username {
			return r, true
		}
	}
	return TrainingRecord{}, false
}

func catalogAllows(catalog []string, value string) bool {
	if len(catalog) == 0 {
		return true
	}
	for _, entry := range catalog {
		if strings.EqualFold(entry, value) {
			return true
		}
	}
	return false
}

// StrainAllowed reports whether the strain passes the whitelist. An empty
// catalog disables the check.
func (s Snapshot) StrainAllowed(strain string) bool {
	return catalogAllows(s.StrainCatalog, strain)
}

// GenotypeAllowed reports whether the genotype passes the whitelist. An empty
// catalog disables the check.
func (s Snapshot) GenotypeAllowed(genotype string) bool {
	return catalogAllows(s.GenotypeCatalog, genotype)
}

// TrainingValid reports whether the operator may perform gated work at the
// given time. An empty roster disables the check entirely.
func (s Snapshot) TrainingValid(operator string, now time.Time) bool {
	if len(s.TrainingRecords) == 0 {
		return true
	}
	r, ok := s.FindTraining(operator)
	return ok && r.Valid(now)
}

// DashboardStats is the operational read model shown on the landing view.
type DashboardStats struct {
	ActiveCages           int `json:"active_cages"`
	TotalAnimals          int `json:"total_animals"`
	UrgentTasks           int `json:"urgent_tasks"`
	OverdueTasks          int `json:"overdue_tasks"`
	ProtocolExpiringSoon  int `json:"protocol_expiring_soon"`
	PendingSyncCount      int `json:"pending_sync_count"`
}

// DashboardStats derives the landing counters from the snapshot.
func (s Snapshot) DashboardStats(now time.Time) DashboardStats {
	window := 14 * 24 * time.Hour
	stats := DashboardStats{}
	for _, p := range s.Protocols {
		if p.Active && !p.ExpiresAt.Before(now) && !p.ExpiresAt.After(now.Add(window)) {
			stats.ProtocolExpiringSoon++
		}
	}
	for _, c := range s.Cages {
		if c.Status == CageActive {
			stats.ActiveCages++
		}
	}
	for _, a := range s.Animals {
		if a.Status != AnimalDead {
			stats.TotalAnimals++
		}
	}
	for _, t := range s.Tasks {
		if t.Status == TaskTodo && t.Priority.Rank() <= PriorityHigh.Rank() {
			stats.UrgentTasks++
		}
		if t.Status == TaskOverdue {
			stats.OverdueTasks++
		}
	}
	for _, e := range s.SyncEvents {
		if e.Status == SyncPending || e.Status == SyncFailed {
			stats.PendingSyncCount++
		}
	}
	return stats
}

// Daily cost assumptions used by the report summary.
const (
	costPerActiveAnimalUSDPerDay = 1.25
	costPerActiveCageUSDPerDay   = 2.50
)

// ReportSummary is the derived compliance/operations report read model.
type ReportSummary struct {
	CageOccupancyRate   float64 `json:"cage_occupancy_rate"`
	TaskCompletionRate  float64 `json:"task_completion_rate"`
	BreedingSuccessRate float64 `json:"breeding_success_rate"`
	SurvivalRate        float64 `json:"survival_rate"`
	EstimatedCostUSD    float64 `json:"estimated_cost_usd"`
	ActiveBreedingPlans int     `json:"active_breeding_plans"`
	ActiveCohorts       int     `json:"active_cohorts"`
	ActiveExperiments   int     `json:"active_experiments"`
	OverdueTasks        int     `json:"overdue_tasks"`
}

// ReportSummary derives the report read model from the snapshot.
func (s Snapshot) ReportSummary() ReportSummary {
	var out ReportSummary

	activeCages := 0
	occupancySum := 0.0
	for _, c := range s.Cages {
		if c.Status == CageActive {
			activeCages++
			occupancySum += c.OccupancyRatio()
		}
	}
	if activeCages > 0 {
		out.CageOccupancyRate = occupancySum / float64(activeCages)
	}

	done, weanDone := 0, 0
	for _, t := range s.Tasks {
		if t.Status == TaskDone {
			done++
			if t.EntityType == EntityBreeding && strings.Contains(t.Title, "断奶") {
				weanDone++
			}
		}
		if t.Status == TaskOverdue {
			out.OverdueTasks++
		}
	}
	if len(s.Tasks) > 0 {
		out.TaskCompletionRate = float64(done) / float64(len(s.Tasks))
	}
	if len(s.BreedingPlans) > 0 {
		if weanDone > len(s.BreedingPlans) {
			weanDone = len(s.BreedingPlans)
		}
		out.BreedingSuccessRate = float64(weanDone) / float64(len(s.BreedingPlans))
	}

	alive := 0
	for _, a := range s.Animals {
		if a.Status != AnimalDead {
			alive++
		}
	}
	out.SurvivalRate = 1
	if len(s.Animals) > 0 {
		out.SurvivalRate = float64(alive) / float64(len(s.Animals))
	}
	out.EstimatedCostUSD = float64(alive)*costPerActiveAnimalUSDPerDay + float64(activeCages)*costPerActiveCageUSDPerDay

	out.ActiveBreedingPlans = len(s.BreedingPlans)
	for _, c := range s.Cohorts {
		if c.Locked {
			out.ActiveCohorts++
		}
	}
	for _, e := range s.Experiments {
		if e.Status == ExperimentActive {
			out.ActiveExperiments++
		}
	}
	return out
}
