// Package domain defines the persistent entities, enumerations, permission
// model, and result primitives of the vivarium state engine.
package domain

import "time"

// EntityType identifies the kind of record referenced by audit events, tasks,
// and sync payloads.
type EntityType string

const (
	EntityCage          EntityType = "cage"
	EntityAnimal        EntityType = "animal"
	EntityAnimalEvent   EntityType = "animal_event"
	EntityAttachment    EntityType = "animal_attachment"
	EntityProtocol      EntityType = "protocol"
	EntityBreeding      EntityType = "breeding"
	EntitySample        EntityType = "sample"
	EntityGenotypeBatch EntityType = "genotyping_batch"
	EntityGenotypeCall  EntityType = "genotyping_result"
	EntityCohort        EntityType = "cohort"
	EntityCohortPreset  EntityType = "cohort_template"
	EntityExperiment    EntityType = "experiment"
	EntityTask          EntityType = "task"
	EntityTaskTemplate  EntityType = "task_template"
	EntityTraining      EntityType = "training"
	EntityMasterData    EntityType = "master_data"
	EntitySync          EntityType = "sync"
	EntityRBAC          EntityType = "rbac"
	EntityConfig        EntityType = "config"
	EntityUser          EntityType = "user"
)

// CageStatus enumerates the housing lifecycle states.
type CageStatus string

const (
	CageActive     CageStatus = "active"
	CageQuarantine CageStatus = "quarantine"
	CageClosed     CageStatus = "closed"
)

// Sex enumerates recorded animal sexes.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// AnimalStatus enumerates animal lifecycle states. Legal movements between
// states are defined by CanTransition.
type AnimalStatus string

const (
	AnimalActive       AnimalStatus = "active"
	AnimalBreeding     AnimalStatus = "breeding"
	AnimalInExperiment AnimalStatus = "in_experiment"
	AnimalRetired      AnimalStatus = "retired"
	AnimalDead         AnimalStatus = "dead"
)

// TaskPriority enumerates task urgency. A lower rank is more urgent.
type TaskPriority string

const (
	PriorityCritical TaskPriority = "critical"
	PriorityHigh     TaskPriority = "high"
	PriorityMedium   TaskPriority = "medium"
	PriorityLow      TaskPriority = "low"
)

var priorityRanks = map[TaskPriority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns the urgency rank of the priority; lower is more urgent.
// Unknown values sort after every defined priority.
func (p TaskPriority) Rank() int {
	if r, ok := priorityRanks[p]; ok {
		return r
	}
	return len(priorityRanks)
}

// MoreUrgent returns whichever of the two priorities has the lower rank.
func MoreUrgent(a, b TaskPriority) TaskPriority {
	if b.Rank() < a.Rank() {
		return b
	}
	return a
}

// TaskStatus enumerates task workflow states.
type TaskStatus string

const (
	TaskTodo    TaskStatus = "todo"
	TaskDone    TaskStatus = "done"
	TaskOverdue TaskStatus = "overdue"
)

// SampleType enumerates tissue sample kinds accepted for genotyping.
type SampleType string

const (
	SampleEar   SampleType = "ear"
	SampleTail  SampleType = "tail"
	SampleBlood SampleType = "blood"
)

// BatchStatus enumerates genotyping batch workflow states.
type BatchStatus string

const (
	BatchDraft     BatchStatus = "draft"
	BatchSubmitted BatchStatus = "submitted"
	BatchCompleted BatchStatus = "completed"
)

// ExperimentStatus enumerates experiment session states.
type ExperimentStatus string

const (
	ExperimentActive   ExperimentStatus = "active"
	ExperimentArchived ExperimentStatus = "archived"
)

// Severity grades derived notifications.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// SyncStatus enumerates outbound sync event states.
type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// Protocol is an ethics authorization with an expiry date. Operations that
// move animals into breeding or experiment states require a usable protocol.
type Protocol struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// Usable reports whether the protocol may gate an operation at the given time.
func (p Protocol) Usable(now time.Time) bool {
	return p.Active && !p.ExpiresAt.Before(now)
}

// Cage is a housing unit with a hard capacity limit.
type Cage struct {
	ID            string     `json:"id"`
	RoomCode      string     `json:"room_code"`
	RackCode      string     `json:"rack_code"`
	SlotCode      string     `json:"slot_code"`
	CapacityLimit int        `json:"capacity_limit"`
	AnimalIDs     []string   `json:"animal_ids"`
	Status        CageStatus `json:"status"`
}

// OccupancyRatio returns occupants over capacity; zero when capacity is zero.
func (c Cage) OccupancyRatio() float64 {
	if c.CapacityLimit == 0 {
		return 0
	}
	return float64(len(c.AnimalIDs)) / float64(c.CapacityLimit)
}

// FreeCapacity returns the remaining slots in the cage, never negative.
func (c Cage) FreeCapacity() int {
	free := c.CapacityLimit - len(c.AnimalIDs)
	if free < 0 {
		return 0
	}
	return free
}

// Animal is an individual tracked by identifier, lineage, and status.
type Animal struct {
	ID         string       `json:"id"`
	Identifier string       `json:"identifier"`
	Sex        Sex          `json:"sex"`
	BornAt     time.Time    `json:"born_at"`
	Strain     string       `json:"strain"`
	Genotype   string       `json:"genotype"`
	Status     AnimalStatus `json:"status"`
	CageID     string       `json:"cage_id"`
	ProtocolID *string      `json:"protocol_id,omitempty"`
	FatherID   *string      `json:"father_id,omitempty"`
	MotherID   *string      `json:"mother_id,omitempty"`
}

// AgeInWeeks returns the animal's completed age in weeks at the given time.
func (a Animal) AgeInWeeks(now time.Time) int {
	if now.Before(a.BornAt) {
		return 0
	}
	return int(now.Sub(a.BornAt) / (7 * 24 * time.Hour))
}

// BreedingPlan pairs a male and a female and drives the plug-check and
// weaning workflow.
type BreedingPlan struct {
	ID                  string     `json:"id"`
	MaleID              string     `json:"male_id"`
	FemaleID            string     `json:"female_id"`
	ProtocolID          *string    `json:"protocol_id,omitempty"`
	MatedAt             time.Time  `json:"mated_at"`
	ExpectedPlugCheckAt time.Time  `json:"expected_plug_check_at"`
	ExpectedWeanAt      time.Time  `json:"expected_wean_at"`
	Notes               string     `json:"notes"`
	PlugCheckedAt       *time.Time `json:"plug_checked_at,omitempty"`
	PlugPositive        *bool      `json:"plug_positive,omitempty"`
	WeanedAt            *time.Time `json:"weaned_at,omitempty"`
}

// Sample is tissue material taken from an animal for genotyping.
type Sample struct {
	ID            string     `json:"id"`
	AnimalID      string     `json:"animal_id"`
	Type          SampleType `json:"type"`
	SampledAt     time.Time  `json:"sampled_at"`
	Operator      string     `json:"operator"`
	BatchID       *string    `json:"batch_id,omitempty"`
	PlatePosition *string    `json:"plate_position,omitempty"`
}

// GenotypingBatch groups samples submitted together. Plate positions are
// assigned row-major on a 96-well plate when the batch is created.
type GenotypingBatch struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	SampleIDs []string    `json:"sample_ids"`
	Status    BatchStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// GenotypingResult is a marker call for a sample. Version increments per
// (sample, marker) pair; Conflict is set when a confirmed prior call disagrees.
type GenotypingResult struct {
	ID         string    `json:"id"`
	SampleID   string    `json:"sample_id"`
	BatchID    string    `json:"batch_id"`
	Marker     string    `json:"marker"`
	CallValue  string    `json:"call_value"`
	Version    int       `json:"version"`
	Reviewer   string    `json:"reviewer"`
	ReviewedAt time.Time `json:"reviewed_at"`
	Conflict   bool      `json:"conflict"`
	Confirmed  bool      `json:"confirmed"`
}

// GenotypingImportIssue records one rejected row of a genotyping import.
type GenotypingImportIssue struct {
	LineNumber int    `json:"line_number"`
	Reason     string `json:"reason"`
	RawLine    string `json:"raw_line"`
}

// GenotypingImportReport summarizes a genotyping import, including a
// retry-ready CSV of the rejected rows.
type GenotypingImportReport struct {
	BatchID       string                  `json:"batch_id"`
	Reviewer      string                  `json:"reviewer"`
	ImportedCount int                     `json:"imported_count"`
	ConflictCount int                     `json:"conflict_count"`
	FailedCount   int                     `json:"failed_count"`
	Issues        []GenotypingImportIssue `json:"issues,omitempty"`
	FailedRowsCSV string                  `json:"failed_rows_csv,omitempty"`
	ImportedAt    time.Time               `json:"imported_at"`
}

// CohortTemplate is a reusable animal filter preset.
type CohortTemplate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Strain     *string   `json:"strain,omitempty"`
	Genotype   *string   `json:"genotype,omitempty"`
	Sex        *Sex      `json:"sex,omitempty"`
	MinWeeks   *int      `json:"min_weeks,omitempty"`
	MaxWeeks   *int      `json:"max_weeks,omitempty"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Cohort is a locked set of animals selected by filter criteria. Membership is
// immutable once created. BlindCodes maps animal id to its opaque code.
type Cohort struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	CriteriaSummary string            `json:"criteria_summary"`
	AnimalIDs       []string          `json:"animal_ids"`
	BlindCodes      map[string]string `json:"blind_codes,omitempty"`
	Locked          bool              `json:"locked"`
	CreatedAt       time.Time         `json:"created_at"`
}

// ExperimentSession runs a cohort through a titled experiment.
type ExperimentSession struct {
	ID        string           `json:"id"`
	CohortID  string           `json:"cohort_id"`
	Title     string           `json:"title"`
	Status    ExperimentStatus `json:"status"`
	StartedAt time.Time        `json:"started_at"`
	EndedAt   *time.Time       `json:"ended_at,omitempty"`
}

// ExperimentEvent is an append-only log entry attached to an experiment.
type ExperimentEvent struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	EventType    string    `json:"event_type"`
	Note         string    `json:"note"`
	CreatedAt    time.Time `json:"created_at"`
	Operator     string    `json:"operator"`
}

// AnimalEvent is an append-only observation attached to an animal.
type AnimalEvent struct {
	ID         string    `json:"id"`
	AnimalID   string    `json:"animal_id"`
	EventType  string    `json:"event_type"`
	Note       string    `json:"note"`
	WeightGram *float64  `json:"weight_gram,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Operator   string    `json:"operator"`
}

// AnimalAttachment references a stored blob attached to an animal.
type AnimalAttachment struct {
	ID        string    `json:"id"`
	AnimalID  string    `json:"animal_id"`
	Label     string    `json:"label"`
	BlobKey   string    `json:"blob_key"`
	CreatedAt time.Time `json:"created_at"`
	Operator  string    `json:"operator"`
}

// TrainingRecord authorizes an operator for breeding, genotyping, and
// experiment work.
type TrainingRecord struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
	Note      string    `json:"note"`
}

// Valid reports whether the record authorizes work at the given time.
func (r TrainingRecord) Valid(now time.Time) bool {
	return r.Active && !r.ExpiresAt.Before(now)
}

// SyncEvent records one completed local mutation queued for delivery to the
// upstream system.
type SyncEvent struct {
	ID             string     `json:"id"`
	EventType      string     `json:"event_type"`
	PayloadSummary string     `json:"payload_summary"`
	Status         SyncStatus `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	LastTriedAt    *time.Time `json:"last_tried_at,omitempty"`
	RetryCount     int        `json:"retry_count"`
}

// AuditEvent records one successful mutation. The log is append-only.
type AuditEvent struct {
	ID           string            `json:"id"`
	Action       string            `json:"action"`
	EntityType   EntityType        `json:"entity_type"`
	EntityID     string            `json:"entity_id"`
	Summary      string            `json:"summary"`
	Operator     string            `json:"operator"`
	CreatedAt    time.Time         `json:"created_at"`
	BeforeFields map[string]string `json:"before_fields,omitempty"`
	AfterFields  map[string]string `json:"after_fields,omitempty"`
}

// LabTask is a scheduled work item linked to an entity.
type LabTask struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Detail      string       `json:"detail"`
	DueAt       time.Time    `json:"due_at"`
	Priority    TaskPriority `json:"priority"`
	Status      TaskStatus   `json:"status"`
	EntityType  EntityType   `json:"entity_type"`
	EntityID    string       `json:"entity_id"`
	Assignee    string       `json:"assignee"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// OverdueDuration returns how long the task has been past due at the given
// time; zero for done tasks and tasks not yet due.
func (t LabTask) OverdueDuration(now time.Time) time.Duration {
	if t.Status == TaskDone || !t.DueAt.Before(now) {
		return 0
	}
	return now.Sub(t.DueAt)
}

// TaskTemplate is a reusable task definition.
type TaskTemplate struct {
	ID              string       `json:"id"`
	Name            string       `json:"name"`
	Detail          string       `json:"detail"`
	DefaultPriority TaskPriority `json:"default_priority"`
	DueInHours      int          `json:"due_in_hours"`
	EntityType      EntityType   `json:"entity_type"`
}

// TaskEscalationConfig controls the overdue-task escalation batch.
type TaskEscalationConfig struct {
	Enable24h           bool         `json:"enable_24h"`
	Enable48h           bool         `json:"enable_48h"`
	PriorityAt24h       TaskPriority `json:"priority_at_24h"`
	PriorityAt48h       TaskPriority `json:"priority_at_48h"`
	AutoAssignOverdueTo string       `json:"auto_assign_overdue_to,omitempty"`
}

// DefaultTaskEscalationConfig returns the built-in escalation thresholds.
func DefaultTaskEscalationConfig() TaskEscalationConfig {
	return TaskEscalationConfig{
		Enable24h:     true,
		Enable48h:     true,
		PriorityAt24h: PriorityHigh,
		PriorityAt48h: PriorityCritical,
	}
}

// NotificationPolicy toggles the four notification rule families.
type NotificationPolicy struct {
	EnableProtocolExpiry   bool `json:"enable_protocol_expiry"`
	ProtocolExpiryLeadDays int  `json:"protocol_expiry_lead_days"`
	EnableOverdueTask      bool `json:"enable_overdue_task"`
	EnableCageCapacity     bool `json:"enable_cage_capacity"`
	EnableSyncFailure      bool `json:"enable_sync_failure"`
}

// DefaultNotificationPolicy returns the built-in notification policy.
func DefaultNotificationPolicy() NotificationPolicy {
	return NotificationPolicy{
		EnableProtocolExpiry:   true,
		ProtocolExpiryLeadDays: 14,
		EnableOverdueTask:      true,
		EnableCageCapacity:     true,
		EnableSyncFailure:      true,
	}
}

// NotificationItem is one derived alert. Read state lives outside the snapshot
// and is merged in by the deriver.
type NotificationItem struct {
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Content    string     `json:"content"`
	Severity   Severity   `json:"severity"`
	CreatedAt  time.Time  `json:"created_at"`
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}
