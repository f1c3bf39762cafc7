package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vivarium/internal/core"
	"vivarium/internal/infra/blob"
	"vivarium/internal/notify"
	"vivarium/pkg/domain"
)

// operator resolves the acting user from the X-Operator header. The engine
// itself decides what the operator may do; the header only names them.
func operator(r *http.Request) string {
	if op := strings.TrimSpace(r.Header.Get("X-Operator")); op != "" {
		return op
	}
	return "web"
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot())
}

func (s *Server) handleGetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot().DashboardStats(time.Now()))
}

func (s *Server) handleGetReport(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Snapshot().ReportSummary())
}

func (s *Server) handleListNotifications(w http.ResponseWriter, _ *http.Request) {
	items := notify.BuildNotifications(s.svc.Snapshot(), s.marks.Snapshot(), time.Now())
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	s.marks.MarkRead(chi.URLParam(r, "id"), time.Now())
	writeJSON(w, http.StatusOK, domain.Success())
}

func (s *Server) handleMarkAllNotificationsRead(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	items := notify.BuildNotifications(s.svc.Snapshot(), s.marks.Snapshot(), now)
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	s.marks.MarkAllRead(ids, now)
	writeJSON(w, http.StatusOK, domain.Success())
}

func (s *Server) handleCreateCage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CageID        string `json:"cage_id"`
		RoomCode      string `json:"room_code"`
		RackCode      string `json:"rack_code"`
		SlotCode      string `json:"slot_code"`
		CapacityLimit int    `json:"capacity_limit"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateCage(req.CageID, req.RoomCode, req.RackCode, req.SlotCode, req.CapacityLimit, operator(r)))
}

func (s *Server) handleMoveAnimals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnimalIDs    []string `json:"animal_ids"`
		TargetCageID string   `json:"target_cage_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.MoveAnimals(req.AnimalIDs, req.TargetCageID, operator(r)))
}

func (s *Server) handleMergeCages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SourceCageID string `json:"source_cage_id"`
		TargetCageID string `json:"target_cage_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.MergeCages(req.SourceCageID, req.TargetCageID, operator(r)))
}

func (s *Server) handleSplitCage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NewCageID     string   `json:"new_cage_id"`
		RoomCode      string   `json:"room_code"`
		RackCode      string   `json:"rack_code"`
		SlotCode      string   `json:"slot_code"`
		CapacityLimit int      `json:"capacity_limit"`
		AnimalIDs     []string `json:"animal_ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SplitCage(chi.URLParam(r, "id"), req.NewCageID, req.RoomCode, req.RackCode, req.SlotCode, req.CapacityLimit, req.AnimalIDs, operator(r)))
}

func (s *Server) handleCreateAnimal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string     `json:"identifier"`
		Sex        domain.Sex `json:"sex"`
		Strain     string     `json:"strain"`
		Genotype   string     `json:"genotype"`
		CageID     string     `json:"cage_id"`
		ProtocolID *string    `json:"protocol_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateAnimal(req.Identifier, req.Sex, req.Strain, req.Genotype, req.CageID, req.ProtocolID, operator(r)))
}

func (s *Server) handleUpdateAnimalStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status domain.AnimalStatus `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.UpdateAnimalStatus(chi.URLParam(r, "id"), req.Status, operator(r)))
}

func (s *Server) handleAddAnimalEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventType  string   `json:"event_type"`
		Note       string   `json:"note"`
		WeightGram *float64 `json:"weight_gram"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.AddAnimalEvent(chi.URLParam(r, "id"), req.EventType, req.Note, req.WeightGram, operator(r)))
}

// handleUploadAttachment stores the request body in the blob store under a
// key derived from the animal id and file name, then records the attachment.
func (s *Server) handleUploadAttachment(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, domain.Fail(domain.KindInvalidState, "附件存储未配置"))
		return
	}
	animalID := chi.URLParam(r, "id")
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSON(w, http.StatusBadRequest, domain.Fail(domain.KindMalformedInput, "附件名称不能为空"))
		return
	}
	key := fmt.Sprintf("animals/%s/%s", animalID, path.Base(name))
	_, err := s.blobs.Put(r.Context(), key, r.Body, blob.PutOptions{ContentType: r.Header.Get("Content-Type")})
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("attachment upload failed")
		writeJSON(w, http.StatusConflict, domain.Failf(domain.KindDuplicate, "附件写入失败：%s", key))
		return
	}
	out := s.svc.AddAnimalAttachment(animalID, name, key, operator(r))
	if out.Failed() {
		_, _ = s.blobs.Delete(r.Context(), key)
	}
	writeOutcome(w, out)
}

func (s *Server) handleDownloadAttachment(w http.ResponseWriter, r *http.Request) {
	if s.blobs == nil {
		writeJSON(w, http.StatusServiceUnavailable, domain.Fail(domain.KindInvalidState, "附件存储未配置"))
		return
	}
	key := r.URL.Query().Get("key")
	info, rc, err := s.blobs.Get(r.Context(), key)
	if err != nil {
		writeJSON(w, http.StatusNotFound, domain.Fail(domain.KindNotFound, "附件不存在"))
		return
	}
	defer func() { _ = rc.Close() }()
	if info.ContentType != "" {
		w.Header().Set("Content-Type", info.ContentType)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

func (s *Server) handleAddStrain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.AddStrain(req.Name, operator(r)))
}

func (s *Server) handleRemoveStrain(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.RemoveStrain(chi.URLParam(r, "name"), operator(r)))
}

func (s *Server) handleAddGenotype(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.AddGenotype(req.Name, operator(r)))
}

func (s *Server) handleRemoveGenotype(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.RemoveGenotype(chi.URLParam(r, "name"), operator(r)))
}

func (s *Server) handleCreateBreedingPlan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaleID     string  `json:"male_id"`
		FemaleID   string  `json:"female_id"`
		ProtocolID *string `json:"protocol_id"`
		Notes      string  `json:"notes"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateBreedingPlan(req.MaleID, req.FemaleID, req.ProtocolID, req.Notes, operator(r)))
}

func (s *Server) handleRecordPlugCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Positive bool `json:"positive"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.RecordPlugCheck(chi.URLParam(r, "id"), req.Positive, operator(r)))
}

func (s *Server) handleRecordBirth(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PupCount int     `json:"pup_count"`
		Strain   *string `json:"strain"`
		Genotype *string `json:"genotype"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.RecordBirth(chi.URLParam(r, "id"), req.PupCount, req.Strain, req.Genotype, operator(r)))
}

func (s *Server) handleCompleteWeaning(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.CompleteWeaning(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleRunWeaningWizard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PupIDs        []string `json:"pup_ids"`
		TargetCageIDs []string `json:"target_cage_ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.RunWeaningWizard(chi.URLParam(r, "id"), req.PupIDs, req.TargetCageIDs, operator(r)))
}

func (s *Server) handleUndoWeaningWizard(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.UndoLastWeaningWizard(operator(r)))
}

func (s *Server) handleRegisterSample(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AnimalID   string            `json:"animal_id"`
		SampleType domain.SampleType `json:"sample_type"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.RegisterSample(req.AnimalID, req.SampleType, operator(r)))
}

func (s *Server) handleCreateGenotypingBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string   `json:"name"`
		SampleIDs []string `json:"sample_ids"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateGenotypingBatch(req.Name, req.SampleIDs, operator(r)))
}

// handleImportGenotypingResults returns the import report alongside the
// outcome; a partial import is an error outcome with a committed report.
func (s *Server) handleImportGenotypingResults(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSV      string `json:"csv"`
		Reviewer string `json:"reviewer"`
	}
	if !decode(w, r, &req) {
		return
	}
	out := s.svc.ImportGenotypingResults(chi.URLParam(r, "id"), req.CSV, req.Reviewer, operator(r))
	writeJSON(w, statusFor(out), struct {
		domain.Outcome
		Report *domain.GenotypingImportReport `json:"report,omitempty"`
	}{Outcome: out, Report: s.svc.Snapshot().LastImportReport})
}

func (s *Server) handleConfirmGenotypingResult(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.ConfirmGenotypingResult(chi.URLParam(r, "id"), operator(r)))
}

// cohortFilterRequest is the wire form of a cohort filter.
type cohortFilterRequest struct {
	Strain   *string     `json:"strain"`
	Genotype *string     `json:"genotype"`
	Sex      *domain.Sex `json:"sex"`
	MinWeeks *int        `json:"min_weeks"`
	MaxWeeks *int        `json:"max_weeks"`
}

func (f cohortFilterRequest) toFilter() core.CohortFilter {
	return core.CohortFilter{Strain: f.Strain, Genotype: f.Genotype, Sex: f.Sex, MinWeeks: f.MinWeeks, MaxWeeks: f.MaxWeeks}
}

func (s *Server) handleCreateCohort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string              `json:"name"`
		Filter          cohortFilterRequest `json:"filter"`
		BlindCoding     bool                `json:"blind_coding"`
		BlindCodePrefix string              `json:"blind_code_prefix"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateCohort(req.Name, req.Filter.toFilter(), req.BlindCoding, req.BlindCodePrefix, operator(r)))
}

func (s *Server) handleSaveCohortTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string              `json:"name"`
		Filter cohortFilterRequest `json:"filter"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SaveCohortTemplate(req.Name, req.Filter.toFilter(), operator(r)))
}

func (s *Server) handleUpdateCohortTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string              `json:"name"`
		Filter cohortFilterRequest `json:"filter"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.UpdateCohortTemplate(chi.URLParam(r, "id"), req.Name, req.Filter.toFilter(), operator(r)))
}

func (s *Server) handleDeleteCohortTemplate(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.DeleteCohortTemplate(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleApplyCohortTemplate(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.ApplyCohortTemplate(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CohortID string `json:"cohort_id"`
		Title    string `json:"title"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateExperiment(req.CohortID, req.Title, operator(r)))
}

func (s *Server) handleAddExperimentEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventType string `json:"event_type"`
		Note      string `json:"note"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.AddExperimentEvent(chi.URLParam(r, "id"), req.EventType, req.Note, operator(r)))
}

func (s *Server) handleArchiveExperiment(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.ArchiveExperiment(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.CompleteTask(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleReassignTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignee string `json:"assignee"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.ReassignTask(chi.URLParam(r, "id"), req.Assignee, operator(r)))
}

func (s *Server) handleReassignTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskIDs  []string `json:"task_ids"`
		Assignee string   `json:"assignee"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.ReassignTasks(req.TaskIDs, req.Assignee, operator(r)))
}

func (s *Server) handleSaveTaskTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string              `json:"name"`
		Detail     string              `json:"detail"`
		Priority   domain.TaskPriority `json:"priority"`
		DueInHours int                 `json:"due_in_hours"`
		EntityType domain.EntityType   `json:"entity_type"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SaveTaskTemplate(req.Name, req.Detail, req.Priority, req.DueInHours, req.EntityType, operator(r)))
}

func (s *Server) handleDeleteTaskTemplate(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.DeleteTaskTemplate(chi.URLParam(r, "id"), operator(r)))
}

func (s *Server) handleCreateTaskFromTemplate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Assignee string `json:"assignee"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.CreateTaskFromTemplate(chi.URLParam(r, "id"), req.Assignee, operator(r)))
}

func (s *Server) handleSetTaskEscalation(w http.ResponseWriter, r *http.Request) {
	var req domain.TaskEscalationConfig
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SetTaskEscalationConfig(req, operator(r)))
}

func (s *Server) handleApplyTaskEscalation(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.ApplyTaskEscalation(operator(r)))
}

func (s *Server) handleSwitchRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role domain.Role `json:"role"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SwitchRole(req.Role))
}

func (s *Server) handleSetProtocolState(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SetProtocolState(chi.URLParam(r, "id"), req.Active, operator(r)))
}

func (s *Server) handleUpsertTraining(w http.ResponseWriter, r *http.Request) {
	var req domain.TrainingRecord
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.UpsertTrainingRecord(req, operator(r)))
}

func (s *Server) handleRemoveTraining(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.RemoveTrainingRecord(chi.URLParam(r, "username"), operator(r)))
}

func (s *Server) handleSetNotificationPolicy(w http.ResponseWriter, r *http.Request) {
	var req domain.NotificationPolicy
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SetNotificationPolicy(req, operator(r)))
}

func (s *Server) handleSetRolePermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role       domain.Role       `json:"role"`
		Capability domain.Capability `json:"capability"`
		Enabled    bool              `json:"enabled"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.SetRolePermission(req.Role, req.Capability, req.Enabled, operator(r)))
}

func (s *Server) handleSyncFlush(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.SyncPendingEvents(operator(r)))
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	writeOutcome(w, s.svc.RetrySyncEvent(chi.URLParam(r, "id"), operator(r)))
}

func writeCSV(w http.ResponseWriter, filename, body string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(body))
}

func (s *Server) handleExportAnimals(w http.ResponseWriter, _ *http.Request) {
	writeCSV(w, "animals.csv", s.svc.ExportAnimalsCSV())
}

func (s *Server) handleExportCompliance(w http.ResponseWriter, _ *http.Request) {
	writeCSV(w, "compliance.csv", s.svc.ExportComplianceCSV())
}

func (s *Server) handleExportCohortBlind(w http.ResponseWriter, r *http.Request) {
	cohortID := chi.URLParam(r, "id")
	writeCSV(w, cohortID+"-blind.csv", s.svc.ExportCohortBlindCSV(cohortID))
}

func (s *Server) handleImportAnimalsCSV(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CSV string `json:"csv"`
	}
	if !decode(w, r, &req) {
		return
	}
	writeOutcome(w, s.svc.ImportAnimalsCSV(req.CSV, operator(r)))
}
