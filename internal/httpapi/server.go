// Package httpapi exposes the engine over HTTP: JSON mutation endpoints,
// derived read models, CSV exports, a Prometheus scrape target, and a
// websocket snapshot stream.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vivarium/internal/core"
	"vivarium/internal/infra/blob"
	"vivarium/internal/notify"
	"vivarium/pkg/domain"
)

// Server wires the engine, the attachment blob store, and the notification
// read state behind one router.
type Server struct {
	svc   *core.Service
	blobs blob.Store
	marks *notify.ReadMarks
	log   zerolog.Logger
	reg   *prometheus.Registry
}

// New builds a server. A nil registry skips the /metrics endpoint; a nil
// blob store disables attachment upload and download.
func New(svc *core.Service, blobs blob.Store, marks *notify.ReadMarks, reg *prometheus.Registry, log zerolog.Logger) *Server {
	if marks == nil {
		marks = notify.NewReadMarks()
	}
	return &Server{svc: svc, blobs: blobs, marks: marks, log: log, reg: reg}
}

// Router assembles the chi router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	}
	r.Get("/ws/snapshot", s.handleSnapshotStream)

	r.Route("/api", func(api chi.Router) {
		api.Get("/snapshot", s.handleGetSnapshot)
		api.Get("/stats", s.handleGetStats)
		api.Get("/report", s.handleGetReport)

		api.Get("/notifications", s.handleListNotifications)
		api.Post("/notifications/{id}/read", s.handleMarkNotificationRead)
		api.Post("/notifications/read-all", s.handleMarkAllNotificationsRead)

		api.Route("/cages", func(cr chi.Router) {
			cr.Post("/", s.handleCreateCage)
			cr.Post("/move", s.handleMoveAnimals)
			cr.Post("/merge", s.handleMergeCages)
			cr.Post("/{id}/split", s.handleSplitCage)
		})

		api.Route("/animals", func(ar chi.Router) {
			ar.Post("/", s.handleCreateAnimal)
			ar.Post("/{id}/status", s.handleUpdateAnimalStatus)
			ar.Post("/{id}/events", s.handleAddAnimalEvent)
			ar.Post("/{id}/attachments", s.handleUploadAttachment)
			ar.Get("/{id}/attachments", s.handleDownloadAttachment)
		})

		api.Route("/masterdata", func(mr chi.Router) {
			mr.Post("/strains", s.handleAddStrain)
			mr.Delete("/strains/{name}", s.handleRemoveStrain)
			mr.Post("/genotypes", s.handleAddGenotype)
			mr.Delete("/genotypes/{name}", s.handleRemoveGenotype)
		})

		api.Route("/breeding", func(br chi.Router) {
			br.Post("/", s.handleCreateBreedingPlan)
			br.Post("/{id}/plug-check", s.handleRecordPlugCheck)
			br.Post("/{id}/birth", s.handleRecordBirth)
			br.Post("/{id}/wean", s.handleCompleteWeaning)
			br.Post("/{id}/wean/wizard", s.handleRunWeaningWizard)
			br.Post("/wean/undo", s.handleUndoWeaningWizard)
		})

		api.Route("/genotyping", func(gr chi.Router) {
			gr.Post("/samples", s.handleRegisterSample)
			gr.Post("/batches", s.handleCreateGenotypingBatch)
			gr.Post("/batches/{id}/import", s.handleImportGenotypingResults)
			gr.Post("/results/{id}/confirm", s.handleConfirmGenotypingResult)
		})

		api.Route("/cohorts", func(cr chi.Router) {
			cr.Post("/", s.handleCreateCohort)
			cr.Post("/templates", s.handleSaveCohortTemplate)
			cr.Put("/templates/{id}", s.handleUpdateCohortTemplate)
			cr.Delete("/templates/{id}", s.handleDeleteCohortTemplate)
			cr.Post("/templates/{id}/apply", s.handleApplyCohortTemplate)
		})

		api.Route("/experiments", func(er chi.Router) {
			er.Post("/", s.handleCreateExperiment)
			er.Post("/{id}/events", s.handleAddExperimentEvent)
			er.Post("/{id}/archive", s.handleArchiveExperiment)
		})

		api.Route("/tasks", func(tr chi.Router) {
			tr.Post("/{id}/complete", s.handleCompleteTask)
			tr.Post("/{id}/assignee", s.handleReassignTask)
			tr.Post("/reassign", s.handleReassignTasks)
			tr.Post("/templates", s.handleSaveTaskTemplate)
			tr.Delete("/templates/{id}", s.handleDeleteTaskTemplate)
			tr.Post("/templates/{id}/instantiate", s.handleCreateTaskFromTemplate)
			tr.Post("/escalation", s.handleSetTaskEscalation)
			tr.Post("/escalation/apply", s.handleApplyTaskEscalation)
		})

		api.Route("/admin", func(ar chi.Router) {
			ar.Post("/role", s.handleSwitchRole)
			ar.Post("/protocols/{id}/state", s.handleSetProtocolState)
			ar.Post("/training", s.handleUpsertTraining)
			ar.Delete("/training/{username}", s.handleRemoveTraining)
			ar.Post("/notification-policy", s.handleSetNotificationPolicy)
			ar.Post("/permissions", s.handleSetRolePermission)
		})

		api.Route("/sync", func(sr chi.Router) {
			sr.Post("/flush", s.handleSyncFlush)
			sr.Post("/{id}/retry", s.handleSyncRetry)
		})

		api.Route("/exports", func(er chi.Router) {
			er.Get("/animals.csv", s.handleExportAnimals)
			er.Get("/compliance.csv", s.handleExportCompliance)
			er.Get("/cohorts/{id}/blind.csv", s.handleExportCohortBlind)
		})

		api.Post("/imports/animals", s.handleImportAnimalsCSV)
	})
	return r
}

// writeJSON renders v as the response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOutcome maps the mutation outcome to a status code and renders it.
func writeOutcome(w http.ResponseWriter, out domain.Outcome) {
	writeJSON(w, statusFor(out), out)
}

func statusFor(out domain.Outcome) int {
	if out.OK {
		return http.StatusOK
	}
	switch out.Kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindMalformedInput:
		return http.StatusBadRequest
	case domain.KindProtocolInvalid, domain.KindTrainingInvalid:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusConflict
	}
}

// decode parses the JSON body into v, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, domain.Fail(domain.KindMalformedInput, "请求体不是合法 JSON"))
		return false
	}
	return true
}
