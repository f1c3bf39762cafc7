package core

import (
	"strings"
	"time"

	"github.com/rs/zerolog"

	"vivarium/pkg/domain"
)

// CommitHook observes every successfully installed revision. Hooks run on a
// separate goroutine and must not block mutations.
type CommitHook func(Revision)

// Service is the facade over the snapshot store. Every mutation operation
// lives on it: the method validates against the current snapshot, computes
// the next one, and appends the audit and sync records as part of the same
// state transition.
type Service struct {
	store   *Store
	ids     IDGenerator
	now     func() time.Time
	log     zerolog.Logger
	metrics *Metrics
	hooks   []CommitHook
	wizard  wizardState
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock, used by tests for deterministic time.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator swaps the identifier generator.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Service) { s.ids = ids }
}

// WithLogger attaches a structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics attaches mutation metrics.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithCommitHook registers a hook invoked after every successful mutation,
// in registration order. Persistence and sync dispatch attach here.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Service) { s.hooks = append(s.hooks, hook) }
}

// NewService builds a service over the store. Defaults: sequence ids seeded
// at 3000, wall clock time, a no-op logger.
func NewService(store *Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		ids:   NewSequenceIDs(3000),
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying snapshot store for readers and subscriptions.
func (s *Service) Store() *Store {
	return s.store
}

// Snapshot returns the latest snapshot value.
func (s *Service) Snapshot() domain.Snapshot {
	return s.store.Snapshot()
}

// audit describes the single audit event a successful mutation appends.
type audit struct {
	action   string
	entity   domain.EntityType
	entityID string
	summary  string
	before   map[string]string
	after    map[string]string
}

// syncMsg describes the single outbound sync event a mutation queues.
// Operations on the sync queue itself queue nothing.
type syncMsg struct {
	event   string
	payload string
}

// apply is the shared mutation path: permission gate, domain mutator, audit
// and sync append, CAS install, then logging/metrics/hooks. An empty cap
// skips the permission gate. On failure the store is left untouched.
func (s *Service) apply(cap domain.Capability, actor, op string, fn func(next *domain.Snapshot, now time.Time) (audit, *syncMsg, domain.Outcome)) domain.Outcome {
	now := s.now()
	rev, out := s.store.Apply(func(next *domain.Snapshot) domain.Outcome {
		if cap != "" && !next.Overrides.Granted(next.CurrentRole, cap) {
			return domain.Failf(domain.KindPermissionDenied, "缺少权限: %s", cap.DisplayName())
		}
		a, m, out := fn(next, now)
		if out.Failed() {
			return out
		}
		s.appendAudit(next, a, actor, now)
		if m != nil {
			s.appendSync(next, *m, now)
		}
		return out
	})
	s.observe(op, actor, rev, out)
	return out
}

func (s *Service) appendAudit(next *domain.Snapshot, a audit, actor string, now time.Time) {
	event := domain.AuditEvent{
		ID:           s.ids.Next("AUD-"),
		Action:       a.action,
		EntityType:   a.entity,
		EntityID:     a.entityID,
		Summary:      a.summary,
		Operator:     actor,
		CreatedAt:    now,
		BeforeFields: a.before,
		AfterFields:  a.after,
	}
	next.AuditEvents = append([]domain.AuditEvent{event}, next.AuditEvents...)
}

func (s *Service) appendSync(next *domain.Snapshot, m syncMsg, now time.Time) {
	event := domain.SyncEvent{
		ID:             s.ids.Next("SYNC-"),
		EventType:      m.event,
		PayloadSummary: m.payload,
		Status:         domain.SyncPending,
		CreatedAt:      now,
	}
	next.SyncEvents = append([]domain.SyncEvent{event}, next.SyncEvents...)
}

func (s *Service) observe(op, actor string, rev Revision, out domain.Outcome) {
	if s.metrics != nil {
		s.metrics.observe(op, rev.Seq, out)
	}
	evt := s.log.Info()
	if out.Failed() {
		evt = s.log.Warn().Str("kind", string(out.Kind)).Str("reason", out.Reason)
	}
	evt.Str("operation", op).Str("actor", actor).Uint64("revision", rev.Seq).Bool("ok", out.OK).Msg("mutation")
	if out.OK {
		for _, hook := range s.hooks {
			go hook(rev)
		}
	}
}

// granted reports whether the current role holds the capability.
func (s *Service) granted(cap domain.Capability) bool {
	snap := s.store.Snapshot()
	return snap.Overrides.Granted(snap.CurrentRole, cap)
}

// validateTraining enforces the operator training gate. An empty roster
// disables the check, which keeps a freshly bootstrapped facility usable
// before any records are entered.
func validateTraining(snap *domain.Snapshot, operator, operationLabel string, now time.Time) domain.Outcome {
	if len(snap.TrainingRecords) == 0 {
		return domain.Success()
	}
	for _, r := range snap.TrainingRecords {
		if strings.EqualFold(r.Username, operator) {
			if !r.Valid(now) {
				return domain.Failf(domain.KindTrainingInvalid, "%s 需要有效培训资质", operationLabel)
			}
			return domain.Success()
		}
	}
	return domain.Failf(domain.KindTrainingInvalid, "%s 需要有效培训资质", operationLabel)
}

// validateAnimalProtocols rejects the move when any animal carries a missing,
// inactive, or expired protocol binding.
func validateAnimalProtocols(snap *domain.Snapshot, animals []domain.Animal, now time.Time) domain.Outcome {
	for _, a := range animals {
		if a.ProtocolID == nil {
			continue
		}
		p, ok := snap.FindProtocol(*a.ProtocolID)
		if !ok || !p.Usable(now) {
			return domain.Failf(domain.KindProtocolInvalid, "个体 %s 的协议不可用或已过期", a.Identifier)
		}
	}
	return domain.Success()
}
