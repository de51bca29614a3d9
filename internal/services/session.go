// Package services hosts the analysis orchestration layer: session
// lifecycle over loaded workbook pairs, structure probing, matching,
// variance, and drill-down, with per-session result caching.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rray336/financial-model-analyzer/internal/infrastructure"
	"github.com/rray336/financial-model-analyzer/internal/variance"
	"github.com/rray336/financial-model-analyzer/internal/workbook"
	"github.com/rray336/financial-model-analyzer/pkg/contracts/domain"
)

// Session is one uploaded old/new workbook pair plus everything derived
// from it. Derived data is cached per key and invalidated whenever the
// sheet selection or period templates change; the models themselves are
// immutable after load.
type Session struct {
	ID         string
	CreatedAt  time.Time
	lastAccess time.Time

	Old *workbook.Model
	New *workbook.Model

	engine *variance.Engine

	mu         sync.RWMutex
	selections domain.SheetSelection
	templates  []domain.PeriodTemplate
	structures map[domain.StatementType]*structurePair
	pairs      map[domain.StatementType][]domain.MatchedPair
	variances  map[string][]domain.VarianceResult
	drills     map[string]domain.DrillDownResult
}

// structurePair holds both sides' probed structure for one statement type.
type structurePair struct {
	Old *domain.SheetStructure
	New *domain.SheetStructure
}

func newSession(old, new_ *workbook.Model, engine *variance.Engine) *Session {
	now := time.Now()
	return &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		lastAccess: now,
		Old:        old,
		New:        new_,
		engine:     engine,
		selections: make(domain.SheetSelection),
		structures: make(map[domain.StatementType]*structurePair),
		pairs:      make(map[domain.StatementType][]domain.MatchedPair),
		variances:  make(map[string][]domain.VarianceResult),
		drills:     make(map[string]domain.DrillDownResult),
	}
}

// invalidate drops every derived cache. Callers hold mu.
func (s *Session) invalidate() {
	s.structures = make(map[domain.StatementType]*structurePair)
	s.pairs = make(map[domain.StatementType][]domain.MatchedPair)
	s.variances = make(map[string][]domain.VarianceResult)
	s.drills = make(map[string]domain.DrillDownResult)
}

func varianceKey(st domain.StatementType, period string) string {
	return string(st) + "\x00" + period
}

func drillKey(st domain.StatementType, item, period string) string {
	return string(st) + "\x00" + item + "\x00" + period
}

// SessionNotFoundError reports an unknown or expired session ID.
type SessionNotFoundError struct{ ID string }

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session %q not found", e.ID)
}

// SessionStore is an in-memory, TTL-swept session registry. All access
// goes through the store so expiry and last-access tracking stay in one
// place.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	logger   *slog.Logger
	metrics  *infrastructure.BusinessMetrics
	stop     chan struct{}
	stopOnce sync.Once
}

// NewSessionStore creates a store. A positive ttl starts a background
// sweep that drops sessions idle longer than ttl; zero disables expiry.
func NewSessionStore(ttl time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	st := &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	if ttl > 0 {
		go st.sweep()
	}
	return st
}

// SetMetrics enables session lifecycle metric recording. Must be called
// before the store sees traffic.
func (st *SessionStore) SetMetrics(metrics *infrastructure.BusinessMetrics) {
	st.metrics = metrics
}

// Close stops the expiry sweep.
func (st *SessionStore) Close() {
	st.stopOnce.Do(func() { close(st.stop) })
}

func (st *SessionStore) sweep() {
	interval := st.ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-st.stop:
			return
		case <-ticker.C:
			st.expire(time.Now())
		}
	}
}

func (st *SessionStore) expire(now time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for id, s := range st.sessions {
		if now.Sub(s.lastAccess) > st.ttl {
			delete(st.sessions, id)
			infrastructure.RecordSessionChange(context.Background(), st.metrics, -1, "expired")
			st.logger.Info("session expired", slog.String("session_id", id))
		}
	}
}

// Put registers a session.
func (st *SessionStore) Put(s *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[s.ID] = s
	infrastructure.RecordSessionChange(context.Background(), st.metrics, 1, "created")
}

// Get returns a session and refreshes its last-access time.
func (st *SessionStore) Get(id string) (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if !ok {
		return nil, &SessionNotFoundError{ID: id}
	}
	s.lastAccess = time.Now()
	return s, nil
}

// Delete removes a session. Removing an unknown ID is not an error.
func (st *SessionStore) Delete(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.sessions[id]; ok {
		delete(st.sessions, id)
		infrastructure.RecordSessionChange(context.Background(), st.metrics, -1, "deleted")
	}
}

// Len returns the live session count.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}
