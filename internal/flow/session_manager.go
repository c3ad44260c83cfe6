package flow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/PostPipe/internal/models"
	"github.com/BTreeMap/PostPipe/internal/store"
)

// SessionView is a persisted session together with its decoded run state.
type SessionView struct {
	models.Session
	Outcome Outcome `json:"outcome"`
}

// SessionManager runs interactive workflows whose state lives in a Store between
// calls. Operations on the same session are serialized.
type SessionManager struct {
	store   store.Store
	backend Backend
	maxIter int

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes operations on one session. refs counts the callers holding
// or waiting for mu; the entry is dropped from the manager when it reaches zero.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewSessionManager creates a SessionManager. The machine options set the default
// refinement cap for new sessions.
func NewSessionManager(st store.Store, backend Backend, opts ...MachineOption) (*SessionManager, error) {
	m, err := NewMachine(backend, opts...)
	if err != nil {
		return nil, err
	}
	slog.Debug("Creating SessionManager", "maxIterations", m.MaxIterations())
	return &SessionManager{
		store:   st,
		backend: backend,
		maxIter: m.MaxIterations(),
		locks:   make(map[string]*sessionLock),
	}, nil
}

// lock acquires the lock of a session and returns its release function. Locks only
// live while someone holds or waits for them.
func (sm *SessionManager) lock(id string) func() {
	sm.mu.Lock()
	l, ok := sm.locks[id]
	if !ok {
		l = &sessionLock{}
		sm.locks[id] = l
	}
	l.refs++
	sm.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		sm.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(sm.locks, id)
		}
		sm.mu.Unlock()
	}
}

func (sm *SessionManager) machine(maxIterations int) (*Machine, error) {
	if maxIterations <= 0 {
		maxIterations = sm.maxIter
	}
	return NewMachine(sm.backend, WithMaxIterations(maxIterations))
}

// Start creates a session, runs it to the feedback gate and saves it. A maxIterations
// of zero uses the manager's default cap. The reviewer, if set, is the messaging
// recipient whose replies are routed to this session.
func (sm *SessionManager) Start(ctx context.Context, req models.Request, maxIterations int, reviewer string) (string, Outcome, error) {
	m, err := sm.machine(maxIterations)
	if err != nil {
		return "", Outcome{}, err
	}
	id := uuid.NewString()
	unlock := sm.lock(id)
	defer unlock()

	r := NewRunner(m)
	out, err := r.StartAndRunUntilFeedback(ctx, req)
	if err != nil {
		slog.Error("SessionManager.Start: run failed", "error", err, "sessionID", id)
		return "", Outcome{}, err
	}
	now := time.Now()
	if err := sm.save(id, reviewer, r.state, now, now); err != nil {
		return "", Outcome{}, err
	}
	slog.Info("SessionManager.Start: session created", "sessionID", id, "status", out.Status)
	return id, out, nil
}

// Generate runs a request to completion without a feedback round and without
// storing a session. A maxIterations of zero uses the manager's default cap.
func (sm *SessionManager) Generate(ctx context.Context, req models.Request, maxIterations int) (*models.FinalResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	m, err := sm.machine(maxIterations)
	if err != nil {
		return nil, err
	}
	st := m.NewRunState(req)
	if err := m.Run(ctx, st); err != nil {
		slog.Error("SessionManager.Generate: run failed", "error", err)
		return nil, err
	}
	slog.Info("SessionManager.Generate: run completed", "error", st.FinalResult.Error)
	return st.FinalResult, nil
}

// Feedback supplies feedback to a session. Empty feedback accepts the posts.
func (sm *SessionManager) Feedback(ctx context.Context, id, feedback string) (Outcome, error) {
	return sm.update(ctx, id, func(r *Runner) (Outcome, error) {
		return r.SupplyFeedback(ctx, feedback)
	})
}

// Finalize accepts the current posts of a session.
func (sm *SessionManager) Finalize(ctx context.Context, id string) (Outcome, error) {
	return sm.update(ctx, id, func(r *Runner) (Outcome, error) {
		return r.Finalize(ctx)
	})
}

func (sm *SessionManager) update(ctx context.Context, id string, op func(*Runner) (Outcome, error)) (Outcome, error) {
	unlock := sm.lock(id)
	defer unlock()

	sess, r, err := sm.load(id)
	if err != nil {
		return Outcome{}, err
	}
	out, err := op(r)
	if err != nil {
		return Outcome{}, err
	}
	if err := sm.save(id, sess.Reviewer, r.state, sess.CreatedAt, time.Now()); err != nil {
		return Outcome{}, err
	}
	slog.Info("SessionManager.update: session updated", "sessionID", id, "status", out.Status, "iteration", out.IterationCount)
	return out, nil
}

// Get returns a session and its current outcome without advancing it.
func (sm *SessionManager) Get(ctx context.Context, id string) (*SessionView, error) {
	unlock := sm.lock(id)
	defer unlock()

	sess, r, err := sm.load(id)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: *sess, Outcome: r.Current()}, nil
}

// Delete discards a session.
func (sm *SessionManager) Delete(ctx context.Context, id string) error {
	unlock := sm.lock(id)
	defer unlock()

	sess, err := sm.store.GetSession(id)
	if err != nil {
		return err
	}
	if sess == nil {
		return models.ErrSessionNotFound
	}
	if err := sm.store.DeleteSession(id); err != nil {
		return err
	}
	slog.Info("SessionManager.Delete: session deleted", "sessionID", id)
	return nil
}

// List returns all sessions, most recently updated first.
func (sm *SessionManager) List(ctx context.Context) ([]models.Session, error) {
	return sm.store.ListSessions()
}

// LatestForReviewer returns the ID of the most recently updated session reviewed by
// the given recipient that has not completed yet.
func (sm *SessionManager) LatestForReviewer(ctx context.Context, reviewer string) (string, error) {
	sessions, err := sm.store.ListSessions()
	if err != nil {
		return "", err
	}
	for _, s := range sessions {
		if s.Reviewer == reviewer && s.Stage != models.StateDone {
			return s.ID, nil
		}
	}
	return "", models.ErrSessionNotFound
}

func (sm *SessionManager) load(id string) (*models.Session, *Runner, error) {
	sess, err := sm.store.GetSession(id)
	if err != nil {
		slog.Error("SessionManager.load: store error", "error", err, "sessionID", id)
		return nil, nil, err
	}
	if sess == nil {
		return nil, nil, models.ErrSessionNotFound
	}
	st, err := DecodeRunState(sess.State)
	if err != nil {
		slog.Error("SessionManager.load: corrupt session state", "error", err, "sessionID", id)
		return nil, nil, fmt.Errorf("failed to decode session %s: %w", id, err)
	}
	m, err := sm.machine(st.MaxIterations)
	if err != nil {
		return nil, nil, err
	}
	return sess, RestoreRunner(m, st), nil
}

func (sm *SessionManager) save(id, reviewer string, st *RunState, created, updated time.Time) error {
	data, err := st.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	sess := models.Session{
		ID:             id,
		Stage:          st.Stage,
		IterationCount: st.IterationCount,
		Reviewer:       reviewer,
		State:          data,
		CreatedAt:      created,
		UpdatedAt:      updated,
	}
	if err := sm.store.SaveSession(sess); err != nil {
		slog.Error("SessionManager.save: store error", "error", err, "sessionID", id)
		return err
	}
	return nil
}
