package shared

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ContextKind names the entity type an assignment is scoped to.
type ContextKind string

const (
	ContextCostCenter ContextKind = "cost_center"
	ContextProject    ContextKind = "project"
)

// ContextRef is the closed set of contexts an approval assignment can bind
// to. Implementations live in this package only.
type ContextRef interface {
	Kind() ContextKind
	RefID() int64
	sealed()
}

// CostCenterRef scopes an assignment to a cost center.
type CostCenterRef struct{ ID int64 }

func (CostCenterRef) Kind() ContextKind { return ContextCostCenter }
func (r CostCenterRef) RefID() int64    { return r.ID }
func (CostCenterRef) sealed()           {}

// ProjectRef scopes an assignment to a project.
type ProjectRef struct{ ID int64 }

func (ProjectRef) Kind() ContextKind { return ContextProject }
func (r ProjectRef) RefID() int64    { return r.ID }
func (ProjectRef) sealed()           {}

// ErrUnknownContext indicates a stored context kind outside ContextRef.
var ErrUnknownContext = errors.New("shared: unknown approval context")

// ParseContextRef rebuilds a ContextRef from its stored kind and id.
func ParseContextRef(kind ContextKind, id int64) (ContextRef, error) {
	switch kind {
	case ContextCostCenter:
		return CostCenterRef{ID: id}, nil
	case ContextProject:
		return ProjectRef{ID: id}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownContext, kind)
	}
}

// ContextKey renders a context as "kind:id".
func ContextKey(ref ContextRef) string {
	return fmt.Sprintf("%s:%d", ref.Kind(), ref.RefID())
}

// ApprovalAssignment grants a user a role within a context.
type ApprovalAssignment struct {
	UserID  int64
	Role    string
	Context ContextRef
}

var (
	// ErrInvalidAssignment indicates a missing user, role or context.
	ErrInvalidAssignment = errors.New("shared: invalid approval assignment")
	// ErrAssignmentExists indicates the (user, role, context) triple is taken.
	ErrAssignmentExists = errors.New("shared: approval assignment already exists")
)

// Validate checks the assignment is complete.
func (a ApprovalAssignment) Validate() error {
	if a.UserID <= 0 || a.Role == "" || a.Context == nil || a.Context.RefID() <= 0 {
		return ErrInvalidAssignment
	}
	return nil
}

// Key identifies the (user, role, context) triple.
func (a ApprovalAssignment) Key() string {
	return fmt.Sprintf("%d|%s|%s", a.UserID, a.Role, ContextKey(a.Context))
}

// AssignmentStore persists approval assignments in PostgreSQL.
type AssignmentStore struct {
	pool *pgxpool.Pool
}

// NewAssignmentStore constructs AssignmentStore.
func NewAssignmentStore(pool *pgxpool.Pool) *AssignmentStore {
	return &AssignmentStore{pool: pool}
}

// Assign stores the assignment; the unique index enforces one row per triple.
func (s *AssignmentStore) Assign(ctx context.Context, a ApprovalAssignment) error {
	if s == nil {
		return errors.New("assignment store not initialised")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO approval_assignments (user_id, role, context_type, context_id, created_at) VALUES ($1, $2, $3, $4, NOW())`,
		a.UserID, a.Role, string(a.Context.Kind()), a.Context.RefID())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAssignmentExists
	}
	return err
}

// Revoke removes the assignment if present.
func (s *AssignmentStore) Revoke(ctx context.Context, a ApprovalAssignment) error {
	if s == nil {
		return errors.New("assignment store not initialised")
	}
	if err := a.Validate(); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM approval_assignments WHERE user_id=$1 AND role=$2 AND context_type=$3 AND context_id=$4`,
		a.UserID, a.Role, string(a.Context.Kind()), a.Context.RefID())
	return err
}

// HasRole reports whether the user holds role in ref.
func (s *AssignmentStore) HasRole(ctx context.Context, userID int64, role string, ref ContextRef) (bool, error) {
	if s == nil {
		return false, errors.New("assignment store not initialised")
	}
	var ok bool
	err := s.pool.QueryRow(ctx, `SELECT true FROM approval_assignments WHERE user_id=$1 AND role=$2 AND context_type=$3 AND context_id=$4`,
		userID, role, string(ref.Kind()), ref.RefID()).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return ok, err
}

// ListForContext returns every assignment bound to ref.
func (s *AssignmentStore) ListForContext(ctx context.Context, ref ContextRef) ([]ApprovalAssignment, error) {
	if s == nil {
		return nil, errors.New("assignment store not initialised")
	}
	rows, err := s.pool.Query(ctx, `SELECT user_id, role, context_type, context_id FROM approval_assignments
WHERE context_type=$1 AND context_id=$2 ORDER BY user_id, role`, string(ref.Kind()), ref.RefID())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ApprovalAssignment
	for rows.Next() {
		var a ApprovalAssignment
		var kind string
		var id int64
		if err := rows.Scan(&a.UserID, &a.Role, &kind, &id); err != nil {
			return nil, err
		}
		if a.Context, err = ParseContextRef(ContextKind(kind), id); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MemoryAssignments keeps assignments in process memory.
type MemoryAssignments struct {
	mu    sync.RWMutex
	items map[string]ApprovalAssignment
}

// NewMemoryAssignments returns an empty in-memory assignment set.
func NewMemoryAssignments() *MemoryAssignments {
	return &MemoryAssignments{items: make(map[string]ApprovalAssignment)}
}

// Assign stores the assignment once per triple.
func (m *MemoryAssignments) Assign(_ context.Context, a ApprovalAssignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[a.Key()]; ok {
		return ErrAssignmentExists
	}
	m.items[a.Key()] = a
	return nil
}

// Revoke removes the assignment if present.
func (m *MemoryAssignments) Revoke(_ context.Context, a ApprovalAssignment) error {
	if err := a.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, a.Key())
	return nil
}

// HasRole reports whether the user holds role in ref.
func (m *MemoryAssignments) HasRole(_ context.Context, userID int64, role string, ref ContextRef) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.items[ApprovalAssignment{UserID: userID, Role: role, Context: ref}.Key()]
	return ok, nil
}

// ListForContext returns every assignment bound to ref ordered by user and role.
func (m *MemoryAssignments) ListForContext(_ context.Context, ref ContextRef) ([]ApprovalAssignment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	want := ContextKey(ref)
	var out []ApprovalAssignment
	for _, a := range m.items {
		if ContextKey(a.Context) == want {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Role < out[j].Role
	})
	return out, nil
}

// ApprovalAction enumerates approval log actions.
type ApprovalAction string

const (
	// ApprovalSubmit marks a submit action.
	ApprovalSubmit ApprovalAction = "SUBMIT"
	// ApprovalApprove marks an approve action.
	ApprovalApprove ApprovalAction = "APPROVE"
	// ApprovalReject marks a reject action.
	ApprovalReject ApprovalAction = "REJECT"
)

// ApprovalLog represents a single approval record.
type ApprovalLog struct {
	ID      int64
	Module  string
	RefID   uuid.UUID
	ActorID int64
	Action  ApprovalAction
	Note    string
	At      time.Time
}

// Validate checks the log carries what the approvals table requires.
func (l ApprovalLog) Validate() error {
	switch {
	case l.Module == "":
		return errors.New("approval module required")
	case l.ActorID == 0:
		return errors.New("approval actor required")
	case l.RefID == uuid.Nil:
		return errors.New("approval ref id required")
	case l.Action == "":
		return errors.New("approval action required")
	}
	return nil
}

// MemoryApprovals keeps approval history in process memory.
type MemoryApprovals struct {
	mu   sync.RWMutex
	next int64
	logs []ApprovalLog
}

// NewMemoryApprovals returns an empty in-memory approval history.
func NewMemoryApprovals() *MemoryApprovals {
	return &MemoryApprovals{}
}

// Record appends an approval entry.
func (m *MemoryApprovals) Record(_ context.Context, log ApprovalLog) error {
	if err := log.Validate(); err != nil {
		return err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	log.ID = m.next
	m.logs = append(m.logs, log)
	return nil
}

// List returns approvals for module/ref ordered by time.
func (m *MemoryApprovals) List(_ context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ApprovalLog
	for _, l := range m.logs {
		if l.Module == module && l.RefID == ref {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

// ApprovalRecorder persists approval history.
type ApprovalRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewApprovalRecorder constructs ApprovalRecorder.
func NewApprovalRecorder(pool *pgxpool.Pool, logger *slog.Logger) *ApprovalRecorder {
	return &ApprovalRecorder{pool: pool, logger: logger}
}

// Record writes approval entry to database.
func (r *ApprovalRecorder) Record(ctx context.Context, log ApprovalLog) error {
	if r == nil {
		return errors.New("approval recorder not initialised")
	}
	if err := log.Validate(); err != nil {
		return err
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO approvals (module, ref_id, actor_id, action, note, at)
VALUES ($1, $2, $3, $4, $5, COALESCE($6, NOW()))`, log.Module, log.RefID, log.ActorID, string(log.Action), log.Note, log.At)
	if err != nil {
		r.logger.Error("record approval", slog.Any("error", err))
		return err
	}
	return nil
}

// List returns approvals for module/ref.
func (r *ApprovalRecorder) List(ctx context.Context, module string, ref uuid.UUID) ([]ApprovalLog, error) {
	if r == nil {
		return nil, errors.New("approval recorder not initialised")
	}
	rows, err := r.pool.Query(ctx, `SELECT id, module, ref_id, actor_id, action, note, at
FROM approvals WHERE module=$1 AND ref_id=$2 ORDER BY at ASC`, module, ref)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []ApprovalLog
	for rows.Next() {
		var l ApprovalLog
		var action string
		if err := rows.Scan(&l.ID, &l.Module, &l.RefID, &l.ActorID, &action, &l.Note, &l.At); err != nil {
			return nil, err
		}
		l.Action = ApprovalAction(action)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
