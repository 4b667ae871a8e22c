package exec

import (
	"context"
	"math"
	"sync"

	"github.com/relcore/relcore/ast"
	"github.com/relcore/relcore/catalog"
	"github.com/relcore/relcore/errs"
)

// sequenceState is one sequence's mutable counter. Advancing it is a
// compound check-then-set against the cycle bound, so a mutex guards it
// rather than sync/atomic, since advancing it is an atomic fetch-and-add
// with an optional cycle-on-exhaustion check.
type sequenceState struct {
	mu          sync.Mutex
	current     int64
	incrementBy int64
	cycle       bool
	start       int64
}

func (s *sequenceState) next() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.current
	next := s.current + s.incrementBy
	overflowed := s.incrementBy > 0 && next < s.current || s.incrementBy < 0 && next > s.current
	if overflowed {
		if s.cycle {
			next = s.start
		} else {
			if s.incrementBy > 0 {
				next = math.MaxInt64
			} else {
				next = math.MinInt64
			}
		}
	}
	s.current = next
	return v
}

func (s *sequenceState) restart(value int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = value
}

// SequenceRegistry is the named collaborator that
// CreateSequenceStatement/AlterSequenceStatement/DropSequenceStatement
// consult; its Next hands out values, and no expression element calls it.
// It is process-local: sequence state does not survive a restart,
// since persisting storage-engine-owned state is not this core's concern.
type SequenceRegistry struct {
	mu        sync.RWMutex
	sequences map[string]*sequenceState
}

func NewSequenceRegistry() *SequenceRegistry {
	return &SequenceRegistry{sequences: map[string]*sequenceState{}}
}

func (r *SequenceRegistry) lookup(name string) (*sequenceState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sequences[name]
	return s, ok
}

func (r *SequenceRegistry) Next(name string) (int64, error) {
	s, ok := r.lookup(name)
	if !ok {
		return 0, errs.ErrUnknownSequence.New(name)
	}
	return s.next(), nil
}

func (r *SequenceRegistry) create(name string, startWith, incrementBy int64, cycle bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sequences[name]; ok {
		return errs.ErrDatabase.New("sequence already exists: " + name)
	}
	r.sequences[name] = &sequenceState{current: startWith, incrementBy: incrementBy, cycle: cycle, start: startWith}
	return nil
}

func (r *SequenceRegistry) drop(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sequences[name]; !ok {
		return errs.ErrUnknownSequence.New(name)
	}
	delete(r.sequences, name)
	return nil
}

func (r *SequenceRegistry) alter(name string, restartWith, incrementBy *int64, cycle *bool) error {
	s, ok := r.lookup(name)
	if !ok {
		return errs.ErrUnknownSequence.New(name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if restartWith != nil {
		s.current = *restartWith
	}
	if incrementBy != nil {
		s.incrementBy = *incrementBy
	}
	if cycle != nil {
		s.cycle = *cycle
	}
	return nil
}

// CreateSequenceExecutor implements the Sequence executor kind's CREATE form.
type CreateSequenceExecutor struct {
	Stmt *ast.CreateSequenceStatement
}

func NewCreateSequence(stmt *ast.CreateSequenceStatement) *CreateSequenceExecutor {
	return &CreateSequenceExecutor{Stmt: stmt}
}

func (c *CreateSequenceExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if c.Stmt.IncrementBy == 0 {
		return errs.ErrStatement.New("sequence INCREMENT BY must be non-zero")
	}
	return nil
}

func (c *CreateSequenceExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if err := ec.Sequences.create(c.Stmt.Name, c.Stmt.StartWith, c.Stmt.IncrementBy, c.Stmt.Cycle); err != nil {
		return nil, nil, wrap(err, "create sequence")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// AlterSequenceExecutor implements the Sequence executor kind's ALTER form.
type AlterSequenceExecutor struct {
	Stmt *ast.AlterSequenceStatement
}

func NewAlterSequence(stmt *ast.AlterSequenceStatement) *AlterSequenceExecutor {
	return &AlterSequenceExecutor{Stmt: stmt}
}

func (a *AlterSequenceExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if _, ok := ec.Sequences.lookup(a.Stmt.Name); !ok {
		return errs.ErrUnknownSequence.New(a.Stmt.Name)
	}
	return nil
}

func (a *AlterSequenceExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if err := ec.Sequences.alter(a.Stmt.Name, a.Stmt.RestartWith, a.Stmt.IncrementBy, a.Stmt.Cycle); err != nil {
		return nil, nil, wrap(err, "alter sequence")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}

// DropSequenceExecutor implements the Sequence executor kind's DROP form.
type DropSequenceExecutor struct {
	Stmt *ast.DropSequenceStatement
}

func NewDropSequence(stmt *ast.DropSequenceStatement) *DropSequenceExecutor {
	return &DropSequenceExecutor{Stmt: stmt}
}

func (d *DropSequenceExecutor) Prepare(ctx context.Context, ec *ExecContext) error {
	if _, ok := ec.Sequences.lookup(d.Stmt.Name); !ok {
		return errs.ErrUnknownSequence.New(d.Stmt.Name)
	}
	return nil
}

func (d *DropSequenceExecutor) Evaluate(ctx context.Context, ec *ExecContext) (catalog.Schema, catalog.RowIter, error) {
	if ec.ReadOnly {
		return nil, nil, errs.ErrReadOnly.New()
	}
	if err := ec.Sequences.drop(d.Stmt.Name); err != nil {
		return nil, nil, wrap(err, "drop sequence")
	}
	return ast.EmptyResultSchema(), emptyResult(), nil
}
