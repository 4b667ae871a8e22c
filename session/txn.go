package session

import (
	"context"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/relcore/relcore/errs"
)

// Begin implements exec.TransactionController: BEGIN starts an explicit
// transaction and turns off autocommit until COMMIT or ROLLBACK.
func (c *Context) Begin(ctx context.Context) error {
	if c.txn != nil {
		return errs.ErrTransactionConflict.New("a transaction is already open on this connection")
	}
	txn, err := c.shared.Conglomerate.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	c.txn = txn
	c.autoCommit = false
	return nil
}

// Commit implements exec.TransactionController for an explicit COMMIT.
func (c *Context) Commit(ctx context.Context) error {
	if c.txn == nil {
		return nil
	}
	err := c.txn.Commit(ctx)
	c.txn = nil
	c.autoCommit = true
	if err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}

// Rollback implements exec.TransactionController for an explicit ROLLBACK.
func (c *Context) Rollback(ctx context.Context) error {
	if c.txn == nil {
		return nil
	}
	err := c.txn.Rollback(ctx)
	c.txn = nil
	c.autoCommit = true
	if err != nil {
		return errors.Wrap(err, "rollback")
	}
	return nil
}

// commitLocked implements the auto-commit path's "try commit" step. It lazily begins a transaction if evaluate ran without
// one (ordinary autocommit DML), commits it, and always clears it after,
// whether or not the commit succeeded.
func (c *Context) commitLocked(ctx context.Context) error {
	if c.txn == nil {
		txn, err := c.shared.Conglomerate.Begin(ctx)
		if err != nil {
			return errors.Wrap(err, "autocommit: begin")
		}
		c.txn = txn
	}
	err := c.txn.Commit(ctx)
	c.txn = nil
	if err != nil {
		return errors.Wrap(err, "autocommit: commit")
	}
	return nil
}

// rollbackLocked implements the auto-commit path's "if evaluation failed ->
// rollback" step.
func (c *Context) rollbackLocked(ctx context.Context) {
	if c.txn == nil {
		return
	}
	_ = c.txn.Rollback(ctx)
	c.txn = nil
}

// SetVar implements exec.SessionVarSetter for the Set executor kind. The handful of session variables this core
// understands are autocommit, current schema, and read-only; anything else
// is accepted and ignored, matching a permissive SET dialect.
func (c *Context) SetVar(ctx context.Context, name string, value interface{}) error {
	switch strings.ToUpper(name) {
	case "AUTOCOMMIT":
		b, err := toBool(value)
		if err != nil {
			return err
		}
		c.autoCommit = b
	case "SCHEMA", "CURRENT_SCHEMA":
		s, ok := value.(string)
		if !ok {
			return errs.ErrStatement.New("SET SCHEMA requires a string value")
		}
		c.schema = s
	case "READ_ONLY":
		b, err := toBool(value)
		if err != nil {
			return err
		}
		c.readOnly = b
	}
	return nil
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, errs.ErrStatement.New("not a boolean value: " + v)
		}
		return b, nil
	default:
		return false, errs.ErrStatement.New("not a boolean value")
	}
}

// Compact implements exec.Compactor by forwarding to the conglomerate; space
// reclamation itself is an out-of-scope storage-layer operation this core only triggers. The reference Conglomerate this module ships
// has no compaction of its own to perform, so Compact is a no-op unless the
// integrator's conglomerate implements an optional Compactable interface.
func (c *Context) Compact(ctx context.Context, table string) error {
	if compactable, ok := c.shared.Conglomerate.(interface {
		Compact(ctx context.Context, table string) error
	}); ok {
		return compactable.Compact(ctx, table)
	}
	return nil
}
