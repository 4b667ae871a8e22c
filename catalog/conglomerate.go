package catalog

import (
	"context"

	"github.com/relcore/relcore/types"
)

// DeferredConstraint is one constraint a statement deferred to commit time.
type DeferredConstraint struct {
	Table string
	Name  string
	Check func(ctx context.Context) (bool, error)
}

// Transaction is the per-connection handle the conglomerate hands back from
// Begin. Commit re-checks every deferred constraint collected
// during the transaction, merges the transaction-local writes, and notifies
// commit-modification listeners; a constraint failure
// aborts the commit and the caller must Rollback.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	// Defer records a constraint check to run at Commit, called by exec
	// executors that defer a constraint (e.g. a deferred foreign key).
	Defer(c DeferredConstraint)
}

// CommitListener is notified with the row-ids a committed transaction added
// and removed, per TableBackedCache purge policy.
type CommitListener interface {
	OnCommit(ctx context.Context, table string, added, removed [][]byte)
}

// Conglomerate is the storage-level grouping of tables, indices and the blob
// store, plus the transactional machinery: an explicitly-constructed object
// passed into every session. The core only ever reaches it through this interface
// and the Provider/Database/DataTableDef/Ref interfaces above it — never past
// them into file/b-tree/journal internals.
type Conglomerate interface {
	Provider

	// Begin starts a new Transaction.
	Begin(ctx context.Context) (Transaction, error)

	// NewRef allocates a fresh, incomplete LargeObjectRef in the blob store
	// for a chunked upload.
	NewRef(ctx context.Context, typ types.Type, totalLength int64) (Ref, error)

	// Sync flushes and fsyncs the blob store. The session calls this after
	// resolving every streamable-object parameter of a query and before the
	// query evaluates.
	Sync(ctx context.Context) error

	// AddCommitListener registers a CommitListener.
	AddCommitListener(l CommitListener)
}
