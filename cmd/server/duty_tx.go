package main

import (
	"context"
	"database/sql"
	"time"

	dutyservice "dutyflow/internal/duty/service"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/tx"
)

const defaultDutyTxTimeout = 5 * time.Second

// dutyPostgresTx runs a transition's writes in one database transaction. The
// Postgres stores pick the transaction up from the context.
type dutyPostgresTx struct {
	db      *sql.DB
	stores  dutyservice.TxStores
	timeout time.Duration
}

func newDutyPostgresTx(db *sql.DB, duties dutyservice.DutyStore, history dutyservice.HistoryStore) *dutyPostgresTx {
	return &dutyPostgresTx{
		db:     db,
		stores: dutyservice.TxStores{Duties: duties, History: history},
	}
}

func (t *dutyPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores dutyservice.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDutyTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	return tx.Run(ctx, t.db, func(ctx context.Context) error {
		return fn(ctx, t.stores)
	})
}
