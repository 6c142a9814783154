package service

import (
	"context"
	"sync"
	"time"

	"dutyflow/internal/duty/models"
	id "dutyflow/pkg/domain"
	dErrors "dutyflow/pkg/domain-errors"
	"dutyflow/pkg/platform/sentinel"
)

// TxStores are the stores visible inside a unit of work.
type TxStores struct {
	Duties  DutyStore
	History HistoryStore
}

// StoreTx folds a duty write and its audit append into one atomic unit.
// Implementations wrap a database transaction or, in-memory, a staged write set
// guarded by a sharded lock.
type StoreTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

const numDutyShards = 128

const defaultDutyTxTimeout = 5 * time.Second

// shardedDutyTx stages writes in memory and applies them to the base stores only
// when fn succeeds. Transactions on the same duty serialize on one shard.
type shardedDutyTx struct {
	shards  [numDutyShards]sync.Mutex
	duties  DutyStore
	history HistoryStore
	timeout time.Duration
}

// NewShardedTx returns the in-process StoreTx used when no database is configured.
func NewShardedTx(duties DutyStore, history HistoryStore) StoreTx {
	return &shardedDutyTx{duties: duties, history: history}
}

func (t *shardedDutyTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
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

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := &stagedStores{base: t, writes: make(map[id.DutyID]*stagedDuty)}
	if err := fn(ctx, TxStores{Duties: stagedDuties{staged}, History: stagedHistory{staged}}); err != nil {
		return err
	}
	return staged.apply(ctx)
}

func (t *shardedDutyTx) selectShard(ctx context.Context) int {
	if dutyID, ok := ctx.Value(txDutyKeyCtx).(id.DutyID); ok && !dutyID.IsNil() {
		return int(hashDutyString(dutyID.String()) % numDutyShards)
	}
	return 0
}

// hashDutyString is FNV-1a.
func hashDutyString(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}

type txDutyKey struct{}

var txDutyKeyCtx = txDutyKey{}

// withTxDuty tags ctx with the duty a unit of work is about.
func withTxDuty(ctx context.Context, dutyID id.DutyID) context.Context {
	return context.WithValue(ctx, txDutyKeyCtx, dutyID)
}

type stagedDuty struct {
	duty    *models.Duty
	created bool
}

type stagedStores struct {
	base    *shardedDutyTx
	order   []id.DutyID
	writes  map[id.DutyID]*stagedDuty
	entries []*models.HistoryEntry
}

func (s *stagedStores) apply(ctx context.Context) error {
	for _, dutyID := range s.order {
		w := s.writes[dutyID]
		var err error
		if w.created {
			err = s.base.duties.Create(ctx, w.duty)
		} else {
			err = s.base.duties.Save(ctx, w.duty)
		}
		if err != nil {
			return err
		}
	}
	for _, e := range s.entries {
		if err := s.base.history.Append(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (s *stagedStores) stage(d *models.Duty, created bool) {
	if _, ok := s.writes[d.ID]; !ok {
		s.order = append(s.order, d.ID)
	} else if s.writes[d.ID].created {
		created = true
	}
	s.writes[d.ID] = &stagedDuty{duty: d.Clone(), created: created}
}

type stagedDuties struct{ s *stagedStores }

func (d stagedDuties) Create(ctx context.Context, duty *models.Duty) error {
	if _, ok := d.s.writes[duty.ID]; ok {
		return sentinel.ErrConflict
	}
	if _, err := d.s.base.duties.FindByID(ctx, duty.ID); err == nil {
		return sentinel.ErrConflict
	}
	d.s.stage(duty, true)
	return nil
}

func (d stagedDuties) FindByID(ctx context.Context, dutyID id.DutyID) (*models.Duty, error) {
	if w, ok := d.s.writes[dutyID]; ok {
		return w.duty.Clone(), nil
	}
	return d.s.base.duties.FindByID(ctx, dutyID)
}

// ListByAssignee reads committed state only.
func (d stagedDuties) ListByAssignee(ctx context.Context, assignee id.UserID) ([]*models.Duty, error) {
	return d.s.base.duties.ListByAssignee(ctx, assignee)
}

func (d stagedDuties) Save(_ context.Context, duty *models.Duty) error {
	d.s.stage(duty, false)
	return nil
}

type stagedHistory struct{ s *stagedStores }

func (h stagedHistory) Append(_ context.Context, e *models.HistoryEntry) error {
	cp := *e
	h.s.entries = append(h.s.entries, &cp)
	return nil
}

func (h stagedHistory) ListByDuty(ctx context.Context, dutyID id.DutyID) ([]*models.HistoryEntry, error) {
	out, err := h.s.base.history.ListByDuty(ctx, dutyID)
	if err != nil {
		return nil, err
	}
	for _, e := range h.s.entries {
		if e.DutyID == dutyID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (h stagedHistory) Last(ctx context.Context, dutyID id.DutyID) (*models.HistoryEntry, error) {
	for i := len(h.s.entries) - 1; i >= 0; i-- {
		if h.s.entries[i].DutyID == dutyID {
			cp := *h.s.entries[i]
			return &cp, nil
		}
	}
	return h.s.base.history.Last(ctx, dutyID)
}
