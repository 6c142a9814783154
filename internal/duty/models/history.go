package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	id "dutyflow/pkg/domain"
)

// HistoryEntry is one immutable audit record. Status freezes the duty's status at the
// moment of the transition; later transitions never rewrite it.
type HistoryEntry struct {
	ID        id.HistoryID
	DutyID    id.DutyID
	Status    Status
	ActorID   id.UserID
	Comment   string
	CreatedAt time.Time
	PrevHash  string
	Hash      string
}

// NewHistoryEntry builds the next entry of a duty's chain. prevHash is the Hash of
// the duty's latest entry, or "" for the first one.
func NewHistoryEntry(dutyID id.DutyID, status Status, actor id.UserID, comment string, prevHash string, now time.Time) *HistoryEntry {
	e := &HistoryEntry{
		ID:        id.NewHistoryID(),
		DutyID:    dutyID,
		Status:    status,
		ActorID:   actor,
		Comment:   comment,
		CreatedAt: now.UTC().Truncate(time.Microsecond),
		PrevHash:  prevHash,
	}
	e.Hash = e.computeHash()
	return e
}

// computeHash covers every field except Hash itself. CreatedAt is truncated to
// microseconds so the value survives a round-trip through Postgres timestamptz.
func (e *HistoryEntry) computeHash() string {
	h := sha256.New()
	for _, part := range []string{
		e.PrevHash,
		e.ID.String(),
		e.DutyID.String(),
		string(e.Status),
		e.ActorID.String(),
		strconv.Itoa(len(e.Comment)),
		e.Comment,
		strconv.FormatInt(e.CreatedAt.UnixMicro(), 10),
	} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// VerifyChain checks that entries (in recording order) form an unbroken hash chain.
func VerifyChain(entries []*HistoryEntry) error {
	prev := ""
	for i, e := range entries {
		if e.PrevHash != prev {
			return fmt.Errorf("entry %d (%s): broken link", i, e.ID)
		}
		if e.computeHash() != e.Hash {
			return fmt.Errorf("entry %d (%s): hash mismatch", i, e.ID)
		}
		prev = e.Hash
	}
	return nil
}

// DutyWithHistory is the read model returned by the history endpoint.
type DutyWithHistory struct {
	Duty       *Duty
	History    []*HistoryView
	ChainValid bool
}

// HistoryView is a history entry enriched with the actor's display name.
type HistoryView struct {
	*HistoryEntry
	ActorName string
}
