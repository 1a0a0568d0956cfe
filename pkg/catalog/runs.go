package catalog

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"github.com/imabhichow/duvet/pkg/mergelog"
	"github.com/imabhichow/duvet/pkg/pools"
)

// Runs registers producer runs. Coverage marks carry the run that
// produced them, so the same file can hold independent partitions per
// run.
type Runs struct {
	store *mergelog.Store
	runs  *mergelog.Tree
}

// Register allocates a run id with a fresh UUID.
func (r *Runs) Register() (uint32, uuid.UUID, error) {
	seq, err := r.store.NextSequence()
	if err != nil {
		return 0, uuid.Nil, err
	}
	run := uint32(seq)
	id := uuid.New()

	if err := r.runs.Set(runKey(run), id[:]); err != nil {
		return 0, uuid.Nil, err
	}
	val := pools.NewBufferBuilder(4)
	val.WriteUint32BE(run)
	if err := r.runs.Set(runUUIDKey(id[:]), val.Bytes()); err != nil {
		return 0, uuid.Nil, err
	}
	return run, id, nil
}

// UUID returns the UUID a run was registered with.
func (r *Runs) UUID(run uint32) (uuid.UUID, error) {
	val, found, err := r.runs.Get(runKey(run))
	if err != nil {
		return uuid.Nil, err
	}
	if !found {
		return uuid.Nil, fmt.Errorf("run %d: %w", run, ErrRunNotFound)
	}
	id, err := uuid.FromBytes(val)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: run uuid: %v", ErrCorruptRow, err)
	}
	return id, nil
}

// ByUUID resolves a run id from its UUID.
func (r *Runs) ByUUID(id uuid.UUID) (uint32, error) {
	val, found, err := r.runs.Get(runUUIDKey(id[:]))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if len(val) != 4 {
		return 0, fmt.Errorf("%w: run row length %d", ErrCorruptRow, len(val))
	}
	return binary.BigEndian.Uint32(val), nil
}
