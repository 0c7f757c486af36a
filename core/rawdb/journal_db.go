package rawdb

import "errors"

var (
	// ErrUnknownCheckpoint is returned when committing or discarding a
	// checkpoint that does not exist or was already consumed.
	ErrUnknownCheckpoint = errors.New("rawdb: unknown journal checkpoint")
)

// Checkpoint identifies a nested state-mutation boundary in a JournalDB.
// It is obtained from Record and consumed by exactly one Commit or
// Discard.
type Checkpoint int

// JournalDB layers nested copy-on-write changesets over a backing
// Database. Reads see the latest journaled write; Discard restores every
// key to the value visible just before the matching Record; Commit merges
// a layer into the next outer one; Persist flushes the base layer to the
// backing store atomically.
type JournalDB struct {
	backing Database

	// layers[0] is the base changeset (pending writes not yet persisted);
	// subsequent layers each correspond to an open checkpoint.
	layers []map[string]journalValue

	nextCheckpoint Checkpoint
	checkpoints    map[Checkpoint]int // checkpoint -> layer index
}

// journalValue is a pending write; deleted marks a tombstone.
type journalValue struct {
	value   []byte
	deleted bool
}

// NewJournalDB creates a journal overlay on the given backing store.
func NewJournalDB(backing Database) *JournalDB {
	return &JournalDB{
		backing:     backing,
		layers:      []map[string]journalValue{make(map[string]journalValue)},
		checkpoints: make(map[Checkpoint]int),
	}
}

// Get returns the latest journaled value for key, falling back to the
// backing store.
func (j *JournalDB) Get(key []byte) ([]byte, error) {
	for i := len(j.layers) - 1; i >= 0; i-- {
		if v, ok := j.layers[i][string(key)]; ok {
			if v.deleted {
				return nil, ErrNotFound
			}
			ret := make([]byte, len(v.value))
			copy(ret, v.value)
			return ret, nil
		}
	}
	return j.backing.Get(key)
}

// Has reports whether key is visible.
func (j *JournalDB) Has(key []byte) (bool, error) {
	for i := len(j.layers) - 1; i >= 0; i-- {
		if v, ok := j.layers[i][string(key)]; ok {
			return !v.deleted, nil
		}
	}
	return j.backing.Has(key)
}

// Put journals a write into the innermost layer.
func (j *JournalDB) Put(key, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	j.layers[len(j.layers)-1][string(key)] = journalValue{value: cp}
	return nil
}

// Delete journals a deletion into the innermost layer.
func (j *JournalDB) Delete(key []byte) error {
	j.layers[len(j.layers)-1][string(key)] = journalValue{deleted: true}
	return nil
}

// Record opens a new checkpoint layer and returns its token.
func (j *JournalDB) Record() Checkpoint {
	c := j.nextCheckpoint
	j.nextCheckpoint++
	j.layers = append(j.layers, make(map[string]journalValue))
	j.checkpoints[c] = len(j.layers) - 1
	return c
}

// Commit merges the checkpoint's layer (and any layers nested inside it)
// into the next outer layer.
func (j *JournalDB) Commit(c Checkpoint) error {
	idx, ok := j.checkpoints[c]
	if !ok {
		return ErrUnknownCheckpoint
	}
	outer := j.layers[idx-1]
	for _, layer := range j.layers[idx:] {
		for k, v := range layer {
			outer[k] = v
		}
	}
	j.truncate(idx)
	return nil
}

// Discard drops the checkpoint's layer and any layers nested inside it,
// restoring every key to the value visible just before Record.
func (j *JournalDB) Discard(c Checkpoint) error {
	idx, ok := j.checkpoints[c]
	if !ok {
		return ErrUnknownCheckpoint
	}
	j.truncate(idx)
	return nil
}

// truncate removes layers[idx:] and invalidates their checkpoints.
func (j *JournalDB) truncate(idx int) {
	j.layers = j.layers[:idx]
	for cp, layerIdx := range j.checkpoints {
		if layerIdx >= idx {
			delete(j.checkpoints, cp)
		}
	}
}

// HasOpenCheckpoints reports whether any checkpoint layers are open.
func (j *JournalDB) HasOpenCheckpoints() bool {
	return len(j.layers) > 1
}

// Persist atomically flushes the base layer into the backing store. All
// checkpoints must have been committed or discarded first.
func (j *JournalDB) Persist() error {
	if j.HasOpenCheckpoints() {
		return errors.New("rawdb: persist with open checkpoints")
	}
	batch := j.backing.NewBatch()
	for k, v := range j.layers[0] {
		if v.deleted {
			if err := batch.Delete([]byte(k)); err != nil {
				return err
			}
		} else {
			if err := batch.Put([]byte(k), v.value); err != nil {
				return err
			}
		}
	}
	if err := batch.Write(); err != nil {
		return err
	}
	j.layers[0] = make(map[string]journalValue)
	return nil
}
