package object

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/tinylog/tx/codec"
	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// Operations understood by SMRMap. The per-entry operations use the entry key
// as their conflict key, so two transactions touching different keys of the
// same map do not conflict.
const (
	OpPut   = "put"
	OpDel   = "del"
	OpClear = "clear"
)

// SMRMap is a string map replicated through the log. Committed state is only
// ever changed by ApplyUpdate; transactional mutators queue records on the
// open context and leave the map untouched until the commit is accepted.
//
// SMRMap declares the Mergeable capability: only the last put/del per key
// since the latest clear survives coalescing.
type SMRMap struct {
	stream  uuid.UUID
	codecID codec.ID

	mu   sync.RWMutex
	data map[string]string
}

func NewSMRMap(codecID codec.ID) *SMRMap {
	return &SMRMap{
		stream:  uuid.New(),
		codecID: codecID,
		data:    make(map[string]string),
	}
}

func (m *SMRMap) StreamID() uuid.UUID {
	return m.stream
}

// ApplyUpdate applies one committed record to the reconstructed state.
func (m *SMRMap) ApplyUpdate(rec *smr.UpdateRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch rec.Method {
	case OpPut:
		key, value, err := putArgs(rec)
		if err != nil {
			return errors.Trace(err)
		}
		m.data[key] = value
	case OpDel:
		key, err := argString(rec, 0)
		if err != nil {
			return errors.Trace(err)
		}
		delete(m.data, key)
	case OpClear:
		m.data = make(map[string]string)
	default:
		return errors.Errorf("smrmap: unknown operation %q", rec.Method)
	}

	return nil
}

// Get returns the committed value for key. Inside a transaction the access is
// recorded as a fine-grained read of that key.
func (m *SMRMap) Get(tx Txn, key string) (string, bool) {
	if tx != nil {
		tx.AddToReadSet(m, []byte(key))
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok
}

// Put stores key=value. Inside a transaction the write is queued with an
// inverse record restoring the prior binding; otherwise it applies directly.
func (m *SMRMap) Put(tx Txn, key, value string) error {
	rec := smr.NewUpdateRecord(OpPut, []interface{}{key, value}, m.codecID)
	if tx == nil {
		return m.ApplyUpdate(rec)
	}
	rec.Undo = m.inverseFor(key)
	tx.AddToWriteSet(m, rec, []byte(key))
	return nil
}

// Delete removes key, queueing inside a transaction like Put.
func (m *SMRMap) Delete(tx Txn, key string) error {
	rec := smr.NewUpdateRecord(OpDel, []interface{}{key}, m.codecID)
	if tx == nil {
		return m.ApplyUpdate(rec)
	}
	rec.Undo = m.inverseFor(key)
	tx.AddToWriteSet(m, rec, []byte(key))
	return nil
}

// Clear empties the map. The whole stream ID is the conflict key: clearing
// conflicts with every concurrent write to the map. Clear has no inverse.
func (m *SMRMap) Clear(tx Txn) error {
	rec := smr.NewUpdateRecord(OpClear, nil, m.codecID)
	if tx == nil {
		return m.ApplyUpdate(rec)
	}
	tx.AddToWriteSet(m, rec, m.stream[:])
	return nil
}

// inverseFor builds the record that restores key's current committed binding.
func (m *SMRMap) inverseFor(key string) *smr.UpdateRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if old, ok := m.data[key]; ok {
		return smr.NewUpdateRecord(OpPut, []interface{}{key, old}, m.codecID)
	}
	return smr.NewUpdateRecord(OpDel, []interface{}{key}, m.codecID)
}

// CoalesceUpdates implements smr.Mergeable. Everything before the last clear
// is dropped, then only the final put/del per key is kept. Records with an
// unexpected shape disable merging for the whole list.
func (m *SMRMap) CoalesceUpdates(pending []*smr.UpdateRecord, makeRecord smr.RecordConstructor) []*smr.UpdateRecord {
	cleared := false
	var order []string
	last := map[string]*smr.UpdateRecord{}

	for _, rec := range pending {
		switch rec.Method {
		case OpClear:
			cleared = true
			order = order[:0]
			last = map[string]*smr.UpdateRecord{}
		case OpPut, OpDel:
			key, err := argString(rec, 0)
			if err != nil {
				return pending
			}
			if _, seen := last[key]; !seen {
				order = append(order, key)
			}
			last[key] = rec
		default:
			return pending
		}
	}

	merged := []*smr.UpdateRecord{}
	if cleared {
		merged = append(merged, makeRecord(OpClear, nil, nil))
	}
	for _, key := range order {
		rec := last[key]
		merged = append(merged, makeRecord(rec.Method, rec.Args, rec.Undo))
	}

	if len(merged) >= len(pending) {
		return pending
	}
	return merged
}

// Len returns the number of committed entries.
func (m *SMRMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

// Snapshot copies the committed state, for tests and debugging.
func (m *SMRMap) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

func argString(rec *smr.UpdateRecord, i int) (string, error) {
	if i >= len(rec.Args) {
		return "", errors.Errorf("smrmap: %s record missing argument %d", rec.Method, i)
	}
	s, ok := rec.Args[i].(string)
	if !ok {
		return "", errors.Errorf("smrmap: %s record argument %d is not a string", rec.Method, i)
	}
	return s, nil
}

func putArgs(rec *smr.UpdateRecord) (key, value string, err error) {
	if key, err = argString(rec, 0); err != nil {
		return
	}
	value, err = argString(rec, 1)
	return
}
