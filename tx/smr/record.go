package smr

import (
	"github.com/google/uuid"
	"github.com/pingcap/errors"

	"github.com/pingcap-incubator/tinylog/tx/codec"
)

// TransactionStreamID is the reserved stream that records every committed
// transaction when transaction logging is enabled. Audit readers tail this
// stream to discover commits without knowing which object streams they touched.
var TransactionStreamID = uuid.NewSHA1(uuid.NameSpaceOID, []byte("tinylog/transaction-stream"))

// UpdateRecord is one mutating operation destined for a stream: an operation
// name, its arguments, the codec the arguments are serialized with, and an
// optional inverse record enabling undo. Records are immutable once created.
type UpdateRecord struct {
	Method string
	Args   []interface{}
	Codec  codec.ID
	Undo   *UpdateRecord
}

// NewUpdateRecord creates a record without an undo operation.
func NewUpdateRecord(method string, args []interface{}, codecID codec.ID) *UpdateRecord {
	return &UpdateRecord{Method: method, Args: args, Codec: codecID}
}

// RecordConstructor lets an object produce new update records during
// coalescing without depending on the record representation. The constructor
// pins the codec of the stream's pending records; undo may be nil.
type RecordConstructor func(method string, args []interface{}, undo *UpdateRecord) *UpdateRecord

// Proxy is the engine-facing surface of an object proxy: it names the stream
// the object replays from and applies committed update records to the
// reconstructed state.
type Proxy interface {
	StreamID() uuid.UUID
	ApplyUpdate(rec *UpdateRecord) error
}

// Mergeable is an optional capability of proxy types. A mergeable object is
// asked, before commit, to fold its pending records into an equivalent,
// shorter sequence. Merging must never change the post-commit object state.
type Mergeable interface {
	CoalesceUpdates(pending []*UpdateRecord, makeRecord RecordConstructor) []*UpdateRecord
}

// recordPayload is the wire shape of an UpdateRecord body; the codec ID
// travels outside the body as a leading byte so the reader can pick the codec.
type recordPayload struct {
	Method string         `json:"method"`
	Args   []interface{}  `json:"args"`
	Undo   *recordPayload `json:"undo,omitempty"`
}

func toPayload(r *UpdateRecord) *recordPayload {
	if r == nil {
		return nil
	}
	return &recordPayload{Method: r.Method, Args: r.Args, Undo: toPayload(r.Undo)}
}

func fromPayload(p *recordPayload, id codec.ID) *UpdateRecord {
	if p == nil {
		return nil
	}
	return &UpdateRecord{Method: p.Method, Args: p.Args, Codec: id, Undo: fromPayload(p.Undo, id)}
}

// Marshal encodes the record as a codec ID byte followed by the codec-encoded
// body.
func (r *UpdateRecord) Marshal() ([]byte, error) {
	c, err := codec.Get(r.Codec)
	if err != nil {
		return nil, errors.Trace(err)
	}
	body, err := c.Marshal(toPayload(r))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return append([]byte{byte(r.Codec)}, body...), nil
}

// UnmarshalRecord decodes a record produced by Marshal.
func UnmarshalRecord(data []byte) (*UpdateRecord, error) {
	if len(data) < 1 {
		return nil, errors.New("update record too short")
	}
	id := codec.ID(data[0])
	c, err := codec.Get(id)
	if err != nil {
		return nil, errors.Trace(err)
	}
	var p recordPayload
	if err := c.Unmarshal(data[1:], &p); err != nil {
		return nil, errors.Trace(err)
	}
	return fromPayload(&p, id), nil
}
