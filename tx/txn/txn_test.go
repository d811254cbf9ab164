package txn

// Utility code for engine tests: a builder wiring a test config, an in-memory
// sequencer and a transaction scope, plus log clients that record or fail.

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pingcap-incubator/tinylog/tx/codec"
	"github.com/pingcap-incubator/tinylog/tx/config"
	"github.com/pingcap-incubator/tinylog/tx/object"
	"github.com/pingcap-incubator/tinylog/tx/sequencer"
	"github.com/pingcap-incubator/tinylog/tx/smr"
)

type testBuilder struct {
	t     *testing.T
	cfg   *config.Config
	seq   *sequencer.MemSequencer
	scope *Scope
}

func newBuilder(t *testing.T) *testBuilder {
	cfg := config.NewTestConfig()
	seq := sequencer.NewMemSequencer()
	return &testBuilder{t: t, cfg: cfg, seq: seq, scope: NewScope(cfg, seq)}
}

func (b *testBuilder) begin(strategy Strategy) *Context {
	c, err := b.scope.Begin(strategy)
	require.NoError(b.t, err)
	return c
}

// newScope builds an independent scope over the same sequencer, i.e. a
// concurrent client.
func (b *testBuilder) newScope() *Scope {
	return NewScope(b.cfg, b.seq)
}

// entryFor returns the single log entry appended to stream, failing unless
// exactly one exists.
func (b *testBuilder) entryFor(stream uuid.UUID) *sequencer.Entry {
	tail, err := b.seq.Tail()
	require.NoError(b.t, err)
	entries := b.seq.ReadStream(stream, 0, tail)
	require.Len(b.t, entries, 1)
	return entries[0]
}

// recordingClient captures what Submit sends to the ordering service.
type recordingClient struct {
	inner    *sequencer.MemSequencer
	streams  []uuid.UUID
	lastDesc *smr.ConflictDescriptor
}

func (r *recordingClient) Tail() (int64, error) { return r.inner.Tail() }

func (r *recordingClient) AcquireAndWrite(streams []uuid.UUID, batch *smr.UpdateBatch,
	pre, post smr.Hook, desc *smr.ConflictDescriptor) (int64, error) {
	r.streams = streams
	r.lastDesc = desc
	return r.inner.AcquireAndWrite(streams, batch, pre, post, desc)
}

// failingClient reaches the tail but every append round trip fails.
type failingClient struct{}

func (failingClient) Tail() (int64, error) { return -1, nil }

func (failingClient) AcquireAndWrite([]uuid.UUID, *smr.UpdateBatch, smr.Hook, smr.Hook,
	*smr.ConflictDescriptor) (int64, error) {
	return 0, errors.New("connection reset")
}

func TestReadOnlyCommitIsNoOp(t *testing.T) {
	builder := newBuilder(t)
	m := object.NewSMRMap(codec.JSON)
	require.NoError(t, m.Put(nil, "k", "v"))

	c := builder.begin(Optimistic{})
	v, ok := m.Get(c, "k")
	assert.True(t, ok)
	assert.Equal(t, "v", v)

	addr, err := c.Commit()
	require.NoError(t, err)
	assert.Equal(t, smr.NoWriteAddress, addr)
	assert.Equal(t, smr.NoWriteAddress, c.CommitAddress())
	assert.False(t, c.Aborted())
	// A read-only transaction never contacts the ordering service.
	assert.Equal(t, 0, builder.seq.AppendAttempts())
}

func TestNestedCommitFoldsIntoParent(t *testing.T) {
	builder := newBuilder(t)
	ma := object.NewSMRMap(codec.JSON)
	mb := object.NewSMRMap(codec.JSON)

	parent := builder.begin(Optimistic{})
	require.NoError(t, ma.Put(parent, "k1", "parent"))

	child := builder.begin(Optimistic{})
	require.Same(t, parent, child.parent)
	require.NoError(t, ma.Put(child, "k2", "child"))
	require.NoError(t, mb.Put(child, "k3", "child"))

	addr, err := child.Commit()
	require.NoError(t, err)
	assert.Equal(t, smr.FoldedAddress, addr)
	// Folding never talks to the log.
	assert.Equal(t, 0, builder.seq.AppendAttempts())

	// The parent's eventual write set is the union, per stream, in the order
	// each record was added.
	recs := parent.writes[ma.StreamID()].recs
	require.Len(t, recs, 2)
	assert.Equal(t, []interface{}{"k1", "parent"}, recs[0].Args)
	assert.Equal(t, []interface{}{"k2", "child"}, recs[1].Args)

	addr, err = parent.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(0), addr)
	assert.Equal(t, 1, builder.seq.AppendAttempts())

	v, _ := ma.Get(nil, "k2")
	assert.Equal(t, "child", v)
	v, _ = mb.Get(nil, "k3")
	assert.Equal(t, "child", v)
}

func TestWriteAfterWriteDescriptorIgnoresReads(t *testing.T) {
	cfg := config.NewTestConfig()
	client := &recordingClient{inner: sequencer.NewMemSequencer()}
	scope := NewScope(cfg, client)

	m := object.NewSMRMap(codec.JSON)
	c, err := scope.Begin(WriteAfterWrite{})
	require.NoError(t, err)

	// Reads must leave no observable trace.
	c.AddToReadSet(m, []byte("read-key"))
	assert.Empty(t, c.reads)

	require.NoError(t, m.Put(c, "a", "1"))
	require.NoError(t, m.Delete(c, "b"))

	_, err = c.Commit()
	require.NoError(t, err)

	desc := client.lastDesc
	require.NotNil(t, desc)
	// Read and write conflict keys sent to the sequencer are set-equal, both
	// drawn from the write set.
	assert.ElementsMatch(t, desc.WriteKeys[m.StreamID()], desc.ReadKeys[m.StreamID()])
	assert.ElementsMatch(t,
		[]uint64{smr.Fingerprint([]byte("a")), smr.Fingerprint([]byte("b"))},
		desc.WriteKeys[m.StreamID()])
	// The read of "read-key" never reached the descriptor.
	assert.NotContains(t, desc.ReadKeys[m.StreamID()], smr.Fingerprint([]byte("read-key")))
	// Transaction logging adds the reserved stream to the affected set.
	assert.Contains(t, client.streams, smr.TransactionStreamID)
}

func TestDisjointTransactionsBothCommit(t *testing.T) {
	builder := newBuilder(t)
	ma := object.NewSMRMap(codec.JSON)
	mb := object.NewSMRMap(codec.JSON)

	first, err := builder.newScope().Begin(Optimistic{})
	require.NoError(t, err)
	second, err := builder.newScope().Begin(Optimistic{})
	require.NoError(t, err)

	_, _ = ma.Get(first, "x")
	require.NoError(t, ma.Put(first, "x", "1"))
	_, _ = mb.Get(second, "y")
	require.NoError(t, mb.Put(second, "y", "2"))

	addr1, err := first.Commit()
	require.NoError(t, err)
	addr2, err := second.Commit()
	require.NoError(t, err)
	assert.Equal(t, int64(0), addr1)
	assert.Equal(t, int64(1), addr2)
}

func TestOverlappingWritersExactlyOneWins(t *testing.T) {
	builder := newBuilder(t)
	m := object.NewSMRMap(codec.JSON)

	first, err := builder.newScope().Begin(Optimistic{})
	require.NoError(t, err)
	second, err := builder.newScope().Begin(Optimistic{})
	require.NoError(t, err)

	require.NoError(t, m.Put(first, "k", "first"))
	require.NoError(t, m.Put(second, "k", "second"))

	_, err = first.Commit()
	require.NoError(t, err)

	_, err = second.Commit()
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.True(t, second.Aborted())
	assert.Equal(t, smr.AbortedAddress, second.CommitAddress())

	// The loser's write never reached the object.
	v, _ := m.Get(nil, "k")
	assert.Equal(t, "first", v)
}

// A reads k1, a concurrent transaction then commits a write to k1, and A
// commits a write to a disjoint key on the same stream. The optimistic
// strategy must abort on the read-write conflict; write-after-write, which
// tracks no reads, must commit the same sequence.
func TestReadWriteConflictByStrategy(t *testing.T) {
	for _, tt := range []struct {
		name        string
		strategy    Strategy
		expectAbort bool
	}{
		{"optimistic", Optimistic{}, true},
		{"write-after-write", WriteAfterWrite{}, false},
	} {
		t.Run(tt.name, func(t *testing.T) {
			builder := newBuilder(t)
			m := object.NewSMRMap(codec.JSON)

			a, err := builder.newScope().Begin(tt.strategy)
			require.NoError(t, err)
			_, _ = m.Get(a, "k1")

			b, err := builder.newScope().Begin(Optimistic{})
			require.NoError(t, err)
			require.NoError(t, m.Put(b, "k1", "intervening"))
			_, err = b.Commit()
			require.NoError(t, err)

			require.NoError(t, m.Put(a, "k2", "mine"))
			_, err = a.Commit()
			if tt.expectAbort {
				require.Error(t, err)
				assert.True(t, IsAborted(err))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestTransportFailureAbortsWithoutApply(t *testing.T) {
	scope := NewScope(config.NewTestConfig(), failingClient{})
	m := object.NewSMRMap(codec.JSON)

	c, err := scope.Begin(Optimistic{})
	require.NoError(t, err)
	require.NoError(t, m.Put(c, "k", "v"))

	addr, err := c.Commit()
	require.Error(t, err)
	assert.True(t, IsAborted(err))
	assert.Equal(t, smr.AbortedAddress, addr)
	assert.True(t, c.Aborted())

	_, ok := m.Get(nil, "k")
	assert.False(t, ok)
}

func TestCommitResolvesCompletionSignalOnce(t *testing.T) {
	builder := newBuilder(t)
	m := object.NewSMRMap(codec.JSON)

	c := builder.begin(Optimistic{})
	require.NoError(t, m.Put(c, "k", "v"))

	select {
	case <-c.Done():
		t.Fatal("context resolved before commit")
	default:
	}

	addr, err := c.Commit()
	require.NoError(t, err)
	<-c.Done()
	assert.Equal(t, addr, c.CommitAddress())

	// A context is never reused.
	_, err = c.Commit()
	require.Error(t, err)
}
