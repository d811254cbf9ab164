package tinylog

/*
TinyLog is a client-side transaction runtime for a shared, replicated, append-only log. Application objects are
rebuilt by replaying update records from per-object log partitions ("streams"); transactions let a client batch reads
and mutations of several such objects and commit them atomically with respect to every other client, using optimistic
concurrency control instead of locks. Conflict resolution and durable ordering happen in a single round trip to the
log's sequencer.

The `tinylog` module is organized into the following packages:

* `tx/txn`: the transactional commit engine: contexts, commit strategies (optimistic and write-after-write),
  nested-transaction folding, the commit coordinator, and the pre-commit coalescer.
* `tx/smr`: the value types shared by the engine and the log: update records, per-stream update batches, and
  conflict descriptors.
* `tx/object`: the object/proxy surface consumed by the engine, plus a concrete replicated map.
* `tx/sequencer`: the ordering service contract and an in-memory reference sequencer.
* `tx/codec`: serializers for update-record arguments.
* `tx/audit`: a reader that tails the dedicated transaction stream.
* `tx/config`: runtime configuration.

TinyLog is a runtime library; `cmd/tinylog` is a small demonstration binary wiring the pieces together against the
in-memory sequencer.
*/
