// Package object holds the proxy surface the transaction engine drives and a
// concrete replicated map built on it. An object proxy owns one stream; it
// rebuilds object state by applying update records in commit order, and during
// a transaction it records reads and pending writes into the open context
// instead of touching state directly.
package object

import (
	"github.com/pingcap-incubator/tinylog/tx/smr"
)

// Txn is the recording surface an object needs from an open transactional
// context. It is satisfied by txn.Context.
type Txn interface {
	// AddToReadSet records that keys were observed read on the proxy's stream.
	AddToReadSet(p smr.Proxy, keys ...[]byte)
	// AddToWriteSet queues rec on the proxy's stream, tagged with the conflict
	// keys the record writes.
	AddToWriteSet(p smr.Proxy, rec *smr.UpdateRecord, keys ...[]byte)
}
