// Package audit tails the reserved transaction stream. When transaction
// logging is enabled every committed write-after-write transaction is
// appended there as well, so a reader can discover commits without knowing
// which object streams they touched.
package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ngaut/log"

	"github.com/pingcap-incubator/tinylog/tx/sequencer"
	"github.com/pingcap-incubator/tinylog/tx/smr"
	"github.com/pingcap-incubator/tinylog/tx/util/worker"
)

// Source is the log surface the reader polls.
type Source interface {
	Tail() (int64, error)
	ReadStream(stream uuid.UUID, from, to int64) []*sequencer.Entry
}

// Handler receives committed entries in commit order.
type Handler func(e *sequencer.Entry)

type pollTask struct{}

// pollHandler keeps the worker's optional Starter hook from resolving to
// Reader.Start.
type pollHandler struct {
	r *Reader
}

func (h pollHandler) Handle(t worker.Task) {
	if _, ok := t.(pollTask); ok {
		h.r.Poll()
	}
}

// Reader polls the transaction stream and hands new entries to its handler,
// in address order, each exactly once.
type Reader struct {
	src      Source
	stream   uuid.UUID
	handler  Handler
	interval time.Duration

	// next is the first address not yet delivered.
	next int64

	worker *worker.Worker
	wg     sync.WaitGroup
	quit   chan struct{}
}

// NewReader tails the transaction stream of src. interval is the poll period.
func NewReader(src Source, handler Handler, interval time.Duration) *Reader {
	r := &Reader{
		src:      src,
		stream:   smr.TransactionStreamID,
		handler:  handler,
		interval: interval,
		quit:     make(chan struct{}),
	}
	r.worker = worker.NewWorker("audit-reader", &r.wg)
	return r
}

// Start begins polling on a background goroutine.
func (r *Reader) Start() {
	r.worker.Start(pollHandler{r})
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.worker.Sender() <- pollTask{}
			case <-r.quit:
				return
			}
		}
	}()
}

// Poll delivers every undelivered transaction-stream entry up to the current
// tail. It is also usable directly, without Start, for deterministic reads.
func (r *Reader) Poll() {
	tail, err := r.src.Tail()
	if err != nil {
		log.Warnf("audit reader: tail: %v", err)
		return
	}
	if tail < r.next {
		return
	}
	for _, e := range r.src.ReadStream(r.stream, r.next, tail) {
		r.handler(e)
	}
	r.next = tail + 1
}

// Stop halts polling and waits for queued polls to drain.
func (r *Reader) Stop() {
	close(r.quit)
	r.worker.Stop()
	r.wg.Wait()
}
