package main

import (
	"flag"

	"github.com/ngaut/log"

	"github.com/pingcap-incubator/tinylog/tx/audit"
	"github.com/pingcap-incubator/tinylog/tx/codec"
	"github.com/pingcap-incubator/tinylog/tx/config"
	"github.com/pingcap-incubator/tinylog/tx/object"
	"github.com/pingcap-incubator/tinylog/tx/sequencer"
	"github.com/pingcap-incubator/tinylog/tx/txn"
)

var (
	configPath = flag.String("config", "", "config file path")
	logLevel   = flag.String("loglevel", "", "log level override")
)

// A short demonstration of the transaction runtime against the in-memory
// sequencer: two replicated maps, a transfer committed optimistically, a
// write-after-write commit picked up by the audit reader, and a conflicting
// pair of transactions of which exactly one survives.
func main() {
	flag.Parse()
	conf := loadConfig()
	log.SetLevelByString(conf.LogLevel)

	seq := sequencer.NewMemSequencer()
	accounts := object.NewSMRMap(codec.JSON)
	ledger := object.NewSMRMap(codec.CBOR)

	scope := txn.NewScope(conf, seq)
	if err := seed(scope, accounts); err != nil {
		log.Fatalf("seed: %v", err)
	}

	if err := transfer(scope, accounts, ledger, "alice", "bob", "40"); err != nil {
		log.Fatalf("transfer: %v", err)
	}
	log.Infof("after transfer: accounts=%v ledger=%v", accounts.Snapshot(), ledger.Snapshot())

	reader := audit.NewReader(seq, func(e *sequencer.Entry) {
		log.Infof("audit: transaction committed at address=%d touching %d streams",
			e.Address, len(e.Streams))
	}, conf.AuditPollInterval())

	waw, err := scope.Begin(txn.WriteAfterWrite{})
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	_ = ledger.Put(waw, "audit-note", "write-after-write commit")
	if _, err := waw.Commit(); err != nil {
		log.Fatalf("commit: %v", err)
	}
	reader.Poll()

	demonstrateConflict(conf, seq, accounts)
}

func loadConfig() *config.Config {
	conf := config.NewDefaultConfig()
	conf.TransactionLogging = true
	if *configPath != "" {
		if err := conf.LoadFromFile(*configPath); err != nil {
			log.Fatalf("config: %v", err)
		}
	}
	if *logLevel != "" {
		conf.LogLevel = *logLevel
	}
	return conf
}

func seed(scope *txn.Scope, accounts *object.SMRMap) error {
	c, err := scope.Begin(txn.Optimistic{})
	if err != nil {
		return err
	}
	_ = accounts.Put(c, "alice", "100")
	_ = accounts.Put(c, "bob", "0")
	_, err = c.Commit()
	return err
}

// transfer moves amount between two accounts and records it in the ledger,
// all in one atomic commit spanning both streams.
func transfer(scope *txn.Scope, accounts, ledger *object.SMRMap, from, to, amount string) error {
	c, err := scope.Begin(txn.Optimistic{})
	if err != nil {
		return err
	}
	balance, _ := accounts.Get(c, from)
	log.Infof("%s balance before transfer: %s", from, balance)
	_ = accounts.Put(c, from, "60")
	_ = accounts.Put(c, to, amount)
	_ = ledger.Put(c, "last-transfer", from+"->"+to+":"+amount)
	addr, err := c.Commit()
	if err != nil {
		return err
	}
	log.Infof("transfer committed at address %d", addr)
	return nil
}

// demonstrateConflict runs two transactions writing the same key from the
// same snapshot; the sequencer accepts exactly one.
func demonstrateConflict(conf *config.Config, seq *sequencer.MemSequencer, accounts *object.SMRMap) {
	first, err := txn.NewScope(conf, seq).Begin(txn.Optimistic{})
	if err != nil {
		log.Fatalf("begin: %v", err)
	}
	second, err := txn.NewScope(conf, seq).Begin(txn.Optimistic{})
	if err != nil {
		log.Fatalf("begin: %v", err)
	}

	_, _ = accounts.Get(first, "alice")
	_, _ = accounts.Get(second, "alice")
	_ = accounts.Put(first, "alice", "10")
	_ = accounts.Put(second, "alice", "20")

	if addr, err := first.Commit(); err != nil {
		log.Fatalf("first commit should win: %v", err)
	} else {
		log.Infof("first writer committed at address %d", addr)
	}
	if _, err := second.Commit(); txn.IsAborted(err) {
		log.Infof("second writer aborted as expected, commit address sentinel %d",
			second.CommitAddress())
	} else {
		log.Fatalf("second writer unexpectedly survived: %v", err)
	}
	log.Infof("final accounts=%v", accounts.Snapshot())
}
