package codec

import (
	"encoding/json"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/pingcap/errors"
)

// ID identifies the serializer used for an update record's arguments. Every
// record carries its codec ID so that a reader (or the coalescer's record
// constructor) can decode arguments without out-of-band knowledge.
type ID byte

const (
	JSON ID = 1
	CBOR ID = 2
)

// Codec encodes and decodes update-record payloads.
type Codec interface {
	ID() ID
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

var (
	registryGuard sync.RWMutex
	registry      = map[ID]Codec{}
)

// Register makes a codec available for lookup by ID. Later registrations with
// the same ID replace earlier ones.
func Register(c Codec) {
	registryGuard.Lock()
	defer registryGuard.Unlock()
	registry[c.ID()] = c
}

// Get returns the codec registered under id.
func Get(id ID) (Codec, error) {
	registryGuard.RLock()
	defer registryGuard.RUnlock()
	c, ok := registry[id]
	if !ok {
		return nil, errors.Errorf("unknown codec id %d", id)
	}
	return c, nil
}

type jsonCodec struct{}

func (jsonCodec) ID() ID { return JSON }

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	return data, errors.Trace(err)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return errors.Trace(json.Unmarshal(data, v))
}

type cborCodec struct{}

func (cborCodec) ID() ID { return CBOR }

func (cborCodec) Marshal(v interface{}) ([]byte, error) {
	data, err := cbor.Marshal(v)
	return data, errors.Trace(err)
}

func (cborCodec) Unmarshal(data []byte, v interface{}) error {
	return errors.Trace(cbor.Unmarshal(data, v))
}

func init() {
	Register(jsonCodec{})
	Register(cborCodec{})
}
