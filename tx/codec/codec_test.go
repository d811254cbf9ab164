package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	for _, id := range []ID{JSON, CBOR} {
		c, err := Get(id)
		require.NoError(t, err)
		assert.Equal(t, id, c.ID())
	}

	_, err := Get(ID(200))
	require.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	type payload struct {
		Method string        `json:"method"`
		Args   []interface{} `json:"args"`
	}
	in := payload{Method: "put", Args: []interface{}{"key", "value"}}

	for _, id := range []ID{JSON, CBOR} {
		c, err := Get(id)
		require.NoError(t, err)

		data, err := c.Marshal(in)
		require.NoError(t, err)

		var out payload
		require.NoError(t, c.Unmarshal(data, &out))
		assert.Equal(t, in.Method, out.Method)
		assert.Len(t, out.Args, 2)
	}
}
