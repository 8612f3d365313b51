package nodeapi_test

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/concordium/ccdscan-indexer/internal/nodeapi"
	"github.com/concordium/ccdscan-indexer/internal/nodeapi/nodeapimock"
)

// buildWasmWithCustomSection constructs a minimal well-formed WASM module
// containing a single custom section with the given name and payload.
func buildWasmWithCustomSection(t *testing.T, name string, payload []byte) []byte {
	t.Helper()
	var body []byte
	body = appendUvarint(body, uint64(len(name)))
	body = append(body, name...)
	body = append(body, payload...)

	var out []byte
	out = append(out, "\x00asm"...)
	out = append(out, 1, 0, 0, 0) // version 1
	out = append(out, 0)         // section id 0 = custom
	out = appendUvarint(out, uint64(len(body)))
	out = append(out, body...)
	return out
}

func appendUvarint(b []byte, v uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, v)
	return append(b, buf[:n]...)
}

func TestModuleSchemaCache_FetchesAndCaches(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := nodeapimock.NewMockClient(ctrl)

	wasm := buildWasmWithCustomSection(t, "concordium-schema", []byte{0xDE, 0xAD, 0xBE, 0xEF})
	client.EXPECT().
		GetModuleSource(gomock.Any(), "module-ref-1", nodeapi.BlockIdentifier{LastFinalized: true}).
		Return(nodeapi.Module{Reference: "module-ref-1", Source: wasm}, nil).
		Times(1) // only the first Get should hit the client; the second is a cache hit

	cache, err := nodeapi.NewModuleSchemaCache(8)
	require.NoError(t, err)

	schema, err := cache.Get(context.Background(), client, "module-ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, schema)

	schema, err = cache.Get(context.Background(), client, "module-ref-1")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, schema)
}

func TestModuleSchemaCache_NoEmbeddedSchema(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := nodeapimock.NewMockClient(ctrl)

	wasm := append([]byte("\x00asm"), 1, 0, 0, 0) // header only, no sections
	client.EXPECT().
		GetModuleSource(gomock.Any(), "module-ref-2", gomock.Any()).
		Return(nodeapi.Module{Reference: "module-ref-2", Source: wasm}, nil)

	cache, err := nodeapi.NewModuleSchemaCache(8)
	require.NoError(t, err)

	schema, err := cache.Get(context.Background(), client, "module-ref-2")
	require.NoError(t, err)
	assert.Nil(t, schema)
}

func TestModuleSchemaCache_ClientError(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := nodeapimock.NewMockClient(ctrl)

	client.EXPECT().
		GetModuleSource(gomock.Any(), "module-ref-3", gomock.Any()).
		Return(nodeapi.Module{}, assertErr)

	cache, err := nodeapi.NewModuleSchemaCache(8)
	require.NoError(t, err)

	_, err = cache.Get(context.Background(), client, "module-ref-3")
	assert.ErrorIs(t, err, assertErr)
}

var assertErr = context.DeadlineExceeded
