package nodeapi

import (
	"context"
	"encoding/binary"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// wasmSchemaSectionNames lists the custom section names a Concordium smart
// contract module may embed its schema under, newest first. Module schemas
// moved names across WASM versions (v0 modules only ever used the first),
// so every known name is tried.
var wasmSchemaSectionNames = []string{
	"concordium-schema",
	"concordium-schema-v2",
	"concordium-schema-v1",
}

// extractEmbeddedSchema scans a WASM module's custom sections for an
// embedded contract schema, returning nil if none is present. Mirrors
// get_embedded_schema_v0/get_embedded_schema_v1 in the node SDK: both boil
// down to "find the custom section with this name and return its payload".
func extractEmbeddedSchema(source []byte) []byte {
	// A WASM module starts with an 8-byte header: magic "\0asm" + version.
	if len(source) < 8 || string(source[:4]) != "\x00asm" {
		return nil
	}
	offset := 8
	for offset < len(source) {
		sectionID := source[offset]
		offset++
		size, n := binary.Uvarint(source[offset:])
		if n <= 0 {
			return nil
		}
		offset += n
		end := offset + int(size)
		if end > len(source) {
			return nil
		}
		if sectionID == 0 { // custom section
			name, payload, ok := readCustomSectionName(source[offset:end])
			if ok {
				for _, want := range wasmSchemaSectionNames {
					if name == want {
						return payload
					}
				}
			}
		}
		offset = end
	}
	return nil
}

// readCustomSectionName splits a custom section's body into its
// length-prefixed name and the remaining payload.
func readCustomSectionName(body []byte) (name string, payload []byte, ok bool) {
	nameLen, n := binary.Uvarint(body)
	if n <= 0 || int(nameLen) > len(body)-n {
		return "", nil, false
	}
	return string(body[n : n+int(nameLen)]), body[n+int(nameLen):], true
}

// ModuleSchemaCache memoizes the embedded schema extracted from deployed
// smart contract modules, keyed by module reference. Module references are
// content-addressed hashes of the WASM source, so a cache hit is always
// correct: the same reference can never resolve to different bytes.
// Grounded on the SPEC_FULL domain-stack entry tying golang-lru to this
// module-source cache, avoiding a repeat get_module_source/schema-parse
// round trip when the same module is deployed or upgraded-to more than
// once within a run (e.g. a popular library module reused across many
// contracts in the same batch).
type ModuleSchemaCache struct {
	cache *lru.Cache[string, []byte]
}

// NewModuleSchemaCache builds a cache holding up to size entries, shared
// across every worker goroutine in the pipeline driver's pool (the
// underlying lru.Cache is safe for concurrent use).
func NewModuleSchemaCache(size int) (*ModuleSchemaCache, error) {
	c, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, fmt.Errorf("new module schema cache: %w", err)
	}
	return &ModuleSchemaCache{cache: c}, nil
}

// Get returns the embedded schema for ref (nil if the module carries none),
// fetching and parsing the module source via client only on a cache miss.
// The source is always fetched at the last finalized block: querying very
// old heights performs poorly on the node, and a module's source never
// changes once deployed so any block at or after deployment gives the same
// answer.
func (c *ModuleSchemaCache) Get(ctx context.Context, client Client, ref string) ([]byte, error) {
	if schema, ok := c.cache.Get(ref); ok {
		return schema, nil
	}
	module, err := client.GetModuleSource(ctx, ref, BlockIdentifier{LastFinalized: true})
	if err != nil {
		return nil, fmt.Errorf("get module source %s: %w", ref, err)
	}
	schema := extractEmbeddedSchema(module.Source)
	c.cache.Add(ref, schema)
	return schema, nil
}
