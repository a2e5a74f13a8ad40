package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shashiranjanraj/veritas/internal/provenance"
)

// Custody writes invalidate cached verdicts with a prefix delete, so every
// key the verify path stores must sit under its product's prefix.
func TestVerdictCacheKeysGroupedByProduct(t *testing.T) {
	consumer := provenance.Caller{Role: provenance.RoleConsumer}

	key := verdictCacheKey([]byte(`{"v":"v1","id":"42","mfgSig":"aa"}`), consumer)
	assert.True(t, strings.HasPrefix(key, verdictCachePrefix(42)), "got %q", key)

	other := verdictCacheKey([]byte(`{"v":"v1","id":"43","mfgSig":"aa"}`), consumer)
	assert.False(t, strings.HasPrefix(other, verdictCachePrefix(42)),
		"id 43 must not be swept by an id 42 invalidation")

	// The trailing separator keeps invalidation exact: id 4 never matches
	// the id 42 bucket.
	assert.False(t, strings.HasPrefix(key, verdictCachePrefix(4)))

	// Unparseable ids share bucket 0, outside every real product's prefix.
	junk := verdictCacheKey([]byte(`not json`), consumer)
	assert.True(t, strings.HasPrefix(junk, verdictCachePrefix(0)))
}

// Different callers of the same label still get distinct entries inside
// the product bucket.
func TestVerdictCacheKeyVariesByCaller(t *testing.T) {
	raw := []byte(`{"v":"v1","id":"7","mfgSig":"aa"}`)

	a := verdictCacheKey(raw, provenance.Caller{Role: provenance.RoleConsumer})
	b := verdictCacheKey(raw, provenance.Caller{Role: provenance.RoleRetailer, Address: "ab12"})
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, verdictCachePrefix(7)))
	assert.True(t, strings.HasPrefix(b, verdictCachePrefix(7)))
}
