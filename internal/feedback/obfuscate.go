package feedback

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// transparentScopes is the fixed set spec.md §3/§4.4 passes through
// literally; everything else is obfuscated. This set is part of the wire
// contract and must never change once agents depend on it.
var transparentScopes = map[string]bool{
	"error":       true,
	"unknown":     true,
	"consistency": true,
	"direct":      true,
	"ordering":    true,
	"nested":      true,
}

// ObfuscateScope implements spec.md §4.4's deterministic short token:
// transparent scopes pass through verbatim, everything else becomes
// scope_<6-hex> derived from a fixed hash of the raw scope string alone.
// The core commits to xxhash.Sum64String forever (Testable Property 5): the
// token for a given raw scope must be stable across runs and versions.
func ObfuscateScope(scope string) string {
	if transparentScopes[scope] {
		return scope
	}
	sum := xxhash.Sum64String(scope) & 0xFFFFFF
	return fmt.Sprintf("scope_%06x", sum)
}
