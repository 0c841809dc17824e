package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep digests of different record kinds apart. The
// version suffix leaves room for changing the encoding.
const (
	DomainStep   = "dpusim/step/v1"
	DomainRun    = "dpusim/run/v1"
	DomainRegion = "dpusim/region/v1"
)

// hashWithDomain returns hex(SHA256(domain || 0x00 || data)).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest hashes v's canonical JSON under domain.
func Digest(domain string, v any) (string, error) {
	data, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// RegionDigest hashes raw memory contents. Equal bytes give equal
// digests regardless of where they were read from.
func RegionDigest(data []int8) string {
	b := make([]byte, len(data))
	for i, v := range data {
		b[i] = byte(v)
	}
	return hashWithDomain(DomainRegion, b)
}
