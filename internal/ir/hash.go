package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// The version suffix leaves room for algorithm migration.
const (
	DomainModel    = "cellc/model/v1"
	DomainArtifact = "cellc/artifact/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator keeps domain and data boundaries unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash hashes an arbitrary canonical document under domain.
func ContentHash(domain string, doc any) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("ContentHash: failed to marshal: %w", err)
	}
	return hashWithDomain(domain, canonical), nil
}

// ArtifactHash hashes a generated header/source pair. Two generations of
// the same model and variant must produce the same hash.
func ArtifactHash(className, header, source string) string {
	h, err := ContentHash(DomainArtifact, map[string]any{
		"class":  className,
		"header": header,
		"source": source,
	})
	if err != nil {
		// Only strings are hashed; marshalling cannot fail.
		panic(err)
	}
	return h
}
