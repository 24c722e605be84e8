package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainValue = "x3drouter/value/v1"
	DomainFrame = "x3drouter/frame/v1"
	DomainScene = "x3drouter/scene/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValueHash computes the content hash of a field value, including its type
// so that SFFloat(1) and SFInt32(1) hash differently.
func ValueHash(v Value) (string, error) {
	if v == nil {
		return "", fmt.Errorf("ValueHash: nil value")
	}
	canonical, err := MarshalCanonical(map[string]any{
		"type":  v.Type().String(),
		"value": v,
	})
	if err != nil {
		return "", fmt.Errorf("ValueHash: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainValue, canonical), nil
}

// FrameDigest hashes a frame record (frame number, time, the ordered
// delivery list and the published field values as plain data). Two runs of the same scene with the same
// inputs produce identical digests.
func FrameDigest(record map[string]any) (string, error) {
	canonical, err := MarshalCanonical(record)
	if err != nil {
		return "", fmt.Errorf("FrameDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFrame, canonical), nil
}

// SceneHash hashes scene source bytes so recorded runs can detect that a
// replay is using a different scene.
func SceneHash(source []byte) string {
	return hashWithDomain(DomainScene, source)
}

// MustValueHash is like ValueHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustValueHash(v Value) string {
	h, err := ValueHash(v)
	if err != nil {
		panic(err)
	}
	return h
}
