package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sha256Hex returns the SHA256 hash of the given data as a hex string.
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum fails when data does not hash to expected.
func VerifyChecksum(data []byte, expected string) error {
	actual := Sha256Hex(data)
	if actual != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}
