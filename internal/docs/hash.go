package docs

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
)

// ContentHash returns the hex sha256 of data.
func ContentHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// FileHash reads path and returns its ContentHash.
func FileHash(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return ContentHash(data), nil
}
