package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// FileDigest returns the hex SHA-256 of an archived file.
func FileDigest(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: opening '%s' for digest: %w", ErrFilesystem, filePath, err)
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", fmt.Errorf("%w: hashing '%s': %w", ErrFilesystem, filePath, err)
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
