package utils

import (
	"fmt"
	"os"
)

// GetEnv returns the value of the named environment variable, or fallback if
// it is unset or empty.
func GetEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// CreateFolder makes the directory (and any parents) if it does not exist.
func CreateFolder(path string) error {
	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("failed to create folder %q: %w", path, err)
	}
	return nil
}
