package utils

import (
	"fmt"
	"os"
	"strings"
)

// ReadSecret reads a secret from the standard Docker Secrets path.
func ReadSecret(secretName string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", secretName)
	secretBytes, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file %s: %w", filePath, err)
	}
	secret := strings.TrimSpace(string(secretBytes))
	if secret == "" {
		return "", fmt.Errorf("secret file %s is empty", filePath)
	}
	return secret, nil
}

// ReadSecretOrEnv reads the secret file first and falls back to the given
// environment variable for local development setups without Docker Secrets.
func ReadSecretOrEnv(secretName, envName string) (string, error) {
	if secret, err := ReadSecret(secretName); err == nil {
		return secret, nil
	}
	if value := strings.TrimSpace(os.Getenv(envName)); value != "" {
		return value, nil
	}
	return "", fmt.Errorf("secret %s not found in /run/secrets or $%s", secretName, envName)
}
