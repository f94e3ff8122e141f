package config

import "context"

// SecretProvider resolves secret values by path: SSM Parameter Store in AWS,
// plain environment variables for local development.
type SecretProvider interface {
	// GetParametersBatch returns path -> plaintext for every path it could
	// resolve. Missing paths are omitted rather than reported as errors.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}
