// internal/workers/documents/generate-document/config.go
package generatedocument

import "time"

type Config struct {
	// Rendering and upload share this budget across all requested documents.
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 60 * time.Second,
	}
}
