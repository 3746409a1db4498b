// internal/workers/esign/send-for-signature/config.go
package sendforsignature

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 30 * time.Second,
	}
}
