// internal/workers/submission/approve-bind/config.go
package approvebind

import "time"

type Config struct {
	Timeout time.Duration
	// ReportGates completes the job with bound=false instead of throwing
	// GATE_NOT_SATISFIED, so the process can wait for the missing signal.
	ReportGates bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:     15 * time.Second,
		ReportGates: true,
	}
}
