// internal/workers/finance/calculate-finance-plan/config.go
package calculatefinanceplan

import "time"

type Config struct {
	Timeout time.Duration
	// IncludeSchedule controls whether the full amortization schedule is
	// written back into process variables.
	IncludeSchedule bool
}

func LoadConfig() *Config {
	return &Config{
		Timeout:         5 * time.Second,
		IncludeSchedule: false,
	}
}
