// internal/workers/drafting/compose-drafts/config.go
package composedrafts

import "time"

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
}

func LoadConfig() *Config {
	return &Config{
		// Five concurrent generation calls can take a while.
		Timeout:       300 * time.Second,
		MaxJobsActive: 3,
	}
}
