// internal/workers/drafting/collect-profile-turn/config.go
package collectprofileturn

import "time"

type Config struct {
	Timeout       time.Duration
	MaxJobsActive int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:       60 * time.Second,
		MaxJobsActive: 10,
	}
}
