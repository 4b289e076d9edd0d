package app

import "errors"

// NewConfig validates an AppConfig before it's used to construct an App.
func NewConfig(cfg AppConfig) (*AppConfig, error) {
	if cfg.PlanPath == "" {
		return nil, errors.New("PlanPath is a required configuration field and cannot be empty")
	}
	if cfg.WorkerCount < 1 {
		return nil, errors.New("WorkerCount must be at least 1")
	}

	return &cfg, nil
}
