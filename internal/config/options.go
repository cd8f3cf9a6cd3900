package config

import (
	"time"

	"github.com/roach88/gravindex/internal/engine"
)

// EngineOptions translates the config into engine options. Unset fields
// keep the engine defaults; callers append their own options to override.
func (c *Config) EngineOptions() []engine.EngineOption {
	e := c.Engine
	opts := []engine.EngineOption{engine.WithHistory(c.SaveFullHistory)}

	if e.BatchSize > 0 {
		opts = append(opts, engine.WithBatchSize(e.BatchSize))
	}
	if e.LoadConcurrency > 0 {
		opts = append(opts, engine.WithLoadConcurrency(e.LoadConcurrency))
	}
	if e.FetchTimeout > 0 {
		opts = append(opts, engine.WithFetchTimeout(time.Duration(e.FetchTimeout)))
	}
	if e.CommitTimeout > 0 {
		opts = append(opts, engine.WithCommitTimeout(time.Duration(e.CommitTimeout)))
	}

	if e.MaxAttempts > 0 || e.BackoffBase > 0 || e.BackoffMax > 0 {
		p := engine.DefaultRetryPolicy()
		if e.MaxAttempts > 0 {
			p.MaxAttempts = e.MaxAttempts
		}
		if e.BackoffBase > 0 {
			p.BaseDelay = time.Duration(e.BackoffBase)
		}
		if e.BackoffMax > 0 {
			p.MaxDelay = time.Duration(e.BackoffMax)
		}
		opts = append(opts, engine.WithRetryPolicy(p))
	}
	return opts
}
