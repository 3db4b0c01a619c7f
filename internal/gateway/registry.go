package gateway

import (
	"strings"
	"sync"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*Client{}
)

// Shared returns the process-wide gateway for cfg.BaseURL, creating it on
// first use. Later calls with the same base URL return the same instance and
// ignore the rest of cfg, so a process holds at most one realtime connection
// per backend.
func Shared(cfg Config) *Client {
	key := strings.TrimRight(cfg.BaseURL, "/")

	registryMu.Lock()
	defer registryMu.Unlock()

	if c, ok := registry[key]; ok {
		return c
	}
	c := New(cfg)
	registry[key] = c
	return c
}
