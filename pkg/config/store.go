package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"relaydesk/relay/pkg/proxy/types"
)

// Store holds the effective configuration of a running relay process and
// the path it was loaded from. The saved proxy route can be changed at
// runtime; changes are written back to the file.
type Store struct {
	path string

	mu  sync.RWMutex
	cfg *Config
}

// NewStore wraps cfg, loaded from path. An empty path keeps changes in
// memory only.
func NewStore(path string, cfg *Config) *Store {
	return &Store{path: path, cfg: cfg}
}

// Path returns the configuration file path.
func (s *Store) Path() string {
	return s.path
}

// Get returns a copy of the current configuration.
func (s *Store) Get() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := *s.cfg
	return &c
}

// Proxy returns the saved proxy route.
func (s *Store) Proxy() types.ProxyConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Proxy.ProxyConfig
}

// SetProxy validates p and persists it as the saved route. The file is
// re-read before writing so settings that came from environment variables
// or flags are not baked into it.
func (s *Store) SetProxy(p types.ProxyConfig) error {
	if err := p.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path != "" {
		onDisk, err := readFile(s.path)
		if errors.Is(err, fs.ErrNotExist) {
			onDisk = Defaults()
		} else if err != nil {
			return err
		}
		onDisk.Proxy.ProxyConfig = p
		if err := Save(s.path, onDisk); err != nil {
			return fmt.Errorf("failed to save proxy configuration: %w", err)
		}
	}

	next := *s.cfg
	next.Proxy.ProxyConfig = p
	s.cfg = &next
	return nil
}

// Replace swaps in a reloaded configuration.
func (s *Store) Replace(cfg *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
}
