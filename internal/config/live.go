package config

import (
	"os"
	"sync/atomic"

	"github.com/spf13/viper"
)

// Live holds the most recently loaded settings. Reads never block a reload;
// a failed reload keeps the previous snapshot.
type Live struct {
	path    string
	current atomic.Pointer[viper.Viper]
}

func NewLive(path string) (*Live, error) {
	v, err := newViper(path)
	if err != nil {
		return nil, err
	}
	l := &Live{path: path}
	l.current.Store(v)
	return l, nil
}

func (l *Live) Path() string { return l.path }

// Get returns the raw value for key, or nil when it is not set. String
// values have ${VAR} references expanded.
func (l *Live) Get(key string) any {
	val := l.current.Load().Get(key)
	if s, ok := val.(string); ok {
		return os.ExpandEnv(s)
	}
	return val
}

// Reload re-reads the file and swaps the snapshot in one step.
func (l *Live) Reload() error {
	v, err := newViper(l.path)
	if err != nil {
		return err
	}
	l.current.Store(v)
	return nil
}

// Config decodes the current snapshot into the typed form.
func (l *Live) Config() (*Config, error) {
	return decode(l.current.Load())
}
