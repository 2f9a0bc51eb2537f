package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var _ Watcher = (*ConfigWatcher)(nil)

// ConfigWatcher reloads the config file on change and fans the result out to
// subscribers. Only the tunable surface (retry policy, temperature, cooldown
// window) is meant to change at runtime; secrets and the listen address are
// read once at startup.
type ConfigWatcher struct {
	current  atomic.Value
	path     string
	notifier *fsnotify.Watcher
	logger   *zap.Logger

	mu   sync.Mutex
	subs []chan<- *Config
}

// NewConfigWatcher loads path and starts watching it for writes. The initial
// load must succeed; later broken edits keep the last good config active.
func NewConfigWatcher(path string, logger *zap.Logger) (*ConfigWatcher, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("initial config load: %w", err)
	}

	notifier, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := notifier.Add(path); err != nil {
		notifier.Close()
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	cw := &ConfigWatcher{
		path:     path,
		notifier: notifier,
		logger:   logger,
	}
	cw.current.Store(cfg)

	go cw.run()
	return cw, nil
}

// Subscribe returns a channel that receives successfully reloaded configs.
// The channel has a buffer of one; a slow subscriber can miss versions and
// should treat each delivery as "config changed, read the fields you care
// about".
func (cw *ConfigWatcher) Subscribe() <-chan *Config {
	ch := make(chan *Config, 1)
	cw.mu.Lock()
	cw.subs = append(cw.subs, ch)
	cw.mu.Unlock()
	return ch
}

// GetCurrentConfig returns the last successfully loaded configuration.
func (cw *ConfigWatcher) GetCurrentConfig() *Config {
	return cw.current.Load().(*Config)
}

func (cw *ConfigWatcher) run() {
	for {
		select {
		case event, ok := <-cw.notifier.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write != 0 {
				cw.reload()
			}
		case err, ok := <-cw.notifier.Errors:
			if !ok {
				return
			}
			cw.logger.Error("Config watcher error", zap.Error(err))
		}
	}
}

func (cw *ConfigWatcher) reload() {
	// LoadFile validates, so a half-edited file never replaces a good one.
	cfg, err := LoadFile(cw.path)
	if err != nil {
		cw.logger.Error("Keeping previous config after failed reload", zap.Error(err))
		return
	}

	cw.current.Store(cfg)

	cw.mu.Lock()
	subs := make([]chan<- *Config, len(cw.subs))
	copy(subs, cw.subs)
	cw.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- cfg:
		default:
			// Subscriber still holds an undelivered version; skip.
		}
	}

	cw.logger.Info("Configuration reloaded", zap.String("path", cw.path))
}

func (cw *ConfigWatcher) Close() error {
	return cw.notifier.Close()
}
