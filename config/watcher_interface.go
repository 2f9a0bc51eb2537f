package config

// Watcher exposes the current configuration and change notifications.
type Watcher interface {
	GetCurrentConfig() *Config
	Subscribe() <-chan *Config
	Close() error
}
