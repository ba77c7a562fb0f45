package config

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Watcher reloads Config from disk whenever its backing file changes,
// via viper's fsnotify-backed WatchConfig. It is optional: callers that
// only need a one-shot Load never construct one.
type Watcher struct {
	v        *viper.Viper
	onChange func(*Config)
}

// NewWatcher loads configFile once and arms a filesystem watch on it.
// onChange is invoked with the freshly reloaded Config after every write
// event fsnotify reports for the file; a bad reload is reported to
// onChange as a nil Config so callers can decide whether to keep
// running on stale state.
func NewWatcher(configFile string, onChange func(*Config)) (*Watcher, *Config, error) {
	v := newViper(configFile)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, err
	}

	w := &Watcher{v: v, onChange: onChange}
	v.OnConfigChange(func(e fsnotify.Event) {
		var reloaded Config
		if err := w.v.Unmarshal(&reloaded); err != nil {
			w.onChange(nil)
			return
		}
		w.onChange(&reloaded)
	})
	v.WatchConfig()

	return w, &cfg, nil
}
