package config

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ErrNoConfigFile is returned by Watch when there is no config file to watch.
var ErrNoConfigFile = errors.New("no config file to watch")

// Watch re-reads the config file whenever it changes on disk and passes the
// re-validated Config to onChange. Edits that fail to parse or validate are
// logged and dropped; the previous configuration stays in effect.
//
// Only settings that are safe to change at runtime should be applied by
// onChange (today: the log level). Everything else requires a restart.
func Watch(configPath string, onChange func(*Config)) error {
	v, err := newViper(configPath)
	if err != nil {
		return err
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return ErrNoConfigFile
		}
		return fmt.Errorf("error reading config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !reloadable(e) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			slog.Warn("ignoring config change", "file", e.Name, "error", err)
			return
		}
		slog.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

// reloadable reports whether a filesystem event may have changed file content.
func reloadable(e fsnotify.Event) bool {
	return e.Has(fsnotify.Write) || e.Has(fsnotify.Create)
}
