package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads the yaml file at path, walks its include chain (includes merge
// first, so the including file wins on conflicting keys), fills defaults for
// every key no file set and validates the result.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	ld := newLoader()
	if err := ld.mergeFile(abs, nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := ld.merged.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(ld.keys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loader accumulates the include chain into a single viper instance and
// records which keys any file actually set, so applyDefaults can tell an
// explicit zero from an absent key.
type loader struct {
	merged *viper.Viper
	keys   keySet
	// true while the file is on the walk stack, false once fully merged.
	visiting map[string]bool
}

func newLoader() *loader {
	v := viper.New()
	v.SetConfigType("yaml")
	return &loader{merged: v, keys: make(keySet), visiting: map[string]bool{}}
}

func (l *loader) mergeFile(path string, trail []string) error {
	path = filepath.Clean(path)
	if onStack, known := l.visiting[path]; known {
		if onStack {
			return fmt.Errorf("include cycle: %s -> %s", strings.Join(trail, " -> "), path)
		}
		return nil
	}
	l.visiting[path] = true

	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file failed (%s): %w", path, err)
	}

	includes, err := includeList(file)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := l.mergeFile(inc, append(trail, path)); err != nil {
			return err
		}
	}

	settings := file.AllSettings()
	delete(settings, "include")
	if err := l.merged.MergeConfigMap(settings); err != nil {
		return fmt.Errorf("merging config file failed (%s): %w", path, err)
	}
	l.markKeys("", settings)
	l.visiting[path] = false
	return nil
}

func includeList(v *viper.Viper) ([]string, error) {
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	var out []string
	switch val := raw.(type) {
	case []string:
		for _, s := range val {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	case []any:
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("include entries must be strings, got %T", item)
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, fmt.Errorf("include must be a list of file paths")
	}
	return out, nil
}

// markKeys records every dotted leaf key under node. A list marks its own
// key: session and checkpoint arrays are set-or-absent as a whole.
func (l *loader) markKeys(prefix string, node any) {
	join := func(k string) string {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch val := node.(type) {
	case map[string]any:
		for k, child := range val {
			if key := join(k); key != "" {
				l.markKeys(key, child)
			}
		}
	case map[any]any:
		for k, child := range val {
			s, ok := k.(string)
			if !ok {
				continue
			}
			if key := join(s); key != "" {
				l.markKeys(key, child)
			}
		}
	case []any:
		if prefix != "" {
			l.keys.mark(prefix)
		}
		for _, item := range val {
			l.markKeys(prefix, item)
		}
	default:
		if prefix != "" {
			l.keys.mark(prefix)
		}
	}
}
