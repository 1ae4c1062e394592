package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"zonebreak/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// schemaJSON guards the rules file shape before semantic validation runs.
const schemaJSON = `{
  "type": "object",
  "required": ["zone_levels", "retraction"],
  "additionalProperties": false,
  "properties": {
    "zone_levels": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "number", "exclusiveMinimum": 0}
    },
    "retraction": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["min", "max", "effect"],
        "additionalProperties": false,
        "properties": {
          "min": {"type": "number", "minimum": 0},
          "max": {"type": "number", "minimum": 0},
          "effect": {"enum": ["shift", "skip", "cancel"]},
          "points": {"type": "number", "exclusiveMinimum": 0},
          "levels": {"type": "integer", "minimum": 1}
        }
      }
    }
  }
}`

// Snapshot is an immutable view of the loaded tables.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Tables   Tables
}

// ChangeListener fires after a successful on-disk reload.
type ChangeListener func(Snapshot)

// Registry owns the rules file. The engine takes the tables it booted with;
// a reload while running only refreshes the snapshot shown by the status API
// and logs that a restart is needed to apply the change.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads and validates the rules file, then watches it for drift.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("rules registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read rules file failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("rules reload failed, keeping previous tables: %v", err)
			return
		}
		logger.Warnf("rules file %s changed on disk; restart to apply to the running engine", filepath.Base(r.path))
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Snapshot returns the current tables with version metadata.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Tables returns a copy of the current tables.
func (r *Registry) Tables() Tables {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.Tables.Clone()
}

// OnChange registers a listener for successful reloads.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	tables, err := readRulesFile(r.path)
	if err != nil {
		return err
	}
	if err := tables.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Tables:   tables,
	}
	r.mu.Unlock()
	logger.Infof("Rules loaded: %d zone levels, %d retraction ranges from %s",
		len(tables.ZoneLevels), len(tables.Retraction), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		go func(cb ChangeListener) {
			defer safeRecover("rules listener")
			cb(snap)
		}(fn)
	}
}

func cloneSnapshot(src Snapshot) Snapshot {
	return Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Tables:   src.Tables.Clone(),
	}
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}

func readRulesFile(path string) (Tables, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Tables{}, fmt.Errorf("read rules file failed: %w", err)
	}
	if err := checkSchema(raw); err != nil {
		return Tables{}, err
	}
	var t Tables
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil {
		return Tables{}, fmt.Errorf("parse rules file failed: %w", err)
	}
	return t, nil
}

func checkSchema(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse rules file failed: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("rules.json", strings.NewReader(schemaJSON)); err != nil {
		return err
	}
	schema, err := compiler.Compile("rules.json")
	if err != nil {
		return err
	}
	if err := schema.Validate(normalizeYAML(doc)); err != nil {
		return fmt.Errorf("rules file schema: %w", err)
	}
	return nil
}

// normalizeYAML converts yaml map keys to strings so jsonschema can walk the
// document.
func normalizeYAML(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = normalizeYAML(child)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[fmt.Sprint(k)] = normalizeYAML(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = normalizeYAML(child)
		}
		return out
	case int:
		return json.Number(fmt.Sprint(val))
	default:
		return val
	}
}

// Defaults returns the built-in tables used when no rules file is configured.
func Defaults() Tables {
	return Tables{
		ZoneLevels: []float64{45, 70, 100, 130},
		Retraction: []RetractionRule{
			{Min: 15, Max: 29.9, Effect: EffectShift, Points: 18},
			{Min: 30, Max: 35.9, Effect: EffectSkip, Levels: 1},
			{Min: 36, Max: 45.9, Effect: EffectSkip, Levels: 2},
			{Min: 46, Max: 10000, Effect: EffectCancel},
		},
	}
}
