// Package sources manages the persisted set of optional external data
// sources that scope searches. The registry is seeded from the fixed
// definitions in pkg/registry, reloaded from Redis at startup, and flushed
// wholesale on every toggle.
package sources

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/models"
	"nextrial-session/pkg/registry"
)

// DefaultStorageKey is the fixed Redis key holding the serialized registry.
const DefaultStorageKey = "nextrial:data-sources"

// Logger interface definition
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Registry struct {
	rdb    *redis.Client
	key    string
	logger Logger

	mu      sync.Mutex
	entries []models.SourceToggle
}

func New(rdb *redis.Client, storageKey string, log Logger) *Registry {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &Registry{
		rdb: rdb,
		key: storageKey,
		logger: log.With(map[string]interface{}{
			"component": "source-registry",
		}),
		entries: registry.DefaultToggles(),
	}
}

// Load restores persisted toggle state. Absent or corrupt state falls back
// to the fixed defaults without raising to the caller: losing a preference
// is low-stakes and must never block startup. Persisted flags are applied
// onto the fixed registration order; unknown ids are dropped.
func (r *Registry) Load(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	val, err := r.rdb.Get(ctx, r.key).Result()
	if err == redis.Nil {
		return
	}
	if err != nil {
		r.logger.Warn("source registry unreadable, using defaults", map[string]interface{}{
			"error": err.Error(),
		})
		r.entries = registry.DefaultToggles()
		return
	}

	var persisted []models.SourceToggle
	if err := json.Unmarshal([]byte(val), &persisted); err != nil {
		r.logger.Warn("source registry corrupt, resetting to defaults", map[string]interface{}{
			"error": err.Error(),
		})
		r.entries = registry.DefaultToggles()
		return
	}

	flags := make(map[string]bool, len(persisted))
	for _, entry := range persisted {
		flags[entry.ID] = entry.Enabled
	}

	entries := registry.DefaultToggles()
	for i := range entries {
		if enabled, ok := flags[entries[i].ID]; ok {
			entries[i].Enabled = enabled
		}
	}
	r.entries = entries

	r.logger.Info("source registry loaded", map[string]interface{}{
		"enabled": enabledOf(entries),
	})
}

// Toggle flips the enabled flag of exactly one entry and synchronously
// flushes the full registry (write-through, no batching). An unknown id is
// a ValidationError: it indicates a UI/registry mismatch bug, not a state
// to ignore silently.
func (r *Registry) Toggle(ctx context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := -1
	for i := range r.entries {
		if r.entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, apperrors.NewValidationError("unknown data source: " + id)
	}

	r.entries[idx].Enabled = !r.entries[idx].Enabled

	if err := r.flush(ctx); err != nil {
		// Keep memory and storage consistent: undo the flip.
		r.entries[idx].Enabled = !r.entries[idx].Enabled
		return r.entries[idx].Enabled, apperrors.NewPersistenceError("toggleSource", err)
	}

	r.logger.Info("source toggled", map[string]interface{}{
		"sourceId": id,
		"enabled":  r.entries[idx].Enabled,
	})

	return r.entries[idx].Enabled, nil
}

// EnabledIDs returns the ids of enabled sources in registration order.
// Order is a correctness requirement: downstream scope semantics may depend
// on precedence.
func (r *Registry) EnabledIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return enabledOf(r.entries)
}

// All returns a copy of the current toggle state in registration order.
func (r *Registry) All() []models.SourceToggle {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.SourceToggle, len(r.entries))
	copy(out, r.entries)
	return out
}

// Reset restores the fixed defaults and flushes them.
func (r *Registry) Reset(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.entries
	r.entries = registry.DefaultToggles()
	if err := r.flush(ctx); err != nil {
		r.entries = previous
		return apperrors.NewPersistenceError("resetSources", err)
	}
	return nil
}

// flush writes the whole registry under the storage key. Callers hold r.mu.
func (r *Registry) flush(ctx context.Context) error {
	data, err := json.Marshal(r.entries)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key, data, 0).Err()
}

func enabledOf(entries []models.SourceToggle) []string {
	var ids []string
	for _, entry := range entries {
		if entry.Enabled {
			ids = append(ids, entry.ID)
		}
	}
	return ids
}
