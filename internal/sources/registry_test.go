package sources

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "nextrial-session/internal/common/errors"
	"nextrial-session/internal/common/logger"
	"nextrial-session/internal/models"
	pkgregistry "nextrial-session/pkg/registry"
)

// ==========================
// Test Helper Functions
// ==========================

type registryLoggerAdapter struct {
	logger.Logger
}

func (a registryLoggerAdapter) With(fields map[string]interface{}) Logger {
	return registryLoggerAdapter{a.Logger.With(fields)}
}

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return New(rdb, "test:data-sources", registryLoggerAdapter{logger.NewTestLogger(t)}), mr
}

func ids(entries []models.SourceToggle) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

// ==========================
// Load
// ==========================

func TestRegistry_Load_AbsentStateUsesDefaults(t *testing.T) {
	r, _ := newTestRegistry(t)

	r.Load(context.Background())

	defaults := pkgregistry.DefaultToggles()
	assert.Equal(t, defaults, r.All())
}

func TestRegistry_Load_CorruptStateFallsBackSilently(t *testing.T) {
	r, mr := newTestRegistry(t)
	mr.Set("test:data-sources", "{not json at all")

	// Must not panic or error: a corrupt cache never blocks startup.
	r.Load(context.Background())

	assert.Equal(t, pkgregistry.DefaultToggles(), r.All())
}

func TestRegistry_Load_AppliesPersistedFlagsInRegistrationOrder(t *testing.T) {
	r, mr := newTestRegistry(t)

	// Persisted in a scrambled order, with one id that no longer exists.
	persisted := []models.SourceToggle{
		{ID: "rxnorm", DisplayName: "RxNorm", Enabled: true},
		{ID: "retired-source", DisplayName: "Gone", Enabled: true},
		{ID: "pubmed", DisplayName: "PubMed", Enabled: true},
	}
	data, err := json.Marshal(persisted)
	require.NoError(t, err)
	mr.Set("test:data-sources", string(data))

	r.Load(context.Background())

	all := r.All()
	assert.Equal(t, ids(pkgregistry.DefaultToggles()), ids(all), "registration order survives reload")
	assert.Equal(t, []string{"pubmed", "rxnorm"}, r.EnabledIDs())
}

// ==========================
// Toggle
// ==========================

func TestRegistry_Toggle_FlipsOnlyMatchingEntry(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Load(context.Background())

	enabled, err := r.Toggle(context.Background(), "pubmed")
	require.NoError(t, err)
	assert.True(t, enabled)

	for _, entry := range r.All() {
		if entry.ID == "pubmed" {
			assert.True(t, entry.Enabled)
		} else {
			assert.False(t, entry.Enabled)
		}
	}

	enabled, err = r.Toggle(context.Background(), "pubmed")
	require.NoError(t, err)
	assert.False(t, enabled)
}

func TestRegistry_Toggle_UnknownIDIsValidationError(t *testing.T) {
	r, mr := newTestRegistry(t)

	_, err := r.Toggle(context.Background(), "embase")
	assert.True(t, apperrors.IsValidation(err))
	assert.False(t, mr.Exists("test:data-sources"), "no flush for a rejected toggle")
}

func TestRegistry_Toggle_WriteThroughFlush(t *testing.T) {
	r, mr := newTestRegistry(t)

	_, err := r.Toggle(context.Background(), "ctgov")
	require.NoError(t, err)

	raw, err := mr.Get("test:data-sources")
	require.NoError(t, err)

	var persisted []models.SourceToggle
	require.NoError(t, json.Unmarshal([]byte(raw), &persisted))
	assert.Equal(t, ids(pkgregistry.DefaultToggles()), ids(persisted), "full registry persisted, in order")

	for _, entry := range persisted {
		assert.Equal(t, entry.ID == "ctgov", entry.Enabled)
	}
}

func TestRegistry_Toggle_FlushFailureSurfacesAndReverts(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	r := New(rdb, "test:data-sources", registryLoggerAdapter{logger.NewTestLogger(t)})

	entries := r.All()
	entries[0].Enabled = true
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	mock.ExpectSet("test:data-sources", data, 0).SetErr(assert.AnError)

	_, err = r.Toggle(context.Background(), entries[0].ID)
	assert.True(t, apperrors.IsPersistence(err))

	// In-memory state stays consistent with what was last persisted.
	for _, entry := range r.All() {
		assert.False(t, entry.Enabled)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// EnabledIDs ordering
// ==========================

func TestRegistry_EnabledIDs_RegistrationOrder(t *testing.T) {
	r, _ := newTestRegistry(t)
	r.Load(context.Background())

	// Enable rxnorm before pubmed; the projection still follows
	// registration order, not toggle order.
	_, err := r.Toggle(context.Background(), "rxnorm")
	require.NoError(t, err)
	_, err = r.Toggle(context.Background(), "pubmed")
	require.NoError(t, err)

	assert.Equal(t, []string{"pubmed", "rxnorm"}, r.EnabledIDs())
}

func TestRegistry_StatePersistsAcrossReload(t *testing.T) {
	r, mr := newTestRegistry(t)
	r.Load(context.Background())

	_, err := r.Toggle(context.Background(), "openfda")
	require.NoError(t, err)

	// A fresh registry against the same storage sees the toggle.
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	fresh := New(rdb, "test:data-sources", registryLoggerAdapter{logger.NewTestLogger(t)})
	fresh.Load(context.Background())

	assert.Equal(t, []string{"openfda"}, fresh.EnabledIDs())
}

func TestRegistry_Reset(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Toggle(context.Background(), "pubmed")
	require.NoError(t, err)
	require.NoError(t, r.Reset(context.Background()))

	assert.Empty(t, r.EnabledIDs())
}
