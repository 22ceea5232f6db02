package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexdesk/tiercache/internal/config"
	"github.com/lexdesk/tiercache/pkg/errors"
)

func TestStrategyRegistry_FirstAdmittingWins(t *testing.T) {
	t.Parallel()

	registry := NewStrategyRegistry()
	require.NoError(t, registry.Register(NamespaceStrategy("first", time.Minute, 1, NamespaceSearch)))
	require.NoError(t, registry.Register(NamespaceStrategy("second", time.Hour, 2, NamespaceSearch, NamespaceUser)))

	s := registry.Resolve(SearchKey("q"), nil)
	require.NotNil(t, s)
	assert.Equal(t, "first", s.Name)

	s = registry.Resolve(UserKey("u"), nil)
	require.NotNil(t, s)
	assert.Equal(t, "second", s.Name)

	assert.Nil(t, registry.Resolve(ComponentKey("c"), nil))
	assert.Equal(t, []string{"first", "second"}, registry.Names())
}

func TestStrategyRegistry_RegisterErrors(t *testing.T) {
	t.Parallel()

	registry := NewStrategyRegistry()
	require.NoError(t, registry.Register(NamespaceStrategy("search", time.Minute, 8, NamespaceSearch)))

	err := registry.Register(NamespaceStrategy("search", time.Minute, 8, NamespaceSearch))
	assert.True(t, errors.HasCode(err, errors.ErrCodeStrategyExists), "got %v", err)

	err = registry.Register(&Strategy{Name: "partial", Admit: func(Key, any) bool { return true }})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidStrategy), "got %v", err)

	err = registry.Register(nil)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidStrategy), "got %v", err)

	assert.Equal(t, 1, registry.Len())
}

func TestDefaultStrategies(t *testing.T) {
	t.Parallel()

	tracker := NewAccessTracker(100)
	registry := NewStrategyRegistry()
	for _, s := range DefaultStrategies(tracker, DefaultStrategyDefaults()) {
		require.NoError(t, registry.Register(s))
	}

	assert.Equal(t, []string{StrategyHighFrequency, StrategySearch, StrategyMetadata, StrategyUser}, registry.Names())

	tests := []struct {
		key      Key
		strategy string
		ttl      time.Duration
		priority int
	}{
		{SearchKey("q"), StrategySearch, 5 * time.Minute, 8},
		{MetadataKey("doc"), StrategyMetadata, 30 * time.Minute, 10},
		{ConfigKey("portal"), StrategyMetadata, 30 * time.Minute, 10},
		{UserKey("u1"), StrategyUser, 15 * time.Minute, 9},
	}
	for _, tt := range tests {
		s := registry.Resolve(tt.key, nil)
		require.NotNil(t, s, tt.key.String())
		assert.Equal(t, tt.strategy, s.Name, tt.key.String())
		assert.Equal(t, tt.ttl, s.TTL(tt.key, nil), tt.key.String())
		assert.Equal(t, tt.priority, s.Priority(tt.key, nil), tt.key.String())
	}

	// generic keys are refused until they become frequent
	generic := NewKey(NamespaceGeneric, "banner")
	assert.Nil(t, registry.Resolve(generic, nil))

	now := time.Now()
	for i := 0; i < 4; i++ {
		tracker.Record(generic, now)
	}
	assert.Nil(t, registry.Resolve(generic, nil))

	tracker.Record(generic, now)
	s := registry.Resolve(generic, nil)
	require.NotNil(t, s)
	assert.Equal(t, StrategyHighFrequency, s.Name)
	assert.Equal(t, 10*time.Minute, s.TTL(generic, nil))
	assert.Equal(t, 5, s.Priority(generic, nil))

	// high frequency takes precedence over the namespace strategies
	search := SearchKey("popular")
	for i := 0; i < 7; i++ {
		tracker.Record(search, now)
	}
	s = registry.Resolve(search, nil)
	require.NotNil(t, s)
	assert.Equal(t, StrategyHighFrequency, s.Name)
	assert.Equal(t, 7, s.Priority(search, nil))
}

func TestStrategiesFromConfig(t *testing.T) {
	t.Parallel()

	strategies, err := StrategiesFromConfig([]config.StrategyConfig{
		{Name: "components", Namespaces: []string{"component"}, TTL: 20 * time.Minute, Priority: 5},
	})
	require.NoError(t, err)
	require.Len(t, strategies, 1)
	assert.True(t, strategies[0].Admit(ComponentKey("calendar"), nil))
	assert.False(t, strategies[0].Admit(SearchKey("q"), nil))
	assert.Equal(t, 20*time.Minute, strategies[0].TTL(ComponentKey("calendar"), nil))

	_, err = StrategiesFromConfig([]config.StrategyConfig{
		{Name: "docs", Namespaces: []string{"documents"}, TTL: time.Minute},
	})
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfig), "got %v", err)
}
