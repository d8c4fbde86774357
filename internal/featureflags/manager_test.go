package featureflags

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnabled_BooleanValues(t *testing.T) {
	t.Parallel()
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	for _, name := range []string{"a", "c", "e"} {
		assert.True(t, m.Enabled(name, 1), name)
	}
	for _, name := range []string{"b", "d", "f", "missing"} {
		assert.False(t, m.Enabled(name, 1), name)
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	t.Parallel()
	m := NewManager("always=100%,never=0%,canary=25%,broken=abc%")

	assert.True(t, m.Enabled("always", 0))
	assert.False(t, m.Enabled("never", 1))
	assert.False(t, m.Enabled("broken", 1))

	first := m.Enabled("canary", 42)
	for range 5 {
		assert.Equal(t, first, m.Enabled("canary", 42), "rollout must be deterministic per user")
	}
	assert.False(t, m.Enabled("canary", 0), "percentage rollout requires a user")
}

func TestNewManager_DiscoveryDefaults(t *testing.T) {
	t.Parallel()
	m := NewManager(" Related_Posts_Index = OFF , realtime_feed=on, bad ,=on")

	assert.False(t, m.Enabled(RelatedPostsIndex, 0))
	assert.True(t, m.Enabled(RealtimeFeed, 0))
	assert.Len(t, m.rules, 2)
}

func TestNilManager(t *testing.T) {
	t.Parallel()
	var m *Manager
	assert.False(t, m.Enabled(RealtimeFeed, 1))
}

func TestEnabled_RolloutCoversRoughlyItsShare(t *testing.T) {
	t.Parallel()
	m := NewManager("realtime_feed=25%,clamped=250%")

	on := 0
	for id := uint(1); id <= 1000; id++ {
		if m.Enabled(RealtimeFeed, id) {
			on++
		}
	}
	assert.InDelta(t, 250, on, 60)
	assert.True(t, m.Enabled("clamped", 0))
}
