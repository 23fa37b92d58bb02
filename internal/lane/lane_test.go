package lane

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpawnPointsStartBeforeStopLine(t *testing.T) {
	for _, l := range All() {
		dist, approaching := l.Approach(l.Spawn)
		assert.True(t, approaching, "lane %d", l.ID)
		assert.InDelta(t, SpawnDistance-StopLineOffset, dist, 1e-9, "lane %d", l.ID)
		assert.InDelta(t, 1.0, l.Direction.Length(), 1e-9)
	}
}

func TestApproach(t *testing.T) {
	tests := []struct {
		name        string
		id          ID
		pos         Vec2
		dist        float64
		approaching bool
	}{
		{"lane 0 before line", 0, Vec2{X: -1.75, Z: -8}, 3, true},
		{"lane 0 past line", 0, Vec2{X: -1.75, Z: -4}, 0, false},
		{"lane 1 before line", 1, Vec2{X: 11, Z: -1.75}, 6, true},
		{"lane 1 past line", 1, Vec2{X: 2, Z: -1.75}, 0, false},
		{"lane 2 before line", 2, Vec2{X: 1.75, Z: 7}, 2, true},
		{"lane 3 exactly on line", 3, Vec2{X: -5, Z: 1.75}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dist, ok := Get(tt.id).Approach(tt.pos)
			assert.Equal(t, tt.approaching, ok)
			assert.InDelta(t, tt.dist, dist, 1e-9)
		})
	}
}

func TestGapFollowsLaneDirection(t *testing.T) {
	l1 := Get(1) // moving -X
	gap, ahead := l1.Gap(Vec2{X: 20}, Vec2{X: 15})
	assert.True(t, ahead)
	assert.InDelta(t, 5.0, gap, 1e-9)

	_, ahead = l1.Gap(Vec2{X: 15}, Vec2{X: 20})
	assert.False(t, ahead)
}

func TestNextWrapsAround(t *testing.T) {
	assert.Equal(t, ID(0), ID(3).Next(1))
	assert.Equal(t, ID(2), ID(3).Next(3))
	assert.Equal(t, "none", None.String())
	assert.False(t, None.Valid())
	assert.False(t, ID(4).Valid())
}

func TestAdvance(t *testing.T) {
	p := Get(2).Advance(Vec2{X: 1.75, Z: 40}, 2.5)
	assert.InDelta(t, 37.5, p.Z, 1e-9)
	assert.InDelta(t, 1.75, p.X, 1e-9)
}

func TestVec2(t *testing.T) {
	a := Vec2{X: 3, Z: 4}
	b := Vec2{X: -1, Z: 2}

	assert.Equal(t, Vec2{X: 2, Z: 6}, a.Add(b))
	assert.Equal(t, Vec2{X: 4, Z: 2}, a.Sub(b))
	assert.Equal(t, Vec2{X: 1.5, Z: 2}, a.Scale(0.5))
	assert.InDelta(t, 5.0, a.Dot(b), 1e-9)
	assert.InDelta(t, 5.0, a.Length(), 1e-9)
}
