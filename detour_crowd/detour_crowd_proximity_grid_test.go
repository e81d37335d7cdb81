package detour_crowd

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProximityGridQuery(t *testing.T) {
	g := NewProximityGrid(16, 1)
	g.AddItem(1, 0.2, 0.2, 0.8, 0.8)
	g.AddItem(2, 0.5, 0.5, 1.5, 1.5)

	assert.ElementsMatch(t, []uint16{1, 2}, g.QueryItems(0, 0, 0.9, 0.9, 8))
	assert.ElementsMatch(t, []uint16{2}, g.QueryItems(1.1, 1.1, 1.2, 1.2, 8))
	assert.Empty(t, g.QueryItems(10, 10, 11, 11, 8))
	// an id spanning several queried cells is reported once
	assert.ElementsMatch(t, []uint16{1, 2}, g.QueryItems(-1, -1, 3, 3, 8))

	assert.Equal(t, 2, g.GetItemCountAt(0, 0))
	assert.Equal(t, 1, g.GetItemCountAt(1, 1))
	assert.Equal(t, 0, g.GetItemCountAt(5, 5))
	assert.Equal(t, [4]int32{0, 0, 1, 1}, g.GetBounds())
	assert.EqualValues(t, 1, g.GetCellSize())

	g.Clear()
	assert.Equal(t, 0, g.GetItemCountAt(0, 0))
	assert.Empty(t, g.QueryItems(0, 0, 0.9, 0.9, 8))
	assert.Equal(t, [4]int32{math.MaxInt16, math.MaxInt16, -math.MaxInt16, -math.MaxInt16}, g.GetBounds())
}

func TestProximityGridNegativeCells(t *testing.T) {
	g := NewProximityGrid(8, 0.5)
	g.AddItem(7, -1.4, -1.4, -1.1, -1.1)
	assert.Equal(t, 1, g.GetItemCountAt(-3, -3))
	assert.ElementsMatch(t, []uint16{7}, g.QueryItems(-1.3, -1.3, -1.2, -1.2, 4))
	assert.Empty(t, g.QueryItems(1.1, 1.1, 1.4, 1.4, 4))
}

func TestProximityGridLimits(t *testing.T) {
	// the pool holds two cell entries, the remaining cells are dropped
	g := NewProximityGrid(2, 1)
	g.AddItem(1, 0.5, 0.5, 1.5, 1.5)
	assert.Equal(t, 1, g.GetItemCountAt(0, 0))
	assert.Equal(t, 1, g.GetItemCountAt(1, 0))
	assert.Equal(t, 0, g.GetItemCountAt(0, 1))
	assert.Equal(t, 0, g.GetItemCountAt(1, 1))

	g = NewProximityGrid(16, 1)
	for id := uint16(0); id < 5; id++ {
		g.AddItem(id, 0.1, 0.1, 0.2, 0.2)
	}
	assert.Len(t, g.QueryItems(0, 0, 0.5, 0.5, 3), 3)
	assert.Len(t, g.QueryItems(0, 0, 0.5, 0.5, 16), 5)
}
