package detour_crowd

import (
	"math"

	"github.com/gorustyt/navrt/common"
)

const proximityNull = 0xffff

type proximityItem struct {
	id   uint16
	x, y int32
	next uint16
}

// ProximityGrid buckets item bounds into a hashed uniform 2D grid.
// Items are re-added every tick after Clear; ids are caller defined.
type ProximityGrid struct {
	m_cellSize    float32
	m_invCellSize float32

	m_pool     []proximityItem
	m_poolHead int

	m_buckets []uint16

	m_bounds [4]int32
}

func hashPos2(x, y int32, n int) int {
	return int(uint32(x*73856093)^uint32(y*19349663)) & (n - 1)
}

// NewProximityGrid allocates a grid with room for poolSize cell entries.
func NewProximityGrid(poolSize int, cellSize float32) *ProximityGrid {
	common.AssertTrue(poolSize > 0 && poolSize < proximityNull, "proximity grid pool size")
	common.AssertTrue(cellSize > 0, "proximity grid cell size")
	g := &ProximityGrid{
		m_cellSize:    cellSize,
		m_invCellSize: 1.0 / cellSize,
		m_buckets:     make([]uint16, common.NextPow2(uint32(poolSize))),
		m_pool:        make([]proximityItem, poolSize),
	}
	g.Clear()
	return g
}

func (g *ProximityGrid) GetBounds() [4]int32  { return g.m_bounds }
func (g *ProximityGrid) GetCellSize() float32 { return g.m_cellSize }
func (g *ProximityGrid) GetPoolSize() int     { return len(g.m_pool) }

func (g *ProximityGrid) Clear() {
	for i := range g.m_buckets {
		g.m_buckets[i] = proximityNull
	}
	g.m_poolHead = 0
	g.m_bounds = [4]int32{math.MaxInt16, math.MaxInt16, -math.MaxInt16, -math.MaxInt16}
}

func (g *ProximityGrid) cell(v float32) int32 {
	return int32(math.Floor(float64(v * g.m_invCellSize)))
}

// AddItem registers id in every cell overlapped by the rectangle. Entries past the
// pool capacity are dropped.
func (g *ProximityGrid) AddItem(id uint16, minx, miny, maxx, maxy float32) {
	iminx, iminy := g.cell(minx), g.cell(miny)
	imaxx, imaxy := g.cell(maxx), g.cell(maxy)

	g.m_bounds[0] = min(g.m_bounds[0], iminx)
	g.m_bounds[1] = min(g.m_bounds[1], iminy)
	g.m_bounds[2] = max(g.m_bounds[2], imaxx)
	g.m_bounds[3] = max(g.m_bounds[3], imaxy)

	for y := iminy; y <= imaxy; y++ {
		for x := iminx; x <= imaxx; x++ {
			if g.m_poolHead >= len(g.m_pool) {
				return
			}
			h := hashPos2(x, y, len(g.m_buckets))
			idx := uint16(g.m_poolHead)
			g.m_poolHead++
			item := &g.m_pool[idx]
			item.x = x
			item.y = y
			item.id = id
			item.next = g.m_buckets[h]
			g.m_buckets[h] = idx
		}
	}
}

// QueryItems returns the distinct ids registered in the cells overlapped by the
// rectangle, at most maxIds of them.
func (g *ProximityGrid) QueryItems(minx, miny, maxx, maxy float32, maxIds int) []uint16 {
	iminx, iminy := g.cell(minx), g.cell(miny)
	imaxx, imaxy := g.cell(maxx), g.cell(maxy)

	ids := make([]uint16, 0, maxIds)
	for y := iminy; y <= imaxy; y++ {
		for x := iminx; x <= imaxx; x++ {
			h := hashPos2(x, y, len(g.m_buckets))
			for idx := g.m_buckets[h]; idx != proximityNull; idx = g.m_pool[idx].next {
				item := &g.m_pool[idx]
				if item.x != x || item.y != y {
					continue
				}
				found := false
				for _, id := range ids {
					if id == item.id {
						found = true
						break
					}
				}
				if found {
					continue
				}
				if len(ids) >= maxIds {
					return ids
				}
				ids = append(ids, item.id)
			}
		}
	}
	return ids
}

func (g *ProximityGrid) GetItemCountAt(x, y int32) int {
	n := 0
	h := hashPos2(x, y, len(g.m_buckets))
	for idx := g.m_buckets[h]; idx != proximityNull; idx = g.m_pool[idx].next {
		if g.m_pool[idx].x == x && g.m_pool[idx].y == y {
			n++
		}
	}
	return n
}
