package scene

import (
	"github.com/gorustyt/navrt/detour"
	"github.com/gorustyt/navrt/detour_tile_cache"
)

// Polygon areas.
const (
	AREA_GROUND uint8 = 0
	AREA_WATER  uint8 = 1
	AREA_ROAD   uint8 = 2
	AREA_DOOR   uint8 = 3
	AREA_GRASS  uint8 = 4
	AREA_JUMP   uint8 = 5
)

// Polygon flags.
const (
	FLAG_WALK     uint16 = 0x01 // Ability to walk (ground, grass, road)
	FLAG_SWIM     uint16 = 0x02 // Ability to swim (water).
	FLAG_DOOR     uint16 = 0x04 // Ability to move through doors.
	FLAG_JUMP     uint16 = 0x08 // Ability to jump.
	FLAG_DISABLED uint16 = 0x10 // Disabled polygon
	FLAG_ALL      uint16 = 0xffff

	DEFAULT_INCLUDE_FLAGS = FLAG_ALL ^ FLAG_DISABLED
	DEFAULT_EXCLUDE_FLAGS = 0
)

var areaCosts = [...]float32{
	AREA_GROUND: 1,
	AREA_WATER:  10,
	AREA_ROAD:   1,
	AREA_DOOR:   1,
	AREA_GRASS:  2,
	AREA_JUMP:   1.5,
}

var areaNames = map[string]uint8{
	"ground": AREA_GROUND,
	"water":  AREA_WATER,
	"road":   AREA_ROAD,
	"door":   AREA_DOOR,
	"grass":  AREA_GRASS,
	"jump":   AREA_JUMP,
}

func AreaByName(name string) (uint8, bool) {
	a, ok := areaNames[name]
	return a, ok
}

// AreaFlags returns the polygon flags a polygon of the area gets.
func AreaFlags(area uint8) uint16 {
	switch area {
	case AREA_WATER:
		return FLAG_SWIM
	case AREA_DOOR:
		return FLAG_WALK | FLAG_DOOR
	case AREA_JUMP:
		return FLAG_JUMP
	default:
		return FLAG_WALK
	}
}

// NewDefaultFilter returns a filter with the preset area costs that passes
// everything but disabled polygons.
func NewDefaultFilter() *detour.DtQueryFilter {
	f := detour.NewDtQueryFilter()
	for area, cost := range areaCosts {
		f.SetAreaCost(area, cost)
	}
	f.SetIncludeFlags(DEFAULT_INCLUDE_FLAGS)
	f.SetExcludeFlags(DEFAULT_EXCLUDE_FLAGS)
	return f
}

// meshProcess turns the generic walkable area of rebuilt tiles into ground
// and derives the flags from the area.
func meshProcess(params *detour.DtNavMeshCreateParams, areas []uint8, flags []uint16) {
	for i := 0; i < params.PolyCount; i++ {
		if areas[i] == detour_tile_cache.DT_TILECACHE_WALKABLE_AREA {
			areas[i] = AREA_GROUND
		}
		flags[i] = AreaFlags(areas[i])
	}
}
