package detour

// GridMeshParams describes a flat navigation mesh made of square cells. Every walkable
// cell becomes one quad polygon and cells are grouped into square tiles.
type GridMeshParams struct {
	Orig       [3]float32
	CellSize   float32
	CellHeight float32
	TileCells  int // cells per tile side
	TilesX     int
	TilesZ     int

	// Walkable reports whether the global cell (x, z) carries a polygon. Nil means every cell.
	Walkable func(x, z int) bool
	// Area returns the area id of a cell. Nil means area 0.
	Area func(x, z int) uint8
	// Flags returns the polygon flags of a cell. Nil means 1.
	Flags func(x, z int) uint16

	WalkableHeight float32
	WalkableRadius float32
	WalkableClimb  float32
}

func (p *GridMeshParams) walkable(x, z int) bool {
	if x < 0 || z < 0 || x >= p.TilesX*p.TileCells || z >= p.TilesZ*p.TileCells {
		return false
	}
	return p.Walkable == nil || p.Walkable(x, z)
}

// TileWidth returns the world size of one tile.
func (p *GridMeshParams) TileWidth() float32 { return float32(p.TileCells) * p.CellSize }

// NavMeshParams returns the store parameters able to hold every tile of the grid.
func (p *GridMeshParams) NavMeshParams() *NavMeshParams {
	return &NavMeshParams{
		Orig:       p.Orig,
		TileWidth:  p.TileWidth(),
		TileHeight: p.TileWidth(),
		MaxTiles:   int32(p.TilesX * p.TilesZ),
		MaxPolys:   int32(p.TileCells * p.TileCells),
	}
}

// CreateParams converts tile (tx, tz) into builder input. It returns nil when the tile has no walkable cell.
func (p *GridMeshParams) CreateParams(tx, tz int) *DtNavMeshCreateParams {
	const nvp = DT_VERTS_PER_POLYGON
	n := p.TileCells
	vertIndex := map[[2]int]uint16{}
	var verts []uint16
	vert := func(x, z int) uint16 {
		key := [2]int{x, z}
		if idx, ok := vertIndex[key]; ok {
			return idx
		}
		idx := uint16(len(verts) / 3)
		verts = append(verts, uint16(x), 0, uint16(z))
		vertIndex[key] = idx
		return idx
	}

	polyIndex := make([]int, n*n)
	polyCount := 0
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			polyIndex[x+z*n] = -1
			if p.walkable(tx*n+x, tz*n+z) {
				polyIndex[x+z*n] = polyCount
				polyCount++
			}
		}
	}
	if polyCount == 0 {
		return nil
	}

	polys := make([]uint16, polyCount*nvp*2)
	for i := range polys {
		polys[i] = MESH_NULL_IDX
	}
	areas := make([]uint8, polyCount)
	flags := make([]uint16, polyCount)

	// Edge order follows the polygon winding: x-, z+, x+, z-.
	dx := [4]int{-1, 0, 1, 0}
	dz := [4]int{0, 1, 0, -1}
	for z := 0; z < n; z++ {
		for x := 0; x < n; x++ {
			pi := polyIndex[x+z*n]
			if pi < 0 {
				continue
			}
			gx, gz := tx*n+x, tz*n+z
			poly := polys[pi*nvp*2:]
			poly[0] = vert(x, z)
			poly[1] = vert(x, z+1)
			poly[2] = vert(x+1, z+1)
			poly[3] = vert(x+1, z)
			for e := 0; e < 4; e++ {
				nx, nz := x+dx[e], z+dz[e]
				if nx >= 0 && nz >= 0 && nx < n && nz < n {
					if ni := polyIndex[nx+nz*n]; ni >= 0 {
						poly[nvp+e] = uint16(ni)
					}
					continue
				}
				// Tile border. Mark a portal when the neighbouring cell carries a polygon.
				if p.walkable(gx+dx[e], gz+dz[e]) {
					poly[nvp+e] = 0x8000 | uint16(e)
				}
			}
			if p.Area != nil {
				areas[pi] = p.Area(gx, gz)
			}
			flags[pi] = 1
			if p.Flags != nil {
				flags[pi] = p.Flags(gx, gz)
			}
		}
	}

	tw := p.TileWidth()
	params := &DtNavMeshCreateParams{
		Verts:          verts,
		VertCount:      len(verts) / 3,
		Polys:          polys,
		PolyFlags:      flags,
		PolyAreas:      areas,
		PolyCount:      polyCount,
		Nvp:            nvp,
		TileX:          int32(tx),
		TileY:          int32(tz),
		WalkableHeight: p.WalkableHeight,
		WalkableRadius: p.WalkableRadius,
		WalkableClimb:  p.WalkableClimb,
		Cs:             p.CellSize,
		Ch:             p.CellHeight,
		BuildBvTree:    true,
	}
	params.Bmin = [3]float32{p.Orig[0] + float32(tx)*tw, p.Orig[1], p.Orig[2] + float32(tz)*tw}
	params.Bmax = [3]float32{params.Bmin[0] + tw, p.Orig[1] + p.WalkableHeight, params.Bmin[2] + tw}
	return params
}

// BuildGridTiles builds the data of every tile that has at least one walkable cell.
func BuildGridTiles(p *GridMeshParams) ([]*NavMeshData, DtStatus) {
	if p == nil || p.TileCells <= 0 || p.TilesX <= 0 || p.TilesZ <= 0 || p.CellSize <= 0 || p.CellHeight <= 0 {
		return nil, DT_FAILURE | DT_INVALID_PARAM
	}
	var tiles []*NavMeshData
	for tz := 0; tz < p.TilesZ; tz++ {
		for tx := 0; tx < p.TilesX; tx++ {
			params := p.CreateParams(tx, tz)
			if params == nil {
				continue
			}
			data, status := DtCreateNavMeshData(params)
			if status.Failed() {
				return nil, status
			}
			tiles = append(tiles, data)
		}
	}
	return tiles, DT_SUCCESS
}

// NewGridNavMesh builds the grid and adds all of its tiles to a new navigation mesh.
func NewGridNavMesh(p *GridMeshParams) (*DtNavMesh, DtStatus) {
	tiles, status := BuildGridTiles(p)
	if status.Failed() {
		return nil, status
	}
	nav, status := NewDtNavMesh(p.NavMeshParams())
	if status.Failed() {
		return nil, status
	}
	for _, data := range tiles {
		if _, status = nav.AddTile(data, 0); status.Failed() {
			return nil, status
		}
	}
	return nav, DT_SUCCESS
}
