package detour_tile_cache

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/detour"
	"go.uber.org/zap"
	"gopkg.in/eapache/queue.v1"
)

type DtObstacleRef uint32

type DtCompressedTileRef uint32

const (
	DT_OBSTACLE_EMPTY uint8 = iota
	DT_OBSTACLE_PROCESSING
	DT_OBSTACLE_PROCESSED
	DT_OBSTACLE_REMOVING
)

const (
	DT_OBSTACLE_CYLINDER     uint8 = iota
	DT_OBSTACLE_BOX                // AABB
	DT_OBSTACLE_ORIENTED_BOX       // OBB
)

const (
	MAX_REQUESTS         = 64
	MAX_UPDATE           = 64
	DT_MAX_TOUCHED_TILES = 8
	// DT_MAX_TILE_OBSTACLES caps the live obstacles stamped into one tile.
	DT_MAX_TILE_OBSTACLES = 16
)

const (
	requestAdd = iota
	requestRemove
)

// MeshProcessFunc is invoked on every rebuilt tile before the navmesh data is
// created. It fills the per polygon area ids and flags.
type MeshProcessFunc func(params *detour.DtNavMeshCreateParams, areas []uint8, flags []uint16)

type DtTileCacheParams struct {
	Orig                   [3]float32
	Cs, Ch                 float32
	Width, Height          int
	WalkableHeight         float32
	WalkableRadius         float32
	WalkableClimb          float32
	MaxSimplificationError float32
	MaxTiles               int
	MaxObstacles           int
}

// ObstacleShape is the user facing description of an obstacle.
type ObstacleShape struct {
	Type uint8 `msgpack:"type"`

	// Cylinder.
	Pos    [3]float32 `msgpack:"pos,omitempty"`
	Radius float32    `msgpack:"radius,omitempty"`
	Height float32    `msgpack:"height,omitempty"`

	// Axis aligned box.
	Bmin [3]float32 `msgpack:"bmin,omitempty"`
	Bmax [3]float32 `msgpack:"bmax,omitempty"`

	// Oriented box, rotated by YRadians around the y axis.
	Center      [3]float32 `msgpack:"center,omitempty"`
	HalfExtents [3]float32 `msgpack:"half_extents,omitempty"`
	YRadians    float32    `msgpack:"y_radians,omitempty"`
}

// Bounds returns the world AABB of the shape.
func (s *ObstacleShape) Bounds() (bmin, bmax [3]float32) {
	switch s.Type {
	case DT_OBSTACLE_CYLINDER:
		bmin = [3]float32{s.Pos[0] - s.Radius, s.Pos[1], s.Pos[2] - s.Radius}
		bmax = [3]float32{s.Pos[0] + s.Radius, s.Pos[1] + s.Height, s.Pos[2] + s.Radius}
	case DT_OBSTACLE_BOX:
		bmin, bmax = s.Bmin, s.Bmax
	case DT_OBSTACLE_ORIENTED_BOX:
		maxr := 1.41 * max(s.HalfExtents[0], s.HalfExtents[2])
		bmin = [3]float32{s.Center[0] - maxr, s.Center[1] - s.HalfExtents[1], s.Center[2] - maxr}
		bmax = [3]float32{s.Center[0] + maxr, s.Center[1] + s.HalfExtents[1], s.Center[2] + maxr}
	}
	return bmin, bmax
}

func (s *ObstacleShape) validate() bool {
	switch s.Type {
	case DT_OBSTACLE_CYLINDER:
		return s.Radius > 0 && s.Height >= 0 && common.Visfinite(s.Pos[:])
	case DT_OBSTACLE_BOX:
		return common.Visfinite(s.Bmin[:]) && common.Visfinite(s.Bmax[:]) &&
			s.Bmin[0] <= s.Bmax[0] && s.Bmin[1] <= s.Bmax[1] && s.Bmin[2] <= s.Bmax[2]
	case DT_OBSTACLE_ORIENTED_BOX:
		return common.Visfinite(s.Center[:]) && s.HalfExtents[0] > 0 && s.HalfExtents[1] >= 0 &&
			s.HalfExtents[2] > 0 && common.IsFinite(s.YRadians)
	}
	return false
}

// rotAux returns { cos(0.5*angle)*sin(-0.5*angle), cos(0.5*angle)*cos(0.5*angle) - 0.5 }.
func rotAux(yRadians float32) [2]float32 {
	q := mgl32.QuatRotate(-yRadians, mgl32.Vec3{0, 1, 0})
	// q.W = cos(-a/2) = cos(a/2), q.V[1] = sin(-a/2)
	return [2]float32{q.W * q.V[1], q.W*q.W - 0.5}
}

type CompressedTile struct {
	salt   uint32 ///< Counter describing modifications to the tile.
	index  int
	Header *DtTileCacheLayerHeader
	Data   []byte ///< Header followed by the compressed grids.
	next   *CompressedTile
}

type TileCacheObstacle struct {
	Shape   ObstacleShape
	rotAux  [2]float32
	touched []DtCompressedTileRef
	pending []DtCompressedTileRef
	salt    uint16
	index   int
	State   uint8

	// requests counts the add and remove requests still waiting in the queue.
	requests int
	next     *TileCacheObstacle
}

// Touched returns the tiles the obstacle was stamped into.
func (ob *TileCacheObstacle) Touched() []DtCompressedTileRef { return ob.touched }

// Pending returns the touched tiles that still await a rebuild.
func (ob *TileCacheObstacle) Pending() []DtCompressedTileRef { return ob.pending }

type obstacleRequest struct {
	action int
	ref    DtObstacleRef
}

// TileCache keeps compressed layers of a tiled navmesh and rebuilds the
// navmesh tiles touched by temporary obstacles.
type TileCache struct {
	m_tileLutSize int ///< Tile hash lookup size (must be pot).
	m_tileLutMask int ///< Tile hash lookup mask.

	m_posLookup    []*CompressedTile ///< Tile hash lookup.
	m_nextFreeTile *CompressedTile   ///< Freelist of tiles.
	m_tiles        []CompressedTile  ///< List of tiles.

	m_saltBits int ///< Number of salt bits in the tile ID.
	m_tileBits int ///< Number of tile bits in the tile ID.

	m_params DtTileCacheParams
	m_tcomp  DtTileCacheCompressor
	m_tmproc MeshProcessFunc

	m_obstacles        []TileCacheObstacle
	m_nextFreeObstacle *TileCacheObstacle

	m_reqs   *queue.Queue
	m_update []DtCompressedTileRef

	m_rebuilds int

	log *zap.Logger
}

// NewTileCache allocates and initialises a tile cache.
func NewTileCache(params *DtTileCacheParams, tcomp DtTileCacheCompressor, tmproc MeshProcessFunc, log *zap.Logger) (*TileCache, error) {
	tc := &TileCache{log: logger.OrNop(log)}
	if status := tc.Init(params, tcomp, tmproc); status.Failed() {
		return nil, fmt.Errorf("tile cache: init: %w", status.Err())
	}
	return tc, nil
}

func (tc *TileCache) SetLogger(log *zap.Logger) { tc.log = logger.OrNop(log) }

// Rebuilds returns how many tiles have been published into a navmesh.
func (tc *TileCache) Rebuilds() int { return tc.m_rebuilds }

// SetMeshProcess replaces the hook run on every rebuilt tile.
func (tc *TileCache) SetMeshProcess(fn MeshProcessFunc) { tc.m_tmproc = fn }

func (tc *TileCache) Init(params *DtTileCacheParams, tcomp DtTileCacheCompressor, tmproc MeshProcessFunc) detour.DtStatus {
	if params == nil || tcomp == nil || params.MaxTiles <= 0 || params.MaxObstacles <= 0 ||
		params.MaxObstacles > 0xffff || params.Cs <= 0 || params.Ch <= 0 ||
		params.Width <= 0 || params.Height <= 0 || params.Width > 255 || params.Height > 255 {
		return detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if tc.log == nil {
		tc.log = zap.NewNop()
	}
	tc.m_params = *params
	tc.m_tcomp = tcomp
	tc.m_tmproc = tmproc
	tc.m_reqs = queue.New()
	tc.m_update = make([]DtCompressedTileRef, 0, MAX_UPDATE)

	// Alloc space for obstacles.
	tc.m_obstacles = make([]TileCacheObstacle, params.MaxObstacles)
	tc.m_nextFreeObstacle = nil
	for i := params.MaxObstacles - 1; i >= 0; i-- {
		ob := &tc.m_obstacles[i]
		ob.index = i
		ob.salt = 1
		ob.next = tc.m_nextFreeObstacle
		tc.m_nextFreeObstacle = ob
	}

	// Init tiles
	tc.m_tileLutSize = int(common.NextPow2(uint32(params.MaxTiles / 4)))
	if tc.m_tileLutSize == 0 {
		tc.m_tileLutSize = 1
	}
	tc.m_tileLutMask = tc.m_tileLutSize - 1
	tc.m_posLookup = make([]*CompressedTile, tc.m_tileLutSize)

	tc.m_tiles = make([]CompressedTile, params.MaxTiles)
	tc.m_nextFreeTile = nil
	for i := params.MaxTiles - 1; i >= 0; i-- {
		tile := &tc.m_tiles[i]
		tile.index = i
		tile.salt = 1
		tile.next = tc.m_nextFreeTile
		tc.m_nextFreeTile = tile
	}

	// Init ID generator values.
	tc.m_tileBits = int(common.Ilog2(common.NextPow2(uint32(params.MaxTiles))))
	// Only allow 31 salt bits, since the salt mask is calculated using 32bit uint and it will overflow.
	tc.m_saltBits = min(31, 32-tc.m_tileBits)
	if tc.m_saltBits < 10 {
		return detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	return detour.DT_SUCCESS
}

func (tc *TileCache) GetCompressor() DtTileCacheCompressor { return tc.m_tcomp }
func (tc *TileCache) GetParams() *DtTileCacheParams        { return &tc.m_params }

func (tc *TileCache) GetTileCount() int                    { return len(tc.m_tiles) }
func (tc *TileCache) GetTile(i int) *CompressedTile         { return &tc.m_tiles[i] }
func (tc *TileCache) GetObstacleCount() int                { return len(tc.m_obstacles) }
func (tc *TileCache) GetObstacle(i int) *TileCacheObstacle { return &tc.m_obstacles[i] }

// / Encodes a tile id.
func (tc *TileCache) encodeTileId(salt uint32, it int) DtCompressedTileRef {
	return DtCompressedTileRef(salt<<tc.m_tileBits | uint32(it))
}

// / Decodes a tile salt.
func (tc *TileCache) decodeTileIdSalt(ref DtCompressedTileRef) uint32 {
	saltMask := uint32(1)<<tc.m_saltBits - 1
	return (uint32(ref) >> tc.m_tileBits) & saltMask
}

// / Decodes a tile id.
func (tc *TileCache) decodeTileIdTile(ref DtCompressedTileRef) int {
	tileMask := uint32(1)<<tc.m_tileBits - 1
	return int(uint32(ref) & tileMask)
}

func encodeObstacleId(salt uint16, it int) DtObstacleRef {
	return DtObstacleRef(uint32(salt)<<16 | uint32(it))
}

func decodeObstacleIdSalt(ref DtObstacleRef) uint16 { return uint16(ref >> 16) }

func decodeObstacleIdObstacle(ref DtObstacleRef) int { return int(ref & 0xffff) }

func (tc *TileCache) getTileRef(tile *CompressedTile) DtCompressedTileRef {
	if tile == nil {
		return 0
	}
	return tc.encodeTileId(tile.salt, tile.index)
}

func (tc *TileCache) GetObstacleRef(ob *TileCacheObstacle) DtObstacleRef {
	if ob == nil {
		return 0
	}
	return encodeObstacleId(ob.salt, ob.index)
}

func (tc *TileCache) GetTileByRef(ref DtCompressedTileRef) *CompressedTile {
	if ref == 0 {
		return nil
	}
	tileIndex := tc.decodeTileIdTile(ref)
	if tileIndex >= len(tc.m_tiles) {
		return nil
	}
	tile := &tc.m_tiles[tileIndex]
	if tile.salt != tc.decodeTileIdSalt(ref) || tile.Header == nil {
		return nil
	}
	return tile
}

func (tc *TileCache) GetObstacleByRef(ref DtObstacleRef) *TileCacheObstacle {
	if ref == 0 {
		return nil
	}
	idx := decodeObstacleIdObstacle(ref)
	if idx >= len(tc.m_obstacles) {
		return nil
	}
	ob := &tc.m_obstacles[idx]
	if ob.salt != decodeObstacleIdSalt(ref) {
		return nil
	}
	return ob
}

// GetTilesAt returns every layer stored at tile (tx, ty).
func (tc *TileCache) GetTilesAt(tx, ty int32) []DtCompressedTileRef {
	var tiles []DtCompressedTileRef
	h := common.ComputeTileHash(int(tx), int(ty), tc.m_tileLutMask)
	for tile := tc.m_posLookup[h]; tile != nil; tile = tile.next {
		if tile.Header != nil && tile.Header.Tx == tx && tile.Header.Ty == ty {
			tiles = append(tiles, tc.getTileRef(tile))
		}
	}
	return tiles
}

func (tc *TileCache) getTileAt(tx, ty, tlayer int32) *CompressedTile {
	h := common.ComputeTileHash(int(tx), int(ty), tc.m_tileLutMask)
	for tile := tc.m_posLookup[h]; tile != nil; tile = tile.next {
		if tile.Header != nil && tile.Header.Tx == tx && tile.Header.Ty == ty && tile.Header.Tlayer == tlayer {
			return tile
		}
	}
	return nil
}

// AddTile stores a compressed layer built by DtBuildTileCacheLayer.
func (tc *TileCache) AddTile(data []byte) (DtCompressedTileRef, detour.DtStatus) {
	header, status := DtDecodeTileCacheLayerHeader(data)
	if status.Failed() {
		return 0, status
	}
	if int(header.Width) != tc.m_params.Width || int(header.Height) != tc.m_params.Height {
		return 0, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}

	// Make sure the location is free.
	if tc.getTileAt(header.Tx, header.Ty, header.Tlayer) != nil {
		return 0, detour.DT_FAILURE | detour.DT_ALREADY_OCCUPIED
	}

	// Allocate a tile.
	tile := tc.m_nextFreeTile
	if tile == nil {
		return 0, detour.DT_FAILURE | detour.DT_OUT_OF_MEMORY
	}
	tc.m_nextFreeTile = tile.next
	tile.next = nil

	// Insert tile into the position lut.
	h := common.ComputeTileHash(int(header.Tx), int(header.Ty), tc.m_tileLutMask)
	tile.next = tc.m_posLookup[h]
	tc.m_posLookup[h] = tile

	tile.Header = header
	tile.Data = data
	return tc.getTileRef(tile), detour.DT_SUCCESS
}

// RemoveTile frees the tile slot and returns the stored data.
func (tc *TileCache) RemoveTile(ref DtCompressedTileRef) ([]byte, detour.DtStatus) {
	tile := tc.GetTileByRef(ref)
	if tile == nil {
		return nil, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}

	// Remove tile from hash lookup.
	h := common.ComputeTileHash(int(tile.Header.Tx), int(tile.Header.Ty), tc.m_tileLutMask)
	var prev *CompressedTile
	for cur := tc.m_posLookup[h]; cur != nil; prev, cur = cur, cur.next {
		if cur == tile {
			if prev != nil {
				prev.next = cur.next
			} else {
				tc.m_posLookup[h] = cur.next
			}
			break
		}
	}

	data := tile.Data
	tile.Header = nil
	tile.Data = nil

	// Update salt, salt should never be zero.
	tile.salt = (tile.salt + 1) & (uint32(1)<<tc.m_saltBits - 1)
	if tile.salt == 0 {
		tile.salt++
	}

	// Add to free list.
	tile.next = tc.m_nextFreeTile
	tc.m_nextFreeTile = tile
	return data, detour.DT_SUCCESS
}

// AddObstacle queues a vertical cylinder obstacle.
func (tc *TileCache) AddObstacle(pos []float32, radius, height float32) (DtObstacleRef, detour.DtStatus) {
	if len(pos) < 3 {
		return 0, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	shape := ObstacleShape{Type: DT_OBSTACLE_CYLINDER, Radius: radius, Height: height}
	copy(shape.Pos[:], pos)
	return tc.AddObstacleShape(shape)
}

// AddBoxObstacle queues an axis aligned box obstacle.
func (tc *TileCache) AddBoxObstacle(bmin, bmax []float32) (DtObstacleRef, detour.DtStatus) {
	if len(bmin) < 3 || len(bmax) < 3 {
		return 0, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	shape := ObstacleShape{Type: DT_OBSTACLE_BOX}
	copy(shape.Bmin[:], bmin)
	copy(shape.Bmax[:], bmax)
	return tc.AddObstacleShape(shape)
}

// AddOrientedBoxObstacle queues a box rotated by yRadians around the y axis.
func (tc *TileCache) AddOrientedBoxObstacle(center, halfExtents []float32, yRadians float32) (DtObstacleRef, detour.DtStatus) {
	if len(center) < 3 || len(halfExtents) < 3 {
		return 0, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	shape := ObstacleShape{Type: DT_OBSTACLE_ORIENTED_BOX, YRadians: yRadians}
	copy(shape.Center[:], center)
	copy(shape.HalfExtents[:], halfExtents)
	return tc.AddObstacleShape(shape)
}

// AddObstacleShape queues an obstacle. It fails with DT_BUFFER_TOO_SMALL when
// the request queue is full, the obstacle would touch more than
// DT_MAX_TOUCHED_TILES tiles or one of its tiles already holds
// DT_MAX_TILE_OBSTACLES obstacles.
func (tc *TileCache) AddObstacleShape(shape ObstacleShape) (DtObstacleRef, detour.DtStatus) {
	return tc.addObstacleShape(shape, MAX_REQUESTS)
}

// AddObstacles queues a batch of obstacles, e.g. when restoring a saved
// scene. The batch is not subject to the request limit.
func (tc *TileCache) AddObstacles(shapes []ObstacleShape) ([]DtObstacleRef, detour.DtStatus) {
	refs := make([]DtObstacleRef, 0, len(shapes))
	limit := tc.m_reqs.Length() + len(shapes)
	for _, s := range shapes {
		ref, status := tc.addObstacleShape(s, limit)
		if status.Failed() {
			return refs, status
		}
		refs = append(refs, ref)
	}
	return refs, detour.DT_SUCCESS
}

func (tc *TileCache) addObstacleShape(shape ObstacleShape, maxRequests int) (DtObstacleRef, detour.DtStatus) {
	if !shape.validate() {
		return 0, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if tc.m_reqs.Length() >= maxRequests {
		return 0, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}
	bmin, bmax := shape.Bounds()
	touched, status := tc.QueryTiles(bmin[:], bmax[:], DT_MAX_TOUCHED_TILES)
	if status.Detail(detour.DT_BUFFER_TOO_SMALL) {
		return 0, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}
	for _, ref := range touched {
		if tc.tileObstacleCount(ref) >= DT_MAX_TILE_OBSTACLES {
			tc.log.Debug("tile obstacle limit reached", zap.Uint32("tile", uint32(ref)))
			return 0, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
		}
	}

	ob := tc.m_nextFreeObstacle
	if ob == nil {
		return 0, detour.DT_FAILURE | detour.DT_OUT_OF_MEMORY
	}
	tc.m_nextFreeObstacle = ob.next

	*ob = TileCacheObstacle{
		Shape:    shape,
		salt:     ob.salt,
		index:    ob.index,
		State:    DT_OBSTACLE_PROCESSING,
		touched:  ob.touched[:0],
		pending:  ob.pending[:0],
		requests: 1,
	}
	if shape.Type == DT_OBSTACLE_ORIENTED_BOX {
		ob.rotAux = rotAux(shape.YRadians)
	}

	ref := tc.GetObstacleRef(ob)
	tc.m_reqs.Add(obstacleRequest{action: requestAdd, ref: ref})
	return ref, detour.DT_SUCCESS
}

// RemoveObstacle queues the removal of an obstacle.
func (tc *TileCache) RemoveObstacle(ref DtObstacleRef) detour.DtStatus {
	if ref == 0 {
		return detour.DT_SUCCESS
	}
	ob := tc.GetObstacleByRef(ref)
	if ob == nil {
		return detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if tc.m_reqs.Length() >= MAX_REQUESTS {
		return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}
	ob.requests++
	tc.m_reqs.Add(obstacleRequest{action: requestRemove, ref: ref})
	return detour.DT_SUCCESS
}

// QueryTiles returns the tiles whose tight bounds overlap the box. When more
// than maxResults tiles overlap the result is truncated and the status carries
// DT_BUFFER_TOO_SMALL.
func (tc *TileCache) QueryTiles(bmin, bmax []float32, maxResults int) ([]DtCompressedTileRef, detour.DtStatus) {
	var results []DtCompressedTileRef
	status := detour.DT_SUCCESS

	tw := float32(tc.m_params.Width) * tc.m_params.Cs
	th := float32(tc.m_params.Height) * tc.m_params.Cs
	tx0 := int32(math.Floor(float64((bmin[0] - tc.m_params.Orig[0]) / tw)))
	tx1 := int32(math.Floor(float64((bmax[0] - tc.m_params.Orig[0]) / tw)))
	ty0 := int32(math.Floor(float64((bmin[2] - tc.m_params.Orig[2]) / th)))
	ty1 := int32(math.Floor(float64((bmax[2] - tc.m_params.Orig[2]) / th)))

	for ty := ty0; ty <= ty1; ty++ {
		for tx := tx0; tx <= tx1; tx++ {
			for _, ref := range tc.GetTilesAt(tx, ty) {
				tile := &tc.m_tiles[tc.decodeTileIdTile(ref)]
				tbmin, tbmax := tc.CalcTightTileBounds(tile.Header)
				if !common.OverlapBounds(bmin, bmax, tbmin[:], tbmax[:]) {
					continue
				}
				if len(results) >= maxResults {
					status |= detour.DT_BUFFER_TOO_SMALL
					continue
				}
				results = append(results, ref)
			}
		}
	}
	return results, status
}

// obstacleTiles returns the tiles the obstacle bounds overlap.
func (tc *TileCache) obstacleTiles(ob *TileCacheObstacle) []DtCompressedTileRef {
	bmin, bmax := ob.Shape.Bounds()
	touched, _ := tc.QueryTiles(bmin[:], bmax[:], DT_MAX_TOUCHED_TILES)
	return touched
}

// tileObstacleCount counts the live obstacles stamped into the tile, including
// the ones whose add request is still queued.
func (tc *TileCache) tileObstacleCount(ref DtCompressedTileRef) int {
	n := 0
	for i := range tc.m_obstacles {
		ob := &tc.m_obstacles[i]
		if ob.State != DT_OBSTACLE_PROCESSING && ob.State != DT_OBSTACLE_PROCESSED {
			continue
		}
		touched := ob.touched
		if ob.State == DT_OBSTACLE_PROCESSING && ob.requests > 0 {
			touched = tc.obstacleTiles(ob)
		}
		if containsRef(touched, ref) {
			n++
		}
	}
	return n
}

// updateFits reports whether the tiles can join the current rebuild batch.
func (tc *TileCache) updateFits(tiles []DtCompressedTileRef) bool {
	n := len(tc.m_update)
	for _, ref := range tiles {
		if !containsRef(tc.m_update, ref) {
			n++
		}
	}
	return n <= MAX_UPDATE
}

func (tc *TileCache) queueUpdate(ob *TileCacheObstacle) {
	ob.pending = append(ob.pending[:0], ob.touched...)
	for _, ref := range ob.touched {
		if !containsRef(tc.m_update, ref) {
			tc.m_update = append(tc.m_update, ref)
		}
	}
	common.AssertTrue(len(tc.m_update) <= MAX_UPDATE, "tile update batch overflow")
}

func containsRef(refs []DtCompressedTileRef, v DtCompressedTileRef) bool {
	for _, r := range refs {
		if r == v {
			return true
		}
	}
	return false
}

// Update services the queued obstacle requests once the previous batch of
// rebuilds is done and then rebuilds at most one tile. A batch holds at most
// MAX_UPDATE tiles, the requests that do not fit stay queued for the next one.
func (tc *TileCache) Update(dt float32, navmesh *detour.DtNavMesh) (upToDate bool, status detour.DtStatus) {
	if navmesh == nil {
		return false, detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	if len(tc.m_update) == 0 {
		// Process requests.
		for tc.m_reqs.Length() > 0 {
			req := tc.m_reqs.Peek().(obstacleRequest)
			ob := tc.GetObstacleByRef(req.ref)
			if ob == nil {
				tc.m_reqs.Remove()
				continue
			}
			// Find touched tiles.
			var touched []DtCompressedTileRef
			switch req.action {
			case requestAdd:
				if ob.State == DT_OBSTACLE_PROCESSING {
					touched = tc.obstacleTiles(ob)
				}
			case requestRemove:
				touched = ob.touched
			}
			if !tc.updateFits(touched) {
				break
			}
			tc.m_reqs.Remove()
			ob.requests--

			switch req.action {
			case requestAdd:
				if ob.State != DT_OBSTACLE_PROCESSING {
					continue
				}
				ob.touched = append(ob.touched[:0], touched...)
				tc.queueUpdate(ob)
			case requestRemove:
				if ob.State == DT_OBSTACLE_EMPTY || ob.State == DT_OBSTACLE_REMOVING {
					continue
				}
				// Prepare to remove obstacle.
				ob.State = DT_OBSTACLE_REMOVING
				tc.queueUpdate(ob)
			}
		}
	}

	status = detour.DT_SUCCESS
	if len(tc.m_update) > 0 {
		ref := tc.m_update[0]
		status = tc.BuildNavMeshTile(ref, navmesh)
		tc.m_update = append(tc.m_update[:0], tc.m_update[1:]...)

		// Update obstacle states.
		for i := range tc.m_obstacles {
			ob := &tc.m_obstacles[i]
			if ob.State != DT_OBSTACLE_PROCESSING && ob.State != DT_OBSTACLE_REMOVING {
				continue
			}
			// Remove handled tile from pending list.
			for j, p := range ob.pending {
				if p == ref {
					ob.pending[j] = ob.pending[len(ob.pending)-1]
					ob.pending = ob.pending[:len(ob.pending)-1]
					break
				}
			}
			// If all pending tiles processed, change state.
			if len(ob.pending) > 0 || ob.requests > 0 {
				continue
			}
			if ob.State == DT_OBSTACLE_PROCESSING {
				ob.State = DT_OBSTACLE_PROCESSED
				continue
			}
			tc.freeObstacle(ob)
		}
	}

	// Obstacles touching no tile never enter the update list.
	for i := range tc.m_obstacles {
		ob := &tc.m_obstacles[i]
		if len(ob.pending) > 0 || ob.requests > 0 {
			continue
		}
		switch ob.State {
		case DT_OBSTACLE_REMOVING:
			tc.freeObstacle(ob)
		case DT_OBSTACLE_PROCESSING:
			ob.State = DT_OBSTACLE_PROCESSED
		}
	}

	return len(tc.m_update) == 0 && tc.m_reqs.Length() == 0, status
}

func (tc *TileCache) freeObstacle(ob *TileCacheObstacle) {
	ob.State = DT_OBSTACLE_EMPTY
	// Update salt, salt should never be zero.
	ob.salt++
	if ob.salt == 0 {
		ob.salt++
	}
	ob.touched = ob.touched[:0]
	ob.pending = ob.pending[:0]
	// Return obstacle to free list.
	ob.next = tc.m_nextFreeObstacle
	tc.m_nextFreeObstacle = ob
}

// BuildNavMeshTilesAt rebuilds every layer stored at tile (tx, ty).
func (tc *TileCache) BuildNavMeshTilesAt(tx, ty int32, navmesh *detour.DtNavMesh) detour.DtStatus {
	for _, ref := range tc.GetTilesAt(tx, ty) {
		if status := tc.BuildNavMeshTile(ref, navmesh); status.Failed() {
			return status
		}
	}
	return detour.DT_SUCCESS
}

// BuildNavMeshTile decompresses the tile, stamps the live obstacles into it and
// replaces the navmesh tile at the same location. On failure the previous
// navmesh tile stays in place under its old ref.
func (tc *TileCache) BuildNavMeshTile(ref DtCompressedTileRef, navmesh *detour.DtNavMesh) detour.DtStatus {
	tile := tc.GetTileByRef(ref)
	if tile == nil || navmesh == nil {
		return detour.DT_FAILURE | detour.DT_INVALID_PARAM
	}
	header := tile.Header
	navData, status := tc.buildTileData(ref, tile)
	if status.Failed() {
		tc.log.Warn("tile rebuild failed", zap.Stringer("tile", header), zap.Stringer("status", status))
		return status
	}

	// Remove existing tile.
	var oldData *detour.NavMeshData
	old := navmesh.GetTileRefAt(header.Tx, header.Ty, header.Tlayer)
	if old != 0 {
		if oldData, status = navmesh.RemoveTile(old); status.Failed() {
			tc.log.Warn("remove navmesh tile failed", zap.Stringer("tile", header), zap.Stringer("status", status))
			return status
		}
	}

	// Add new tile, or leave the location empty.
	if navData == nil {
		tc.m_rebuilds++
		tc.log.Debug("tile rebuilt empty", zap.Stringer("tile", header))
		return detour.DT_SUCCESS
	}
	if _, status = navmesh.AddTile(navData, 0); status.Failed() {
		tc.log.Warn("add navmesh tile failed", zap.Stringer("tile", header), zap.Stringer("status", status))
		if oldData != nil {
			if _, restored := navmesh.AddTile(oldData, old); restored.Failed() {
				tc.log.Error("restore navmesh tile failed", zap.Stringer("tile", header), zap.Stringer("status", restored))
			}
		}
		return status
	}
	tc.m_rebuilds++
	tc.log.Debug("tile rebuilt", zap.Stringer("tile", header), zap.Int("polys", int(navData.Header.PolyCount)))
	return detour.DT_SUCCESS
}

// buildTileData runs the layer pipeline. A nil result with success means the
// tile has no walkable polygon left.
func (tc *TileCache) buildTileData(ref DtCompressedTileRef, tile *CompressedTile) (*detour.NavMeshData, detour.DtStatus) {
	layer, status := DtDecompressTileCacheLayer(tc.m_tcomp, tile.Data)
	if status.Failed() {
		return nil, status
	}
	walkableClimbVx := int(tc.m_params.WalkableClimb / tc.m_params.Ch)
	orig := tile.Header.Bmin[:]
	cs, ch := tc.m_params.Cs, tc.m_params.Ch

	// Rasterize obstacles.
	for i := range tc.m_obstacles {
		ob := &tc.m_obstacles[i]
		if ob.State == DT_OBSTACLE_EMPTY || ob.State == DT_OBSTACLE_REMOVING {
			continue
		}
		if !containsRef(ob.touched, ref) {
			continue
		}
		s := &ob.Shape
		switch s.Type {
		case DT_OBSTACLE_CYLINDER:
			DtMarkCylinderArea(layer, orig, cs, ch, s.Pos[:], s.Radius, s.Height, DT_TILECACHE_NULL_AREA)
		case DT_OBSTACLE_BOX:
			DtMarkBoxArea(layer, orig, cs, ch, s.Bmin[:], s.Bmax[:], DT_TILECACHE_NULL_AREA)
		case DT_OBSTACLE_ORIENTED_BOX:
			DtMarkOrientedBoxArea(layer, orig, cs, ch, s.Center[:], s.HalfExtents[:], ob.rotAux[:], DT_TILECACHE_NULL_AREA)
		}
	}

	// Build navmesh
	if status = DtBuildTileCacheRegions(layer, walkableClimbVx); status.Failed() {
		return nil, status
	}
	lcset, status := DtBuildTileCacheContours(layer, walkableClimbVx, tc.m_params.MaxSimplificationError)
	if status.Failed() {
		return nil, status
	}
	lmesh, status := DtBuildTileCachePolyMesh(lcset)
	if status.Failed() {
		return nil, status
	}

	// Early out if the mesh tile is empty.
	if lmesh.Npolys == 0 {
		return nil, detour.DT_SUCCESS
	}

	params := &detour.DtNavMeshCreateParams{
		Verts:          lmesh.Verts,
		VertCount:      lmesh.Nverts,
		Polys:          lmesh.Polys,
		PolyAreas:      lmesh.Areas,
		PolyFlags:      lmesh.Flags,
		PolyCount:      lmesh.Npolys,
		Nvp:            detour.DT_VERTS_PER_POLYGON,
		WalkableHeight: tc.m_params.WalkableHeight,
		WalkableRadius: tc.m_params.WalkableRadius,
		WalkableClimb:  tc.m_params.WalkableClimb,
		TileX:          tile.Header.Tx,
		TileY:          tile.Header.Ty,
		TileLayer:      tile.Header.Tlayer,
		Cs:             cs,
		Ch:             ch,
		BuildBvTree:    false,
		Bmin:           tile.Header.Bmin,
		Bmax:           tile.Header.Bmax,
	}
	if tc.m_tmproc != nil {
		tc.m_tmproc(params, lmesh.Areas, lmesh.Flags)
	}
	return detour.DtCreateNavMeshData(params)
}

// CalcTightTileBounds returns the bounds of the usable sub-region of a layer.
func (tc *TileCache) CalcTightTileBounds(header *DtTileCacheLayerHeader) (bmin, bmax [3]float32) {
	cs := tc.m_params.Cs
	bmin[0] = header.Bmin[0] + float32(header.Minx)*cs
	bmin[1] = header.Bmin[1]
	bmin[2] = header.Bmin[2] + float32(header.Miny)*cs
	bmax[0] = header.Bmin[0] + float32(int(header.Maxx)+1)*cs
	bmax[1] = header.Bmax[1]
	bmax[2] = header.Bmin[2] + float32(int(header.Maxy)+1)*cs
	return bmin, bmax
}

func (tc *TileCache) GetObstacleBounds(ob *TileCacheObstacle) (bmin, bmax [3]float32) {
	return ob.Shape.Bounds()
}

// Obstacles returns the shapes of the obstacles that are not being removed.
func (tc *TileCache) Obstacles() []ObstacleShape {
	var shapes []ObstacleShape
	for i := range tc.m_obstacles {
		ob := &tc.m_obstacles[i]
		if ob.State == DT_OBSTACLE_PROCESSING || ob.State == DT_OBSTACLE_PROCESSED {
			shapes = append(shapes, ob.Shape)
		}
	}
	return shapes
}
