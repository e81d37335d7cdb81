package detour

const (
	// / The maximum number of vertices per navigation polygon.
	DT_VERTS_PER_POLYGON = 6

	DT_NULL_LINK uint32 = 0xffffffff

	// / A flag that indicates that an entity links to an external entity.
	// / (E.g. A polygon edge is a portal that links to another polygon.)
	DT_EXT_LINK uint16 = 0x8000

	// / A flag that indicates that an off-mesh connection can be traversed in both directions. (Is bidirectional.)
	DT_OFFMESH_CON_BIDIR = 1

	// / A magic number used to detect compatibility of navigation tile data.
	DT_NAVMESH_MAGIC = 'D'<<24 | 'N'<<16 | 'A'<<8 | 'V'

	// / A version number used to detect compatibility of navigation tile data.
	DT_NAVMESH_VERSION = 7

	// / The maximum number of user defined area ids.
	DT_MAX_AREAS = 64

	// / Heuristic scale used by A*. Slightly below 1 so that ties lean towards the goal.
	H_SCALE = 0.999
)

const (
	// / The polygon is a standard convex polygon that is part of the surface of the mesh.
	DT_POLYTYPE_GROUND = 0
	// / The polygon is an off-mesh connection consisting of two vertices.
	DT_POLYTYPE_OFFMESH_CONNECTION = 1
)

const (
	DT_DETAIL_EDGE_BOUNDARY = 0x01 ///< Detail triangle edge is part of the poly boundary
)

// Polygon references use fixed 64 bit layout: salt | tile index | polygon index.
const (
	DT_SALT_BITS = 16
	DT_TILE_BITS = 28
	DT_POLY_BITS = 20
)

type DtPolyRef uint64
type DtTileRef uint64

// / Defines a polygon within a DtMeshTile object.
type DtPoly struct {
	// / Index to first link in linked list. (Or #DT_NULL_LINK if there is no link.)
	FirstLink uint32

	// / The indices of the polygon's vertices.
	// / The actual vertices are located in DtMeshTile::verts.
	Verts [DT_VERTS_PER_POLYGON]uint16

	// / Packed data representing neighbor polygons references and flags for each edge.
	Neis [DT_VERTS_PER_POLYGON]uint16

	// / The user defined polygon flags.
	Flags uint16

	// / The number of vertices in the polygon.
	VertCount uint8

	// / The bit packed area id and polygon type.
	AreaAndtype uint8
}

// / Sets the user defined area id. [Limit: < #DT_MAX_AREAS]
func (p *DtPoly) SetArea(a uint8) { p.AreaAndtype = (p.AreaAndtype & 0xc0) | (a & 0x3f) }

// / Sets the polygon type. (See: #dtPolyTypes.)
func (p *DtPoly) SetType(t uint8) { p.AreaAndtype = (p.AreaAndtype & 0x3f) | (t << 6) }

// / Gets the user defined area id.
func (p *DtPoly) GetArea() uint8 { return p.AreaAndtype & 0x3f }

// / Gets the polygon type. (See: #dtPolyTypes)
func (p *DtPoly) GetType() uint8 { return p.AreaAndtype >> 6 }

// / Defines the location of detail sub-mesh data within a DtMeshTile.
type DtPolyDetail struct {
	VertBase  uint32 ///< The offset of the vertices in the DtMeshTile::detailVerts array.
	TriBase   uint32 ///< The offset of the triangles in the DtMeshTile::detailTris array.
	VertCount uint8  ///< The number of vertices in the sub-mesh.
	TriCount  uint8  ///< The number of triangles in the sub-mesh.
}

// Defines a link between polygons.
type DtLink struct {
	Ref  DtPolyRef ///< Neighbour reference. (The neighbor that is linked to.)
	Next uint32    ///< Index of the next link.
	Edge uint8     ///< Index of the polygon edge that owns this link.
	Side uint8     ///< If a boundary link, defines on which side the link is.
	Bmin uint8     ///< If a boundary link, defines the minimum sub-edge area.
	Bmax uint8     ///< If a boundary link, defines the maximum sub-edge area.
}

// / Bounding volume node.
type DtBVNode struct {
	Bmin [3]uint16 ///< Minimum bounds of the node's AABB. [(x, y, z)]
	Bmax [3]uint16 ///< Maximum bounds of the node's AABB. [(x, y, z)]
	I    int32     ///< The node's index. (Negative for escape sequence.)
}

// / Defines an navigation mesh off-mesh connection within a DtMeshTile object.
// / An off-mesh connection is a user defined traversable connection made up to two vertices.
type DtOffMeshConnection struct {
	// / The endpoints of the connection. [(ax, ay, az, bx, by, bz)]
	Pos [6]float32

	// / The radius of the endpoints. [Limit: >= 0]
	Rad float32

	// / The polygon reference of the connection within the tile.
	Poly uint16

	// / Link flags.
	Flags uint8

	// / End point side.
	Side uint8

	// / The id of the offmesh connection. (User assigned when the navigation mesh is built.)
	UserId uint32
}

// / Provides high level information related to a DtMeshTile object.
type DtMeshHeader struct {
	Magic           int32  ///< Tile magic number. (Used to identify the data format.)
	Version         int32  ///< Tile data format version number.
	X               int32  ///< The x-position of the tile within the DtNavMesh tile grid. (x, y, layer)
	Y               int32  ///< The y-position of the tile within the DtNavMesh tile grid. (x, y, layer)
	Layer           int32  ///< The layer of the tile within the DtNavMesh tile grid. (x, y, layer)
	UserId          uint32 ///< The user defined id of the tile.
	PolyCount       int32  ///< The number of polygons in the tile.
	VertCount       int32  ///< The number of vertices in the tile.
	MaxLinkCount    int32  ///< The number of allocated links.
	DetailMeshCount int32  ///< The number of sub-meshes in the detail mesh.

	// / The number of unique vertices in the detail mesh. (In addition to the polygon vertices.)
	DetailVertCount int32

	DetailTriCount  int32      ///< The number of triangles in the detail mesh.
	BvNodeCount     int32      ///< The number of bounding volume nodes. (Zero if bounding volumes are disabled.)
	OffMeshConCount int32      ///< The number of off-mesh connections.
	OffMeshBase     int32      ///< The index of the first polygon which is an off-mesh connection.
	WalkableHeight  float32    ///< The height of the agents using the tile.
	WalkableRadius  float32    ///< The radius of the agents using the tile.
	WalkableClimb   float32    ///< The maximum climb height of the agents using the tile.
	Bmin            [3]float32 ///< The minimum bounds of the tile's AABB. [(x, y, z)]
	Bmax            [3]float32 ///< The maximum bounds of the tile's AABB. [(x, y, z)]

	// / The bounding volume quantization factor.
	BvQuantFactor float32
}

// NavMeshData is the data product of one built tile, as handed to DtNavMesh.AddTile.
type NavMeshData struct {
	Header       DtMeshHeader
	Verts        []float32
	Polys        []DtPoly
	DetailMeshes []DtPolyDetail
	DetailVerts  []float32
	DetailTris   []uint8
	BvTree       []DtBVNode
	OffMeshCons  []DtOffMeshConnection
}

// / Defines a navigation mesh tile.
type DtMeshTile struct {
	salt  uint32 ///< Counter describing modifications to the tile.
	index uint32 ///< Slot of the tile in DtNavMesh.m_tiles.

	linksFreeList uint32                ///< Index to the next free link.
	Header        *DtMeshHeader         ///< The tile header.
	Polys         []DtPoly              ///< The tile polygons. [Size: DtMeshHeader::polyCount]
	Verts         []float32             ///< The tile vertices. [(x, y, z) * DtMeshHeader::vertCount]
	Links         []DtLink              ///< The tile links. [Size: DtMeshHeader::maxLinkCount]
	DetailMeshes  []DtPolyDetail        ///< The tile's detail sub-meshes. [Size: DtMeshHeader::detailMeshCount]
	DetailVerts   []float32             ///< The detail mesh's unique vertices. [(x, y, z) * DtMeshHeader::detailVertCount]
	DetailTris    []uint8               ///< The detail mesh's triangles. [(vertA, vertB, vertC, triFlags) * DtMeshHeader::detailTriCount].
	BvTree        []DtBVNode            ///< The tile bounding volume nodes. [Size: DtMeshHeader::bvNodeCount]
	OffMeshCons   []DtOffMeshConnection ///< The tile off-mesh connections. [Size: DtMeshHeader::offMeshConCount]
	Data          *NavMeshData          ///< The data the tile was created from.
	next          *DtMeshTile           ///< The next free tile, or the next tile in the spatial grid.
}

// Salt returns the generation counter of the tile slot.
func (t *DtMeshTile) Salt() uint32 { return t.salt }

func (t *DtMeshTile) vert(i uint16) []float32 {
	return t.Verts[int(i)*3 : int(i)*3+3]
}

// / Configuration parameters used to define multi-tile navigation meshes.
// / The values are used to allocate space during the initialization of a navigation mesh.
type NavMeshParams struct {
	Orig       [3]float32 ///< The world space origin of the navigation mesh's tile space. [(x, y, z)]
	TileWidth  float32    ///< The width of each tile. (Along the x-axis.)
	TileHeight float32    ///< The height of each tile. (Along the z-axis.)
	MaxTiles   int32      ///< The maximum number of tiles the navigation mesh can contain.
	MaxPolys   int32      ///< The maximum number of polygons each tile can contain.
}

// / Get flags for edge in detail triangle.
// / @param[in]	triFlags		The flags for the triangle (last component of detail vertices above).
// / @param[in]	edgeIndex		The index of the first vertex of the edge. For instance, if 0,
// /								returns flags for edge AB.
func DtGetDetailTriEdgeFlags(triFlags uint8, edgeIndex int) int {
	return int(triFlags>>(edgeIndex*2)) & 0x3
}
