package detour_tile_cache

import (
	"math"

	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
)

const (
	MAX_VERTS_PER_POLY = detour.DT_VERTS_PER_POLYGON
	MAX_REM_EDGES      = 48
	DT_LAYER_MAX_NEIS  = 16
)

// DtTileCacheContour stores x, y, z and a flag byte per vertex. The low nibble of
// the flag is the portal direction of the edge starting at the vertex (0xf for a
// wall) and bit 0x80 marks a vertex that may be removed.
type DtTileCacheContour struct {
	Nverts int
	Verts  []uint8
	Reg    uint8
	Area   uint8
}

type DtTileCacheContourSet struct {
	Nconts int
	Conts  []DtTileCacheContour
}

type DtTileCachePolyMesh struct {
	Nvp    int
	Nverts int      ///< Number of vertices.
	Npolys int      ///< Number of polygons.
	Verts  []uint16 ///< Vertices of the mesh, 3 elements per vertex.
	Polys  []uint16 ///< Polygons of the mesh, nvp*2 elements per polygon.
	Flags  []uint16 ///< Per polygon flags.
	Areas  []uint8  ///< Area ID of polygons.
}

type layerSweepSpan struct {
	ns  uint16 // number samples
	id  uint8  // region id
	nei uint8  // neighbour id
}

type layerMonotoneRegion struct {
	area   int
	neis   []uint8
	regId  uint8
	areaId uint8
}

type tempContour struct {
	verts  []uint8
	nverts int
	cverts int
	poly   []uint16
	npoly  int
}

func overlapRangeExl(amin, amax, bmin, bmax uint16) bool {
	return amin < bmax && amax > bmin
}

func (r *layerMonotoneRegion) addUniqueLast(v uint8) {
	n := len(r.neis)
	if n > 0 && r.neis[n-1] == v {
		return
	}
	if n < DT_LAYER_MAX_NEIS {
		r.neis = append(r.neis, v)
	}
}

func isConnected(layer *DtTileCacheLayer, ia, ib, walkableClimb int) bool {
	if layer.Areas[ia] != layer.Areas[ib] {
		return false
	}
	return common.Abs(int(layer.Heights[ia])-int(layer.Heights[ib])) <= walkableClimb
}

func canMerge(oldRegId, newRegId uint8, regs []layerMonotoneRegion) bool {
	count := 0
	for i := range regs {
		reg := &regs[i]
		if reg.regId != oldRegId {
			continue
		}
		for _, nei := range reg.neis {
			if regs[nei].regId == newRegId {
				count++
			}
		}
	}
	return count == 1
}

// DtBuildTileCacheRegions partitions the walkable cells of the layer into monotone
// regions and merges neighbours of the same area.
func DtBuildTileCacheRegions(layer *DtTileCacheLayer, walkableClimb int) detour.DtStatus {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)
	for i := range layer.Regs[:w*h] {
		layer.Regs[i] = 0xff
	}

	sweeps := make([]layerSweepSpan, w)
	// Partition walkable area into monotone regions.
	var prevCount [256]uint16
	regId := 0

	for y := 0; y < h; y++ {
		clear(prevCount[:regId])
		sweepId := 0

		for x := 0; x < w; x++ {
			idx := x + y*w
			if layer.Areas[idx] == DT_TILECACHE_NULL_AREA {
				continue
			}

			sid := 0xff
			// -x
			xidx := x - 1 + y*w
			if x > 0 && isConnected(layer, idx, xidx, walkableClimb) {
				if layer.Regs[xidx] != 0xff {
					sid = int(layer.Regs[xidx])
				}
			}
			if sid == 0xff {
				sid = sweepId
				sweepId++
				sweeps[sid].nei = 0xff
				sweeps[sid].ns = 0
			}

			// -y
			yidx := x + (y-1)*w
			if y > 0 && isConnected(layer, idx, yidx, walkableClimb) {
				nr := layer.Regs[yidx]
				if nr != 0xff {
					// Set neighbour when first valid neighbour is encountered.
					if sweeps[sid].ns == 0 {
						sweeps[sid].nei = nr
					}
					if sweeps[sid].nei == nr {
						sweeps[sid].ns++
						prevCount[nr]++
					} else {
						// More than one neighbour, invalidate.
						sweeps[sid].nei = 0xff
					}
				}
			}
			layer.Regs[idx] = uint8(sid)
		}

		// Create unique ID.
		for i := 0; i < sweepId; i++ {
			// A sweep with a single continuous connection to the row below continues that region.
			if sweeps[i].nei != 0xff && prevCount[sweeps[i].nei] == sweeps[i].ns {
				sweeps[i].id = sweeps[i].nei
			} else {
				if regId == 255 {
					return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
				}
				sweeps[i].id = uint8(regId)
				regId++
			}
		}

		// Remap local sweep ids to region ids.
		for x := 0; x < w; x++ {
			idx := x + y*w
			if layer.Regs[idx] != 0xff {
				layer.Regs[idx] = sweeps[layer.Regs[idx]].id
			}
		}
	}

	nregs := regId
	regs := make([]layerMonotoneRegion, nregs)
	for i := range regs {
		regs[i].regId = 0xff
	}

	// Find region neighbours.
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := x + y*w
			ri := layer.Regs[idx]
			if ri == 0xff {
				continue
			}
			regs[ri].area++
			regs[ri].areaId = layer.Areas[idx]

			ymi := x + (y-1)*w
			if y > 0 && isConnected(layer, idx, ymi, walkableClimb) {
				rai := layer.Regs[ymi]
				if rai != 0xff && rai != ri {
					regs[ri].addUniqueLast(rai)
					regs[rai].addUniqueLast(ri)
				}
			}
		}
	}

	for i := range regs {
		regs[i].regId = uint8(i)
	}

	for i := range regs {
		reg := &regs[i]
		merge := -1
		mergea := 0
		for _, nei := range reg.neis {
			regn := &regs[nei]
			if reg.regId == regn.regId || reg.areaId != regn.areaId {
				continue
			}
			if regn.area > mergea && canMerge(reg.regId, regn.regId, regs) {
				mergea = regn.area
				merge = int(nei)
			}
		}
		if merge != -1 {
			oldId := reg.regId
			newId := regs[merge].regId
			for j := range regs {
				if regs[j].regId == oldId {
					regs[j].regId = newId
				}
			}
		}
	}

	// Compact ids.
	var used [256]bool
	var remap [256]uint8
	for i := range regs {
		used[regs[i].regId] = true
	}
	count := 0
	for i := range used {
		if used[i] {
			remap[i] = uint8(count)
			count++
		}
	}
	for i := range regs {
		regs[i].regId = remap[regs[i].regId]
	}
	layer.RegCount = uint8(count)

	for i := range layer.Regs[:w*h] {
		if layer.Regs[i] != 0xff {
			layer.Regs[i] = regs[layer.Regs[i]].regId
		}
	}
	return detour.DT_SUCCESS
}

func appendVertex(cont *tempContour, x, y, z, r int) bool {
	// Try to merge with existing segments.
	if cont.nverts > 1 {
		pa := cont.verts[(cont.nverts-2)*4:]
		pb := cont.verts[(cont.nverts-1)*4:]
		if int(pb[3]) == r {
			if pa[0] == pb[0] && int(pb[0]) == x {
				// The verts are aligned along x-axis, update z.
				pb[1] = uint8(y)
				pb[2] = uint8(z)
				return true
			}
			if pa[2] == pb[2] && int(pb[2]) == z {
				// The verts are aligned along z-axis, update x.
				pb[0] = uint8(x)
				pb[1] = uint8(y)
				return true
			}
		}
	}

	if cont.nverts+1 > cont.cverts {
		return false
	}
	v := cont.verts[cont.nverts*4:]
	v[0] = uint8(x)
	v[1] = uint8(y)
	v[2] = uint8(z)
	v[3] = uint8(r)
	cont.nverts++
	return true
}

func getNeighbourReg(layer *DtTileCacheLayer, ax, ay, dir int) uint8 {
	w := int(layer.Header.Width)
	ia := ax + ay*w

	con := layer.Cons[ia] & 0xf
	portal := layer.Cons[ia] >> 4
	mask := uint8(1 << dir)

	if con&mask == 0 {
		// No connection, return portal or hard edge.
		if portal&mask != 0 {
			return 0xf8 + uint8(dir)
		}
		return 0xff
	}

	bx := ax + common.GetDirOffsetX(dir)
	by := ay + common.GetDirOffsetY(dir)
	return layer.Regs[bx+by*w]
}

func walkContour(layer *DtTileCacheLayer, x, y int, cont *tempContour) bool {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)

	cont.nverts = 0

	startX := x
	startY := y
	startDir := -1

	for i := 0; i < 4; i++ {
		dir := (i + 3) & 3
		if getNeighbourReg(layer, x, y, dir) != layer.Regs[x+y*w] {
			startDir = dir
			break
		}
	}
	if startDir == -1 {
		return true
	}

	dir := startDir
	maxIter := w * h

	for iter := 0; iter < maxIter; iter++ {
		rn := getNeighbourReg(layer, x, y, dir)

		nx := x
		ny := y
		var ndir int

		if rn != layer.Regs[x+y*w] {
			// Solid edge.
			px := x
			pz := y
			switch dir {
			case 0:
				pz++
			case 1:
				px++
				pz++
			case 2:
				px++
			}

			if !appendVertex(cont, px, int(layer.Heights[x+y*w]), pz, int(rn)) {
				return false
			}
			ndir = (dir + 1) & 0x3 // Rotate CW
		} else {
			// Move to next.
			nx = x + common.GetDirOffsetX(dir)
			ny = y + common.GetDirOffsetY(dir)
			ndir = (dir + 3) & 0x3 // Rotate CCW
		}

		if iter > 0 && x == startX && y == startY && dir == startDir {
			break
		}

		x = nx
		y = ny
		dir = ndir
	}

	// Remove last vertex if it is duplicate of the first one.
	if cont.nverts > 1 {
		pa := cont.verts[(cont.nverts-1)*4:]
		pb := cont.verts[0:]
		if pa[0] == pb[0] && pa[2] == pb[2] {
			cont.nverts--
		}
	}
	return true
}

func distancePtSeg(x, z, px, pz, qx, qz int) float32 {
	pqx := float32(qx - px)
	pqz := float32(qz - pz)
	dx := float32(x - px)
	dz := float32(z - pz)
	d := pqx*pqx + pqz*pqz
	t := pqx*dx + pqz*dz
	if d > 0 {
		t /= d
	}
	t = common.Clamp(t, 0, 1)

	dx = float32(px) + t*pqx - float32(x)
	dz = float32(pz) + t*pqz - float32(z)
	return dx*dx + dz*dz
}

func simplifyContour(cont *tempContour, maxError float32) {
	cont.npoly = 0
	if cont.nverts == 0 {
		return
	}

	for i := 0; i < cont.nverts; i++ {
		j := (i + 1) % cont.nverts
		// Check for start of a wall segment.
		if cont.verts[i*4+3] != cont.verts[j*4+3] {
			cont.poly[cont.npoly] = uint16(i)
			cont.npoly++
		}
	}
	if cont.npoly < 2 {
		// No transitions at all, seed with the lower-left and upper-right vertices.
		llx, llz, lli := int(cont.verts[0]), int(cont.verts[2]), 0
		urx, urz, uri := int(cont.verts[0]), int(cont.verts[2]), 0
		for i := 1; i < cont.nverts; i++ {
			x := int(cont.verts[i*4+0])
			z := int(cont.verts[i*4+2])
			if x < llx || (x == llx && z < llz) {
				llx, llz, lli = x, z, i
			}
			if x > urx || (x == urx && z > urz) {
				urx, urz, uri = x, z, i
			}
		}
		cont.npoly = 2
		cont.poly[0] = uint16(lli)
		cont.poly[1] = uint16(uri)
	}

	// Add points until all raw points are within error tolerance to the simplified shape.
	for i := 0; i < cont.npoly; {
		ii := (i + 1) % cont.npoly

		ai := int(cont.poly[i])
		ax := int(cont.verts[ai*4+0])
		az := int(cont.verts[ai*4+2])

		bi := int(cont.poly[ii])
		bx := int(cont.verts[bi*4+0])
		bz := int(cont.verts[bi*4+2])

		maxd := float32(0)
		maxi := -1
		var ci, cinc, endi int

		// Traverse the segment in lexicographic order so opposite segments
		// get the same deviation.
		if bx > ax || (bx == ax && bz > az) {
			cinc = 1
			ci = (ai + cinc) % cont.nverts
			endi = bi
		} else {
			cinc = cont.nverts - 1
			ci = (bi + cinc) % cont.nverts
			endi = ai
		}

		for ci != endi {
			d := distancePtSeg(int(cont.verts[ci*4+0]), int(cont.verts[ci*4+2]), ax, az, bx, bz)
			if d > maxd {
				maxd = d
				maxi = ci
			}
			ci = (ci + cinc) % cont.nverts
		}

		if maxi != -1 && maxd > maxError*maxError {
			cont.npoly++
			for j := cont.npoly - 1; j > i; j-- {
				cont.poly[j] = cont.poly[j-1]
			}
			cont.poly[i+1] = uint16(maxi)
		} else {
			i++
		}
	}

	// Remap vertices, starting from the lowest index.
	start := 0
	for i := 1; i < cont.npoly; i++ {
		if cont.poly[i] < cont.poly[start] {
			start = i
		}
	}
	simplified := make([]uint8, 0, cont.npoly*4)
	for i := 0; i < cont.npoly; i++ {
		j := (start + i) % cont.npoly
		simplified = append(simplified, cont.verts[int(cont.poly[j])*4:int(cont.poly[j])*4+4]...)
	}
	copy(cont.verts, simplified)
	cont.nverts = cont.npoly
}

func getCornerHeight(layer *DtTileCacheLayer, x, y, z, walkableClimb int) (height uint8, shouldRemove bool) {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)

	n := 0
	portal := uint8(0xf)
	preg := uint8(0xff)
	allSameReg := true

	for dz := -1; dz <= 0; dz++ {
		for dx := -1; dx <= 0; dx++ {
			px := x + dx
			pz := z + dz
			if px < 0 || pz < 0 || px >= w || pz >= h {
				continue
			}
			idx := px + pz*w
			lh := int(layer.Heights[idx])
			if common.Abs(lh-y) <= walkableClimb && layer.Areas[idx] != DT_TILECACHE_NULL_AREA {
				height = max(height, uint8(lh))
				portal &= layer.Cons[idx] >> 4
				if preg != 0xff && preg != layer.Regs[idx] {
					allSameReg = false
				}
				preg = layer.Regs[idx]
				n++
			}
		}
	}

	portalCount := 0
	for dir := 0; dir < 4; dir++ {
		if portal&(1<<dir) != 0 {
			portalCount++
		}
	}

	shouldRemove = n > 1 && portalCount == 1 && allSameReg
	return height, shouldRemove
}

// DtBuildTileCacheContours traces one simplified contour per region.
func DtBuildTileCacheContours(layer *DtTileCacheLayer, walkableClimb int, maxError float32) (*DtTileCacheContourSet, detour.DtStatus) {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)

	lcset := &DtTileCacheContourSet{
		Nconts: int(layer.RegCount),
		Conts:  make([]DtTileCacheContour, layer.RegCount),
	}

	// Twice around the layer.
	maxTempVerts := (w + h) * 2 * 2
	temp := &tempContour{
		verts:  make([]uint8, maxTempVerts*4),
		cverts: maxTempVerts,
		poly:   make([]uint16, maxTempVerts),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			idx := x + y*w
			ri := layer.Regs[idx]
			if ri == 0xff {
				continue
			}

			cont := &lcset.Conts[ri]
			if cont.Nverts > 0 {
				continue
			}
			cont.Reg = ri
			cont.Area = layer.Areas[idx]

			if !walkContour(layer, x, y, temp) {
				// Too complex contour.
				return nil, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
			}
			simplifyContour(temp, maxError)

			cont.Nverts = temp.nverts
			if cont.Nverts == 0 {
				continue
			}
			cont.Verts = make([]uint8, 4*temp.nverts)
			for i, j := 0, temp.nverts-1; i < temp.nverts; j, i = i, i+1 {
				dst := cont.Verts[j*4:]
				v := temp.verts[j*4:]
				vn := temp.verts[i*4:]
				// The neighbour region is stored at the segment's end vertex.
				nei := vn[3]
				lh, shouldRemove := getCornerHeight(layer, int(v[0]), int(v[1]), int(v[2]), walkableClimb)

				dst[0] = v[0]
				dst[1] = lh
				dst[2] = v[2]

				// Portal direction and removal flag go to the fourth component.
				dst[3] = 0x0f
				if nei != 0xff && nei >= 0xf8 {
					dst[3] = nei - 0xf8
				}
				if shouldRemove {
					dst[3] |= 0x80
				}
			}
		}
	}
	return lcset, detour.DT_SUCCESS
}

const VERTEX_BUCKET_COUNT2 = 1 << 8

func computeVertexHash2(x, y, z int) int {
	const h1 uint32 = 0x8da6b343 // Large multiplicative constants;
	const h2 uint32 = 0xd8163841 // here arbitrarily chosen primes
	const h3 uint32 = 0xcb1ab31f
	n := h1*uint32(x) + h2*uint32(y) + h3*uint32(z)
	return int(n & (VERTEX_BUCKET_COUNT2 - 1))
}

func addVertex(x, y, z uint16, verts, firstVert, nextVert []uint16, nv *int) uint16 {
	bucket := computeVertexHash2(int(x), 0, int(z))
	i := firstVert[bucket]
	for i != DT_TILECACHE_NULL_IDX {
		v := verts[int(i)*3:]
		if v[0] == x && v[2] == z && common.Abs(int(v[1])-int(y)) <= 2 {
			return i
		}
		i = nextVert[i]
	}

	// Could not find, create new.
	i = uint16(*nv)
	*nv++
	v := verts[int(i)*3:]
	v[0] = x
	v[1] = y
	v[2] = z
	nextVert[i] = firstVert[bucket]
	firstVert[bucket] = i
	return i
}

type rcEdge struct {
	vert     [2]uint16
	polyEdge [2]uint16
	poly     [2]uint16
}

func buildMeshAdjacency(polys []uint16, npolys int, verts []uint16, nverts int, lcset *DtTileCacheContourSet) {
	const nvp = MAX_VERTS_PER_POLY
	maxEdgeCount := npolys * nvp
	firstEdge := make([]uint16, nverts)
	nextEdge := make([]uint16, maxEdgeCount)
	edges := make([]rcEdge, 0, maxEdgeCount)

	for i := range firstEdge {
		firstEdge[i] = DT_TILECACHE_NULL_IDX
	}

	polyEdgeVerts := func(t []uint16, j int) (uint16, uint16) {
		v1 := t[0]
		if j+1 < nvp && t[j+1] != DT_TILECACHE_NULL_IDX {
			v1 = t[j+1]
		}
		return t[j], v1
	}
	insert := func(v0, v1 uint16, i, j int) {
		edges = append(edges, rcEdge{
			vert:     [2]uint16{v0, v1},
			poly:     [2]uint16{uint16(i), uint16(i)},
			polyEdge: [2]uint16{uint16(j), 0xff},
		})
		e := len(edges) - 1
		nextEdge[e] = firstEdge[v0]
		firstEdge[v0] = uint16(e)
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*nvp*2:]
		for j := 0; j < nvp; j++ {
			if t[j] == DT_TILECACHE_NULL_IDX {
				break
			}
			v0, v1 := polyEdgeVerts(t, j)
			if v0 < v1 {
				insert(v0, v1, i, j)
			}
		}
	}

	for i := 0; i < npolys; i++ {
		t := polys[i*nvp*2:]
		for j := 0; j < nvp; j++ {
			if t[j] == DT_TILECACHE_NULL_IDX {
				break
			}
			v0, v1 := polyEdgeVerts(t, j)
			if v0 <= v1 {
				continue
			}
			found := false
			for e := firstEdge[v1]; e != DT_TILECACHE_NULL_IDX; e = nextEdge[e] {
				edge := &edges[e]
				if edge.vert[1] == v0 && edge.poly[0] == edge.poly[1] {
					edge.poly[1] = uint16(i)
					edge.polyEdge[1] = uint16(j)
					found = true
					break
				}
			}
			if !found {
				// Matching edge not found, it is an open edge.
				insert(v1, v0, i, j)
			}
		}
	}

	// Mark portal edges.
	for i := 0; i < lcset.Nconts; i++ {
		cont := &lcset.Conts[i]
		if cont.Nverts < 3 {
			continue
		}
		for j, k := 0, cont.Nverts-1; j < cont.Nverts; k, j = j, j+1 {
			va := cont.Verts[k*4:]
			vb := cont.Verts[j*4:]
			dir := va[3] & 0xf
			if dir == 0xf {
				continue
			}

			if dir == 0 || dir == 2 {
				// Find matching vertical edge.
				x := uint16(va[0])
				zmin, zmax := uint16(va[2]), uint16(vb[2])
				if zmin > zmax {
					zmin, zmax = zmax, zmin
				}
				for m := range edges {
					e := &edges[m]
					// Skip connected edges.
					if e.poly[0] != e.poly[1] {
						continue
					}
					eva := verts[int(e.vert[0])*3:]
					evb := verts[int(e.vert[1])*3:]
					if eva[0] == x && evb[0] == x {
						ezmin, ezmax := eva[2], evb[2]
						if ezmin > ezmax {
							ezmin, ezmax = ezmax, ezmin
						}
						if overlapRangeExl(zmin, zmax, ezmin, ezmax) {
							// Reuse the other polyedge to store dir.
							e.polyEdge[1] = uint16(dir)
						}
					}
				}
			} else {
				// Find matching horizontal edge.
				z := uint16(va[2])
				xmin, xmax := uint16(va[0]), uint16(vb[0])
				if xmin > xmax {
					xmin, xmax = xmax, xmin
				}
				for m := range edges {
					e := &edges[m]
					if e.poly[0] != e.poly[1] {
						continue
					}
					eva := verts[int(e.vert[0])*3:]
					evb := verts[int(e.vert[1])*3:]
					if eva[2] == z && evb[2] == z {
						exmin, exmax := eva[0], evb[0]
						if exmin > exmax {
							exmin, exmax = exmax, exmin
						}
						if overlapRangeExl(xmin, xmax, exmin, exmax) {
							e.polyEdge[1] = uint16(dir)
						}
					}
				}
			}
		}
	}

	// Store adjacency.
	for i := range edges {
		e := &edges[i]
		if e.poly[0] != e.poly[1] {
			p0 := polys[int(e.poly[0])*nvp*2:]
			p1 := polys[int(e.poly[1])*nvp*2:]
			p0[nvp+int(e.polyEdge[0])] = e.poly[1]
			p1[nvp+int(e.polyEdge[1])] = e.poly[0]
		} else if e.polyEdge[1] != 0xff {
			p0 := polys[int(e.poly[0])*nvp*2:]
			p0[nvp+int(e.polyEdge[0])] = 0x8000 | e.polyEdge[1]
		}
	}
}

func countPolyVerts(p []uint16) int {
	for i := 0; i < MAX_VERTS_PER_POLY; i++ {
		if p[i] == DT_TILECACHE_NULL_IDX {
			return i
		}
	}
	return MAX_VERTS_PER_POLY
}

func uleft(a, b, c []uint16) bool {
	return (int(b[0])-int(a[0]))*(int(c[2])-int(a[2]))-
		(int(c[0])-int(a[0]))*(int(b[2])-int(a[2])) < 0
}

func getPolyMergeValue(pa, pb, verts []uint16) (value, ea, eb int) {
	na := countPolyVerts(pa)
	nb := countPolyVerts(pb)

	// If the merged polygon would be too big, do not merge.
	if na+nb-2 > MAX_VERTS_PER_POLY {
		return -1, -1, -1
	}

	// Check if the polygons share an edge.
	ea, eb = -1, -1
	for i := 0; i < na; i++ {
		va0, va1 := pa[i], pa[(i+1)%na]
		if va0 > va1 {
			va0, va1 = va1, va0
		}
		for j := 0; j < nb; j++ {
			vb0, vb1 := pb[j], pb[(j+1)%nb]
			if vb0 > vb1 {
				vb0, vb1 = vb1, vb0
			}
			if va0 == vb0 && va1 == vb1 {
				ea = i
				eb = j
				break
			}
		}
	}
	if ea == -1 || eb == -1 {
		return -1, ea, eb
	}

	// Check to see if the merged polygon would be convex.
	vert := func(i uint16) []uint16 { return verts[int(i)*3:] }
	if !uleft(vert(pa[(ea+na-1)%na]), vert(pa[ea]), vert(pb[(eb+2)%nb])) {
		return -1, ea, eb
	}
	if !uleft(vert(pb[(eb+nb-1)%nb]), vert(pb[eb]), vert(pa[(ea+2)%na])) {
		return -1, ea, eb
	}

	va := vert(pa[ea])
	vb := vert(pa[(ea+1)%na])
	dx := int(va[0]) - int(vb[0])
	dy := int(va[2]) - int(vb[2])
	return dx*dx + dy*dy, ea, eb
}

func mergePolys(pa, pb []uint16, ea, eb int) {
	var tmp [MAX_VERTS_PER_POLY * 2]uint16
	for i := range tmp {
		tmp[i] = DT_TILECACHE_NULL_IDX
	}
	na := countPolyVerts(pa)
	nb := countPolyVerts(pb)

	n := 0
	for i := 0; i < na-1; i++ {
		tmp[n] = pa[(ea+1+i)%na]
		n++
	}
	for i := 0; i < nb-1; i++ {
		tmp[n] = pb[(eb+1+i)%nb]
		n++
	}
	copy(pa[:MAX_VERTS_PER_POLY], tmp[:MAX_VERTS_PER_POLY])
}

// mergePolyList greedily merges convex neighbours, longest shared edge first.
// It returns the new polygon count; areas may be nil.
func mergePolyList(polys []uint16, npolys int, verts []uint16, areas []uint8) int {
	const nvp = MAX_VERTS_PER_POLY
	for {
		bestMergeVal := 0
		bestPa, bestPb, bestEa, bestEb := 0, 0, 0, 0

		for j := 0; j < npolys-1; j++ {
			pj := polys[j*nvp:]
			for k := j + 1; k < npolys; k++ {
				pk := polys[k*nvp:]
				v, ea, eb := getPolyMergeValue(pj, pk, verts)
				if v > bestMergeVal {
					bestMergeVal = v
					bestPa, bestPb, bestEa, bestEb = j, k, ea, eb
				}
			}
		}
		if bestMergeVal <= 0 {
			return npolys
		}
		pa := polys[bestPa*nvp:]
		pb := polys[bestPb*nvp:]
		mergePolys(pa, pb, bestEa, bestEb)
		copy(pb[:nvp], polys[(npolys-1)*nvp:npolys*nvp])
		if areas != nil {
			areas[bestPb] = areas[npolys-1]
		}
		npolys--
	}
}

func canRemoveVertex(mesh *DtTileCachePolyMesh, rem uint16) bool {
	const nvp = MAX_VERTS_PER_POLY
	numTouchedVerts := 0
	numRemainingEdges := 0
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p)
		numRemoved := 0
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				numTouchedVerts++
				numRemoved++
			}
		}
		if numRemoved > 0 {
			numRemainingEdges += nv - (numRemoved + 1)
		}
	}

	// There would be too few edges remaining to create a polygon.
	if numRemainingEdges <= 2 {
		return false
	}
	if numTouchedVerts*2 > MAX_REM_EDGES {
		return false
	}

	// Find edges which share the removed vertex.
	type remEdge struct{ a, b uint16; n int }
	edges := make([]remEdge, 0, MAX_REM_EDGES)
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p)
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				continue
			}
			// Arrange edge so that a=rem.
			a, b := p[j], p[k]
			if b == rem {
				a, b = b, a
			}
			exists := false
			for m := range edges {
				if edges[m].b == b {
					edges[m].n++
					exists = true
				}
			}
			if !exists {
				edges = append(edges, remEdge{a: a, b: b, n: 1})
			}
		}
	}

	// There should be no more than 2 open edges, otherwise two non-adjacent
	// polygons share the vertex.
	numOpenEdges := 0
	for _, e := range edges {
		if e.n < 2 {
			numOpenEdges++
		}
	}
	return numOpenEdges <= 2
}

func removeVertex(mesh *DtTileCachePolyMesh, rem uint16, maxTris int) detour.DtStatus {
	const nvp = MAX_VERTS_PER_POLY
	type holeEdge struct{ a, b uint16; area uint8 }
	edges := make([]holeEdge, 0, MAX_REM_EDGES)

	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p)
		hasRem := false
		for j := 0; j < nv; j++ {
			if p[j] == rem {
				hasRem = true
			}
		}
		if !hasRem {
			continue
		}
		// Collect edges which do not touch the removed vertex.
		for j, k := 0, nv-1; j < nv; k, j = j, j+1 {
			if p[j] != rem && p[k] != rem {
				if len(edges) >= MAX_REM_EDGES {
					return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
				}
				edges = append(edges, holeEdge{a: p[k], b: p[j], area: mesh.Areas[i]})
			}
		}
		// Remove the polygon.
		last := mesh.Polys[(mesh.Npolys-1)*nvp*2:]
		copy(p[:nvp], last[:nvp])
		for j := nvp; j < nvp*2; j++ {
			p[j] = DT_TILECACHE_NULL_IDX
		}
		mesh.Areas[i] = mesh.Areas[mesh.Npolys-1]
		mesh.Npolys--
		i--
	}

	// Remove vertex.
	copy(mesh.Verts[int(rem)*3:], mesh.Verts[(int(rem)+1)*3:mesh.Nverts*3])
	mesh.Nverts--

	// Adjust indices to match the removed vertex layout.
	for i := 0; i < mesh.Npolys; i++ {
		p := mesh.Polys[i*nvp*2:]
		nv := countPolyVerts(p)
		for j := 0; j < nv; j++ {
			if p[j] > rem {
				p[j]--
			}
		}
	}
	for i := range edges {
		if edges[i].a > rem {
			edges[i].a--
		}
		if edges[i].b > rem {
			edges[i].b--
		}
	}

	if len(edges) == 0 {
		return detour.DT_SUCCESS
	}

	// Start with one vertex, keep appending connected segments to the start
	// and end of the hole.
	hole := []uint16{edges[0].a}
	harea := []uint8{edges[0].area}

	for len(edges) > 0 {
		match := false
		for i := 0; i < len(edges); i++ {
			e := edges[i]
			add := false
			if hole[0] == e.b {
				// The segment matches the beginning of the hole boundary.
				if len(hole) >= MAX_REM_EDGES {
					return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
				}
				hole = append([]uint16{e.a}, hole...)
				harea = append([]uint8{e.area}, harea...)
				add = true
			} else if hole[len(hole)-1] == e.a {
				// The segment matches the end of the hole boundary.
				if len(hole) >= MAX_REM_EDGES {
					return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
				}
				hole = append(hole, e.b)
				harea = append(harea, e.area)
				add = true
			}
			if add {
				edges[i] = edges[len(edges)-1]
				edges = edges[:len(edges)-1]
				match = true
				i--
			}
		}
		if !match {
			break
		}
	}

	nhole := len(hole)
	tverts := make([]int, nhole*3)
	tpoly := make([]int, nhole)
	for i, pi := range hole {
		tverts[i*3+0] = int(mesh.Verts[int(pi)*3+0])
		tverts[i*3+1] = int(mesh.Verts[int(pi)*3+1])
		tverts[i*3+2] = int(mesh.Verts[int(pi)*3+2])
		tpoly[i] = i
	}

	// Triangulate the hole.
	tris := make([]int, max(nhole, 3)*3)
	ntris := 0
	if nhole >= 3 {
		ntris = common.Triangulate(nhole, tverts, tpoly, tris)
		if ntris < 0 {
			ntris = -ntris
		}
	}
	if ntris > MAX_REM_EDGES {
		return detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}

	// Build initial polygons.
	polys := make([]uint16, (ntris+1)*nvp)
	for i := range polys {
		polys[i] = DT_TILECACHE_NULL_IDX
	}
	pareas := make([]uint8, ntris+1)
	npolys := 0
	for j := 0; j < ntris; j++ {
		t := tris[j*3:]
		if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
			polys[npolys*nvp+0] = hole[t[0]]
			polys[npolys*nvp+1] = hole[t[1]]
			polys[npolys*nvp+2] = hole[t[2]]
			pareas[npolys] = harea[t[0]]
			npolys++
		}
	}
	if npolys == 0 {
		return detour.DT_SUCCESS
	}

	npolys = mergePolyList(polys, npolys, mesh.Verts, pareas)

	// Store polygons.
	for i := 0; i < npolys; i++ {
		if mesh.Npolys >= maxTris {
			break
		}
		p := mesh.Polys[mesh.Npolys*nvp*2:]
		for j := 0; j < nvp*2; j++ {
			p[j] = DT_TILECACHE_NULL_IDX
		}
		copy(p[:nvp], polys[i*nvp:(i+1)*nvp])
		mesh.Areas[mesh.Npolys] = pareas[i]
		mesh.Npolys++
	}
	return detour.DT_SUCCESS
}

// DtBuildTileCachePolyMesh triangulates the contours, merges the triangles into
// convex polygons, drops removable border vertices and computes adjacency.
// Polygon edges on the layer border that face a walkable neighbour tile carry
// 0x8000|dir.
func DtBuildTileCachePolyMesh(lcset *DtTileCacheContourSet) (*DtTileCachePolyMesh, detour.DtStatus) {
	const nvp = MAX_VERTS_PER_POLY
	maxVertices := 0
	maxTris := 0
	maxVertsPerCont := 0
	for i := 0; i < lcset.Nconts; i++ {
		// Skip null contours.
		if lcset.Conts[i].Nverts < 3 {
			continue
		}
		maxVertices += lcset.Conts[i].Nverts
		maxTris += lcset.Conts[i].Nverts - 2
		maxVertsPerCont = max(maxVertsPerCont, lcset.Conts[i].Nverts)
	}
	if maxVertices >= 0xfffe {
		return nil, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
	}

	mesh := &DtTileCachePolyMesh{
		Nvp:   nvp,
		Verts: make([]uint16, maxVertices*3),
		Polys: make([]uint16, maxTris*nvp*2),
		Areas: make([]uint8, maxTris),
		// The mesh-process hook is responsible for filling the flags.
		Flags: make([]uint16, maxTris),
	}
	for i := range mesh.Polys {
		mesh.Polys[i] = DT_TILECACHE_NULL_IDX
	}
	vflags := make([]uint8, maxVertices+1)

	var firstVert [VERTEX_BUCKET_COUNT2]uint16
	for i := range firstVert {
		firstVert[i] = DT_TILECACHE_NULL_IDX
	}
	nextVert := make([]uint16, maxVertices)

	indices := make([]int, maxVertsPerCont)
	tris := make([]int, maxVertsPerCont*3)
	polys := make([]uint16, maxVertsPerCont*nvp)
	cverts := make([]int, maxVertsPerCont*3)

	for i := 0; i < lcset.Nconts; i++ {
		cont := &lcset.Conts[i]
		if cont.Nverts < 3 {
			continue
		}

		// Triangulate contour.
		for j := 0; j < cont.Nverts; j++ {
			indices[j] = j
			cverts[j*3+0] = int(cont.Verts[j*4+0])
			cverts[j*3+1] = int(cont.Verts[j*4+1])
			cverts[j*3+2] = int(cont.Verts[j*4+2])
		}
		ntris := common.Triangulate(cont.Nverts, cverts, indices, tris)
		if ntris <= 0 {
			ntris = -ntris
		}

		// Add and merge vertices.
		vidx := make([]uint16, cont.Nverts)
		for j := 0; j < cont.Nverts; j++ {
			v := cont.Verts[j*4:]
			vidx[j] = addVertex(uint16(v[0]), uint16(v[1]), uint16(v[2]), mesh.Verts, firstVert[:], nextVert, &mesh.Nverts)
			if v[3]&0x80 != 0 {
				// This vertex should be removed.
				vflags[vidx[j]] = 1
			}
		}

		// Build initial polygons.
		npolys := 0
		for j := range polys {
			polys[j] = DT_TILECACHE_NULL_IDX
		}
		for j := 0; j < ntris; j++ {
			t := tris[j*3:]
			if t[0] != t[1] && t[0] != t[2] && t[1] != t[2] {
				polys[npolys*nvp+0] = vidx[t[0]]
				polys[npolys*nvp+1] = vidx[t[1]]
				polys[npolys*nvp+2] = vidx[t[2]]
				npolys++
			}
		}
		if npolys == 0 {
			continue
		}

		npolys = mergePolyList(polys, npolys, mesh.Verts, nil)

		// Store polygons.
		for j := 0; j < npolys; j++ {
			if mesh.Npolys >= maxTris {
				return nil, detour.DT_FAILURE | detour.DT_BUFFER_TOO_SMALL
			}
			p := mesh.Polys[mesh.Npolys*nvp*2:]
			copy(p[:nvp], polys[j*nvp:(j+1)*nvp])
			mesh.Areas[mesh.Npolys] = cont.Area
			mesh.Npolys++
		}
	}

	// Remove edge vertices.
	for i := 0; i < mesh.Nverts; i++ {
		if vflags[i] == 0 {
			continue
		}
		if !canRemoveVertex(mesh, uint16(i)) {
			continue
		}
		if status := removeVertex(mesh, uint16(i), maxTris); status.Failed() {
			return nil, status
		}
		// mesh.Nverts is already decremented inside removeVertex.
		copy(vflags[i:], vflags[i+1:mesh.Nverts+1])
		i--
	}

	buildMeshAdjacency(mesh.Polys, mesh.Npolys, mesh.Verts, mesh.Nverts, lcset)

	mesh.Verts = mesh.Verts[:mesh.Nverts*3]
	mesh.Polys = mesh.Polys[:mesh.Npolys*nvp*2]
	mesh.Areas = mesh.Areas[:mesh.Npolys]
	mesh.Flags = mesh.Flags[:mesh.Npolys]
	return mesh, detour.DT_SUCCESS
}

func clampCellRange(minx, maxx, minz, maxz, w, h int) (int, int, int, int, bool) {
	if maxx < 0 || minx >= w || maxz < 0 || minz >= h {
		return 0, 0, 0, 0, false
	}
	return max(minx, 0), min(maxx, w-1), max(minz, 0), min(maxz, h-1), true
}

func floorToInt(v float32) int { return int(math.Floor(float64(v))) }

// DtMarkCylinderArea stamps areaId onto the layer cells covered by a vertical cylinder.
func DtMarkCylinderArea(layer *DtTileCacheLayer, orig []float32, cs, ch float32,
	pos []float32, radius, height float32, areaId uint8) detour.DtStatus {
	bmin := [3]float32{pos[0] - radius, pos[1], pos[2] - radius}
	bmax := [3]float32{pos[0] + radius, pos[1] + height, pos[2] + radius}
	r2 := common.Sqr(radius/cs + 0.5)

	w := int(layer.Header.Width)
	h := int(layer.Header.Height)
	ics := 1.0 / cs
	ich := 1.0 / ch

	px := (pos[0] - orig[0]) * ics
	pz := (pos[2] - orig[2]) * ics

	miny := floorToInt((bmin[1] - orig[1]) * ich)
	maxy := floorToInt((bmax[1] - orig[1]) * ich)
	minx, maxx, minz, maxz, ok := clampCellRange(
		floorToInt((bmin[0]-orig[0])*ics), floorToInt((bmax[0]-orig[0])*ics),
		floorToInt((bmin[2]-orig[2])*ics), floorToInt((bmax[2]-orig[2])*ics), w, h)
	if !ok {
		return detour.DT_SUCCESS
	}

	for z := minz; z <= maxz; z++ {
		for x := minx; x <= maxx; x++ {
			dx := float32(x) + 0.5 - px
			dz := float32(z) + 0.5 - pz
			if dx*dx+dz*dz > r2 {
				continue
			}
			y := int(layer.Heights[x+z*w])
			if y < miny || y > maxy {
				continue
			}
			layer.Areas[x+z*w] = areaId
		}
	}
	return detour.DT_SUCCESS
}

// DtMarkBoxArea stamps areaId onto the layer cells inside an axis aligned box.
func DtMarkBoxArea(layer *DtTileCacheLayer, orig []float32, cs, ch float32,
	bmin, bmax []float32, areaId uint8) detour.DtStatus {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)
	ics := 1.0 / cs
	ich := 1.0 / ch

	miny := floorToInt((bmin[1] - orig[1]) * ich)
	maxy := floorToInt((bmax[1] - orig[1]) * ich)
	minx, maxx, minz, maxz, ok := clampCellRange(
		floorToInt((bmin[0]-orig[0])*ics), floorToInt((bmax[0]-orig[0])*ics),
		floorToInt((bmin[2]-orig[2])*ics), floorToInt((bmax[2]-orig[2])*ics), w, h)
	if !ok {
		return detour.DT_SUCCESS
	}

	for z := minz; z <= maxz; z++ {
		for x := minx; x <= maxx; x++ {
			y := int(layer.Heights[x+z*w])
			if y < miny || y > maxy {
				continue
			}
			layer.Areas[x+z*w] = areaId
		}
	}
	return detour.DT_SUCCESS
}

// DtMarkOrientedBoxArea stamps areaId onto the layer cells inside a box rotated
// around the y axis. rotAux is {cos(a/2)*sin(-a/2), cos(a/2)*cos(a/2) - 0.5}.
func DtMarkOrientedBoxArea(layer *DtTileCacheLayer, orig []float32, cs, ch float32,
	center, halfExtents, rotAux []float32, areaId uint8) detour.DtStatus {
	w := int(layer.Header.Width)
	h := int(layer.Header.Height)
	ics := 1.0 / cs
	ich := 1.0 / ch

	cx := (center[0] - orig[0]) * ics
	cz := (center[2] - orig[2]) * ics

	maxr := 1.41 * max(halfExtents[0], halfExtents[2])
	miny := floorToInt((center[1] - halfExtents[1] - orig[1]) * ich)
	maxy := floorToInt((center[1] + halfExtents[1] - orig[1]) * ich)
	minx, maxx, minz, maxz, ok := clampCellRange(
		floorToInt(cx-maxr*ics), floorToInt(cx+maxr*ics),
		floorToInt(cz-maxr*ics), floorToInt(cz+maxr*ics), w, h)
	if !ok {
		return detour.DT_SUCCESS
	}

	xhalf := halfExtents[0]*ics + 0.5
	zhalf := halfExtents[2]*ics + 0.5

	for z := minz; z <= maxz; z++ {
		for x := minx; x <= maxx; x++ {
			x2 := 2.0 * (float32(x) - cx)
			z2 := 2.0 * (float32(z) - cz)
			xrot := rotAux[1]*x2 + rotAux[0]*z2
			if xrot > xhalf || xrot < -xhalf {
				continue
			}
			zrot := rotAux[1]*z2 - rotAux[0]*x2
			if zrot > zhalf || zrot < -zhalf {
				continue
			}
			y := int(layer.Heights[x+z*w])
			if y < miny || y > maxy {
				continue
			}
			layer.Areas[x+z*w] = areaId
		}
	}
	return detour.DT_SUCCESS
}
