package common

// Integer polygon helpers used when turning layer contours into polygons.
// Points are addressed as [x, y, z] and all predicates work on the xz-plane.

// MESH_REMOVABLE marks an index in Triangulate's working set whose vertex can be cut as an ear.
const MESH_REMOVABLE = 0x8000

const meshIndexMask = 0x7fff

func Prev[T IT](i, n T) T {
	if i-1 >= 0 {
		return i - 1
	}
	return n - 1
}

func Next[T IT](i, n T) T {
	if i+1 < n {
		return i + 1
	}
	return 0
}

func Area2[T IT](a, b, c []T) T {
	return (b[0]-a[0])*(c[2]-a[2]) - (c[0]-a[0])*(b[2]-a[2])
}

// Left returns true iff c is strictly to the left of the directed line through a to b.
func Left[T IT](a, b, c []T) bool {
	return Area2(a, b, c) < 0
}

func LeftOn[T IT](a, b, c []T) bool {
	return Area2(a, b, c) <= 0
}

func Collinear[T IT](a, b, c []T) bool {
	return Area2(a, b, c) == 0
}

// IntersectProp returns true iff ab properly intersects cd: they share
// a point interior to both segments.
func IntersectProp[T IT](a, b, c, d []T) bool {
	if Collinear(a, b, c) || Collinear(a, b, d) ||
		Collinear(c, d, a) || Collinear(c, d, b) {
		return false
	}
	return (Left(a, b, c) != Left(a, b, d)) && (Left(c, d, a) != Left(c, d, b))
}

// Between returns true iff (a,b,c) are collinear and c lies on the closed segment ab.
func Between[T IT](a, b, c []T) bool {
	if !Collinear(a, b, c) {
		return false
	}
	if a[0] != b[0] {
		return ((a[0] <= c[0]) && (c[0] <= b[0])) || ((a[0] >= c[0]) && (c[0] >= b[0]))
	}
	return ((a[2] <= c[2]) && (c[2] <= b[2])) || ((a[2] >= c[2]) && (c[2] >= b[2]))
}

// Intersect returns true iff segments ab and cd intersect, properly or improperly.
func Intersect[T IT](a, b, c, d []T) bool {
	if IntersectProp(a, b, c, d) {
		return true
	}
	return Between(a, b, c) || Between(a, b, d) || Between(c, d, a) || Between(c, d, b)
}

func Vequal2[T IT](a, b []T) bool {
	return a[0] == b[0] && a[2] == b[2]
}

func meshVert(verts []int, idx int) []int {
	return GetVert3(verts, idx&meshIndexMask)
}

// diagonalie reports whether (v_i, v_j) is a proper internal or external
// diagonal of P, ignoring edges incident to v_i and v_j.
func diagonalie(i, j, n int, verts []int, indices []int) bool {
	d0 := meshVert(verts, indices[i])
	d1 := meshVert(verts, indices[j])
	for k := 0; k < n; k++ {
		k1 := Next(k, n)
		if k == i || k1 == i || k == j || k1 == j {
			continue
		}
		p0 := meshVert(verts, indices[k])
		p1 := meshVert(verts, indices[k1])
		if Vequal2(d0, p0) || Vequal2(d1, p0) || Vequal2(d0, p1) || Vequal2(d1, p1) {
			continue
		}
		if Intersect(d0, d1, p0, p1) {
			return false
		}
	}
	return true
}

// inCone reports whether the diagonal (i,j) is strictly internal to the
// polygon in the neighborhood of the i endpoint.
func inCone(i, j, n int, verts []int, indices []int) bool {
	pi := meshVert(verts, indices[i])
	pj := meshVert(verts, indices[j])
	pi1 := meshVert(verts, indices[Next(i, n)])
	pin1 := meshVert(verts, indices[Prev(i, n)])
	// If P[i] is a convex vertex [ i+1 left or on (i-1,i) ].
	if LeftOn(pin1, pi, pi1) {
		return Left(pi, pj, pin1) && Left(pj, pi, pi1)
	}
	// Assume (i-1,i,i+1) not collinear; else P[i] is reflex.
	return !(LeftOn(pi, pj, pi1) && LeftOn(pj, pi, pin1))
}

func Diagonal(i, j, n int, verts []int, indices []int) bool {
	return inCone(i, j, n, verts, indices) && diagonalie(i, j, n, verts, indices)
}

// Triangulate ear-clips the polygon whose vertex indices are given in indices
// (modified in place) and writes triangle vertex indices into tris. It returns
// the number of triangles, negated when the polygon could not be completed.
func Triangulate(n int, verts []int, indices []int, tris []int) int {
	ntris := 0
	dst := 0
	for i := 0; i < n; i++ {
		i1 := Next(i, n)
		i2 := Next(i1, n)
		if Diagonal(i, i2, n, verts, indices) {
			indices[i1] |= MESH_REMOVABLE
		}
	}

	for n > 3 {
		minLen := -1
		mini := -1
		for i := 0; i < n; i++ {
			i1 := Next(i, n)
			if indices[i1]&MESH_REMOVABLE != 0 {
				p0 := meshVert(verts, indices[i])
				p2 := meshVert(verts, indices[Next(i1, n)])
				dx := p2[0] - p0[0]
				dz := p2[2] - p0[2]
				length := dx*dx + dz*dz
				if minLen < 0 || length < minLen {
					minLen = length
					mini = i
				}
			}
		}
		if mini == -1 {
			// Contour is messed up, usually after too aggressive simplification.
			return -ntris
		}

		i := mini
		i1 := Next(i, n)
		i2 := Next(i1, n)

		tris[dst] = indices[i] & meshIndexMask
		tris[dst+1] = indices[i1] & meshIndexMask
		tris[dst+2] = indices[i2] & meshIndexMask
		dst += 3
		ntris++

		// Removes P[i1] by copying P[i+1]...P[n-1] left one index.
		n--
		for k := i1; k < n; k++ {
			indices[k] = indices[k+1]
		}
		if i1 >= n {
			i1 = 0
		}
		i = Prev(i1, n)
		// Update diagonal flags.
		if Diagonal(Prev(i, n), i1, n, verts, indices) {
			indices[i] |= MESH_REMOVABLE
		} else {
			indices[i] &= meshIndexMask
		}
		if Diagonal(i, Next(i1, n), n, verts, indices) {
			indices[i1] |= MESH_REMOVABLE
		} else {
			indices[i1] &= meshIndexMask
		}
	}

	// Append the remaining triangle.
	tris[dst] = indices[0] & meshIndexMask
	tris[dst+1] = indices[1] & meshIndexMask
	tris[dst+2] = indices[2] & meshIndexMask
	ntris++
	return ntris
}

// ComputeTileHash hashes a tile grid coordinate into a lookup of size mask+1.
func ComputeTileHash(x, y, mask int) int {
	const h1 = 0x8da6b343 // Large multiplicative constants;
	const h2 = 0xd8163841 // here arbitrarily chosen primes
	n := uint32(h1*int64(x) + h2*int64(y))
	return int(n & uint32(mask))
}
