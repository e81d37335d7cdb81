package common

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

type Vec3 = mgl32.Vec3
type Vec2 = mgl32.Vec2

type IT interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

type IIndex interface {
	~int | ~int8 | ~int16 | ~int32 | ~uint | ~uint8 | ~uint16 | ~uint32
}

// GetVert3 returns the three components of vertex index in a packed xyz buffer.
func GetVert3[T IT, T1 IIndex](verts []T, index T1) []T {
	return verts[index*3 : index*3+3]
}

func GetVert4[T IT, T1 IIndex](verts []T, index T1) []T {
	return verts[index*4 : index*4+4]
}

// ToVec3 copies the first three components of v.
func ToVec3(v []float32) Vec3 {
	return Vec3{v[0], v[1], v[2]}
}

// AssertTrue panics when an internal invariant does not hold.
func AssertTrue(ok bool, msg ...any) {
	if ok {
		return
	}
	if len(msg) > 0 {
		panic(fmt.Sprint(append([]any{"navrt: invariant violated: "}, msg...)...))
	}
	panic("navrt: invariant violated")
}
