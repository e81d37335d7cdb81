package detour_tile_cache

import (
	"errors"
	"fmt"

	"github.com/gorustyt/navrt/common/message"
	"go.uber.org/zap"
	"google.golang.org/protobuf/encoding/protowire"
)

// Snapshot field numbers.
const (
	snapParams    protowire.Number = 1
	snapTile      protowire.Number = 2
	snapObstacle  protowire.Number = 3
	snapObstacles protowire.Number = 4 // obstacle capacity

	tileX    protowire.Number = 1
	tileY    protowire.Number = 2
	tileL    protowire.Number = 3
	tileBmin protowire.Number = 4
	tileBmax protowire.Number = 5
	tileData protowire.Number = 6

	obType        protowire.Number = 1
	obState       protowire.Number = 2
	obPos         protowire.Number = 3
	obRadius      protowire.Number = 4
	obHeight      protowire.Number = 5
	obBmin        protowire.Number = 6
	obBmax        protowire.Number = 7
	obCenter      protowire.Number = 8
	obHalfExtents protowire.Number = 9
	obYRadians    protowire.Number = 10

	pOrig           protowire.Number = 1
	pCs             protowire.Number = 2
	pCh             protowire.Number = 3
	pWidth          protowire.Number = 4
	pHeight         protowire.Number = 5
	pWalkableHeight protowire.Number = 6
	pWalkableRadius protowire.Number = 7
	pWalkableClimb  protowire.Number = 8
	pMaxError       protowire.Number = 9
	pMaxTiles       protowire.Number = 10
)

var ErrBadSnapshot = errors.New("tile cache: malformed snapshot")

// MarshalSnapshot encodes the parameters, every compressed tile and the live
// obstacles. Obstacles being removed are left out.
func (tc *TileCache) MarshalSnapshot() []byte {
	var b message.Builder
	p := &tc.m_params
	b.Message(snapParams, func(m *message.Builder) {
		m.Float32s(pOrig, p.Orig[:])
		m.Float32(pCs, p.Cs)
		m.Float32(pCh, p.Ch)
		m.Uint64(pWidth, uint64(p.Width))
		m.Uint64(pHeight, uint64(p.Height))
		m.Float32(pWalkableHeight, p.WalkableHeight)
		m.Float32(pWalkableRadius, p.WalkableRadius)
		m.Float32(pWalkableClimb, p.WalkableClimb)
		m.Float32(pMaxError, p.MaxSimplificationError)
		m.Uint64(pMaxTiles, uint64(p.MaxTiles))
	})
	b.Uint64(snapObstacles, uint64(p.MaxObstacles))

	for i := range tc.m_tiles {
		tile := &tc.m_tiles[i]
		if tile.Header == nil {
			continue
		}
		b.Message(snapTile, func(m *message.Builder) {
			m.Int64(tileX, int64(tile.Header.Tx))
			m.Int64(tileY, int64(tile.Header.Ty))
			m.Int64(tileL, int64(tile.Header.Tlayer))
			m.Float32s(tileBmin, tile.Header.Bmin[:])
			m.Float32s(tileBmax, tile.Header.Bmax[:])
			m.Bytes(tileData, tile.Data)
		})
	}

	for i := range tc.m_obstacles {
		ob := &tc.m_obstacles[i]
		if ob.State != DT_OBSTACLE_PROCESSING && ob.State != DT_OBSTACLE_PROCESSED {
			continue
		}
		s := &ob.Shape
		b.Message(snapObstacle, func(m *message.Builder) {
			m.Uint64(obType, uint64(s.Type))
			m.Uint64(obState, uint64(ob.State))
			switch s.Type {
			case DT_OBSTACLE_CYLINDER:
				m.Float32s(obPos, s.Pos[:])
				m.Float32(obRadius, s.Radius)
				m.Float32(obHeight, s.Height)
			case DT_OBSTACLE_BOX:
				m.Float32s(obBmin, s.Bmin[:])
				m.Float32s(obBmax, s.Bmax[:])
			case DT_OBSTACLE_ORIENTED_BOX:
				m.Float32s(obCenter, s.Center[:])
				m.Float32s(obHalfExtents, s.HalfExtents[:])
				m.Float32(obYRadians, s.YRadians)
			}
		})
	}
	return b.Data()
}

func copyVec3(dst *[3]float32, v message.Value) error {
	f, err := v.Float32s()
	if err != nil {
		return err
	}
	if len(f) != 3 {
		return fmt.Errorf("%w: vector has %d components", ErrBadSnapshot, len(f))
	}
	copy(dst[:], f)
	return nil
}

func decodeSnapshotParams(data []byte, p *DtTileCacheParams) error {
	return message.Range(data, func(num protowire.Number, v message.Value) error {
		switch num {
		case pOrig:
			return copyVec3(&p.Orig, v)
		case pCs:
			p.Cs = v.Float32()
		case pCh:
			p.Ch = v.Float32()
		case pWidth:
			p.Width = int(v.Varint)
		case pHeight:
			p.Height = int(v.Varint)
		case pWalkableHeight:
			p.WalkableHeight = v.Float32()
		case pWalkableRadius:
			p.WalkableRadius = v.Float32()
		case pWalkableClimb:
			p.WalkableClimb = v.Float32()
		case pMaxError:
			p.MaxSimplificationError = v.Float32()
		case pMaxTiles:
			p.MaxTiles = int(v.Varint)
		}
		return nil
	})
}

func decodeSnapshotObstacle(data []byte) (ObstacleShape, error) {
	var s ObstacleShape
	err := message.Range(data, func(num protowire.Number, v message.Value) error {
		switch num {
		case obType:
			s.Type = uint8(v.Varint)
		case obPos:
			return copyVec3(&s.Pos, v)
		case obRadius:
			s.Radius = v.Float32()
		case obHeight:
			s.Height = v.Float32()
		case obBmin:
			return copyVec3(&s.Bmin, v)
		case obBmax:
			return copyVec3(&s.Bmax, v)
		case obCenter:
			return copyVec3(&s.Center, v)
		case obHalfExtents:
			return copyVec3(&s.HalfExtents, v)
		case obYRadians:
			s.YRadians = v.Float32()
		}
		return nil
	})
	return s, err
}

// RestoreSnapshot creates a tile cache from MarshalSnapshot output. The
// obstacles are queued again regardless of the request limit, so the navmesh
// catches up after the next Update calls.
func RestoreSnapshot(data []byte, tcomp DtTileCacheCompressor, tmproc MeshProcessFunc, log *zap.Logger) (*TileCache, error) {
	var params DtTileCacheParams
	var tiles [][]byte
	var obstacles []ObstacleShape
	var haveParams bool

	err := message.Range(data, func(num protowire.Number, v message.Value) error {
		switch num {
		case snapParams:
			haveParams = true
			return decodeSnapshotParams(v.Bytes, &params)
		case snapObstacles:
			params.MaxObstacles = int(v.Varint)
		case snapTile:
			return message.Range(v.Bytes, func(num protowire.Number, v message.Value) error {
				if num == tileData {
					tiles = append(tiles, v.Bytes)
				}
				return nil
			})
		case snapObstacle:
			s, err := decodeSnapshotObstacle(v.Bytes)
			if err != nil {
				return err
			}
			obstacles = append(obstacles, s)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSnapshot, err)
	}
	if !haveParams {
		return nil, fmt.Errorf("%w: missing parameters", ErrBadSnapshot)
	}

	tc, err := NewTileCache(&params, tcomp, tmproc, log)
	if err != nil {
		return nil, err
	}
	for _, t := range tiles {
		if _, status := tc.AddTile(t); status.Failed() {
			return nil, fmt.Errorf("tile cache: restore tile: %w", status.Err())
		}
	}
	if _, status := tc.AddObstacles(obstacles); status.Failed() {
		return nil, fmt.Errorf("tile cache: restore obstacle: %w", status.Err())
	}
	return tc, nil
}
