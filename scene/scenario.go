package scene

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/config"
	"github.com/gorustyt/navrt/detour_crowd"
	"github.com/gorustyt/navrt/detour_tile_cache"
	"go.uber.org/zap"
)

// AgentReport is the outcome for one scripted agent.
type AgentReport struct {
	Name string
	// Tick the agent came within the arrive radius of its target, -1 if never.
	ArrivedAt int
	Pos       [3]float32
	Target    detour_crowd.MoveRequestState
	Partial   bool
}

type Report struct {
	Ticks     int
	Elapsed   time.Duration
	Obstacles int
	Agents    []AgentReport
}

func (r *Report) Arrived() int {
	n := 0
	for _, a := range r.Agents {
		if a.ArrivedAt >= 0 {
			n++
		}
	}
	return n
}

// Run plays a scripted scenario on s: agents are added and sent to their
// targets, obstacle events fire on their tick, and the scene is ticked until
// every agent arrived and no events are left, or the tick budget runs out.
func Run(ctx context.Context, s *Scene, sc *config.ScenarioConfig, log *zap.Logger) (*Report, error) {
	log = logger.OrNop(log)
	start := time.Now()

	report := &Report{Agents: make([]AgentReport, len(sc.Agents))}
	idx := make([]int, len(sc.Agents))
	for i, a := range sc.Agents {
		params := detour_crowd.DefaultCrowdAgentParams(a.Radius, a.Height)
		if a.MaxSpeed > 0 {
			params.MaxSpeed = a.MaxSpeed
		}
		id, err := s.AddAgent(a.Position[:], params)
		if err != nil {
			return nil, fmt.Errorf("scene: agent %q: %w", a.Name, err)
		}
		if err = s.RequestMoveTarget(id, a.Target[:]); err != nil {
			return nil, fmt.Errorf("scene: agent %q target: %w", a.Name, err)
		}
		idx[i] = id
		report.Agents[i] = AgentReport{Name: a.Name, ArrivedAt: -1}
	}

	events := append([]config.ObstacleEvent(nil), sc.Obstacles...)
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })
	refs := map[string]detour_tile_cache.DtObstacleRef{}

	next := 0
	for tick := 0; tick < sc.Ticks; tick++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		for ; next < len(events) && events[next].Tick <= tick; next++ {
			if err := applyEvent(s, &events[next], refs); err != nil {
				return report, err
			}
			report.Obstacles++
			log.Debug("obstacle event", zap.Int("tick", tick), zap.String("name", events[next].Name), zap.Bool("remove", events[next].Remove))
		}

		if err := s.Tick(sc.Dt); err != nil {
			return report, err
		}
		report.Ticks++

		done := next == len(events)
		for i, a := range sc.Agents {
			st, ok := s.Agent(idx[i])
			if !ok {
				continue
			}
			ar := &report.Agents[i]
			ar.Pos, ar.Target, ar.Partial = st.Pos, st.TargetState, st.Partial
			if ar.ArrivedAt < 0 && common.Vdist2D(st.Pos[:], a.Target[:]) <= sc.ArriveRadius {
				ar.ArrivedAt = tick
				log.Info("agent arrived", zap.String("agent", a.Name), zap.Int("tick", tick))
			}
			if ar.ArrivedAt < 0 {
				done = false
			}
		}
		if done {
			break
		}
	}
	report.Elapsed = time.Since(start)
	return report, nil
}

func applyEvent(s *Scene, ev *config.ObstacleEvent, refs map[string]detour_tile_cache.DtObstacleRef) error {
	if ev.Remove {
		ref, ok := refs[ev.Name]
		if !ok {
			return fmt.Errorf("scene: remove unknown obstacle %q", ev.Name)
		}
		delete(refs, ev.Name)
		return s.RemoveObstacle(ref)
	}

	var (
		ref detour_tile_cache.DtObstacleRef
		err error
	)
	switch ev.Shape {
	case config.ObstacleCylinder:
		ref, err = s.AddCapsuleObstacle(ev.Pos[:], ev.Radius, ev.Height)
	case config.ObstacleBox:
		ref, err = s.AddBoxObstacle(ev.Bmin[:], ev.Bmax[:])
	case config.ObstacleOrientedBox:
		ref, err = s.AddOrientedBoxObstacle(ev.Pos[:], ev.HalfExtents[:], ev.YRadians)
	default:
		err = fmt.Errorf("scene: unknown obstacle shape %q", ev.Shape)
	}
	if err != nil {
		return fmt.Errorf("scene: obstacle %q: %w", ev.Name, err)
	}
	refs[ev.Name] = ref
	return nil
}
