package detour_crowd

import (
	"fmt"
	"math"
	"slices"

	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/common/logger"
	"github.com/gorustyt/navrt/detour"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// / The maximum number of neighbors that a crowd agent can take into account
	// / for steering decisions.
	DT_CROWDAGENT_MAX_NEIGHBOURS = 6

	// / The maximum number of corners a crowd agent will look ahead in the path.
	// / This value is used for sizing the crowd agent corner buffers.
	// / Due to the behavior of the crowd manager, the actual number of useful
	// / corners will be one less than this number.
	DT_CROWDAGENT_MAX_CORNERS = 4

	// / The maximum number of crowd avoidance configurations supported by the
	// / crowd manager.
	DT_CROWD_MAX_OBSTAVOIDANCE_PARAMS = 8

	// / The maximum number of query filter types supported by the crowd manager.
	DT_CROWD_MAX_QUERY_FILTER_TYPE = 16
)

const (
	MAX_ITERS_PER_UPDATE = 100
	MAX_PATHQUEUE_NODES  = 4096
	MAX_COMMON_NODES     = 512
	MAX_PATH_RESULT      = 256
)

// CrowdAgentState is the kind of surface the agent is traversing.
type CrowdAgentState uint8

const (
	DT_CROWDAGENT_STATE_INVALID CrowdAgentState = iota ///< The agent is not in a valid state.
	DT_CROWDAGENT_STATE_WALKING                        ///< The agent is traversing a normal navigation mesh polygon.
	DT_CROWDAGENT_STATE_OFFMESH                        ///< The agent is traversing an off-mesh connection.
)

func (s CrowdAgentState) String() string {
	switch s {
	case DT_CROWDAGENT_STATE_INVALID:
		return "invalid"
	case DT_CROWDAGENT_STATE_WALKING:
		return "walking"
	case DT_CROWDAGENT_STATE_OFFMESH:
		return "offmesh"
	}
	return fmt.Sprintf("CrowdAgentState(%d)", uint8(s))
}

// MoveRequestState is the state of an agent's move request.
type MoveRequestState uint8

const (
	DT_CROWDAGENT_TARGET_NONE MoveRequestState = iota
	DT_CROWDAGENT_TARGET_FAILED
	DT_CROWDAGENT_TARGET_VALID
	DT_CROWDAGENT_TARGET_REQUESTING
	DT_CROWDAGENT_TARGET_WAITING_FOR_QUEUE
	DT_CROWDAGENT_TARGET_WAITING_FOR_PATH
	DT_CROWDAGENT_TARGET_VELOCITY
)

func (s MoveRequestState) String() string {
	switch s {
	case DT_CROWDAGENT_TARGET_NONE:
		return "none"
	case DT_CROWDAGENT_TARGET_FAILED:
		return "failed"
	case DT_CROWDAGENT_TARGET_VALID:
		return "valid"
	case DT_CROWDAGENT_TARGET_REQUESTING:
		return "requesting"
	case DT_CROWDAGENT_TARGET_WAITING_FOR_QUEUE:
		return "waiting-for-queue"
	case DT_CROWDAGENT_TARGET_WAITING_FOR_PATH:
		return "waiting-for-path"
	case DT_CROWDAGENT_TARGET_VELOCITY:
		return "velocity"
	}
	return fmt.Sprintf("MoveRequestState(%d)", uint8(s))
}

// / Crowd agent update flags.
const (
	DT_CROWD_ANTICIPATE_TURNS   = 1
	DT_CROWD_OBSTACLE_AVOIDANCE = 2
	DT_CROWD_SEPARATION         = 4
	DT_CROWD_OPTIMIZE_VIS       = 8  ///< Use PathCorridor.OptimizePathVisibility to optimize the agent path.
	DT_CROWD_OPTIMIZE_TOPO      = 16 ///< Use PathCorridor.OptimizePathTopology to optimize the agent path.
)

// / Provides neighbor data for agents managed by the crowd.
type CrowdNeighbour struct {
	Idx     int     ///< The index of the neighbor in the crowd.
	DistSqr float32 ///< The squared distance between the current agent and the neighbor.
}

// / Configuration parameters for a crowd agent.
type CrowdAgentParams struct {
	Radius          float32 `yaml:"radius" json:"radius"`                   ///< Agent radius. [Limit: >= 0]
	Height          float32 `yaml:"height" json:"height"`                   ///< Agent height. [Limit: > 0]
	MaxAcceleration float32 `yaml:"maxAcceleration" json:"maxAcceleration"` ///< Maximum allowed acceleration. [Limit: >= 0]
	MaxSpeed        float32 `yaml:"maxSpeed" json:"maxSpeed"`               ///< Maximum allowed speed. [Limit: >= 0]

	/// Defines how close a collision element must be before it is considered for steering behaviors. [Limits: > 0]
	CollisionQueryRange float32 `yaml:"collisionQueryRange" json:"collisionQueryRange"`

	PathOptimizationRange float32 `yaml:"pathOptimizationRange" json:"pathOptimizationRange"` ///< The path visibility optimization range. [Limit: > 0]

	/// How aggresive the agent manager should be at avoiding collisions with this agent. [Limit: >= 0]
	SeparationWeight float32 `yaml:"separationWeight" json:"separationWeight"`

	/// Flags that impact steering behavior.
	UpdateFlags uint8 `yaml:"updateFlags" json:"updateFlags"`

	/// The index of the avoidance configuration to use for the agent.
	ObstacleAvoidanceType int `yaml:"obstacleAvoidanceType" json:"obstacleAvoidanceType"`

	/// The index of the query filter used by this agent.
	QueryFilterType int `yaml:"queryFilterType" json:"queryFilterType"`

	/// User defined data attached to the agent.
	UserData any `yaml:"-" json:"-"`
}

// DefaultCrowdAgentParams mirrors the agent settings of the demo crowd tool.
func DefaultCrowdAgentParams(radius, height float32) CrowdAgentParams {
	return CrowdAgentParams{
		Radius:                radius,
		Height:                height,
		MaxAcceleration:       8.0,
		MaxSpeed:              3.5,
		CollisionQueryRange:   radius * 12,
		PathOptimizationRange: radius * 30,
		SeparationWeight:      2,
		UpdateFlags: DT_CROWD_ANTICIPATE_TURNS | DT_CROWD_OPTIMIZE_VIS | DT_CROWD_OPTIMIZE_TOPO |
			DT_CROWD_OBSTACLE_AVOIDANCE,
		ObstacleAvoidanceType: 3,
	}
}

// / Represents an agent managed by a Crowd.
type CrowdAgent struct {
	/// True if the agent is active, false if the agent is in an unused slot in the agent pool.
	Active bool

	/// The type of mesh polygon the agent is traversing.
	State CrowdAgentState

	/// True if the agent has valid path (targetState == DT_CROWDAGENT_TARGET_VALID) and the path does not lead to the requested position, else false.
	Partial bool

	/// The path corridor the agent is using.
	Corridor *PathCorridor

	/// The local boundary data for the agent.
	Boundary *LocalBoundary

	/// Time since the agent's path corridor was optimized.
	TopologyOptTime float32

	/// The known neighbors of the agent, nearest first.
	Neis []CrowdNeighbour

	/// The desired speed.
	DesiredSpeed float32

	Npos [3]float32 ///< The current agent position.
	Disp [3]float32 ///< Displacement accumulated during iterative collision resolution.
	Dvel [3]float32 ///< The desired velocity of the agent, recalculated every tick.
	Nvel [3]float32 ///< The desired velocity adjusted by obstacle avoidance.
	Vel  [3]float32 ///< The actual velocity of the agent. The change from nvel -> vel is constrained by max acceleration.

	/// The agent's configuration parameters.
	Params CrowdAgentParams

	/// The local path corridor corners for the agent.
	Corners *detour.DtStraightPath

	TargetState      MoveRequestState ///< State of the movement request.
	TargetRef        detour.DtPolyRef ///< Target polyref of the movement request.
	TargetPos        [3]float32       ///< Target position of the movement request (or velocity in case of DT_CROWDAGENT_TARGET_VELOCITY).
	TargetTicket     Ticket           ///< Path queue ticket.
	TargetReplan     bool             ///< Flag indicating that the current path is being replanned.
	TargetReplanTime float32          ///< Time since the agent's target was replanned.

	idx     int
	samples int
}

// Index returns the slot of the agent in the crowd pool.
func (ag *CrowdAgent) Index() int { return ag.idx }

func (ag *CrowdAgent) cornerCount() int {
	if ag.Corners == nil {
		return 0
	}
	return ag.Corners.Len()
}

type CrowdAgentAnimation struct {
	Active                    bool
	InitPos, StartPos, EndPos [3]float32
	PolyRef                   detour.DtPolyRef
	T, Tmax                   float32
}

type CrowdAgentDebugInfo struct {
	Idx              int
	OptStart, OptEnd [3]float32
	Vod              *ObstacleAvoidanceDebugData
}

// CrowdConfig sizes a Crowd.
type CrowdConfig struct {
	MaxAgents      int     `yaml:"maxAgents" json:"maxAgents"`
	MaxAgentRadius float32 `yaml:"maxAgentRadius" json:"maxAgentRadius"`
	// Capacity of every corridor and of merged path results. 0 means MAX_PATH_RESULT.
	MaxPathResult int `yaml:"maxPathResult" json:"maxPathResult"`
	// Node pool of the path queue search. 0 means MAX_PATHQUEUE_NODES.
	PathQueueNodes int `yaml:"pathQueueNodes" json:"pathQueueNodes"`
	// Iteration budget of the quick search run when a target is requested.
	// 0 sends every request to the path queue.
	QuickSearchIters int `yaml:"quickSearchIters" json:"quickSearchIters"`
	// Goroutines used for velocity planning. Values below 2 plan on the caller.
	AvoidanceWorkers int `yaml:"avoidanceWorkers" json:"avoidanceWorkers"`
}

func DefaultCrowdConfig() CrowdConfig {
	return CrowdConfig{
		MaxAgents:        128,
		MaxAgentRadius:   0.6,
		MaxPathResult:    MAX_PATH_RESULT,
		PathQueueNodes:   MAX_PATHQUEUE_NODES,
		QuickSearchIters: 20,
		AvoidanceWorkers: 1,
	}
}

// StateObserver is told about every move request state change.
type StateObserver func(idx int, from, to MoveRequestState)

// / Provides local steering behaviors for a group of agents.
// / A Crowd is not safe for concurrent use; Update fans out internally only.
type Crowd struct {
	m_agents       []*CrowdAgent
	m_activeAgents []*CrowdAgent
	m_agentAnims   []CrowdAgentAnimation

	m_pathq *PathQueue

	m_obstacleQueryParams [DT_CROWD_MAX_OBSTAVOIDANCE_PARAMS]ObstacleAvoidanceParams
	// One query per avoidance worker.
	m_obstacleQueries []*ObstacleAvoidanceQuery

	m_grid *ProximityGrid

	m_maxPathResult    int
	m_quickSearchIters int

	m_agentPlacementHalfExtents [3]float32

	m_filters [DT_CROWD_MAX_QUERY_FILTER_TYPE]*detour.DtQueryFilter

	m_maxAgentRadius float32

	m_velocitySampleCount int

	m_navquery *detour.DtNavMeshQuery

	m_observer StateObserver
	m_log      *zap.Logger
}

// NewCrowd allocates the agent pool and the shared query objects for nav.
func NewCrowd(cfg CrowdConfig, nav *detour.DtNavMesh, log *zap.Logger) (*Crowd, error) {
	if nav == nil {
		return nil, fmt.Errorf("crowd: nil navmesh: %w", detour.ErrInvalidParam)
	}
	if cfg.MaxAgents <= 0 || cfg.MaxAgents*4 >= proximityNull {
		return nil, fmt.Errorf("crowd: max agents %d out of range: %w", cfg.MaxAgents, detour.ErrInvalidParam)
	}
	if cfg.MaxAgentRadius <= 0 {
		return nil, fmt.Errorf("crowd: max agent radius %v: %w", cfg.MaxAgentRadius, detour.ErrInvalidParam)
	}
	if cfg.MaxPathResult == 0 {
		cfg.MaxPathResult = MAX_PATH_RESULT
	}
	if cfg.MaxPathResult < 3 {
		return nil, fmt.Errorf("crowd: max path result %d: %w", cfg.MaxPathResult, detour.ErrInvalidParam)
	}
	if cfg.PathQueueNodes <= 0 {
		cfg.PathQueueNodes = MAX_PATHQUEUE_NODES
	}

	d := &Crowd{
		m_maxPathResult:    cfg.MaxPathResult,
		m_quickSearchIters: max(cfg.QuickSearchIters, 0),
		m_maxAgentRadius:   cfg.MaxAgentRadius,
		m_log:              logger.OrNop(log),
	}

	// Larger than agent radius because it is also used for agent recovery.
	common.Vset(d.m_agentPlacementHalfExtents[:], d.m_maxAgentRadius*2.0, d.m_maxAgentRadius*1.5, d.m_maxAgentRadius*2.0)

	d.m_grid = NewProximityGrid(cfg.MaxAgents*4, cfg.MaxAgentRadius*3)

	workers := max(cfg.AvoidanceWorkers, 1)
	d.m_obstacleQueries = make([]*ObstacleAvoidanceQuery, workers)
	for i := range d.m_obstacleQueries {
		d.m_obstacleQueries[i] = NewObstacleAvoidanceQuery(6, 8)
	}

	// Init obstacle query params.
	for i := range d.m_obstacleQueryParams {
		d.m_obstacleQueryParams[i] = DefaultObstacleAvoidanceParams()
	}
	for i := range d.m_filters {
		d.m_filters[i] = detour.NewDtQueryFilter()
	}

	var err error
	d.m_pathq, err = NewPathQueue(nav, d.m_maxPathResult, cfg.PathQueueNodes)
	if err != nil {
		return nil, fmt.Errorf("crowd: path queue: %w", err)
	}

	d.m_agents = make([]*CrowdAgent, cfg.MaxAgents)
	d.m_activeAgents = make([]*CrowdAgent, 0, cfg.MaxAgents)
	d.m_agentAnims = make([]CrowdAgentAnimation, cfg.MaxAgents)
	for i := range d.m_agents {
		d.m_agents[i] = &CrowdAgent{
			idx:      i,
			Corridor: NewPathCorridor(d.m_maxPathResult),
			Boundary: NewLocalBoundary(),
			Neis:     make([]CrowdNeighbour, 0, DT_CROWDAGENT_MAX_NEIGHBOURS),
			Corners:  &detour.DtStraightPath{},
		}
	}

	// The navquery is mostly used for local searches, no need for large node pool.
	var status detour.DtStatus
	d.m_navquery, status = detour.NewDtNavMeshQuery(nav, MAX_COMMON_NODES)
	if status.Failed() {
		return nil, fmt.Errorf("crowd: nav query: %w", status.Err())
	}
	return d, nil
}

// SetStateObserver installs fn to be called synchronously on every move request transition.
func (d *Crowd) SetStateObserver(fn StateObserver) { d.m_observer = fn }

// SetIslands forwards a connectivity labelling to the path queue. Nil disables it.
func (d *Crowd) SetIslands(m *detour.DtIslandManager) { d.m_pathq.SetIslands(m) }

// / Gets the filter used by the crowd.
func (d *Crowd) GetFilter(i int) *detour.DtQueryFilter {
	if i >= 0 && i < DT_CROWD_MAX_QUERY_FILTER_TYPE {
		return d.m_filters[i]
	}
	return nil
}

// / Gets the filter used by the crowd for editing.
func (d *Crowd) GetEditableFilter(i int) *detour.DtQueryFilter { return d.GetFilter(i) }

// SetFilter replaces filter slot i. Nil restores the default filter.
func (d *Crowd) SetFilter(i int, filter *detour.DtQueryFilter) {
	if i < 0 || i >= DT_CROWD_MAX_QUERY_FILTER_TYPE {
		return
	}
	if filter == nil {
		filter = detour.NewDtQueryFilter()
	}
	d.m_filters[i] = filter
}

// / Gets the search halfExtents [(x, y, z)] used by the crowd for query operations.
func (d *Crowd) GetQueryHalfExtents() [3]float32 { return d.m_agentPlacementHalfExtents }

// GetNearestPolyQueryExtents is GetQueryHalfExtents under the name used by placement code.
func (d *Crowd) GetNearestPolyQueryExtents() [3]float32 { return d.m_agentPlacementHalfExtents }

// / Gets the velocity sample count of the last update.
func (d *Crowd) GetVelocitySampleCount() int { return d.m_velocitySampleCount }

// / Gets the crowd's proximity grid.
func (d *Crowd) GetGrid() *ProximityGrid { return d.m_grid }

// / Gets the crowd's path request queue.
func (d *Crowd) GetPathQueue() *PathQueue { return d.m_pathq }

// / Gets the query object used by the crowd.
func (d *Crowd) GetNavMeshQuery() *detour.DtNavMeshQuery { return d.m_navquery }

func (d *Crowd) SetObstacleAvoidanceParams(idx int, params ObstacleAvoidanceParams) {
	if idx >= 0 && idx < DT_CROWD_MAX_OBSTAVOIDANCE_PARAMS {
		d.m_obstacleQueryParams[idx] = params
	}
}

func (d *Crowd) GetObstacleAvoidanceParams(idx int) (ObstacleAvoidanceParams, bool) {
	if idx >= 0 && idx < DT_CROWD_MAX_OBSTAVOIDANCE_PARAMS {
		return d.m_obstacleQueryParams[idx], true
	}
	return ObstacleAvoidanceParams{}, false
}

func (d *Crowd) GetAgentCount() int { return len(d.m_agents) }

// / Agents in the pool may not be in use. Check CrowdAgent.Active before using the returned object.
func (d *Crowd) GetAgent(idx int) *CrowdAgent {
	if idx < 0 || idx >= len(d.m_agents) {
		return nil
	}
	return d.m_agents[idx]
}

// activeAgent returns agent idx when the slot is in use.
func (d *Crowd) activeAgent(idx int) *CrowdAgent {
	if idx < 0 || idx >= len(d.m_agents) || !d.m_agents[idx].Active {
		return nil
	}
	return d.m_agents[idx]
}

// GetAgentAnimation returns the off-mesh animation slot of agent idx.
func (d *Crowd) GetAgentAnimation(idx int) *CrowdAgentAnimation {
	if idx < 0 || idx >= len(d.m_agentAnims) {
		return nil
	}
	return &d.m_agentAnims[idx]
}

func (d *Crowd) filterOf(ag *CrowdAgent) *detour.DtQueryFilter {
	return d.m_filters[common.Clamp(ag.Params.QueryFilterType, 0, DT_CROWD_MAX_QUERY_FILTER_TYPE-1)]
}

func (d *Crowd) setTargetState(ag *CrowdAgent, state MoveRequestState) {
	if ag.TargetState == state {
		return
	}
	from := ag.TargetState
	ag.TargetState = state
	if d.m_observer != nil {
		d.m_observer(ag.idx, from, state)
	}
}

// releaseTicket drops any path request the agent still holds in the queue.
func (d *Crowd) releaseTicket(ag *CrowdAgent) {
	if ag.TargetTicket != DT_PATHQ_INVALID {
		d.m_pathq.Cancel(ag.TargetTicket)
		ag.TargetTicket = DT_PATHQ_INVALID
	}
}

func (d *Crowd) UpdateAgentParameters(idx int, params CrowdAgentParams) {
	if idx < 0 || idx >= len(d.m_agents) {
		return
	}
	d.m_agents[idx].Params = params
}

// / The agent's position will be constrained to the surface of the navigation mesh.
// / Returns the agent index, or -1 when the pool is full.
func (d *Crowd) AddAgent(pos []float32, params CrowdAgentParams) int {
	// Find empty slot.
	idx := -1
	for i, ag := range d.m_agents {
		if !ag.Active {
			idx = i
			break
		}
	}
	if idx == -1 {
		return -1
	}

	ag := d.m_agents[idx]
	d.UpdateAgentParameters(idx, params)

	// Find nearest position on navmesh and place the agent there.
	ref, nearest, _, status := d.m_navquery.FindNearestPoly(pos, d.m_agentPlacementHalfExtents[:], d.filterOf(ag))
	if status.Failed() {
		copy(nearest[:], pos)
		ref = 0
	}

	ag.Corridor.Reset(ref, nearest[:])
	ag.Boundary.Reset()
	ag.Partial = false

	ag.TopologyOptTime = 0
	ag.TargetReplanTime = 0
	ag.Neis = ag.Neis[:0]
	ag.Corners = &detour.DtStraightPath{}

	ag.Dvel = [3]float32{}
	ag.Nvel = [3]float32{}
	ag.Vel = [3]float32{}
	ag.Npos = nearest

	ag.DesiredSpeed = 0

	if ref != 0 {
		ag.State = DT_CROWDAGENT_STATE_WALKING
	} else {
		ag.State = DT_CROWDAGENT_STATE_INVALID
	}

	ag.TargetState = DT_CROWDAGENT_TARGET_NONE
	ag.TargetTicket = DT_PATHQ_INVALID
	d.m_agentAnims[idx] = CrowdAgentAnimation{}

	ag.Active = true
	return idx
}

// / The agent is deactivated and will no longer be processed. Its slot is reused
// / by a later AddAgent.
func (d *Crowd) RemoveAgent(idx int) {
	if idx < 0 || idx >= len(d.m_agents) {
		return
	}
	ag := d.m_agents[idx]
	d.releaseTicket(ag)
	ag.Active = false
	d.m_agentAnims[idx].Active = false
}

func (d *Crowd) requestMoveTargetReplan(ag *CrowdAgent, ref detour.DtPolyRef, pos []float32) {
	d.releaseTicket(ag)
	// Initialize request.
	ag.TargetRef = ref
	copy(ag.TargetPos[:], pos)
	ag.TargetReplan = true
	if ag.TargetRef != 0 {
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_REQUESTING)
	} else {
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_FAILED)
	}
}

// / This method is used when a new target is set.
// / The position will be constrained to the surface of the navigation mesh.
// / The request will be processed during the next Update.
func (d *Crowd) RequestMoveTarget(idx int, ref detour.DtPolyRef, pos []float32) bool {
	ag := d.activeAgent(idx)
	if ag == nil || ref == 0 {
		return false
	}
	d.releaseTicket(ag)

	// Initialize request.
	ag.TargetRef = ref
	copy(ag.TargetPos[:], pos)
	ag.TargetReplan = false
	d.setTargetState(ag, DT_CROWDAGENT_TARGET_REQUESTING)
	return true
}

// RequestMoveVelocity makes the agent steer with vel instead of following a path.
func (d *Crowd) RequestMoveVelocity(idx int, vel []float32) bool {
	ag := d.activeAgent(idx)
	if ag == nil {
		return false
	}
	d.releaseTicket(ag)

	// Initialize request.
	ag.TargetRef = 0
	copy(ag.TargetPos[:], vel)
	ag.TargetReplan = false
	d.setTargetState(ag, DT_CROWDAGENT_TARGET_VELOCITY)
	return true
}

func (d *Crowd) ResetMoveTarget(idx int) bool {
	ag := d.activeAgent(idx)
	if ag == nil {
		return false
	}
	d.releaseTicket(ag)

	// Initialize request.
	ag.TargetRef = 0
	ag.TargetPos = [3]float32{}
	ag.Dvel = [3]float32{}
	ag.TargetReplan = false
	d.setTargetState(ag, DT_CROWDAGENT_TARGET_NONE)
	return true
}

// GetActiveAgents returns the agents in use. The slice is reused by the next call.
func (d *Crowd) GetActiveAgents() []*CrowdAgent {
	d.m_activeAgents = d.m_activeAgents[:0]
	for _, ag := range d.m_agents {
		if ag.Active {
			d.m_activeAgents = append(d.m_activeAgents, ag)
		}
	}
	return d.m_activeAgents
}

func tween(t, t0, t1 float32) float32 {
	return common.Clamp((t-t0)/(t1-t0), 0.0, 1.0)
}

func integrate(ag *CrowdAgent, dt float32) {
	// Fake dynamic constraint.
	maxDelta := ag.Params.MaxAcceleration * dt
	dv := common.Vec3(ag.Nvel).Sub(ag.Vel)
	if ds := dv.Len(); ds > maxDelta {
		dv = dv.Mul(maxDelta / ds)
	}
	ag.Vel = common.Vec3(ag.Vel).Add(dv)

	// Integrate
	if common.Vec3(ag.Vel).Len() > 0.0001 {
		common.Vmad(ag.Npos[:], ag.Npos[:], ag.Vel[:], dt)
	} else {
		ag.Vel = [3]float32{}
	}
}

func overOffmeshConnection(ag *CrowdAgent, radius float32) bool {
	n := ag.cornerCount()
	if n == 0 {
		return false
	}
	if ag.Corners.Flags[n-1]&detour.DT_STRAIGHTPATH_OFFMESH_CONNECTION != 0 {
		distSq := common.Vdist2DSqr(ag.Npos[:], ag.Corners.Points[n-1][:])
		if distSq < radius*radius {
			return true
		}
	}
	return false
}

func getDistanceToGoal(ag *CrowdAgent, rangef float32) float32 {
	n := ag.cornerCount()
	if n == 0 {
		return rangef
	}
	if ag.Corners.Flags[n-1]&detour.DT_STRAIGHTPATH_END != 0 {
		return min(common.Vdist2D(ag.Npos[:], ag.Corners.Points[n-1][:]), rangef)
	}
	return rangef
}

func calcSmoothSteerDirection(ag *CrowdAgent) (dir common.Vec3) {
	n := ag.cornerCount()
	if n == 0 {
		return dir
	}

	dir0 := common.Vec3(ag.Corners.Points[0]).Sub(ag.Npos)
	dir1 := common.Vec3(ag.Corners.Points[min(1, n-1)]).Sub(ag.Npos)
	dir0[1] = 0
	dir1[1] = 0

	len0 := dir0.Len()
	len1 := dir1.Len()
	if len1 > 0.001 {
		dir1 = dir1.Mul(1.0 / len1)
	}

	dir[0] = dir0[0] - dir1[0]*len0*0.5
	dir[2] = dir0[2] - dir1[2]*len0*0.5
	common.Vnormalize(dir[:])
	return dir
}

func calcStraightSteerDirection(ag *CrowdAgent) (dir common.Vec3) {
	if ag.cornerCount() == 0 {
		return dir
	}
	dir = common.Vec3(ag.Corners.Points[0]).Sub(ag.Npos)
	dir[1] = 0
	common.Vnormalize(dir[:])
	return dir
}

// addNeighbour inserts a neighbour keeping neis sorted by distance and at most maxNeis long.
func addNeighbour(neis []CrowdNeighbour, idx int, distSqr float32, maxNeis int) []CrowdNeighbour {
	i := len(neis)
	for j := range neis {
		if distSqr <= neis[j].DistSqr {
			i = j
			break
		}
	}
	if i >= maxNeis {
		return neis
	}
	neis = slices.Insert(neis, i, CrowdNeighbour{Idx: idx, DistSqr: distSqr})
	if len(neis) > maxNeis {
		neis = neis[:maxNeis]
	}
	return neis
}

// getNeighbours collects the agents overlapping skip vertically and within rangef in 2D.
func (d *Crowd) getNeighbours(skip *CrowdAgent, rangef float32, agents []*CrowdAgent) []CrowdNeighbour {
	const MAX_NEIS = 32
	pos := skip.Npos
	result := skip.Neis[:0]
	ids := d.m_grid.QueryItems(pos[0]-rangef, pos[2]-rangef, pos[0]+rangef, pos[2]+rangef, MAX_NEIS)
	for _, id := range ids {
		ag := agents[id]
		if ag == skip {
			continue
		}

		// Check for overlap.
		var diff [3]float32
		common.Vsub(diff[:], pos[:], ag.Npos[:])
		if common.Abs(diff[1]) >= (skip.Params.Height+ag.Params.Height)/2.0 {
			continue
		}
		diff[1] = 0
		distSqr := common.VlenSqr(diff[:])
		if distSqr > common.Sqr(rangef) {
			continue
		}
		result = addNeighbour(result, ag.idx, distSqr, DT_CROWDAGENT_MAX_NEIGHBOURS)
	}
	return result
}

// addToQueue inserts ag keeping the queue ordered by descending key, at most maxAgents long.
func addToQueue(queue []*CrowdAgent, ag *CrowdAgent, maxAgents int, key func(*CrowdAgent) float32) []*CrowdAgent {
	i := len(queue)
	for j, q := range queue {
		if key(ag) >= key(q) {
			i = j
			break
		}
	}
	if i >= maxAgents {
		return queue
	}
	queue = slices.Insert(queue, i, ag)
	if len(queue) > maxAgents {
		queue = queue[:maxAgents]
	}
	return queue
}

func replanTime(ag *CrowdAgent) float32  { return ag.TargetReplanTime }
func topologyTime(ag *CrowdAgent) float32 { return ag.TopologyOptTime }

// quickSearch runs a short search toward the target and loads its result into the corridor.
func (d *Crowd) quickSearch(ag *CrowdAgent) {
	const MAX_RES = 32
	filter := d.filterOf(ag)
	path := ag.Corridor.GetPath()

	// Quick search towards the goal.
	d.m_navquery.InitSlicedFindPath(path[0], ag.TargetRef, ag.Npos[:], ag.TargetPos[:], filter)
	d.m_navquery.UpdateSlicedFindPath(d.m_quickSearchIters)

	var reqPath []detour.DtPolyRef
	var status detour.DtStatus
	if ag.TargetReplan {
		// Try to use existing steady path during replan if possible.
		reqPath, status = d.m_navquery.FinalizeSlicedFindPathPartial(path, MAX_RES)
	} else {
		// Try to move towards target when goal changes.
		reqPath, status = d.m_navquery.FinalizeSlicedFindPath(MAX_RES)
	}

	var reqPos [3]float32
	if !status.Failed() && len(reqPath) > 0 {
		// In progress or succeed.
		if reqPath[len(reqPath)-1] != ag.TargetRef {
			// Partial path, constrain target position inside the last polygon.
			var st detour.DtStatus
			reqPos, _, st = d.m_navquery.ClosestPointOnPoly(reqPath[len(reqPath)-1], ag.TargetPos[:])
			if st.Failed() {
				reqPath = nil
			}
		} else {
			reqPos = ag.TargetPos
		}
	} else {
		reqPath = nil
	}

	if len(reqPath) == 0 {
		// Could not find path, start the request from current location.
		reqPos = ag.Npos
		reqPath = []detour.DtPolyRef{path[0]}
	}

	ag.Corridor.SetCorridor(reqPos[:], reqPath)
	ag.Boundary.Reset()
	ag.Partial = false

	if reqPath[len(reqPath)-1] == ag.TargetRef {
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_VALID)
		ag.TargetReplanTime = 0.0
	} else {
		// The path is longer or potentially unreachable, full plan.
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_WAITING_FOR_QUEUE)
	}
}

func (d *Crowd) updateMoveRequest() {
	const PATH_MAX_AGENTS = 8
	queue := make([]*CrowdAgent, 0, PATH_MAX_AGENTS+1)

	// Fire off new requests.
	for _, ag := range d.m_agents {
		if !ag.Active || ag.State == DT_CROWDAGENT_STATE_INVALID {
			continue
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			continue
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_REQUESTING {
			d.quickSearch(ag)
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_WAITING_FOR_QUEUE {
			queue = addToQueue(queue, ag, PATH_MAX_AGENTS, replanTime)
		}
	}

	for _, ag := range queue {
		target := ag.Corridor.GetTarget()
		ticket, err := d.m_pathq.Request(ag.Corridor.GetLastPoly(), ag.TargetRef, target[:], ag.TargetPos[:], d.filterOf(ag))
		if err != nil {
			// Stay queued, the request is retried next update.
			continue
		}
		ag.TargetTicket = ticket
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_WAITING_FOR_PATH)
	}

	// Update requests.
	d.m_pathq.Update(MAX_ITERS_PER_UPDATE)

	// Process path results.
	for _, ag := range d.m_agents {
		if !ag.Active || ag.TargetState != DT_CROWDAGENT_TARGET_WAITING_FOR_PATH {
			continue
		}
		res := d.m_pathq.Poll(ag.TargetTicket)
		switch res.State {
		case PathPending:
			continue
		case PathFailed:
			ag.TargetTicket = DT_PATHQ_INVALID
			d.m_log.Debug("path request failed",
				zap.Int("agent", ag.idx), zap.Uint64("target", uint64(ag.TargetRef)), zap.Stringer("status", res.Status))
			// Path find failed, retry if the target location is still valid.
			if ag.TargetRef != 0 && !res.Status.Detail(detour.DT_NOT_FOUND) {
				d.setTargetState(ag, DT_CROWDAGENT_TARGET_REQUESTING)
			} else {
				d.setTargetState(ag, DT_CROWDAGENT_TARGET_FAILED)
			}
			ag.TargetReplanTime = 0.0
		case PathReady:
			ag.TargetTicket = DT_PATHQ_INVALID
			d.applyPathResult(ag, res)
			ag.TargetReplanTime = 0.0
		}
	}
}

// applyPathResult merges a finished search into the agent's corridor.
func (d *Crowd) applyPathResult(ag *CrowdAgent, res PathResult) {
	path := ag.Corridor.GetPath()
	npath := len(path)
	targetPos := ag.TargetPos

	valid := len(res.Path) > 0
	ag.Partial = res.Status.Detail(detour.DT_PARTIAL_RESULT)

	// The agent might have moved whilst the request was being processed, so the
	// path may have changed. The request was issued from the end of the old path.
	if valid && path[npath-1] != res.Path[0] {
		valid = false
	}

	var merged []detour.DtPolyRef
	if valid {
		// Put the old path in front of the result.
		merged = make([]detour.DtPolyRef, 0, d.m_maxPathResult)
		merged = append(merged, path[:npath-1]...)
		nres := min(len(res.Path), d.m_maxPathResult-len(merged))
		merged = append(merged, res.Path[:nres]...)

		// Remove trackbacks
		for j := 1; j+1 < len(merged); {
			if merged[j-1] == merged[j+1] {
				merged = append(merged[:j-1], merged[j+1:]...)
				j = max(1, j-1)
				continue
			}
			j++
		}

		// Check for partial path.
		if merged[len(merged)-1] != ag.TargetRef {
			// Partial path, constrain target position inside the last polygon.
			nearest, _, status := d.m_navquery.ClosestPointOnPoly(merged[len(merged)-1], targetPos[:])
			if status.Succeed() {
				targetPos = nearest
			} else {
				valid = false
			}
		}
	}

	if valid {
		// Set current corridor.
		ag.Corridor.SetCorridor(targetPos[:], merged)
		// Force to update boundary.
		ag.Boundary.Reset()
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_VALID)
	} else {
		// Something went wrong.
		d.m_log.Debug("path result rejected", zap.Int("agent", ag.idx), zap.Int("len", len(res.Path)))
		d.setTargetState(ag, DT_CROWDAGENT_TARGET_FAILED)
	}
}

func (d *Crowd) updateTopologyOptimization(agents []*CrowdAgent, dt float32) {
	if len(agents) == 0 {
		return
	}

	const OPT_TIME_THR = 0.5 // seconds
	const OPT_MAX_AGENTS = 1
	queue := make([]*CrowdAgent, 0, OPT_MAX_AGENTS+1)

	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			continue
		}
		if ag.Params.UpdateFlags&DT_CROWD_OPTIMIZE_TOPO == 0 {
			continue
		}
		ag.TopologyOptTime += dt
		if ag.TopologyOptTime >= OPT_TIME_THR {
			queue = addToQueue(queue, ag, OPT_MAX_AGENTS, topologyTime)
		}
	}

	for _, ag := range queue {
		ag.Corridor.OptimizePathTopology(d.m_navquery, d.filterOf(ag))
		ag.TopologyOptTime = 0
	}
}

func (d *Crowd) checkPathValidity(agents []*CrowdAgent, dt float32) {
	const CHECK_LOOKAHEAD = 10
	const TARGET_REPLAN_DELAY = 1.0 // seconds

	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		filter := d.filterOf(ag)

		ag.TargetReplanTime += dt
		replan := false

		// First check that the current location is valid.
		agentPos := ag.Npos
		agentRef := ag.Corridor.GetFirstPoly()
		if !d.m_navquery.IsValidPolyRef(agentRef, filter) {
			// Current location is not valid, try to reposition.
			agentRef, agentPos, _, _ = d.m_navquery.FindNearestPoly(ag.Npos[:], d.m_agentPlacementHalfExtents[:], filter)
			if agentRef == 0 {
				// Could not find location in navmesh, set state to invalid.
				ag.Corridor.Reset(0, ag.Npos[:])
				ag.Partial = false
				ag.Boundary.Reset()
				ag.State = DT_CROWDAGENT_STATE_INVALID
				continue
			}

			// Make sure the first polygon is valid, but leave other valid
			// polygons in the path so that replanner can adjust the path better.
			ag.Corridor.FixPathStart(agentRef, agentPos[:])
			ag.Boundary.Reset()
			ag.Npos = agentPos

			replan = true
		}

		// If the agent does not have move target or is controlled by velocity, no need to recover the target nor replan.
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			continue
		}

		// Try to recover move request position.
		if ag.TargetState != DT_CROWDAGENT_TARGET_FAILED {
			if !d.m_navquery.IsValidPolyRef(ag.TargetRef, filter) {
				// Current target is not valid, try to reposition.
				var nearest [3]float32
				ag.TargetRef, nearest, _, _ = d.m_navquery.FindNearestPoly(ag.TargetPos[:], d.m_agentPlacementHalfExtents[:], filter)
				if ag.TargetRef != 0 {
					ag.TargetPos = nearest
				}
				replan = true
			}
			if ag.TargetRef == 0 {
				// Failed to reposition target, fail moverequest.
				d.releaseTicket(ag)
				ag.Corridor.Reset(agentRef, agentPos[:])
				ag.Partial = false
				d.setTargetState(ag, DT_CROWDAGENT_TARGET_NONE)
				continue
			}
		}

		// If nearby corridor is not valid, replan.
		if !ag.Corridor.IsValid(CHECK_LOOKAHEAD, d.m_navquery, filter) {
			replan = true
		}

		// If the end of the path is near and it is not the requested location, replan.
		if ag.TargetState == DT_CROWDAGENT_TARGET_VALID {
			if ag.TargetReplanTime > TARGET_REPLAN_DELAY && ag.Corridor.GetPathCount() < CHECK_LOOKAHEAD &&
				ag.Corridor.GetLastPoly() != ag.TargetRef {
				replan = true
			}
		}

		// Try to replan path to goal.
		if replan && ag.TargetState != DT_CROWDAGENT_TARGET_NONE {
			d.requestMoveTargetReplan(ag, ag.TargetRef, ag.TargetPos[:])
		}
	}
}

// Update advances every active agent by dt seconds. debug may be nil.
func (d *Crowd) Update(dt float32, debug *CrowdAgentDebugInfo) {
	d.m_velocitySampleCount = 0

	debugIdx := -1
	if debug != nil {
		debugIdx = debug.Idx
	}

	agents := d.GetActiveAgents()

	// Check that all agents still have valid paths.
	d.checkPathValidity(agents, dt)

	// Update async move request and path finder.
	d.updateMoveRequest()

	// Optimize path topology.
	d.updateTopologyOptimization(agents, dt)

	// Register agents to proximity grid.
	d.m_grid.Clear()
	for i, ag := range agents {
		p := ag.Npos
		r := ag.Params.Radius
		d.m_grid.AddItem(uint16(i), p[0]-r, p[2]-r, p[0]+r, p[2]+r)
	}

	// Get nearby navmesh segments and agents to collide with.
	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		filter := d.filterOf(ag)

		// Update the collision boundary after certain distance has been passed or
		// if it has become invalid.
		updateThr := ag.Params.CollisionQueryRange * 0.25
		center := ag.Boundary.GetCenter()
		if common.Vdist2DSqr(ag.Npos[:], center[:]) > common.Sqr(updateThr) ||
			!ag.Boundary.IsValid(d.m_navquery, filter) {
			ag.Boundary.Update(ag.Corridor.GetFirstPoly(), ag.Npos[:], ag.Params.CollisionQueryRange, d.m_navquery, filter)
		}
		// Query neighbour agents
		ag.Neis = d.getNeighbours(ag, ag.Params.CollisionQueryRange, agents)
	}

	// Find next corner to steer to.
	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			continue
		}

		// Find corners for steering
		ag.Corners = ag.Corridor.FindCorners(DT_CROWDAGENT_MAX_CORNERS, d.m_navquery)

		// Check to see if the corner after the next corner is directly visible,
		// and short cut to there.
		if ag.Params.UpdateFlags&DT_CROWD_OPTIMIZE_VIS != 0 && ag.cornerCount() > 0 {
			target := ag.Corners.Points[min(1, ag.cornerCount()-1)]
			ag.Corridor.OptimizePathVisibility(target[:], ag.Params.PathOptimizationRange, d.m_navquery, d.filterOf(ag))

			// Copy data for debug purposes.
			if debugIdx == ag.idx {
				debug.OptStart = ag.Corridor.GetPos()
				debug.OptEnd = target
			}
		} else if debugIdx == ag.idx {
			// Copy data for debug purposes.
			debug.OptStart = [3]float32{}
			debug.OptEnd = [3]float32{}
		}
	}

	// Trigger off-mesh connections (depends on corners).
	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			continue
		}

		// Check
		triggerRadius := ag.Params.Radius * 2.25
		if !overOffmeshConnection(ag, triggerRadius) {
			continue
		}
		// Prepare to off-mesh connection.
		anim := &d.m_agentAnims[ag.idx]

		// Adjust the path over the off-mesh connection.
		// On failure the path validity check replans bad or blocked connections.
		refs, startPos, endPos, ok := ag.Corridor.MoveOverOffmeshConnection(ag.Corners.Refs[ag.cornerCount()-1], d.m_navquery)
		if ok {
			anim.InitPos = ag.Npos
			anim.StartPos = startPos
			anim.EndPos = endPos
			anim.PolyRef = refs[1]
			anim.Active = true
			anim.T = 0.0
			anim.Tmax = (common.Vdist2D(anim.StartPos[:], anim.EndPos[:]) / ag.Params.MaxSpeed) * 0.5

			ag.State = DT_CROWDAGENT_STATE_OFFMESH
			ag.Corners = &detour.DtStraightPath{}
			ag.Neis = ag.Neis[:0]
		}
	}

	// Calculate steering.
	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING || ag.TargetState == DT_CROWDAGENT_TARGET_NONE {
			continue
		}
		d.steer(ag)
	}

	// Velocity planning.
	d.planVelocities(agents, debugIdx, debug)

	// Integrate.
	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}
		integrate(ag, dt)
	}

	// Handle collisions.
	d.resolveCollisions(agents)

	for _, ag := range agents {
		if ag.State != DT_CROWDAGENT_STATE_WALKING {
			continue
		}

		// Move along navmesh.
		ag.Corridor.MovePosition(ag.Npos[:], d.m_navquery, d.filterOf(ag))
		// Get valid constrained position back.
		ag.Npos = ag.Corridor.GetPos()

		// If not using path, truncate the corridor to just one poly.
		if ag.TargetState == DT_CROWDAGENT_TARGET_NONE || ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
			ag.Corridor.Reset(ag.Corridor.GetFirstPoly(), ag.Npos[:])
			ag.Partial = false
		}
	}

	// Update agents using off-mesh connection.
	for _, ag := range agents {
		anim := &d.m_agentAnims[ag.idx]
		if !anim.Active {
			continue
		}

		anim.T += dt
		if anim.T > anim.Tmax {
			// Reset animation
			anim.Active = false
			// Prepare agent for walking.
			ag.State = DT_CROWDAGENT_STATE_WALKING
			continue
		}

		// Update position
		ta := anim.Tmax * 0.15
		tb := anim.Tmax
		if anim.T < ta {
			u := tween(anim.T, 0.0, ta)
			common.Vlerp(ag.Npos[:], anim.InitPos[:], anim.StartPos[:], u)
		} else {
			u := tween(anim.T, ta, tb)
			common.Vlerp(ag.Npos[:], anim.StartPos[:], anim.EndPos[:], u)
		}

		// Update velocity.
		ag.Vel = [3]float32{}
		ag.Dvel = [3]float32{}
	}
}

// steer computes the desired velocity of a walking agent.
func (d *Crowd) steer(ag *CrowdAgent) {
	var dvel common.Vec3
	if ag.TargetState == DT_CROWDAGENT_TARGET_VELOCITY {
		dvel = ag.TargetPos
		ag.DesiredSpeed = common.Vec3(ag.TargetPos).Len()
	} else {
		// Calculate steering direction.
		if ag.Params.UpdateFlags&DT_CROWD_ANTICIPATE_TURNS != 0 {
			dvel = calcSmoothSteerDirection(ag)
		} else {
			dvel = calcStraightSteerDirection(ag)
		}

		// Calculate speed scale, which tells the agent to slowdown at the end of the path.
		slowDownRadius := ag.Params.Radius * 2
		speedScale := getDistanceToGoal(ag, slowDownRadius) / slowDownRadius

		ag.DesiredSpeed = ag.Params.MaxSpeed
		dvel = dvel.Mul(ag.DesiredSpeed * speedScale)
	}

	// Separation
	if ag.Params.UpdateFlags&DT_CROWD_SEPARATION != 0 {
		separationDist := ag.Params.CollisionQueryRange
		invSeparationDist := 1.0 / separationDist
		separationWeight := ag.Params.SeparationWeight

		var w float32
		var disp common.Vec3
		for _, n := range ag.Neis {
			nei := d.m_agents[n.Idx]

			diff := common.Vec3(ag.Npos).Sub(nei.Npos)
			diff[1] = 0

			distSqr := diff.LenSqr()
			if distSqr < 0.00001 || distSqr > common.Sqr(separationDist) {
				continue
			}

			dist := common.Sqrt(distSqr)
			weight := separationWeight * (1.0 - common.Sqr(dist*invSeparationDist))
			disp = disp.Add(diff.Mul(weight / dist))
			w += 1.0
		}

		if w > 0.0001 {
			// Adjust desired velocity.
			dvel = dvel.Add(disp.Mul(1.0 / w))
			// Clamp desired velocity to desired speed.
			speedSqr := dvel.LenSqr()
			desiredSqr := common.Sqr(ag.DesiredSpeed)
			if speedSqr > desiredSqr {
				dvel = dvel.Mul(desiredSqr / speedSqr)
			}
		}
	}

	// Set the desired velocity.
	ag.Dvel = dvel
}

// planVelocities runs obstacle avoidance for the walking agents. Agents are split
// across the avoidance workers; each worker owns one query and writes only the
// Nvel of its own agents.
func (d *Crowd) planVelocities(agents []*CrowdAgent, debugIdx int, debug *CrowdAgentDebugInfo) {
	plan := func(q *ObstacleAvoidanceQuery, part []*CrowdAgent) {
		for _, ag := range part {
			var vod *ObstacleAvoidanceDebugData
			if debugIdx == ag.idx {
				vod = debug.Vod
			}
			d.planVelocity(q, ag, vod)
		}
	}

	workers := len(d.m_obstacleQueries)
	if workers <= 1 || len(agents) < 2 {
		plan(d.m_obstacleQueries[0], agents)
	} else {
		chunk := (len(agents) + workers - 1) / workers
		var g errgroup.Group
		for w := 0; w < workers; w++ {
			lo := w * chunk
			if lo >= len(agents) {
				break
			}
			hi := min(lo+chunk, len(agents))
			q := d.m_obstacleQueries[w]
			part := agents[lo:hi]
			g.Go(func() error {
				plan(q, part)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, ag := range agents {
		d.m_velocitySampleCount += ag.samples
	}
}

func (d *Crowd) planVelocity(q *ObstacleAvoidanceQuery, ag *CrowdAgent, vod *ObstacleAvoidanceDebugData) {
	ag.samples = 0
	if ag.State != DT_CROWDAGENT_STATE_WALKING {
		return
	}
	if ag.Params.UpdateFlags&DT_CROWD_OBSTACLE_AVOIDANCE == 0 {
		// If not using velocity planning, new velocity is directly the desired velocity.
		ag.Nvel = ag.Dvel
		return
	}

	q.Reset()

	// Add neighbours as obstacles.
	for _, n := range ag.Neis {
		nei := d.m_agents[n.Idx]
		q.AddCircle(nei.Npos[:], nei.Params.Radius, nei.Vel[:], nei.Dvel[:])
	}

	// Append neighbour segments as obstacles.
	for j := 0; j < ag.Boundary.GetSegmentCount(); j++ {
		s := ag.Boundary.GetSegment(j)
		if common.TriArea2D(ag.Npos[:], s[:3], s[3:]) < 0.0 {
			continue
		}
		q.AddSegment(s[:3], s[3:])
	}

	// Sample new safe velocity.
	params := d.m_obstacleQueryParams[common.Clamp(ag.Params.ObstacleAvoidanceType, 0, DT_CROWD_MAX_OBSTAVOIDANCE_PARAMS-1)]
	ag.Nvel, ag.samples = q.SampleVelocityAdaptive(ag.Npos[:], ag.Params.Radius, ag.DesiredSpeed,
		ag.Vel[:], ag.Dvel[:], &params, vod)
}

// resolveCollisions pushes overlapping walking agents apart. It runs for every
// agent, DT_CROWD_SEPARATION only adds the steering term that keeps agents from
// getting this close.
func (d *Crowd) resolveCollisions(agents []*CrowdAgent) {
	const COLLISION_RESOLVE_FACTOR = 0.7

	for iter := 0; iter < 4; iter++ {
		for _, ag := range agents {
			if ag.State != DT_CROWDAGENT_STATE_WALKING {
				continue
			}

			ag.Disp = [3]float32{}
			var w float32

			for _, n := range ag.Neis {
				nei := d.m_agents[n.Idx]

				diff := common.Vec3(ag.Npos).Sub(nei.Npos)
				diff[1] = 0

				dist := diff.LenSqr()
				if dist > common.Sqr(ag.Params.Radius+nei.Params.Radius) {
					continue
				}
				dist = float32(math.Sqrt(float64(dist)))
				pen := (ag.Params.Radius + nei.Params.Radius) - dist
				if dist < 0.0001 {
					// Agents on top of each other, try to choose diverging separation directions.
					if ag.idx > nei.idx {
						diff = common.Vec3{-ag.Dvel[2], 0, ag.Dvel[0]}
					} else {
						diff = common.Vec3{ag.Dvel[2], 0, -ag.Dvel[0]}
					}
					pen = 0.01
				} else {
					pen = (1.0 / dist) * (pen * 0.5) * COLLISION_RESOLVE_FACTOR
				}

				common.Vmad(ag.Disp[:], ag.Disp[:], diff[:], pen)
				w += 1.0
			}

			if w > 0.0001 {
				common.Vscale(ag.Disp[:], ag.Disp[:], 1.0/w)
			}
		}

		for _, ag := range agents {
			if ag.State != DT_CROWDAGENT_STATE_WALKING {
				continue
			}
			common.Vadd(ag.Npos[:], ag.Npos[:], ag.Disp[:])
		}
	}
}
