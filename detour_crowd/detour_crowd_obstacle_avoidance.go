package detour_crowd

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorustyt/navrt/common"
	"github.com/gorustyt/navrt/detour"
)

type obstacleCircle struct {
	p      [3]float32 ///< Position of the obstacle
	vel    [3]float32 ///< Velocity of the obstacle
	dvel   [3]float32 ///< Desired velocity of the obstacle
	rad    float32    ///< Radius of the obstacle
	dp, np [3]float32 ///< Use for side selection during sampling.
}

type obstacleSegment struct {
	p, q  [3]float32 ///< End points of the obstacle segment
	touch bool
}

// ObstacleAvoidanceDebugData records every sample of the last avoidance query.
type ObstacleAvoidanceDebugData struct {
	m_nsamples   int
	m_maxSamples int
	m_vel        [][3]float32
	m_ssize      []float32
	m_pen        []float32
	m_vpen       []float32
	m_vcpen      []float32
	m_spen       []float32
	m_tpen       []float32
}

func NewObstacleAvoidanceDebugData(maxSamples int) *ObstacleAvoidanceDebugData {
	return &ObstacleAvoidanceDebugData{
		m_maxSamples: maxSamples,
		m_vel:        make([][3]float32, maxSamples),
		m_pen:        make([]float32, maxSamples),
		m_ssize:      make([]float32, maxSamples),
		m_vpen:       make([]float32, maxSamples),
		m_vcpen:      make([]float32, maxSamples),
		m_spen:       make([]float32, maxSamples),
		m_tpen:       make([]float32, maxSamples),
	}
}

func (d *ObstacleAvoidanceDebugData) GetSampleCount() int                { return d.m_nsamples }
func (d *ObstacleAvoidanceDebugData) GetSampleVelocity(i int) [3]float32 { return d.m_vel[i] }
func (d *ObstacleAvoidanceDebugData) GetSampleSize(i int) float32        { return d.m_ssize[i] }
func (d *ObstacleAvoidanceDebugData) GetSamplePenalty(i int) float32     { return d.m_pen[i] }
func (d *ObstacleAvoidanceDebugData) GetSampleDesiredVelocityPenalty(i int) float32 {
	return d.m_vpen[i]
}
func (d *ObstacleAvoidanceDebugData) GetSampleCurrentVelocityPenalty(i int) float32 {
	return d.m_vcpen[i]
}
func (d *ObstacleAvoidanceDebugData) GetSamplePreferredSidePenalty(i int) float32 {
	return d.m_spen[i]
}
func (d *ObstacleAvoidanceDebugData) GetSampleCollisionTimePenalty(i int) float32 {
	return d.m_tpen[i]
}

func (d *ObstacleAvoidanceDebugData) Reset() { d.m_nsamples = 0 }

func (d *ObstacleAvoidanceDebugData) addSample(vel []float32, ssize, pen, vpen, vcpen, spen, tpen float32) {
	if d.m_nsamples >= d.m_maxSamples {
		return
	}
	copy(d.m_vel[d.m_nsamples][:], vel)
	d.m_ssize[d.m_nsamples] = ssize
	d.m_pen[d.m_nsamples] = pen
	d.m_vpen[d.m_nsamples] = vpen
	d.m_vcpen[d.m_nsamples] = vcpen
	d.m_spen[d.m_nsamples] = spen
	d.m_tpen[d.m_nsamples] = tpen
	d.m_nsamples++
}

func normalizeArray(arr []float32) {
	// Normalize penaly range.
	minPen := float32(math.MaxFloat32)
	maxPen := float32(-math.MaxFloat32)
	for _, v := range arr {
		minPen = min(minPen, v)
		maxPen = max(maxPen, v)
	}
	penRange := maxPen - minPen
	s := float32(1)
	if penRange > 0.001 {
		s = 1.0 / penRange
	}
	for i := range arr {
		arr[i] = common.Clamp((arr[i]-minPen)*s, 0.0, 1.0)
	}
}

// NormalizeSamples rescales every penalty channel to [0, 1].
func (d *ObstacleAvoidanceDebugData) NormalizeSamples() {
	n := d.m_nsamples
	normalizeArray(d.m_pen[:n])
	normalizeArray(d.m_vpen[:n])
	normalizeArray(d.m_vcpen[:n])
	normalizeArray(d.m_spen[:n])
	normalizeArray(d.m_tpen[:n])
}

const fltEpsilon = 1.1920929e-07

const DT_MAX_PATTERN_DIVS = 32 ///< Max numver of adaptive divs.
const DT_MAX_PATTERN_RINGS = 4 ///< Max number of adaptive rings.

type ObstacleAvoidanceParams struct {
	VelBias       float32 `yaml:"velBias" json:"velBias"`
	WeightDesVel  float32 `yaml:"weightDesVel" json:"weightDesVel"`
	WeightCurVel  float32 `yaml:"weightCurVel" json:"weightCurVel"`
	WeightSide    float32 `yaml:"weightSide" json:"weightSide"`
	WeightToi     float32 `yaml:"weightToi" json:"weightToi"`
	HorizTime     float32 `yaml:"horizTime" json:"horizTime"`
	GridSize      int     `yaml:"gridSize" json:"gridSize"`           ///< grid
	AdaptiveDivs  int     `yaml:"adaptiveDivs" json:"adaptiveDivs"`   ///< adaptive
	AdaptiveRings int     `yaml:"adaptiveRings" json:"adaptiveRings"` ///< adaptive
	AdaptiveDepth int     `yaml:"adaptiveDepth" json:"adaptiveDepth"` ///< adaptive
}

// DefaultObstacleAvoidanceParams is the profile every crowd slot starts with.
func DefaultObstacleAvoidanceParams() ObstacleAvoidanceParams {
	return ObstacleAvoidanceParams{
		VelBias:       0.4,
		WeightDesVel:  2.0,
		WeightCurVel:  0.75,
		WeightSide:    0.75,
		WeightToi:     2.5,
		HorizTime:     2.5,
		GridSize:      33,
		AdaptiveDivs:  7,
		AdaptiveRings: 2,
		AdaptiveDepth: 5,
	}
}

// Avoidance quality presets, numbered by the crowd slot they are usually stored in.
const (
	AvoidanceLow = iota
	AvoidanceMedium
	AvoidanceGood
	AvoidanceHigh
)

// ObstacleAvoidancePreset returns the adaptive sampling profile for a quality level.
// The sample count per agent is about 11, 22, 45 and 66 respectively.
func ObstacleAvoidancePreset(quality int) ObstacleAvoidanceParams {
	params := DefaultObstacleAvoidanceParams()
	params.VelBias = 0.5
	switch quality {
	case AvoidanceLow:
		params.AdaptiveDivs, params.AdaptiveRings, params.AdaptiveDepth = 5, 2, 1
	case AvoidanceMedium:
		params.AdaptiveDivs, params.AdaptiveRings, params.AdaptiveDepth = 5, 2, 2
	case AvoidanceGood:
		params.AdaptiveDivs, params.AdaptiveRings, params.AdaptiveDepth = 7, 2, 3
	default:
		params.AdaptiveDivs, params.AdaptiveRings, params.AdaptiveDepth = 7, 3, 3
	}
	return params
}

// ObstacleAvoidanceQuery scores candidate velocities against moving circles and
// static segments. One query is owned by a single goroutine at a time.
type ObstacleAvoidanceQuery struct {
	m_params       ObstacleAvoidanceParams
	m_invHorizTime float32
	m_vmax         float32
	m_invVmax      float32

	m_circles  []obstacleCircle
	m_segments []obstacleSegment
}

func NewObstacleAvoidanceQuery(maxCircles, maxSegments int) *ObstacleAvoidanceQuery {
	return &ObstacleAvoidanceQuery{
		m_circles:  make([]obstacleCircle, 0, maxCircles),
		m_segments: make([]obstacleSegment, 0, maxSegments),
	}
}

func (d *ObstacleAvoidanceQuery) Reset() {
	d.m_circles = d.m_circles[:0]
	d.m_segments = d.m_segments[:0]
}

func (d *ObstacleAvoidanceQuery) GetObstacleCircleCount() int  { return len(d.m_circles) }
func (d *ObstacleAvoidanceQuery) GetObstacleSegmentCount() int { return len(d.m_segments) }

func (d *ObstacleAvoidanceQuery) AddCircle(pos []float32, rad float32, vel, dvel []float32) {
	if len(d.m_circles) == cap(d.m_circles) {
		return
	}
	var cir obstacleCircle
	copy(cir.p[:], pos)
	cir.rad = rad
	copy(cir.vel[:], vel)
	copy(cir.dvel[:], dvel)
	d.m_circles = append(d.m_circles, cir)
}

func (d *ObstacleAvoidanceQuery) AddSegment(p, q []float32) {
	if len(d.m_segments) == cap(d.m_segments) {
		return
	}
	var seg obstacleSegment
	copy(seg.p[:], p)
	copy(seg.q[:], q)
	d.m_segments = append(d.m_segments, seg)
}

func sweepCircleCircle(c0 []float32, r0 float32, v, c1 []float32, r1 float32) (tmin, tmax float32, ok bool) {
	const EPS = 0.0001
	var s [3]float32
	common.Vsub(s[:], c1, c0)
	r := r0 + r1
	c := common.Vdot2D(s[:], s[:]) - r*r
	a := common.Vdot2D(v, v)
	if a < EPS {
		return 0, 0, false // not moving
	}

	// Overlap, calc time to exit.
	b := common.Vdot2D(v, s[:])
	d := b*b - a*c
	if d < 0.0 {
		return 0, 0, false // no intersection.
	}
	a = 1.0 / a
	rd := common.Sqrt(d)
	return (b - rd) * a, (b + rd) * a, true
}

func isectRaySeg(ap, u, bp, bq []float32) (t float32, ok bool) {
	var v, w [3]float32
	common.Vsub(v[:], bq, bp)
	common.Vsub(w[:], ap, bp)
	d := common.Vperp2D(u, v[:])
	if common.Abs(d) < 1e-6 {
		return 0, false
	}
	d = 1.0 / d
	t = common.Vperp2D(v[:], w[:]) * d
	if t < 0 || t > 1 {
		return 0, false
	}
	s := common.Vperp2D(u, w[:]) * d
	if s < 0 || s > 1 {
		return 0, false
	}
	return t, true
}

func (d *ObstacleAvoidanceQuery) prepare(pos, dvel []float32) {
	// Prepare obstacles
	for i := range d.m_circles {
		cir := &d.m_circles[i]

		// Side
		var dv [3]float32
		orig := [3]float32{}
		common.Vsub(cir.dp[:], cir.p[:], pos)
		common.Vnormalize(cir.dp[:])
		common.Vsub(dv[:], cir.dvel[:], dvel)

		a := common.TriArea2D(orig[:], cir.dp[:], dv[:])
		if a < 0.01 {
			cir.np[0] = -cir.dp[2]
			cir.np[2] = cir.dp[0]
		} else {
			cir.np[0] = cir.dp[2]
			cir.np[2] = -cir.dp[0]
		}
	}

	for i := range d.m_segments {
		seg := &d.m_segments[i]
		// Precalc if the agent is really close to the segment.
		const r = 0.01
		_, distSqr := detour.DtDistancePtSegSqr2D(pos, seg.p[:], seg.q[:])
		seg.touch = distSqr < common.Sqr(float32(r))
	}
}

// processSample returns the penalty of vcand. Samples that cannot beat minPenalty
// bail out early and return minPenalty.
func (d *ObstacleAvoidanceQuery) processSample(vcand []float32, cs float32, pos []float32, rad float32,
	vel, dvel []float32, minPenalty float32, debug *ObstacleAvoidanceDebugData) float32 {
	// penalty for straying away from the desired and current velocities
	vpen := d.m_params.WeightDesVel * (common.Vdist2D(vcand, dvel) * d.m_invVmax)
	vcpen := d.m_params.WeightCurVel * (common.Vdist2D(vcand, vel) * d.m_invVmax)

	// find the threshold hit time to bail out based on the early out penalty
	// (see how the penalty is calculated below to understand)
	minPen := minPenalty - vpen - vcpen
	tThreshold := (d.m_params.WeightToi/minPen - 0.1) * d.m_params.HorizTime
	if tThreshold-d.m_params.HorizTime > -fltEpsilon {
		return minPenalty // already too much
	}

	// Find min time of impact and exit amongst all obstacles.
	tmin := d.m_params.HorizTime
	side := float32(0)
	nside := 0

	for i := range d.m_circles {
		cir := &d.m_circles[i]

		// RVO
		var vab [3]float32
		common.Vscale(vab[:], vcand, 2)
		common.Vsub(vab[:], vab[:], vel)
		common.Vsub(vab[:], vab[:], cir.vel[:])

		// Side
		side += common.Clamp(min(common.Vdot2D(cir.dp[:], vab[:])*0.5+0.5, common.Vdot2D(cir.np[:], vab[:])*2), 0.0, 1.0)
		nside++

		htmin, htmax, ok := sweepCircleCircle(pos, rad, vab[:], cir.p[:], cir.rad)
		if !ok {
			continue
		}

		// Handle overlapping obstacles.
		if htmin < 0.0 && htmax > 0.0 {
			// Avoid more when overlapped.
			htmin = -htmin * 0.5
		}

		if htmin >= 0.0 {
			// The closest obstacle is somewhere ahead of us, keep track of nearest obstacle.
			if htmin < tmin {
				tmin = htmin
				if tmin < tThreshold {
					return minPenalty
				}
			}
		}
	}

	for i := range d.m_segments {
		seg := &d.m_segments[i]
		var htmin float32

		if seg.touch {
			// Special case when the agent is very close to the segment.
			var sdir, snorm [3]float32
			common.Vsub(sdir[:], seg.q[:], seg.p[:])
			snorm[0] = -sdir[2]
			snorm[2] = sdir[0]
			// If the velocity is pointing towards the segment, no collision.
			if common.Vdot2D(snorm[:], vcand) < 0.0 {
				continue
			}
			// Else immediate collision.
			htmin = 0.0
		} else {
			t, ok := isectRaySeg(pos, vcand, seg.p[:], seg.q[:])
			if !ok {
				continue
			}
			htmin = t
		}

		// Avoid less when facing walls.
		htmin *= 2.0

		// The closest obstacle is somewhere ahead of us, keep track of nearest obstacle.
		if htmin < tmin {
			tmin = htmin
			if tmin < tThreshold {
				return minPenalty
			}
		}
	}

	// Normalize side bias, to prevent it dominating too much.
	if nside != 0 {
		side /= float32(nside)
	}

	spen := d.m_params.WeightSide * side
	tpen := d.m_params.WeightToi * (1.0 / (0.1 + tmin*d.m_invHorizTime))

	penalty := vpen + vcpen + spen + tpen

	// Store different penalties for debug viewing
	if debug != nil {
		debug.addSample(vcand, cs, penalty, vpen, vcpen, spen, tpen)
	}
	return penalty
}

func (d *ObstacleAvoidanceQuery) begin(pos, dvel []float32, vmax float32, params *ObstacleAvoidanceParams, debug *ObstacleAvoidanceDebugData) {
	d.prepare(pos, dvel)
	d.m_params = *params
	d.m_invHorizTime = 1.0 / d.m_params.HorizTime
	d.m_vmax = vmax
	d.m_invVmax = math.MaxFloat32
	if vmax > 0 {
		d.m_invVmax = 1.0 / vmax
	}
	if debug != nil {
		debug.Reset()
	}
}

// SampleVelocityGrid scores a regular GridSize x GridSize lattice of velocities
// biased toward dvel and returns the best one with the number of samples taken.
func (d *ObstacleAvoidanceQuery) SampleVelocityGrid(pos []float32, rad, vmax float32, vel, dvel []float32,
	params *ObstacleAvoidanceParams, debug *ObstacleAvoidanceDebugData) (nvel [3]float32, ns int) {
	d.begin(pos, dvel, vmax, params, debug)
	if d.m_params.GridSize < 2 {
		return nvel, 0
	}

	cvx := dvel[0] * d.m_params.VelBias
	cvz := dvel[2] * d.m_params.VelBias
	cs := vmax * 2 * (1 - d.m_params.VelBias) / float32(d.m_params.GridSize-1)
	half := float32(d.m_params.GridSize-1) * cs * 0.5

	minPenalty := float32(math.MaxFloat32)
	for y := 0; y < d.m_params.GridSize; y++ {
		for x := 0; x < d.m_params.GridSize; x++ {
			vcand := [3]float32{cvx + float32(x)*cs - half, 0, cvz + float32(y)*cs - half}
			if common.Sqr(vcand[0])+common.Sqr(vcand[2]) > common.Sqr(vmax+cs/2) {
				continue
			}

			penalty := d.processSample(vcand[:], cs, pos, rad, vel, dvel, minPenalty, debug)
			ns++
			if penalty < minPenalty {
				minPenalty = penalty
				nvel = vcand
			}
		}
	}
	return nvel, ns
}

// samplePattern builds the adaptive sampling pattern: a sample at zero followed by
// nr rings of nd directions, alternate rings rotated by half a division.
func samplePattern(dvel []float32, nd, nr int) []mgl32.Vec2 {
	da := (1.0 / float32(nd)) * math.Pi * 2
	rotCW := mgl32.Rotate2D(-da)
	rotCCW := mgl32.Rotate2D(da)

	// desired direction
	var ddir [2]mgl32.Vec2
	ddir[0] = mgl32.Vec2{dvel[0], dvel[2]}
	if l := ddir[0].Len(); l > 0 {
		ddir[0] = ddir[0].Mul(1 / l)
	}
	ddir[1] = mgl32.Rotate2D(da * 0.5).Mul2x1(ddir[0]) // rotated by da/2

	// Always add sample at zero
	pat := make([]mgl32.Vec2, 0, DT_MAX_PATTERN_DIVS*DT_MAX_PATTERN_RINGS+1)
	pat = append(pat, mgl32.Vec2{})

	for j := 0; j < nr; j++ {
		r := float32(nr-j) / float32(nr)
		first := ddir[j%2].Mul(r)
		pat = append(pat, first)
		last1, last2 := first, first

		for i := 1; i < nd-1; i += 2 {
			// next point on the "right" (rotate CW) and on the "left" (rotate CCW)
			right := rotCW.Mul2x1(last1)
			left := rotCCW.Mul2x1(last2)
			pat = append(pat, right, left)
			last1, last2 = right, left
		}

		if nd&1 == 0 {
			pat = append(pat, rotCCW.Mul2x1(last2))
		}
	}
	return pat
}

// SampleVelocityAdaptive scores the adaptive pattern around the biased desired
// velocity, refining around the best sample AdaptiveDepth times.
func (d *ObstacleAvoidanceQuery) SampleVelocityAdaptive(pos []float32, rad, vmax float32, vel, dvel []float32,
	params *ObstacleAvoidanceParams, debug *ObstacleAvoidanceDebugData) (nvel [3]float32, ns int) {
	d.begin(pos, dvel, vmax, params, debug)

	nd := common.Clamp(d.m_params.AdaptiveDivs, 1, DT_MAX_PATTERN_DIVS)
	nr := common.Clamp(d.m_params.AdaptiveRings, 1, DT_MAX_PATTERN_RINGS)
	pat := samplePattern(dvel, nd, nr)

	// Start sampling.
	cr := vmax * (1.0 - d.m_params.VelBias)
	res := [3]float32{dvel[0] * d.m_params.VelBias, 0, dvel[2] * d.m_params.VelBias}

	for k := 0; k < d.m_params.AdaptiveDepth; k++ {
		minPenalty := float32(math.MaxFloat32)
		var bvel [3]float32

		for _, p := range pat {
			vcand := [3]float32{res[0] + p[0]*cr, 0, res[2] + p[1]*cr}
			if common.Sqr(vcand[0])+common.Sqr(vcand[2]) > common.Sqr(vmax+0.001) {
				continue
			}

			penalty := d.processSample(vcand[:], cr/10, pos, rad, vel, dvel, minPenalty, debug)
			ns++
			if penalty < minPenalty {
				minPenalty = penalty
				bvel = vcand
			}
		}
		res = bvel
		cr *= 0.5
	}
	return res, ns
}
