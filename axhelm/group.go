package axhelm

// Pencil registers held by each lane: the input along k and the output
// accumulators.
const (
	penU = iota
	penV
	penW
	accU
	accV
	accW
	numPencils
)

// lane is one (i,j) work item of a group. Supported orders keep the pencils
// in fixed size arrays, larger orders use heap slices.
type lane[T Real] struct {
	fixed  [numPencils][MaxLX]T
	pencil [numPencils][]T

	ut, vt, wt    T // t derivatives of the current layer
	rut, rvt, rwt T // t contributions of the current layer
}

func (ln *lane[T]) init(lx int, fixed bool) {
	for p := range ln.pencil {
		if fixed {
			ln.pencil[p] = ln.fixed[p][:lx]
		} else {
			ln.pencil[p] = make([]T, lx)
		}
	}
}

// group executes one element at a time with LX*LX lanes. Lanes run in
// lockstep: every lane finishes a phase before any lane starts the next, so
// each phase loop ends at a barrier.
type group[T Real] struct {
	lx, lx2, lx3 int
	strategy     Strategy
	d            DerivativeMatrices[T]
	geo          Geometry[T]

	sh    [numBuffers][]T
	lanes []lane[T]

	check *sharedChecker
	skip  [numPhases]bool
}

func newGroup[T Real](cfg Config, d DerivativeMatrices[T], geo Geometry[T], skip [numPhases]bool) *group[T] {
	lx := cfg.LX
	g := &group[T]{
		lx:       lx,
		lx2:      lx * lx,
		lx3:      lx * lx * lx,
		strategy: cfg.Strategy,
		d:        d,
		geo:      geo,
		lanes:    make([]lane[T], lx*lx),
		skip:     skip,
	}
	for b := range g.sh {
		g.sh[b] = make([]T, g.lx2)
	}
	for ij := range g.lanes {
		g.lanes[ij].init(lx, cfg.fixedRegisters())
	}
	if cfg.Instrumented {
		g.check = newSharedChecker(lx)
	}
	return g
}

func (g *group[T]) ld(b bufferID, slot, lane int) T {
	if g.check != nil {
		g.check.read(b, slot, lane)
	}
	return g.sh[b][slot]
}

func (g *group[T]) st(b bufferID, slot, lane int, v T) {
	if g.check != nil {
		g.check.write(b, slot, lane)
	}
	g.sh[b][slot] = v
}

// barrier enters phase p.
func (g *group[T]) barrier(p Phase) {
	if g.check != nil {
		g.check.advance(p, !g.skip[p])
	}
}

func (g *group[T]) begin() {
	if g.check != nil {
		g.check.reset()
	}
}

func (g *group[T]) err() error {
	if g.check == nil {
		return nil
	}
	return g.check.err()
}

// run overwrites element e of out with the stress action on element e of in.
func (g *group[T]) run(e int, out, in Field[T]) {
	lx, lx2 := g.lx, g.lx2
	ele := e * g.lx3
	if g.check != nil {
		g.check.element, g.check.layer = e, 0
	}

	g.barrier(PhaseLoad)
	for ij := 0; ij < lx2; ij++ {
		g.st(bufDx, ij, ij, g.d.Dx[ij])
		g.st(bufDy, ij, ij, g.d.Dy[ij])
		g.st(bufDz, ij, ij, g.d.Dz[ij])

		p := &g.lanes[ij].pencil
		for k := 0; k < lx; k++ {
			n := ij + k*lx2 + ele
			p[penU][k] = in.U[n]
			p[penV][k] = in.V[n]
			p[penW][k] = in.W[n]
			p[accU][k] = 0
			p[accV][k] = 0
			p[accW][k] = 0
		}
	}

	for k := 0; k < lx; k++ {
		if g.check != nil {
			g.check.layer = k
		}
		g.barrier(PhaseSliceStore)
		for ij := 0; ij < lx2; ij++ {
			g.sliceStore(ij, k)
		}

		g.barrier(PhaseDeriveRS)
		for j := 0; j < lx; j++ {
			for i := 0; i < lx; i++ {
				g.deriveRS(i, j, k, ele)
			}
		}

		g.barrier(PhaseTransformScatter)
		for j := 0; j < lx; j++ {
			for i := 0; i < lx; i++ {
				g.scatter(i, j, k)
			}
		}
	}

	for ij := 0; ij < lx2; ij++ {
		p := &g.lanes[ij].pencil
		for k := 0; k < lx; k++ {
			n := ij + k*lx2 + ele
			out.U[n] = p[accU][k]
			out.V[n] = p[accV][k]
			out.W[n] = p[accW][k]
		}
	}
}

// sliceStore publishes layer k of lane ij and differentiates its pencils
// along t.
func (g *group[T]) sliceStore(ij, k int) {
	ln := &g.lanes[ij]
	ru, rv, rw := ln.pencil[penU], ln.pencil[penV], ln.pencil[penW]
	g.st(bufU, ij, ij, ru[k])
	g.st(bufV, ij, ij, rv[k])
	g.st(bufW, ij, ij, rw[k])

	var ut, vt, wt T
	for l := 0; l < g.lx; l++ {
		dz := g.ld(bufDz, k+l*g.lx, ij)
		ut += dz * ru[l]
		vt += dz * rv[l]
		wt += dz * rw[l]
	}
	ln.ut, ln.vt, ln.wt = ut, vt, wt
}

func (g *group[T]) deriveRS(i, j, k, ele int) {
	lx := g.lx
	ij := i + j*lx
	ln := &g.lanes[ij]

	var ur, us, vr, vs, wr, ws T
	for l := 0; l < lx; l++ {
		dxil := g.ld(bufDx, i+l*lx, ij)
		dyjl := g.ld(bufDy, j+l*lx, ij)
		ur += dxil * g.ld(bufU, l+j*lx, ij)
		vr += dxil * g.ld(bufV, l+j*lx, ij)
		wr += dxil * g.ld(bufW, l+j*lx, ij)
		us += dyjl * g.ld(bufU, i+l*lx, ij)
		vs += dyjl * g.ld(bufV, i+l*lx, ij)
		ws += dyjl * g.ld(bufW, i+l*lx, ij)
	}

	ref := [3][3]T{
		{ur, us, ln.ut},
		{vr, vs, ln.vt},
		{wr, ws, ln.wt},
	}
	n := ij + k*g.lx2 + ele
	var c [3][3]T
	if g.strategy == StrategyGFactors {
		c = metricFlux(g.geo.G, n, &ref)
	} else {
		c = curvilinearStress(g.geo.Curvilinear, n, &ref)
	}

	g.st(bufUR, ij, ij, c[0][0])
	g.st(bufUS, ij, ij, c[0][1])
	g.st(bufVR, ij, ij, c[1][0])
	g.st(bufVS, ij, ij, c[1][1])
	g.st(bufWR, ij, ij, c[2][0])
	g.st(bufWS, ij, ij, c[2][1])
	ln.rut, ln.rvt, ln.rwt = c[0][2], c[1][2], c[2][2]
}

func (g *group[T]) scatter(i, j, k int) {
	lx := g.lx
	ij := i + j*lx
	ln := &g.lanes[ij]
	ruw, rvw, rww := ln.pencil[accU], ln.pencil[accV], ln.pencil[accW]

	var uw, vw, ww T
	for l := 0; l < lx; l++ {
		dxli := g.ld(bufDx, l+i*lx, ij)
		dylj := g.ld(bufDy, l+j*lx, ij)
		dzkl := g.ld(bufDz, k+l*lx, ij)

		uw += g.ld(bufUR, l+j*lx, ij)*dxli + g.ld(bufUS, i+l*lx, ij)*dylj
		vw += g.ld(bufVR, l+j*lx, ij)*dxli + g.ld(bufVS, i+l*lx, ij)*dylj
		ww += g.ld(bufWR, l+j*lx, ij)*dxli + g.ld(bufWS, i+l*lx, ij)*dylj

		ruw[l] += ln.rut * dzkl
		rvw[l] += ln.rvt * dzkl
		rww[l] += ln.rwt * dzkl
	}
	ruw[k] += uw
	rvw[k] += vw
	rww[k] += ww
}

// curvilinearStress maps reference derivatives ref[c][r] of component c to
// the physical gradient, forms S = dj*(grad + grad^T) with dj = H1*W and
// returns the reference contributions out[c][r] = sum_a J[r][a]*S[c][a].
func curvilinearStress[T Real](g *GeometricFactors[T], n int, ref *[3][3]T) (out [3][3]T) {
	J := [3][3]T{
		{g.Drdx[n], g.Drdy[n], g.Drdz[n]},
		{g.Dsdx[n], g.Dsdy[n], g.Dsdz[n]},
		{g.Dtdx[n], g.Dtdy[n], g.Dtdz[n]},
	}
	dj := g.H1[n] * g.W[n]

	var grad [3][3]T
	for c := 0; c < 3; c++ {
		for a := 0; a < 3; a++ {
			grad[c][a] = ref[c][0]*J[0][a] + ref[c][1]*J[1][a] + ref[c][2]*J[2][a]
		}
	}

	var s [3][3]T
	for c := 0; c < 3; c++ {
		for a := c; a < 3; a++ {
			s[c][a] = dj * (grad[c][a] + grad[a][c])
			s[a][c] = s[c][a]
		}
	}

	for c := 0; c < 3; c++ {
		for r := 0; r < 3; r++ {
			out[c][r] = J[r][0]*s[c][0] + J[r][1]*s[c][1] + J[r][2]*s[c][2]
		}
	}
	return out
}

// metricFlux contracts each component's reference gradient with the
// symmetric metric, out[c] = H1 * G * ref[c].
func metricFlux[T Real](g *GFactors[T], n int, ref *[3][3]T) (out [3][3]T) {
	h1 := g.H1[n]
	g00, g01, g02 := g.G00[n], g.G01[n], g.G02[n]
	g11, g12, g22 := g.G11[n], g.G12[n], g.G22[n]
	for c := 0; c < 3; c++ {
		r, s, t := ref[c][0], ref[c][1], ref[c][2]
		out[c][0] = h1 * (g00*r + g01*s + g02*t)
		out[c][1] = h1 * (g01*r + g11*s + g12*t)
		out[c][2] = h1 * (g02*r + g12*s + g22*t)
	}
	return out
}
