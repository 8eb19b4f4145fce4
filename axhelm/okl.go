package axhelm

import (
	"fmt"
	"strings"
)

// Kernel names as compiled by the device operator.
const (
	StressKernelName = "axhelmStress"
	MassKernelName   = "axhelmMass"
)

// Device array names. The geometric arrays depend on the strategy.
var (
	fieldArrays       = [3]string{"u", "v", "w"}
	outputArrays      = [3]string{"au", "av", "aw"}
	curvilinearArrays = []string{"h1",
		"drdx", "drdy", "drdz",
		"dsdx", "dsdy", "dsdz",
		"dtdx", "dtdy", "dtdz",
		"wj"}
	gfactorArrays   = []string{"h1", "g00", "g01", "g02", "g11", "g12", "g22"}
	reactionArrays  = [2]string{"h2", "bmass"}
	derivativeNames = [3]string{"Dx", "Dy", "Dz"}
)

func geometryArrays(s Strategy) []string {
	if s == StrategyGFactors {
		return gfactorArrays
	}
	return curvilinearArrays
}

// StressKernelSource generates the OKL stress kernel for a strategy. The
// preamble must define LX and NP and embed Dx, Dy and Dz as static
// [LX][LX] matrices with Dx[b][a] = D(a,b). signature is the generated
// argument list, which binds every array as <name>_global plus
// <name>_offsets.
//
// Groups are (partition, element) pairs with LX*LX lanes. OCCA places a
// barrier after every @inner block that touches @shared memory, so the
// blocks below are exactly the phases Load, SliceStore, DeriveRS and
// TransformScatter.
func StressKernelSource(s Strategy, signature string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "@kernel void %s(%s) {\n", StressKernelName, signature)
	sb.WriteString(`  for (int part = 0; part < NPART; ++part; @outer(1)) {
    for (int elem = 0; elem < KpartMax; ++elem; @outer(0)) {
      @shared real_t s_Dx[LX][LX];
      @shared real_t s_Dy[LX][LX];
      @shared real_t s_Dz[LX][LX];
      @shared real_t s_U[LX][LX];
      @shared real_t s_V[LX][LX];
      @shared real_t s_W[LX][LX];
      @shared real_t s_UR[LX][LX];
      @shared real_t s_US[LX][LX];
      @shared real_t s_VR[LX][LX];
      @shared real_t s_VS[LX][LX];
      @shared real_t s_WR[LX][LX];
      @shared real_t s_WS[LX][LX];

      @exclusive real_t r_U[LX], r_V[LX], r_W[LX];
      @exclusive real_t r_AU[LX], r_AV[LX], r_AW[LX];
      @exclusive real_t r_ut, r_vt, r_wt;
      @exclusive real_t r_rut, r_rvt, r_rwt;

      const real_t* u = u_PART(part) + elem * NP;
      const real_t* v = v_PART(part) + elem * NP;
      const real_t* w = w_PART(part) + elem * NP;
      real_t* au = au_PART(part) + elem * NP;
      real_t* av = av_PART(part) + elem * NP;
      real_t* aw = aw_PART(part) + elem * NP;
`)
	for _, name := range geometryArrays(s) {
		fmt.Fprintf(&sb, "      const real_t* %s = %s_PART(part) + elem * NP;\n", name, name)
	}
	sb.WriteString(`
      for (int j = 0; j < LX; ++j; @inner(1)) {
        for (int i = 0; i < LX; ++i; @inner(0)) {
          s_Dx[j][i] = Dx[j][i];
          s_Dy[j][i] = Dy[j][i];
          s_Dz[j][i] = Dz[j][i];
          if (elem < K[part]) {
            for (int k = 0; k < LX; ++k) {
              const int n = i + j * LX + k * LX * LX;
              r_U[k] = u[n];
              r_V[k] = v[n];
              r_W[k] = w[n];
              r_AU[k] = REAL_ZERO;
              r_AV[k] = REAL_ZERO;
              r_AW[k] = REAL_ZERO;
            }
          }
        }
      }

      for (int k = 0; k < LX; ++k) {
        for (int j = 0; j < LX; ++j; @inner(1)) {
          for (int i = 0; i < LX; ++i; @inner(0)) {
            if (elem < K[part]) {
              s_U[j][i] = r_U[k];
              s_V[j][i] = r_V[k];
              s_W[j][i] = r_W[k];
              real_t ut = REAL_ZERO, vt = REAL_ZERO, wt = REAL_ZERO;
              for (int l = 0; l < LX; ++l) {
                const real_t dz = s_Dz[l][k];
                ut += dz * r_U[l];
                vt += dz * r_V[l];
                wt += dz * r_W[l];
              }
              r_ut = ut;
              r_vt = vt;
              r_wt = wt;
            }
          }
        }

        for (int j = 0; j < LX; ++j; @inner(1)) {
          for (int i = 0; i < LX; ++i; @inner(0)) {
            if (elem < K[part]) {
              real_t ur = REAL_ZERO, us = REAL_ZERO;
              real_t vr = REAL_ZERO, vs = REAL_ZERO;
              real_t wr = REAL_ZERO, ws = REAL_ZERO;
              for (int l = 0; l < LX; ++l) {
                const real_t dx = s_Dx[l][i];
                const real_t dy = s_Dy[l][j];
                ur += dx * s_U[j][l];
                vr += dx * s_V[j][l];
                wr += dx * s_W[j][l];
                us += dy * s_U[l][i];
                vs += dy * s_V[l][i];
                ws += dy * s_W[l][i];
              }
              const int n = i + j * LX + k * LX * LX;
              real_t ref[3][3] = {{ur, us, r_ut}, {vr, vs, r_vt}, {wr, ws, r_wt}};
              real_t f[3][3];
`)
	sb.WriteString(fluxSource(s))
	sb.WriteString(`              s_UR[j][i] = f[0][0];
              s_US[j][i] = f[0][1];
              s_VR[j][i] = f[1][0];
              s_VS[j][i] = f[1][1];
              s_WR[j][i] = f[2][0];
              s_WS[j][i] = f[2][1];
              r_rut = f[0][2];
              r_rvt = f[1][2];
              r_rwt = f[2][2];
            }
          }
        }

        for (int j = 0; j < LX; ++j; @inner(1)) {
          for (int i = 0; i < LX; ++i; @inner(0)) {
            if (elem < K[part]) {
              real_t uw = REAL_ZERO, vw = REAL_ZERO, ww = REAL_ZERO;
              for (int l = 0; l < LX; ++l) {
                const real_t dx = s_Dx[i][l];
                const real_t dy = s_Dy[j][l];
                const real_t dz = s_Dz[l][k];
                uw += s_UR[j][l] * dx + s_US[l][i] * dy;
                vw += s_VR[j][l] * dx + s_VS[l][i] * dy;
                ww += s_WR[j][l] * dx + s_WS[l][i] * dy;
                r_AU[l] += r_rut * dz;
                r_AV[l] += r_rvt * dz;
                r_AW[l] += r_rwt * dz;
              }
              r_AU[k] += uw;
              r_AV[k] += vw;
              r_AW[k] += ww;
            }
          }
        }
      }

      for (int j = 0; j < LX; ++j; @inner(1)) {
        for (int i = 0; i < LX; ++i; @inner(0)) {
          if (elem < K[part]) {
            for (int k = 0; k < LX; ++k) {
              const int n = i + j * LX + k * LX * LX;
              au[n] = r_AU[k];
              av[n] = r_AV[k];
              aw[n] = r_AW[k];
            }
          }
        }
      }
    }
  }
}
`)
	return sb.String()
}

// fluxSource maps ref[c] = (d/dr, d/ds, d/dt) of component c at node n to
// the contributions f[c] contracted back along r, s and t.
func fluxSource(s Strategy) string {
	if s == StrategyGFactors {
		return `              const real_t G[3][3] = {{g00[n], g01[n], g02[n]},
                                      {g01[n], g11[n], g12[n]},
                                      {g02[n], g12[n], g22[n]}};
              for (int c = 0; c < 3; ++c) {
                for (int r = 0; r < 3; ++r) {
                  f[c][r] = h1[n] * (G[r][0] * ref[c][0] + G[r][1] * ref[c][1] + G[r][2] * ref[c][2]);
                }
              }
`
	}
	return `              const real_t J[3][3] = {{drdx[n], drdy[n], drdz[n]},
                                      {dsdx[n], dsdy[n], dsdz[n]},
                                      {dtdx[n], dtdy[n], dtdz[n]}};
              const real_t dj = h1[n] * wj[n];
              real_t grad[3][3], S[3][3];
              for (int c = 0; c < 3; ++c) {
                for (int a = 0; a < 3; ++a) {
                  grad[c][a] = ref[c][0] * J[0][a] + ref[c][1] * J[1][a] + ref[c][2] * J[2][a];
                }
              }
              for (int c = 0; c < 3; ++c) {
                for (int a = 0; a < 3; ++a) {
                  S[c][a] = dj * (grad[c][a] + grad[a][c]);
                }
              }
              for (int c = 0; c < 3; ++c) {
                for (int r = 0; r < 3; ++r) {
                  f[c][r] = J[r][0] * S[c][0] + J[r][1] * S[c][1] + J[r][2] * S[c][2];
                }
              }
`
}

// MassKernelSource generates the OKL reaction kernel. Each partition is
// swept by MASS_BLOCKS blocks of MASS_BLOCK_SIZE lanes striding over its
// K[part]*NP nodes.
func MassKernelSource(signature string) string {
	return fmt.Sprintf(`@kernel void %s(%s) {
  for (int part = 0; part < NPART; ++part; @outer(1)) {
    for (int b = 0; b < MASS_BLOCKS; ++b; @outer(0)) {
      for (int t = 0; t < MASS_BLOCK_SIZE; ++t; @inner(0)) {
        const real_t* u = u_PART(part);
        const real_t* v = v_PART(part);
        const real_t* w = w_PART(part);
        const real_t* h2 = h2_PART(part);
        const real_t* bmass = bmass_PART(part);
        real_t* au = au_PART(part);
        real_t* av = av_PART(part);
        real_t* aw = aw_PART(part);
        const int_t n = K[part] * NP;
        for (int_t id = b * MASS_BLOCK_SIZE + t; id < n; id += MASS_BLOCKS * MASS_BLOCK_SIZE) {
          const real_t hb = h2[id] * bmass[id];
          au[id] += hb * u[id];
          av[id] += hb * v[id];
          aw[id] += hb * w[id];
        }
      }
    }
  }
}
`, MassKernelName, signature)
}
