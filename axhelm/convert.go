package axhelm

// Cast converts float64 data to precision T.
func Cast[T Real](x []float64) []T {
	if x == nil {
		return nil
	}
	out := make([]T, len(x))
	for i, v := range x {
		out[i] = T(v)
	}
	return out
}

// CastField converts every component of f to precision T.
func CastField[T Real](f Field[float64]) Field[T] {
	return Field[T]{U: Cast[T](f.U), V: Cast[T](f.V), W: Cast[T](f.W)}
}

// CastDerivatives converts the three matrices to precision T.
func CastDerivatives[T Real](d DerivativeMatrices[float64]) DerivativeMatrices[T] {
	return DerivativeMatrices[T]{Dx: Cast[T](d.Dx), Dy: Cast[T](d.Dy), Dz: Cast[T](d.Dz)}
}

// CastGeometry converts whichever coefficient sets are present.
func CastGeometry[T Real](g Geometry[float64]) Geometry[T] {
	var out Geometry[T]
	if c := g.Curvilinear; c != nil {
		out.Curvilinear = &GeometricFactors[T]{
			H1:   Cast[T](c.H1),
			Drdx: Cast[T](c.Drdx), Drdy: Cast[T](c.Drdy), Drdz: Cast[T](c.Drdz),
			Dsdx: Cast[T](c.Dsdx), Dsdy: Cast[T](c.Dsdy), Dsdz: Cast[T](c.Dsdz),
			Dtdx: Cast[T](c.Dtdx), Dtdy: Cast[T](c.Dtdy), Dtdz: Cast[T](c.Dtdz),
			W:    Cast[T](c.W),
		}
	}
	if m := g.G; m != nil {
		out.G = &GFactors[T]{
			H1:  Cast[T](m.H1),
			G00: Cast[T](m.G00), G01: Cast[T](m.G01), G02: Cast[T](m.G02),
			G11: Cast[T](m.G11), G12: Cast[T](m.G12), G22: Cast[T](m.G22),
		}
	}
	return out
}

// CastReaction converts h2 and B to precision T.
func CastReaction[T Real](r ReactionFactors[float64]) ReactionFactors[T] {
	return ReactionFactors[T]{H2: Cast[T](r.H2), B: Cast[T](r.B)}
}
