package analysis

import (
	"fmt"
	"math"
	"sort"

	pdefd "github.com/cwbudde/algo-pde/fd"
	pdepoisson "github.com/cwbudde/algo-pde/poisson"
)

// stringGridPoints is the interior grid size of the discretized string.
const stringGridPoints = 256

// IdealStringPartials returns the first n modal frequencies of an ideal
// string fixed at both ends and tuned to f0. The modes come from the
// eigenvalues of the finite-difference Laplacian with Dirichlet boundaries,
// so upper partials sit slightly flat of exact harmonics the way a
// discretized string does.
func IdealStringPartials(f0 float64, n int) ([]float64, error) {
	if f0 <= 0 || n < 1 {
		return nil, fmt.Errorf("invalid partial request: f0=%g n=%d", f0, n)
	}
	if n > stringGridPoints {
		return nil, fmt.Errorf("at most %d partials available, got %d", stringGridPoints, n)
	}

	h := 1.0 / float64(stringGridPoints+1)
	eig := pdefd.Eigenvalues(stringGridPoints, h, pdepoisson.Dirichlet)
	if len(eig) < n {
		return nil, fmt.Errorf("eigenvalue solver returned %d modes", len(eig))
	}
	modes := append([]float64(nil), eig...)
	sort.Float64s(modes)
	if modes[0] <= 0 {
		return nil, fmt.Errorf("non-positive fundamental eigenvalue %g", modes[0])
	}

	out := make([]float64, n)
	for k := 0; k < n; k++ {
		out[k] = f0 * math.Sqrt(modes[k]/modes[0])
	}
	return out, nil
}
