package calibration

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/GoSim-25-26J-441/contact-calibration/pkg/utils"
)

// CMAES is a (mu/mu_w, lambda) covariance matrix adaptation evolution strategy over the
// box [lower, upper]^n. Samples falling outside the box are clamped onto it and the
// clamped vector is used both for evaluation and for adaptation.
type CMAES struct {
	n, lambda, mu int
	weights       []float64
	mueff         float64

	cc, cs, c1, cmu, damps, chiN float64

	lower, upper float64

	mean  []float64
	sigma float64
	cov   *mat.SymDense
	basis *mat.Dense // eigenvectors of cov, columns
	scale []float64  // square roots of the eigenvalues of cov
	pc    []float64
	ps    []float64

	generation int
	rng        *utils.RandSource
	pending    [][]float64
}

// CMAESConfig configures a CMAES strategy
type CMAESConfig struct {
	Start          []float64
	StepSize       float64
	PopulationSize int
	Lower, Upper   float64
	Seed           int64
}

// NewCMAES creates the strategy with mean Start and covariance StepSize^2 * I.
// The first vector of the first population is Start itself.
func NewCMAES(cfg CMAESConfig) (*CMAES, error) {
	n := len(cfg.Start)
	if n == 0 {
		return nil, &ConfigurationError{Field: "optimizer.initial_point", Reason: "start vector is empty"}
	}
	if cfg.Upper <= cfg.Lower {
		return nil, &ConfigurationError{Field: "optimizer.bounds", Reason: fmt.Sprintf("upper bound %g must exceed lower %g", cfg.Upper, cfg.Lower)}
	}
	if !utils.IsFinite(cfg.StepSize) || cfg.StepSize <= 0 {
		return nil, &ConfigurationError{Field: "optimizer.initial_step_size", Reason: fmt.Sprintf("must be positive, got %g", cfg.StepSize)}
	}
	for i, v := range cfg.Start {
		if !utils.IsFinite(v) || v < cfg.Lower || v > cfg.Upper {
			return nil, &ConfigurationError{Field: "optimizer.initial_point", Reason: fmt.Sprintf("component %d (%g) outside [%g, %g]", i, v, cfg.Lower, cfg.Upper)}
		}
	}
	lambda := cfg.PopulationSize
	if lambda <= 0 {
		lambda = DefaultPopulationSize(n)
	}

	c := &CMAES{
		n:      n,
		lambda: lambda,
		lower:  cfg.Lower,
		upper:  cfg.Upper,
		mean:   utils.CopyFloat64s(cfg.Start),
		sigma:  cfg.StepSize,
		pc:     make([]float64, n),
		ps:     make([]float64, n),
		rng:    utils.NewRandSource(cfg.Seed),
	}

	c.mu = lambda / 2
	if c.mu < 1 {
		c.mu = 1
	}
	c.weights = make([]float64, c.mu)
	for i := range c.weights {
		c.weights[i] = math.Log(float64(c.mu)+0.5) - math.Log(float64(i+1))
	}
	floats.Scale(1/floats.Sum(c.weights), c.weights)
	c.mueff = 1 / floats.Dot(c.weights, c.weights)

	nf := float64(n)
	c.cc = (4 + c.mueff/nf) / (nf + 4 + 2*c.mueff/nf)
	c.cs = (c.mueff + 2) / (nf + c.mueff + 5)
	c.c1 = 2 / ((nf+1.3)*(nf+1.3) + c.mueff)
	c.cmu = math.Min(1-c.c1, 2*(c.mueff-2+1/c.mueff)/((nf+2)*(nf+2)+c.mueff))
	if c.cmu < 0 {
		c.cmu = 0
	}
	c.damps = 1 + 2*math.Max(0, math.Sqrt((c.mueff-1)/(nf+1))-1) + c.cs
	c.chiN = math.Sqrt(nf) * (1 - 1/(4*nf) + 1/(21*nf*nf))

	c.cov = mat.NewSymDense(n, nil)
	c.basis = mat.NewDense(n, n, nil)
	c.scale = make([]float64, n)
	for i := 0; i < n; i++ {
		c.cov.SetSym(i, i, 1)
		c.basis.Set(i, i, 1)
		c.scale[i] = 1
	}
	return c, nil
}

// PopulationSize implements SearchStrategy
func (c *CMAES) PopulationSize() int { return c.lambda }

// Mean implements SearchStrategy
func (c *CMAES) Mean() []float64 { return utils.CopyFloat64s(c.mean) }

// Sigma implements SearchStrategy
func (c *CMAES) Sigma() float64 { return c.sigma }

// Generation returns the number of completed Tell calls

// Ask implements SearchStrategy
func (c *CMAES) Ask() [][]float64 {
	c.pending = make([][]float64, c.lambda)
	z := make([]float64, c.n)
	for k := range c.pending {
		x := make([]float64, c.n)
		if c.generation == 0 && k == 0 {
			copy(x, c.mean)
			c.pending[k] = x
			continue
		}
		c.rng.StandardNormals(z)
		for i := 0; i < c.n; i++ {
			var y float64
			for j := 0; j < c.n; j++ {
				y += c.basis.At(i, j) * c.scale[j] * z[j]
			}
			x[i] = c.mean[i] + c.sigma*y
		}
		utils.ClampVector(x, c.lower, c.upper)
		c.pending[k] = x
	}

	out := make([][]float64, len(c.pending))
	for i, x := range c.pending {
		out[i] = utils.CopyFloat64s(x)
	}
	return out
}

// Tell implements SearchStrategy. Ties keep population order.
func (c *CMAES) Tell(values []float64) error {
	if c.pending == nil {
		return errors.New("tell called without a pending population")
	}
	if len(values) != len(c.pending) {
		return fmt.Errorf("expected %d objective values, got %d", len(c.pending), len(values))
	}
	for i, v := range values {
		if math.IsNaN(v) {
			return fmt.Errorf("objective value %d is NaN", i)
		}
	}

	sorted := utils.CopyFloat64s(values)
	order := make([]int, len(values))
	floats.ArgsortStable(sorted, order)

	n := c.n
	old := c.mean
	c.mean = make([]float64, n)
	steps := make([][]float64, c.mu)
	for r := 0; r < c.mu; r++ {
		x := c.pending[order[r]]
		floats.AddScaled(c.mean, c.weights[r], x)
		y := make([]float64, n)
		floats.SubTo(y, x, old)
		floats.Scale(1/c.sigma, y)
		steps[r] = y
	}
	meanStep := make([]float64, n)
	floats.SubTo(meanStep, c.mean, old)
	floats.Scale(1/c.sigma, meanStep)

	// ps <- (1-cs) ps + sqrt(cs (2-cs) mueff) C^(-1/2) meanStep
	white := c.invSqrtTimes(meanStep)
	floats.Scale(1-c.cs, c.ps)
	floats.AddScaled(c.ps, math.Sqrt(c.cs*(2-c.cs)*c.mueff), white)

	psNorm := floats.Norm(c.ps, 2)
	decay := 1 - math.Pow(1-c.cs, 2*float64(c.generation+1))
	hsig := 0.0
	if psNorm/math.Sqrt(decay)/c.chiN < 1.4+2/(float64(n)+1) {
		hsig = 1
	}

	floats.Scale(1-c.cc, c.pc)
	floats.AddScaled(c.pc, hsig*math.Sqrt(c.cc*(2-c.cc)*c.mueff), meanStep)

	// C <- (1 - c1 - cmu) C + c1 (pc pc' + (1-hsig) cc (2-cc) C) + cmu sum w y y'
	keep := 1 - c.c1 - c.cmu + (1-hsig)*c.c1*c.cc*(2-c.cc)
	next := mat.NewSymDense(n, nil)
	next.ScaleSym(keep, c.cov)
	next.SymRankOne(next, c.c1, mat.NewVecDense(n, utils.CopyFloat64s(c.pc)))
	for r, y := range steps {
		next.SymRankOne(next, c.cmu*c.weights[r], mat.NewVecDense(n, y))
	}
	c.cov = next

	c.sigma *= math.Exp((c.cs / c.damps) * (psNorm/c.chiN - 1))
	if !utils.IsFinite(c.sigma) || c.sigma <= 0 {
		return fmt.Errorf("step size diverged to %g", c.sigma)
	}
	// Steps beyond the box width only produce clamped corners.
	if maxSigma := 10 * (c.upper - c.lower); c.sigma > maxSigma {
		c.sigma = maxSigma
	}

	if err := c.decompose(); err != nil {
		return err
	}
	c.generation++
	c.pending = nil
	return nil
}

// decompose refreshes basis and scale from cov = B diag(scale^2) B'
func (c *CMAES) decompose() error {
	var eig mat.EigenSym
	if ok := eig.Factorize(c.cov, true); !ok {
		return errors.New("covariance eigendecomposition failed")
	}
	values := eig.Values(nil)
	eig.VectorsTo(c.basis)
	for i, v := range values {
		if v < 1e-20 {
			v = 1e-20
		}
		c.scale[i] = math.Sqrt(v)
	}
	return nil
}

// invSqrtTimes returns C^(-1/2) v = B diag(1/scale) B' v
func (c *CMAES) invSqrtTimes(v []float64) []float64 {
	n := c.n
	tmp := make([]float64, n)
	for j := 0; j < n; j++ {
		var s float64
		for i := 0; i < n; i++ {
			s += c.basis.At(i, j) * v[i]
		}
		tmp[j] = s / c.scale[j]
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		var s float64
		for j := 0; j < n; j++ {
			s += c.basis.At(i, j) * tmp[j]
		}
		out[i] = s
	}
	return out
}
