package workload

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"
)

// Sampler draws a real-valued variate, typically a duration in ticks.
type Sampler interface {
	Sample(rng *rand.Rand) float64
}

// ConstantSampler always returns Value.
type ConstantSampler struct {
	Value float64
}

func (s ConstantSampler) Sample(*rand.Rand) float64 { return s.Value }

// Constant returns a sampler fixed at v.
func Constant(v float64) ConstantSampler { return ConstantSampler{Value: v} }

type quantiler interface {
	Quantile(p float64) float64
}

// InverseCDFSampler draws by feeding a uniform variate from the caller's RNG
// through a distribution's quantile function. The gonum distribution never
// touches its own source, so draws stay on the run's partitioned stream.
type InverseCDFSampler struct {
	name string
	dist quantiler
}

func (s *InverseCDFSampler) Sample(rng *rand.Rand) float64 {
	return s.dist.Quantile(rng.Float64())
}

func (s *InverseCDFSampler) String() string { return s.name }

// Exponential returns an exponential sampler with the given mean.
func Exponential(mean float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("exponential(%g)", mean), dist: distuv.Exponential{Rate: 1 / mean}}
}

// Uniform returns a sampler uniform on [min, max).
func Uniform(min, max float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("uniform(%g,%g)", min, max), dist: distuv.Uniform{Min: min, Max: max}}
}

// Normal returns a normal sampler.
func Normal(mu, sigma float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("normal(%g,%g)", mu, sigma), dist: distuv.Normal{Mu: mu, Sigma: sigma}}
}

// LogNormal returns a sampler whose logarithm is Normal(mu, sigma).
func LogNormal(mu, sigma float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("lognormal(%g,%g)", mu, sigma), dist: distuv.LogNormal{Mu: mu, Sigma: sigma}}
}

// Weibull returns a Weibull sampler with shape k and scale lambda.
func Weibull(k, lambda float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("weibull(%g,%g)", k, lambda), dist: distuv.Weibull{K: k, Lambda: lambda}}
}

// Gamma returns a gamma sampler with the given shape and scale.
func Gamma(shape, scale float64) *InverseCDFSampler {
	return &InverseCDFSampler{name: fmt.Sprintf("gamma(%g,%g)", shape, scale), dist: distuv.Gamma{Alpha: shape, Beta: 1 / scale}}
}

// Triangular returns a triangular sampler on [min, max] peaking at mode.
// The bounds must satisfy min < max and min <= mode <= max.
func Triangular(min, mode, max float64) *InverseCDFSampler {
	return &InverseCDFSampler{
		name: fmt.Sprintf("triangular(%g,%g,%g)", min, mode, max),
		dist: distuv.NewTriangle(min, max, mode, nil),
	}
}

// DistSpec parameterizes a distribution in YAML, e.g.
// {dist: exponential, mean: 10}.
type DistSpec struct {
	Type   string             `yaml:"dist"`
	Params map[string]float64 `yaml:",inline"`
}

func requireParam(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if _, ok := params[k]; !ok {
			return fmt.Errorf("distribution requires parameter %q", k)
		}
	}
	return nil
}

func requirePositive(params map[string]float64, keys ...string) error {
	for _, k := range keys {
		if params[k] <= 0 {
			return fmt.Errorf("parameter %q must be positive, got %g", k, params[k])
		}
	}
	return nil
}

// NewSampler creates a Sampler from a DistSpec.
func NewSampler(spec DistSpec) (Sampler, error) {
	p := spec.Params
	switch spec.Type {
	case "constant":
		if err := requireParam(p, "value"); err != nil {
			return nil, err
		}
		return Constant(p["value"]), nil

	case "exponential":
		if err := requireParam(p, "mean"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "mean"); err != nil {
			return nil, err
		}
		return Exponential(p["mean"]), nil

	case "uniform":
		if err := requireParam(p, "min", "max"); err != nil {
			return nil, err
		}
		if p["max"] <= p["min"] {
			return nil, fmt.Errorf("uniform: max %g must exceed min %g", p["max"], p["min"])
		}
		return Uniform(p["min"], p["max"]), nil

	case "normal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return Normal(p["mu"], p["sigma"]), nil

	case "lognormal":
		if err := requireParam(p, "mu", "sigma"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "sigma"); err != nil {
			return nil, err
		}
		return LogNormal(p["mu"], p["sigma"]), nil

	case "weibull":
		if err := requireParam(p, "shape", "scale"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "shape", "scale"); err != nil {
			return nil, err
		}
		return Weibull(p["shape"], p["scale"]), nil

	case "gamma":
		if err := requireParam(p, "shape", "scale"); err != nil {
			return nil, err
		}
		if err := requirePositive(p, "shape", "scale"); err != nil {
			return nil, err
		}
		return Gamma(p["shape"], p["scale"]), nil

	case "triangular":
		if err := requireParam(p, "min", "mode", "max"); err != nil {
			return nil, err
		}
		lo, mode, hi := p["min"], p["mode"], p["max"]
		if !(lo < hi && lo <= mode && mode <= hi) {
			return nil, fmt.Errorf("triangular: need min < max and min <= mode <= max, got %g/%g/%g", lo, mode, hi)
		}
		return Triangular(lo, mode, hi), nil

	default:
		return nil, fmt.Errorf("unknown distribution type %q", spec.Type)
	}
}
