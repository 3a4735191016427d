package risk

// DefaultPolicyVersion labels the built-in seed weight policy.
const DefaultPolicyVersion = "seed"

// DefaultWeights returns the seed weight policy. Market outliers dominate;
// the duplicate signal is a stub and carries no weight until a real
// detector exists.
func DefaultWeights() map[ContributorName]float64 {
	return map[ContributorName]float64{
		MarketOutlier: 0.5,
		Arithmetic:    0.2,
		HSNRate:       0.1,
		GSTVendor:     0.1,
		GSTCompany:    0.1,
		Duplicate:     0.0,
	}
}

// StaticResolver resolves weights from a fixed mapping captured at
// construction time (typically from configuration at process start).
type StaticResolver struct {
	weights       map[ContributorName]float64
	policyVersion string
}

var _ WeightResolver = (*StaticResolver)(nil)

// NewStaticResolver creates a resolver over the given mapping. A nil or
// empty mapping falls back to the seed policy; an empty version falls back
// to DefaultPolicyVersion.
func NewStaticResolver(weights map[ContributorName]float64, policyVersion string) *StaticResolver {
	if len(weights) == 0 {
		weights = DefaultWeights()
	}
	if policyVersion == "" {
		policyVersion = DefaultPolicyVersion
	}
	return &StaticResolver{weights: weights, policyVersion: policyVersion}
}

// Resolve returns a copy of the weight mapping and the policy version.
// Callers may mutate the returned map freely.
func (r *StaticResolver) Resolve() (map[ContributorName]float64, string) {
	out := make(map[ContributorName]float64, len(r.weights))
	for name, w := range r.weights {
		out[name] = w
	}
	return out, r.policyVersion
}
