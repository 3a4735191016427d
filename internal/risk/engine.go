package risk

import "sort"

// clamp01 clips v into [0, 1]. Out-of-range inputs are clipped, not rejected:
// a misconfigured weight policy or malformed upstream score degrades the
// composite instead of breaking the pipeline.
func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// ComputeComposite combines contributors into one bounded composite score
// plus a ranked waterfall. Pure function of its inputs.
//
// Per contributor: raw score clamped to [0,1], weight looked up by name
// (missing → 0, negative → 0, never allowed to reduce the total),
// contribution = weight × clamped raw. The total sums every contributor
// before any truncation, then the waterfall is sorted by |contribution|
// descending (stable, preserving collector order on ties) and truncated to
// maxItems for presentation. The composite is the total clamped to [0,1].
func ComputeComposite(contributors []Contributor, weights map[ContributorName]float64, maxItems int) (float64, []WaterfallEntry) {
	waterfall := make([]WaterfallEntry, 0, len(contributors))
	total := 0.0

	for _, contrib := range contributors {
		weight := weights[contrib.Name]
		if weight < 0 {
			weight = 0
		}
		raw := clamp01(contrib.Raw)
		contribution := weight * raw
		total += contribution
		waterfall = append(waterfall, WaterfallEntry{
			Name:         contrib.Name,
			Weight:       weight,
			RawScore:     raw,
			Contribution: contribution,
			Details:      contrib.Details,
		})
	}

	sort.SliceStable(waterfall, func(i, j int) bool {
		return abs(waterfall[i].Contribution) > abs(waterfall[j].Contribution)
	})
	if maxItems > 0 && len(waterfall) > maxItems {
		waterfall = waterfall[:maxItems]
	}

	return clamp01(total), waterfall
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
