package ranking

// Strategy is one named herb ordering. Value extracts the statistic the
// strategy ranks by.
type Strategy struct {
	Key         string
	Title       string
	Description string
	Value       func(HerbScore) float64
}

// Strategies returns every ranking strategy, composite first. The order
// is stable so reports list the same files run after run.
func Strategies() []Strategy {
	return []Strategy{
		{
			Key:         "composite",
			Title:       "Composite score",
			Description: "Weighted blend of the smoothed mean, effective mean, high-quality mean, normalized ultra-high count, and high-quality ratio. Recommended default.",
			Value:       func(h HerbScore) float64 { return h.Composite },
		},
		{
			Key:         "avg",
			Title:       "Average score",
			Description: "Plain mean over member compound scores. Unstable for herbs with few members.",
			Value:       func(h HerbScore) float64 { return h.Mean },
		},
		{
			Key:         "adj_avg",
			Title:       "Smoothed average",
			Description: "Bayesian-smoothed mean: shrinks small herbs toward the global compound mean.",
			Value:       func(h HerbScore) float64 { return h.Bayes },
		},
		{
			Key:         "effective_avg",
			Title:       "Effective average",
			Description: "Mean over member compounds with a positive score.",
			Value:       func(h HerbScore) float64 { return h.EffectiveMean },
		},
		{
			Key:         "high_quality_avg",
			Title:       "High-quality average",
			Description: "Mean over member compounds above the high-quality threshold.",
			Value:       func(h HerbScore) float64 { return h.HighQualityMean },
		},
		{
			Key:         "ultra_high_count",
			Title:       "Ultra-high count",
			Description: "Number of member compounds above the ultra-high threshold. Favors large herbs.",
			Value:       func(h HerbScore) float64 { return float64(h.UltraHighCount) },
		},
		{
			Key:         "ultra_high_avg",
			Title:       "Ultra-high average",
			Description: "Mean over member compounds above the ultra-high threshold.",
			Value:       func(h HerbScore) float64 { return h.UltraHighMean },
		},
		{
			Key:         "quality_ratio",
			Title:       "Quality ratio",
			Description: "Fraction of member compounds above the high-quality threshold.",
			Value:       func(h HerbScore) float64 { return h.HighQualityRatio },
		},
		{
			Key:         "max_score",
			Title:       "Maximum score",
			Description: "Best single member compound score. Sensitive to one-hit herbs.",
			Value:       func(h HerbScore) float64 { return h.Max },
		},
	}
}
