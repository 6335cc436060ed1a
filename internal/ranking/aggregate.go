// Package ranking reduces the replicate score matrix to compound-level
// ensemble scores and rolls those up into herb-level statistics, ranked
// under several named strategies plus one composite ordering.
package ranking

import (
	"math"
	"sort"

	"herbrank/internal/predict"
	"herbrank/internal/refdata"
)

// Params are the aggregation thresholds.
type Params struct {
	BayesAlpha  float64 // prior strength of the smoothed mean
	HighQuality float64 // ensemble score above which a compound counts as high quality
	UltraHigh   float64 // stricter threshold for the ultra-high tier
}

// CompoundScore is one compound's ensemble reduction. Coverage is how
// many replicates actually scored it; HighQuality is set when every
// usable replicate scored it and the ensemble score clears the threshold.
type CompoundScore struct {
	CompoundID  string
	Ensemble    float64
	Coverage    int
	HighQuality bool
}

// HerbScore is one herb's aggregation row. Members counts compounds with
// at least one valid replicate score; statistics are computed over those.
type HerbScore struct {
	HerbID string
	Name   string

	Members int // member compounds with a valid ensemble score
	Max     float64
	Mean    float64
	Sum     float64
	Median  float64
	Std     float64
	Bayes   float64 // Bayesian-smoothed mean

	EffectiveCount int // score > 0
	EffectiveMean  float64
	EffectiveRatio float64

	HighQualityCount int
	HighQualityMean  float64
	HighQualityRatio float64

	UltraHighCount int
	UltraHighMean  float64
	UltraHighRatio float64

	Composite float64
	Rank      int
}

// ReduceCompounds averages each matrix row over its non-missing entries.
// Compounds with no valid entry are dropped here; the predictor already
// reported them as unscorable.
func ReduceCompounds(mx *predict.Matrix, p Params) []CompoundScore {
	full := len(mx.Folds)
	out := make([]CompoundScore, 0, len(mx.Compounds))

	for i, c := range mx.Compounds {
		sum, n := 0.0, 0
		for _, v := range mx.Scores[i] {
			if math.IsNaN(v) {
				continue
			}
			sum += v
			n++
		}
		if n == 0 {
			continue
		}
		score := sum / float64(n)
		out = append(out, CompoundScore{
			CompoundID:  c.ID,
			Ensemble:    score,
			Coverage:    n,
			HighQuality: n == full && score > p.HighQuality,
		})
	}
	return out
}

// RankHerbs aggregates compound scores per herb and assigns the composite
// ranking. Herbs with no scored members are excluded. The composite is a
// weighted combination of the smoothed mean, effective mean, high-quality
// mean, normalized ultra-high count, and high-quality ratio
// (0.30/0.20/0.20/0.15/0.15). Ties are broken by member count descending,
// then herb ID ascending; rank is the dense ordinal after that total
// order.
func RankHerbs(herbs []refdata.Herb, compounds []CompoundScore, p Params) []HerbScore {
	byID := make(map[string]CompoundScore, len(compounds))
	globalSum := 0.0
	for _, c := range compounds {
		byID[c.CompoundID] = c
		globalSum += c.Ensemble
	}
	globalMean := 0.0
	if len(compounds) > 0 {
		globalMean = globalSum / float64(len(compounds))
	}

	var scores []HerbScore
	for _, herb := range herbs {
		var member []float64
		for _, id := range herb.Compounds {
			if c, ok := byID[id]; ok {
				member = append(member, c.Ensemble)
			}
		}
		if len(member) == 0 {
			continue
		}

		hs := HerbScore{HerbID: herb.ID, Name: herb.Name, Members: len(member)}
		n := float64(len(member))

		sort.Float64s(member)
		hs.Max = member[len(member)-1]
		for _, v := range member {
			hs.Sum += v
		}
		hs.Mean = hs.Sum / n
		hs.Median = median(member)
		hs.Std = sampleStd(member, hs.Mean)
		hs.Bayes = (hs.Sum + p.BayesAlpha*globalMean) / (n + p.BayesAlpha)

		for _, v := range member {
			if v > 0 {
				hs.EffectiveCount++
				hs.EffectiveMean += v
			}
			if v > p.HighQuality {
				hs.HighQualityCount++
				hs.HighQualityMean += v
			}
			if v > p.UltraHigh {
				hs.UltraHighCount++
				hs.UltraHighMean += v
			}
		}
		hs.EffectiveMean = safeDiv(hs.EffectiveMean, float64(hs.EffectiveCount))
		hs.EffectiveRatio = float64(hs.EffectiveCount) / n
		hs.HighQualityMean = safeDiv(hs.HighQualityMean, float64(hs.HighQualityCount))
		hs.HighQualityRatio = float64(hs.HighQualityCount) / n
		hs.UltraHighMean = safeDiv(hs.UltraHighMean, float64(hs.UltraHighCount))
		hs.UltraHighRatio = float64(hs.UltraHighCount) / n

		scores = append(scores, hs)
	}

	maxUltra := 0
	for _, hs := range scores {
		if hs.UltraHighCount > maxUltra {
			maxUltra = hs.UltraHighCount
		}
	}
	for i := range scores {
		normUltra := 0.0
		if maxUltra > 0 {
			normUltra = float64(scores[i].UltraHighCount) / float64(maxUltra)
		}
		scores[i].Composite = 0.30*scores[i].Bayes +
			0.20*scores[i].EffectiveMean +
			0.20*scores[i].HighQualityMean +
			0.15*normUltra +
			0.15*scores[i].HighQualityRatio
	}

	orderHerbs(scores, func(h HerbScore) float64 { return h.Composite })
	return scores
}

// OrderBy returns a ranked copy of scores ordered by the given statistic,
// with the same tie-breaking as the composite ranking.
func OrderBy(scores []HerbScore, value func(HerbScore) float64) []HerbScore {
	out := make([]HerbScore, len(scores))
	copy(out, scores)
	orderHerbs(out, value)
	return out
}

func orderHerbs(scores []HerbScore, value func(HerbScore) float64) {
	sort.Slice(scores, func(i, j int) bool {
		vi, vj := value(scores[i]), value(scores[j])
		if vi != vj {
			return vi > vj
		}
		if scores[i].Members != scores[j].Members {
			return scores[i].Members > scores[j].Members
		}
		return scores[i].HerbID < scores[j].HerbID
	})
	for i := range scores {
		scores[i].Rank = i + 1
	}
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func sampleStd(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var ss float64
	for _, v := range values {
		d := v - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(values)-1))
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
