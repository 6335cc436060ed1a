package refdata

import (
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"
)

// ErrInsufficientEvidence signals that the resolved positive set is smaller
// than the configured minimum. The resolution is still returned alongside
// it: downstream training can proceed with degraded confidence, and the
// caller decides whether to continue.
var ErrInsufficientEvidence = errors.New("insufficient positive evidence")

// Resolve maps a set of gene-target identifiers to the positive compound
// set (union over all targets) and the candidate pool (library minus
// positives). Duplicate targets are ignored. Compounds associated with a
// target but absent from the library are dropped with a warning, since
// they have no structure to score.
func (t *Tables) Resolve(targets []string, minPositives int) (Resolution, error) {
	if len(targets) == 0 {
		return Resolution{}, fmt.Errorf("no gene targets given")
	}

	unique := make(map[string]bool)
	positiveIDs := make(map[string]bool)
	unknownTargets := 0
	droppedCompounds := 0

	for _, target := range targets {
		if target == "" || unique[target] {
			continue
		}
		unique[target] = true

		keys, ok := t.targetCompounds[target]
		if !ok {
			unknownTargets++
			continue
		}
		for _, key := range keys {
			if _, inLibrary := t.libIndex[key]; !inLibrary {
				droppedCompounds++
				continue
			}
			positiveIDs[key] = true
		}
	}

	if unknownTargets > 0 {
		log.Warn().Int("count", unknownTargets).Msg("targets with no known compound associations")
	}
	if droppedCompounds > 0 {
		log.Warn().Int("count", droppedCompounds).Msg("associated compounds missing from library, dropped")
	}
	if len(positiveIDs) == 0 {
		return Resolution{}, fmt.Errorf("no positive compounds found for %d target(s)", len(unique))
	}

	res := Resolution{
		Positives: make([]Compound, 0, len(positiveIDs)),
		Pool:      make([]Compound, 0, len(t.library)-len(positiveIDs)),
	}
	for _, c := range t.library {
		if positiveIDs[c.ID] {
			res.Positives = append(res.Positives, c)
		} else {
			res.Pool = append(res.Pool, c)
		}
	}
	sort.Slice(res.Positives, func(i, j int) bool { return res.Positives[i].ID < res.Positives[j].ID })

	log.Info().
		Int("targets", len(unique)).
		Int("positives", len(res.Positives)).
		Int("pool", len(res.Pool)).
		Msg("targets resolved")

	if len(res.Positives) < minPositives {
		return res, fmt.Errorf("%w: %d positives, minimum %d", ErrInsufficientEvidence, len(res.Positives), minPositives)
	}
	return res, nil
}
