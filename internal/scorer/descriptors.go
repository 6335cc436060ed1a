package scorer

import (
	"fmt"
	"strings"
)

// numDescriptors is the fixed feature width produced by descriptors.
const numDescriptors = 12

// descriptors derives a coarse structural feature vector from a SMILES
// string: heavy-atom counts, aromaticity, ring closures, branching, and
// bond-order counts. It is deliberately crude; the point is a cheap,
// deterministic baseline representation, not chemistry-grade featurization.
func descriptors(smiles string) ([]float64, error) {
	if strings.TrimSpace(smiles) == "" {
		return nil, fmt.Errorf("empty structure")
	}

	var (
		carbons, nitrogens, oxygens, sulfurs float64
		halogens, aromatics, ringBonds       float64
		branches, doubles, triples, charges  float64
	)

	runes := []rune(smiles)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		switch ch {
		case 'C':
			// Cl is a halogen, not a carbon
			if i+1 < len(runes) && runes[i+1] == 'l' {
				halogens++
				i++
			} else {
				carbons++
			}
		case 'B':
			if i+1 < len(runes) && runes[i+1] == 'r' {
				halogens++
				i++
			}
		case 'N':
			nitrogens++
		case 'O':
			oxygens++
		case 'S':
			sulfurs++
		case 'F', 'I':
			halogens++
		case 'c', 'n', 'o', 's', 'p':
			aromatics++
		case '(':
			branches++
		case '=':
			doubles++
		case '#':
			triples++
		case '+', '-':
			charges++
		case '1', '2', '3', '4', '5', '6', '7', '8', '9':
			ringBonds++
		case ')', '[', ']', '@', 'H', '/', '\\', '.', '%', '0', 'l', 'r', 'i', 'e', 'a', 'P':
			// valid SMILES punctuation and element tails
		default:
			return nil, fmt.Errorf("unexpected character %q in structure", ch)
		}
	}

	heavy := carbons + nitrogens + oxygens + sulfurs + halogens + aromatics
	if heavy == 0 {
		return nil, fmt.Errorf("no recognizable atoms in structure")
	}

	return []float64{
		float64(len(runes)),
		carbons,
		nitrogens,
		oxygens,
		sulfurs,
		halogens,
		aromatics,
		ringBonds / 2, // closures come in pairs
		branches,
		doubles,
		triples,
		charges,
	}, nil
}
