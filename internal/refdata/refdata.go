// Package refdata loads the read-only reference tables used by a ranking
// run: gene-target to compound associations, herb to compound membership,
// herb names, and the compound library with structural representations.
// Tables are loaded once per run and never mutated.
package refdata

// Compound is one library entry. ID is the InChIKey; SMILES is the
// structural representation, opaque to everything except the scorer.
type Compound struct {
	ID     string
	SMILES string
}

// Herb groups the compounds attributed to one herbal piece. Membership is
// many-to-many: a compound may appear in several herbs.
type Herb struct {
	ID        string
	Name      string
	Compounds []string
}

// Resolution is the output of resolving a set of gene targets: the
// positive evidence set and the remaining candidate pool.
type Resolution struct {
	Positives []Compound
	Pool      []Compound
}
