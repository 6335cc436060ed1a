package refdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog/log"

	"herbrank/internal/cfg"
)

// Column headers shared by the TSV reference dumps.
const (
	colInChIKey = "InChIKey"
	colEntrezID = "EntrezID"
	colSMILES   = "SMILES"
	colHerbID   = "CHP_ID"
	colHerbName = "Chinese_herbal_pieces"
)

// Tables holds the loaded reference data for one run.
type Tables struct {
	targetCompounds map[string][]string // EntrezID -> InChIKeys
	library         []Compound          // unique, sorted by ID
	libIndex        map[string]int
	herbs           []Herb // sorted by ID
}

// Load reads all reference tables from the configured directory. Rows with
// a missing key column are dropped; duplicate library entries keep the
// first SMILES seen, matching the source dumps.
func Load(c cfg.Settings) (*Tables, error) {
	t := &Tables{
		targetCompounds: make(map[string][]string),
		libIndex:        make(map[string]int),
	}

	if err := t.loadTargetCompounds(filepath.Join(c.RefDir, c.TargetCompoundsFile)); err != nil {
		return nil, err
	}
	if err := t.loadLibrary(filepath.Join(c.RefDir, c.LibraryFile)); err != nil {
		return nil, err
	}
	if err := t.loadHerbs(filepath.Join(c.RefDir, c.HerbCompoundsFile), filepath.Join(c.RefDir, c.HerbNamesFile)); err != nil {
		return nil, err
	}

	log.Info().
		Int("targets", len(t.targetCompounds)).
		Int("library", len(t.library)).
		Int("herbs", len(t.herbs)).
		Msg("reference tables loaded")

	return t, nil
}

// Library returns the full compound library, sorted by compound ID.
func (t *Tables) Library() []Compound {
	return t.library
}

// Herbs returns all herbs with their membership lists, sorted by herb ID.
func (t *Tables) Herbs() []Herb {
	return t.herbs
}

// Compound looks up a library entry by InChIKey.
func (t *Tables) Compound(id string) (Compound, bool) {
	i, ok := t.libIndex[id]
	if !ok {
		return Compound{}, false
	}
	return t.library[i], true
}

func (t *Tables) loadTargetCompounds(path string) error {
	rows, header, err := readTSV(path)
	if err != nil {
		return fmt.Errorf("target-compound table: %w", err)
	}
	entrezCol, ok1 := header[colEntrezID]
	keyCol, ok2 := header[colInChIKey]
	if !ok1 || !ok2 {
		return fmt.Errorf("target-compound table %s: missing %s or %s column", path, colEntrezID, colInChIKey)
	}

	seen := make(map[string]map[string]bool)
	for _, row := range rows {
		entrez, key := row[entrezCol], row[keyCol]
		if entrez == "" || key == "" {
			continue
		}
		if seen[entrez] == nil {
			seen[entrez] = make(map[string]bool)
		}
		if seen[entrez][key] {
			continue
		}
		seen[entrez][key] = true
		t.targetCompounds[entrez] = append(t.targetCompounds[entrez], key)
	}
	for _, keys := range t.targetCompounds {
		sort.Strings(keys)
	}
	return nil
}

func (t *Tables) loadLibrary(path string) error {
	rows, header, err := readTSV(path)
	if err != nil {
		return fmt.Errorf("compound library: %w", err)
	}
	keyCol, ok1 := header[colInChIKey]
	smilesCol, ok2 := header[colSMILES]
	if !ok1 || !ok2 {
		return fmt.Errorf("compound library %s: missing %s or %s column", path, colInChIKey, colSMILES)
	}

	for _, row := range rows {
		key := row[keyCol]
		if key == "" {
			continue
		}
		if _, dup := t.libIndex[key]; dup {
			continue
		}
		t.libIndex[key] = len(t.library)
		t.library = append(t.library, Compound{ID: key, SMILES: row[smilesCol]})
	}

	sort.Slice(t.library, func(i, j int) bool { return t.library[i].ID < t.library[j].ID })
	for i, c := range t.library {
		t.libIndex[c.ID] = i
	}
	return nil
}

func (t *Tables) loadHerbs(membershipPath, namesPath string) error {
	rows, header, err := readTSV(membershipPath)
	if err != nil {
		return fmt.Errorf("herb-compound table: %w", err)
	}
	herbCol, ok1 := header[colHerbID]
	keyCol, ok2 := header[colInChIKey]
	if !ok1 || !ok2 {
		return fmt.Errorf("herb-compound table %s: missing %s or %s column", membershipPath, colHerbID, colInChIKey)
	}

	members := make(map[string]map[string]bool)
	for _, row := range rows {
		herb, key := row[herbCol], row[keyCol]
		if herb == "" || key == "" {
			continue
		}
		if members[herb] == nil {
			members[herb] = make(map[string]bool)
		}
		members[herb][key] = true
	}

	names := make(map[string]string)
	nameRows, nameHeader, err := readTSV(namesPath)
	if err != nil {
		return fmt.Errorf("herb-name table: %w", err)
	}
	idCol, ok1 := nameHeader[colHerbID]
	nameCol, ok2 := nameHeader[colHerbName]
	if !ok1 || !ok2 {
		return fmt.Errorf("herb-name table %s: missing %s or %s column", namesPath, colHerbID, colHerbName)
	}
	for _, row := range nameRows {
		if row[idCol] != "" {
			names[row[idCol]] = row[nameCol]
		}
	}

	for herbID, keys := range members {
		list := make([]string, 0, len(keys))
		for k := range keys {
			list = append(list, k)
		}
		sort.Strings(list)
		t.herbs = append(t.herbs, Herb{ID: herbID, Name: names[herbID], Compounds: list})
	}
	sort.Slice(t.herbs, func(i, j int) bool { return t.herbs[i].ID < t.herbs[j].ID })
	return nil
}

// readTSV reads a tab-separated file with a header row and returns the data
// rows plus a column-name index. Malformed rows are skipped rather than
// failing the load, since the source dumps contain occasional ragged lines.
func readTSV(path string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	headerRow, err := r.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	header := make(map[string]int, len(headerRow))
	for i, name := range headerRow {
		header[name] = i
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // skip malformed line
		}
		if len(row) < len(headerRow) {
			continue
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}
