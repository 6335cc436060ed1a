package refdata

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// PubChemClient fills in SMILES for library entries whose structure is
// missing from the local dumps. Results are cached to a CSV file so repeat
// runs never hit the service twice for the same key.
type PubChemClient struct {
	base      string
	cachePath string
	rest      *resty.Client
	cache     map[string]string
}

func NewPubChemClient(base, cachePath string, timeout time.Duration) *PubChemClient {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	r.SetRetryCount(2)
	r.SetRetryWaitTime(500 * time.Millisecond)

	c := &PubChemClient{
		base:      strings.TrimRight(base, "/"),
		cachePath: cachePath,
		rest:      r,
		cache:     make(map[string]string),
	}
	c.loadCache()
	return c
}

// SMILES resolves a single InChIKey, consulting the cache first.
func (c *PubChemClient) SMILES(inchikey string) (string, error) {
	if s, ok := c.cache[inchikey]; ok {
		return s, nil
	}

	url := fmt.Sprintf("%s/compound/inchikey/%s/property/CanonicalSMILES/TXT", c.base, inchikey)
	resp, err := c.rest.R().Get(url)
	if err != nil {
		return "", fmt.Errorf("pubchem lookup %s: %w", inchikey, err)
	}
	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("pubchem lookup %s: status %d", inchikey, resp.StatusCode())
	}

	smiles := strings.TrimSpace(strings.SplitN(resp.String(), "\n", 2)[0])
	if smiles == "" {
		return "", fmt.Errorf("pubchem lookup %s: empty response", inchikey)
	}
	c.cache[inchikey] = smiles
	return smiles, nil
}

// FillMissing resolves structures for library entries with an empty SMILES
// in place. Lookup failures leave the entry empty; the batch predictor
// records those as unscorable later. The cache file is rewritten once at
// the end.
func (c *PubChemClient) FillMissing(library []Compound) int {
	filled := 0
	for i := range library {
		if library[i].SMILES != "" {
			continue
		}
		smiles, err := c.SMILES(library[i].ID)
		if err != nil {
			log.Warn().Err(err).Str("inchikey", library[i].ID).Msg("remote SMILES lookup failed")
			continue
		}
		library[i].SMILES = smiles
		filled++
	}
	if filled > 0 {
		if err := c.saveCache(); err != nil {
			log.Warn().Err(err).Msg("failed to persist SMILES cache")
		}
	}
	return filled
}

func (c *PubChemClient) loadCache() {
	if c.cachePath == "" {
		return
	}
	f, err := os.Open(c.cachePath)
	if err != nil {
		return // cache is optional
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		log.Warn().Err(err).Str("path", c.cachePath).Msg("unreadable SMILES cache, ignoring")
		return
	}
	for _, row := range rows {
		if len(row) == 2 && row[0] != "" {
			c.cache[row[0]] = row[1]
		}
	}
}

func (c *PubChemClient) saveCache() error {
	if c.cachePath == "" {
		return nil
	}
	f, err := os.Create(c.cachePath)
	if err != nil {
		return err
	}
	defer f.Close()

	keys := make([]string, 0, len(c.cache))
	for key := range c.cache {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	w := csv.NewWriter(f)
	defer w.Flush()
	for _, key := range keys {
		if err := w.Write([]string{key, c.cache[key]}); err != nil {
			return err
		}
	}
	return nil
}
