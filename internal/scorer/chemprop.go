package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"herbrank/internal/refdata"
	"herbrank/internal/sampling"
)

// Chemprop delegates fitting and scoring to a Python helper wrapping a
// message-passing neural network. The protocol is JSON over stdin/stdout:
// one request in, one response out, non-zero exit or an "error" field on
// failure. The checkpoint is the .ckpt path the helper reports; the helper
// owns the file.
type Chemprop struct {
	python string
	script string
	epochs int
}

func NewChemprop(python, script string, maxEpochs int) *Chemprop {
	return &Chemprop{python: python, script: script, epochs: maxEpochs}
}

func (s *Chemprop) Name() string { return "chemprop" }

type chempropFitRequest struct {
	Samples []chempropSample `json:"samples"`
	Epochs  int              `json:"epochs"`
	Seed    int64            `json:"seed"`
}

type chempropSample struct {
	SMILES string `json:"smiles"`
	Label  int    `json:"label"`
}

type chempropFitResponse struct {
	CheckpointPath string `json:"checkpoint_path"`
	Error          string `json:"error,omitempty"`
}

type chempropPredictRequest struct {
	CheckpointPath string   `json:"checkpoint_path"`
	SMILES         []string `json:"smiles"`
}

type chempropPredictResponse struct {
	Scores []*float64 `json:"scores"` // null = unscorable
	Error  string     `json:"error,omitempty"`
}

// chempropModel is the Predictor side: a handle on the helper's checkpoint.
type chempropModel struct {
	scorer         *Chemprop
	CheckpointPath string `json:"checkpoint_path"`
}

func (s *Chemprop) Fit(ctx context.Context, ds sampling.Dataset) (Predictor, error) {
	req := chempropFitRequest{Epochs: s.epochs, Seed: ds.Seed}
	for _, sample := range ds.Samples {
		req.Samples = append(req.Samples, chempropSample{SMILES: sample.SMILES, Label: sample.Label})
	}

	var resp chempropFitResponse
	if err := s.invoke(ctx, []string{"fit", "--fold", strconv.Itoa(ds.Fold)}, req, &resp); err != nil {
		return nil, fmt.Errorf("fold %d: chemprop fit: %w", ds.Fold, err)
	}
	if resp.CheckpointPath == "" {
		return nil, fmt.Errorf("fold %d: chemprop fit returned no checkpoint", ds.Fold)
	}
	return &chempropModel{scorer: s, CheckpointPath: resp.CheckpointPath}, nil
}

func (s *Chemprop) Save(p Predictor) ([]byte, error) {
	model, ok := p.(*chempropModel)
	if !ok {
		return nil, fmt.Errorf("predictor is not a chemprop model")
	}
	return json.Marshal(model)
}

func (s *Chemprop) Load(checkpoint []byte) (Predictor, error) {
	var model chempropModel
	if err := json.Unmarshal(checkpoint, &model); err != nil {
		return nil, fmt.Errorf("decode chemprop checkpoint: %w", err)
	}
	if model.CheckpointPath == "" {
		return nil, fmt.Errorf("chemprop checkpoint has no path")
	}
	model.scorer = s
	return &model, nil
}

func (m *chempropModel) ScoreBatch(ctx context.Context, compounds []refdata.Compound) ([]float64, error) {
	req := chempropPredictRequest{CheckpointPath: m.CheckpointPath}
	for _, c := range compounds {
		req.SMILES = append(req.SMILES, c.SMILES)
	}

	var resp chempropPredictResponse
	if err := m.scorer.invoke(ctx, []string{"predict"}, req, &resp); err != nil {
		return nil, fmt.Errorf("chemprop predict: %w", err)
	}
	if len(resp.Scores) != len(compounds) {
		return nil, fmt.Errorf("chemprop predict: expected %d scores, got %d", len(compounds), len(resp.Scores))
	}

	scores := make([]float64, len(compounds))
	for i, s := range resp.Scores {
		if s == nil {
			scores[i] = math.NaN()
		} else {
			scores[i] = *s
		}
	}
	return scores, nil
}

// invoke runs the helper with the given subcommand, writing req as JSON to
// stdin and decoding stdout into out. Context cancellation kills the
// process.
func (s *Chemprop) invoke(ctx context.Context, args []string, req, out interface{}) error {
	reqJSON, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.python, append([]string{s.script}, args...)...)
	cmd.Stdin = bytes.NewReader(reqJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		log.Error().
			Err(err).
			Str("python", s.python).
			Str("script", s.script).
			Strs("args", args).
			Str("stderr", stderr.String()).
			Msg("chemprop helper failed")
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("chemprop helper timed out")
		}
		if strings.Contains(stderr.String(), "No module named") {
			return fmt.Errorf("chemprop dependency missing: %w", err)
		}
		return fmt.Errorf("chemprop helper: %w, stderr: %s", err, stderr.String())
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return fmt.Errorf("parse helper response: %w, stdout: %s", err, stdout.String())
	}
	if e := errorField(out); e != "" {
		return fmt.Errorf("chemprop helper error: %s", e)
	}
	return nil
}

func errorField(out interface{}) string {
	switch v := out.(type) {
	case *chempropFitResponse:
		return v.Error
	case *chempropPredictResponse:
		return v.Error
	}
	return ""
}
