package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/ml"
	"fast-interactions/internal/storage"

	"gonum.org/v1/gonum/mat"
)

var errBadRequest = errors.New("bad request")

// RankRequest is the body of POST /rank and the first message of /ws/rank.
// Data is given inline (X and Y) or fetched from DatasetURL, with Target
// naming the target column.
type RankRequest struct {
	X            []dataset.Column `json:"x,omitempty"`
	Y            dataset.Column   `json:"y"`
	FeatureNames []string         `json:"feature_names,omitempty"`
	FeatureTypes []string         `json:"feature_types,omitempty"`
	SampleWeight []float64        `json:"sample_weight,omitempty"`

	// InitScore is a vector (one score per sample) or a matrix (one row per
	// sample).
	InitScore json.RawMessage `json:"init_score,omitempty"`
	// Interactions is a number (top K) or a list of index pairs.
	Interactions json.RawMessage `json:"interactions,omitempty"`
	Exclude      [][2]int        `json:"exclude,omitempty"`

	MaxInteractionBins int    `json:"max_interaction_bins,omitempty"`
	MinSamplesLeaf     int    `json:"min_samples_leaf,omitempty"`
	Objective          string `json:"objective,omitempty"`

	DatasetURL string `json:"dataset_url,omitempty"`
	Target     string `json:"target,omitempty"`

	Store bool `json:"store,omitempty"`
}

// RankResponse is the body returned by POST /rank.
type RankResponse struct {
	RunID  string     `json:"run_id,omitempty"`
	Result *ml.Result `json:"result"`
}

// StreamMessage is one websocket message of /ws/rank.
type StreamMessage struct {
	Type        string          `json:"type"`
	Rank        int             `json:"rank,omitempty"`
	Interaction *ml.Interaction `json:"interaction,omitempty"`
	Names       []string        `json:"names,omitempty"`
	RunID       string          `json:"run_id,omitempty"`
	Error       string          `json:"error,omitempty"`
}

const (
	msgInteraction = "interaction"
	msgDone        = "done"
	msgError       = "error"
)

// job is a decoded request ready to be measured.
type job struct {
	x      []dataset.Column
	y      dataset.Column
	opts   ml.Options
	source string
	target string
	store  bool
}

func (s *Server) prepare(ctx context.Context, req *RankRequest) (*job, error) {
	j := &job{
		x:      req.X,
		y:      req.Y,
		source: "inline",
		target: req.Target,
		store:  req.Store,
	}

	if req.DatasetURL != "" {
		if len(req.X) > 0 || req.Y.Len() > 0 {
			return nil, fmt.Errorf("%w: dataset_url cannot be combined with inline x or y", errBadRequest)
		}
		if s.fetcher == nil {
			return nil, fmt.Errorf("%w: dataset_url is not supported by this server", errBadRequest)
		}
		frame, err := s.fetcher.FetchCSV(ctx, req.DatasetURL, req.Target)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", errFetch, err)
		}
		if s.metrics != nil {
			s.metrics.DatasetsLoadedInc()
		}
		j.x, j.y = frame.Columns, frame.Target
		j.source, j.target = req.DatasetURL, frame.TargetName
		if req.FeatureNames == nil {
			req.FeatureNames = frame.Names
		}
	}

	interactions, err := decodeInteractions(req.Interactions)
	if err != nil {
		return nil, err
	}
	if interactions == nil && s.defaults.TopK > 0 {
		interactions = ml.TopK(s.defaults.TopK)
	}
	baseline, err := decodeInitScore(req.InitScore)
	if err != nil {
		return nil, err
	}

	j.opts = ml.Options{
		Interactions:       interactions,
		Exclude:            req.Exclude,
		InitScore:          baseline,
		SampleWeight:       req.SampleWeight,
		FeatureNames:       req.FeatureNames,
		FeatureTypes:       req.FeatureTypes,
		MaxInteractionBins: orDefault(req.MaxInteractionBins, s.defaults.MaxInteractionBins),
		MinSamplesLeaf:     orDefault(req.MinSamplesLeaf, s.defaults.MinSamplesLeaf),
		Objective:          req.Objective,
	}
	if j.opts.Objective == "" {
		j.opts.Objective = s.defaults.Objective
	}
	return j, nil
}

func (j *job) settings() storage.RunSettings {
	rs := storage.RunSettings{
		Objective:          j.opts.Objective,
		MaxInteractionBins: j.opts.MaxInteractionBins,
		MinSamplesLeaf:     j.opts.MinSamplesLeaf,
	}
	if k, ok := j.opts.Interactions.(ml.TopK); ok {
		rs.TopK = int(k)
	}
	return rs
}

func decodeInteractions(raw json.RawMessage) (ml.Interactions, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if raw[0] == '[' {
		var pairs [][2]int
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, fmt.Errorf("%w: interactions must be a number or a list of index pairs: %w", errBadRequest, err)
		}
		return ml.Pairs(pairs), nil
	}
	var k int
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("%w: interactions must be a number or a list of index pairs: %w", errBadRequest, err)
	}
	return ml.TopK(k), nil
}

func decodeInitScore(raw json.RawMessage) (ml.Baseline, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	var vector []*float64
	if err := json.Unmarshal(raw, &vector); err == nil {
		values, err := scoreRow(vector, "init_score")
		if err != nil {
			return nil, err
		}
		return ml.RawScores{Vector: values}, nil
	}

	var rows [][]*float64
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("%w: init_score must be a list of numbers or a list of rows", errBadRequest)
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, fmt.Errorf("%w: init_score matrix cannot be empty", errBadRequest)
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: init_score row %d has %d columns, expected %d", errBadRequest, i, len(row), cols)
		}
		values, err := scoreRow(row, fmt.Sprintf("init_score row %d", i))
		if err != nil {
			return nil, err
		}
		data = append(data, values...)
	}
	return ml.RawScores{Matrix: mat.NewDense(len(rows), cols, data)}, nil
}

// scoreRow rejects null entries, which JSON would otherwise decode as 0.
func scoreRow(row []*float64, what string) ([]float64, error) {
	values := make([]float64, len(row))
	for i, v := range row {
		if v == nil {
			return nil, fmt.Errorf("%w: %s has a null at position %d", errBadRequest, what, i)
		}
		values[i] = *v
	}
	return values, nil
}

func orDefault(v, def int) int {
	if v != 0 {
		return v
	}
	return def
}
