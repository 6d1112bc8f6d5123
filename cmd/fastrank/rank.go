package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/ml"
	"fast-interactions/internal/report"
	"fast-interactions/internal/storage"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

type rankFlags struct {
	data      string
	target    string
	weight    string
	topK      int
	pairs     string
	exclude   string
	objective string
	bins      int
	minLeaf   int
	types     string
	report    string
	store     bool
}

var (
	rankOpts rankFlags

	rankCmd = &cobra.Command{
		Use:   "rank",
		Short: "Rank the feature interactions of a CSV or JSON dataset",
		Long: `Loads a dataset from a CSV file, a JSON file (one object per sample) or an
http(s) URL serving CSV, measures the interaction strength of feature pairs
against the target column and prints the ranking.`,
		Args: cobra.NoArgs,
		RunE: runRank,
	}
)

func init() {
	f := rankCmd.Flags()
	f.StringVarP(&rankOpts.data, "data", "d", "", "Dataset file (.csv, .json) or http(s) URL")
	f.StringVarP(&rankOpts.target, "target", "t", "", "Target column (default: last column)")
	f.StringVar(&rankOpts.weight, "weight", "", "Column holding sample weights")
	f.IntVarP(&rankOpts.topK, "top-k", "k", -1, "Keep the K strongest pairs, 0 for all (default: TOP_K)")
	f.StringVar(&rankOpts.pairs, "pairs", "", "Explicit pairs to score, e.g. 0:1,2:5")
	f.StringVar(&rankOpts.exclude, "exclude", "", "Pairs never scored, e.g. 0:1,2:5")
	f.StringVar(&rankOpts.objective, "objective", "", "Objective, e.g. rmse or tweedie_deviance:variance_power=1.3")
	f.IntVar(&rankOpts.bins, "bins", 0, "Maximum bins per feature (default: MAX_INTERACTION_BINS)")
	f.IntVar(&rankOpts.minLeaf, "min-leaf", 0, "Minimum samples per leaf (default: MIN_SAMPLES_LEAF)")
	f.StringVar(&rankOpts.types, "types", "", "Comma separated feature types: auto, continuous, nominal, ordinal")
	f.StringVar(&rankOpts.report, "report", "", "Write summary, CSV and JSON reports into this directory")
	f.BoolVar(&rankOpts.store, "store", false, "Persist the run under DATA_PATH")
	_ = rankCmd.MarkFlagRequired("data")
}

func runRank(cmd *cobra.Command, _ []string) error {
	if rankOpts.pairs != "" && rankOpts.topK >= 0 {
		return errors.New("--pairs and --top-k are mutually exclusive")
	}

	frame, err := loadFrame(cmd.Context(), rankOpts.data, rankOpts.target)
	if err != nil {
		return err
	}

	opts, err := rankOptions(rankOpts)
	if err != nil {
		return err
	}
	if rankOpts.weight != "" {
		col, ok := frame.Take(rankOpts.weight)
		if !ok {
			return fmt.Errorf("weight column %q not found", rankOpts.weight)
		}
		if !col.IsNumeric() {
			return fmt.Errorf("weight column %q is not numeric", rankOpts.weight)
		}
		opts.SampleWeight = col.Floats
	}
	opts.FeatureNames = frame.Names

	res, err := newMeasurer(nil).Measure(frame.Columns, frame.Target, opts)
	if err != nil {
		return err
	}

	run := storage.Run{
		Source:  rankOpts.data,
		Target:  frame.TargetName,
		Samples: frame.NumSamples(),
		Settings: storage.RunSettings{
			Objective:          opts.Objective,
			MaxInteractionBins: opts.MaxInteractionBins,
			MinSamplesLeaf:     opts.MinSamplesLeaf,
		},
		Result: res,
	}
	if k, ok := opts.Interactions.(ml.TopK); ok {
		run.Settings.TopK = int(k)
	}

	if rankOpts.store {
		store, err := openStore()
		if err != nil {
			return err
		}
		if store == nil {
			return errors.New("--store needs DATA_PATH to be set")
		}
		defer store.Close()
		if run, err = store.SaveRun(run); err != nil {
			return err
		}
	}

	if rankOpts.report != "" {
		if err := report.NewReporter(run, rankOpts.report).GenerateReport(); err != nil {
			return err
		}
	}
	return report.NewReporter(run, "").WriteSummary(cmd.OutOrStdout())
}

func rankOptions(f rankFlags) (ml.Options, error) {
	opts := ml.Options{
		MaxInteractionBins: orSetting(f.bins, settings.MaxInteractionBins),
		MinSamplesLeaf:     orSetting(f.minLeaf, settings.MinSamplesLeaf),
		Objective:          f.objective,
	}
	if opts.Objective == "" {
		opts.Objective = settings.Objective
	}
	if f.types != "" {
		opts.FeatureTypes = strings.Split(f.types, ",")
	}

	switch {
	case f.pairs != "":
		pairs, err := parsePairs(f.pairs)
		if err != nil {
			return ml.Options{}, fmt.Errorf("--pairs: %w", err)
		}
		opts.Interactions = ml.Pairs(pairs)
	case f.topK >= 0:
		opts.Interactions = ml.TopK(f.topK)
	case settings.TopK > 0:
		opts.Interactions = ml.TopK(settings.TopK)
	}

	if f.exclude != "" {
		excl, err := parsePairs(f.exclude)
		if err != nil {
			return ml.Options{}, fmt.Errorf("--exclude: %w", err)
		}
		opts.Exclude = excl
	}
	return opts, nil
}

// parsePairs parses "a:b,c:d" into index pairs.
func parsePairs(s string) ([][2]int, error) {
	var pairs [][2]int
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		left, right, ok := strings.Cut(item, ":")
		if !ok {
			return nil, fmt.Errorf("pair %q must look like i:j", item)
		}
		i, err := strconv.Atoi(strings.TrimSpace(left))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", item, err)
		}
		j, err := strconv.Atoi(strings.TrimSpace(right))
		if err != nil {
			return nil, fmt.Errorf("pair %q: %w", item, err)
		}
		pairs = append(pairs, [2]int{i, j})
	}
	if len(pairs) == 0 {
		return nil, errors.New("no pairs given")
	}
	return pairs, nil
}

// loadFrame reads a dataset from a URL, a JSON file or a CSV file.
func loadFrame(ctx context.Context, source, target string) (*dataset.Frame, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		if ctx == nil {
			ctx = context.Background()
		}
		return dataset.NewFetcher(settings.DatasetTimeout).FetchCSV(ctx, source, target)
	}
	if _, err := os.Stat(source); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", source, err)
	}

	switch strings.ToLower(filepath.Ext(source)) {
	case ".json", ".jsonl":
		return dataset.LoadJSON(source, target)
	default:
		log.Debug().Str("file", source).Msg("reading dataset as CSV")
		return dataset.LoadCSV(source, target)
	}
}

func orSetting(v, setting int) int {
	if v != 0 {
		return v
	}
	return setting
}
