package main

import (
	"testing"

	"fast-interactions/internal/cfg"
	"fast-interactions/internal/ml"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePairs(t *testing.T) {
	pairs, err := parsePairs("0:1, 3:2,")
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{0, 1}, {3, 2}}, pairs)

	for _, bad := range []string{"", "0-1", "a:1", "1:b", ","} {
		_, err := parsePairs(bad)
		assert.Error(t, err, bad)
	}
}

func TestRankOptions(t *testing.T) {
	saved := settings
	defer func() { settings = saved }()
	settings = cfg.Settings{MaxInteractionBins: 32, MinSamplesLeaf: 2, TopK: 5, Objective: "rmse"}

	opts, err := rankOptions(rankFlags{topK: -1})
	require.NoError(t, err)
	assert.Equal(t, ml.TopK(5), opts.Interactions)
	assert.Equal(t, 32, opts.MaxInteractionBins)
	assert.Equal(t, 2, opts.MinSamplesLeaf)
	assert.Equal(t, "rmse", opts.Objective)

	opts, err = rankOptions(rankFlags{topK: 0, bins: 8, minLeaf: 4, objective: "log_loss", types: "nominal,auto", exclude: "0:2"})
	require.NoError(t, err)
	assert.Equal(t, ml.TopK(0), opts.Interactions)
	assert.Equal(t, 8, opts.MaxInteractionBins)
	assert.Equal(t, 4, opts.MinSamplesLeaf)
	assert.Equal(t, "log_loss", opts.Objective)
	assert.Equal(t, []string{"nominal", "auto"}, opts.FeatureTypes)
	assert.Equal(t, [][2]int{{0, 2}}, opts.Exclude)

	opts, err = rankOptions(rankFlags{topK: -1, pairs: "2:0"})
	require.NoError(t, err)
	assert.Equal(t, ml.Pairs{{2, 0}}, opts.Interactions)

	settings.TopK = 0
	opts, err = rankOptions(rankFlags{topK: -1})
	require.NoError(t, err)
	assert.Nil(t, opts.Interactions)

	_, err = rankOptions(rankFlags{topK: -1, pairs: "x"})
	assert.Error(t, err)
}
