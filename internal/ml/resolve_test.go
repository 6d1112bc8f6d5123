package ml

import (
	"math"
	"testing"

	"fast-interactions/internal/dataset"
	"fast-interactions/internal/objective"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

type constProba struct {
	p []float64
}

func (m constProba) PredictProba(X []dataset.Column) (*mat.Dense, error) {
	n := X[0].Len()
	d := mat.NewDense(n, len(m.p), nil)
	for i := 0; i < n; i++ {
		d.SetRow(i, m.p)
	}
	return d, nil
}

type constValue float64

func (m constValue) Predict(X []dataset.Column) ([]float64, error) {
	out := make([]float64, X[0].Len())
	for i := range out {
		out[i] = float64(m)
	}
	return out, nil
}

func TestResolveTarget(t *testing.T) {
	binary := dataset.Floats(0, 1, 0, 1)
	multi := dataset.Floats(0, 1, 2, 1)
	continuous := dataset.Floats(0.5, 1.25, 3, 2)
	classifier := FittedClassifier{Classes: []string{"0", "1", "2"}, Model: constProba{[]float64{0.2, 0.3, 0.5}}}
	regressor := FittedRegressor{Model: constValue(1)}
	vector := RawScores{Vector: []float64{0, 0, 0, 0}}
	matrix := RawScores{Matrix: mat.NewDense(4, 3, nil)}

	tests := []struct {
		name           string
		objective      string
		baseline       Baseline
		y              dataset.Column
		wantObjective  string
		classification bool
		link           objective.Link
		catalog        []string
	}{
		{"objective fixes regression", "rmse", nil, binary, "rmse", false, objective.LinkIdentity, nil},
		{"objective is case insensitive", " LOG_LOSS ", nil, continuous, "log_loss", true, objective.LinkLogit, nil},
		{"continuous target", "", nil, continuous, "rmse", false, objective.LinkIdentity, nil},
		{"binary target", "", nil, binary, "log_loss", true, objective.LinkLogit, nil},
		{"multiclass target", "", nil, multi, "log_loss", true, objective.LinkLogit, nil},
		{"string target", "", nil, dataset.Strings("a", "b", "c"), "log_loss", true, objective.LinkLogit, nil},
		{"numeric string continuous target", "", nil, dataset.Strings("3.27", " 9.81", "0.5"), "rmse", false, objective.LinkIdentity, nil},
		{"numeric string integer target", "", nil, dataset.Strings("1", "0", "2", "1"), "log_loss", true, objective.LinkLogit, nil},
		{"single class", "", nil, dataset.Floats(3, 3, 3), "log_loss", true, objective.LinkLogit, nil},
		{"score vector forces regression", "", vector, multi, "rmse", false, objective.LinkIdentity, nil},
		{"score vector keeps binary", "", vector, binary, "log_loss", true, objective.LinkLogit, nil},
		{"score matrix forces classification", "", matrix, continuous, "log_loss", true, objective.LinkLogit, nil},
		{"classifier catalog", "", classifier, continuous, "log_loss", true, objective.LinkLogit, []string{"0", "1", "2"}},
		{"classifier with objective", "log_loss", classifier, multi, "log_loss", true, objective.LinkLogit, []string{"0", "1", "2"}},
		{"regressor", "", regressor, binary, "rmse", false, objective.LinkIdentity, nil},
		{"regressor with log link", "poisson_deviance", regressor, binary, "poisson_deviance", false, objective.LinkLog, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := resolveTarget(objective.DefaultTable(), tt.objective, tt.baseline, tt.y)
			require.NoError(t, err)
			assert.Equal(t, tt.wantObjective, res.Objective.Name)
			assert.Equal(t, tt.classification, res.Classification)
			assert.Equal(t, tt.link, res.Link)
			assert.Equal(t, tt.catalog, res.Catalog)
		})
	}
}

func TestResolveTarget_LinkParam(t *testing.T) {
	y := dataset.Floats(0.5, 1.5)

	res, err := resolveTarget(objective.DefaultTable(), "tweedie_deviance:variance_power=1.2", nil, y)
	require.NoError(t, err)
	assert.Equal(t, 1.2, res.LinkParam)

	res, err = resolveTarget(objective.DefaultTable(), "pseudo_huber", nil, y)
	require.NoError(t, err)
	assert.Equal(t, 1.0, res.LinkParam)

	res, err = resolveTarget(objective.DefaultTable(), "rmse", nil, y)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(res.LinkParam))
}

func TestResolveTarget_Errors(t *testing.T) {
	multi := dataset.Floats(0, 1, 2)
	classifier := FittedClassifier{Classes: []string{"0", "1", "2"}, Model: constProba{[]float64{0.2, 0.3, 0.5}}}

	tests := []struct {
		name      string
		objective string
		baseline  Baseline
		y         dataset.Column
		want      error
	}{
		{"classifier with regression objective", "rmse", classifier, multi, ErrConflict},
		{"regressor with classification objective", "log_loss", FittedRegressor{Model: constValue(0)}, multi, ErrConflict},
		{"score matrix with regression objective", "gamma_deviance", RawScores{Matrix: mat.NewDense(3, 3, nil)}, multi, ErrConflict},
		{"unknown objective", "hinge", nil, multi, ErrInput},
		{"bad objective parameter", "tweedie_deviance:variance_power=3", nil, multi, ErrInput},
		{"non-finite target", "", nil, dataset.Floats(1, math.NaN()), ErrInput},
		{"duplicate classes", "", FittedClassifier{Classes: []string{"a", "a"}, Model: constProba{}}, multi, ErrInput},
		{"empty catalog", "", FittedClassifier{Model: constProba{}}, multi, ErrInput},
		{"classifier without model", "", FittedClassifier{Classes: []string{"a"}}, multi, ErrInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveTarget(objective.DefaultTable(), tt.objective, tt.baseline, tt.y)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestResolveTarget_WrapsObjectiveErrors(t *testing.T) {
	_, err := resolveTarget(objective.DefaultTable(), "hinge", nil, dataset.Floats(0, 1))
	assert.ErrorIs(t, err, ErrInput)
	assert.ErrorIs(t, err, objective.ErrUnknownObjective)
}

func TestTypeOfTarget(t *testing.T) {
	assert.Equal(t, targetBinary, typeOfTarget(dataset.Floats(1, 1)))
	assert.Equal(t, targetBinary, typeOfTarget(dataset.Strings("x", "y", "x")))
	assert.Equal(t, targetMulticlass, typeOfTarget(dataset.Floats(-1, 0, 4)))
	assert.Equal(t, targetContinuous, typeOfTarget(dataset.Floats(1, 2.5)))
	assert.Equal(t, targetContinuous, typeOfTarget(dataset.Strings("3.27", "9.81", "1e-3")))
	assert.Equal(t, targetBinary, typeOfTarget(dataset.Strings("1", "0", "1.0")))
	assert.Equal(t, targetMulticlass, typeOfTarget(dataset.Strings("1", "2", " 3 ")))
	assert.Equal(t, targetMulticlass, typeOfTarget(dataset.Strings("1.5", "x", "2")))
	assert.Equal(t, targetUnknown, typeOfTarget(dataset.Floats(math.Inf(1))))
	assert.Equal(t, targetUnknown, typeOfTarget(dataset.Column{}))
	assert.Equal(t, "multiclass", targetMulticlass.String())
}
