package prediction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/treewskyblue/Medvise/internal/config"
	"github.com/treewskyblue/Medvise/internal/models"
)

var labValues = []float64{85, 4.0, 15, 3.5, 7.0}

func Test_Predict_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/predict", r.URL.Path)

		var req predictRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, [][]float64{labValues}, req.Data)

		w.Write([]byte(`[{"TPNCALCULATEDCALORI": 120.456, "TPNCALCULATEDGLUCOSE": 10.123, "TPNCALCULATEDPROTEIN": 3.5, "TPNCALCULATEDLIPID": 2.999}]`))
	}))
	defer srv.Close()

	c := NewClient(config.PredictionConfig{BaseURL: srv.URL + "/"}, zerolog.Nop())
	res, err := c.Predict(context.Background(), labValues)
	require.NoError(t, err)

	require.Len(t, res.Quantities, 4)
	assert.Equal(t, Quantity{Key: "TPNCALCULATEDGLUCOSE", Name: "Glucose supply", Value: 10.123, Unit: "g"}, res.Quantities[0])
	assert.Equal(t, "kcal", res.Quantities[3].Unit)
	assert.Equal(t, map[string]float64{
		"Glucose supply":       10.12,
		"Protein supply":       3.5,
		"Lipid supply":         3,
		"Total calorie supply": 120.46,
	}, res.Rounded())
}

func Test_Predict_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(config.PredictionConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Predict(context.Background(), labValues)

	assert.ErrorIs(t, err, models.ErrPredictionUnavailable)
	assert.True(t, IsStatusError(err))
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "model not loaded")
}

func Test_Predict_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewClient(config.PredictionConfig{BaseURL: srv.URL, TimeoutMs: 50}, zerolog.Nop())
	start := time.Now()
	_, err := c.Predict(context.Background(), labValues)

	assert.ErrorIs(t, err, models.ErrPredictionUnavailable)
	assert.False(t, IsStatusError(err))
	assert.Less(t, time.Since(start), 2*time.Second)
}

func Test_Predict_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(config.PredictionConfig{BaseURL: url}, zerolog.Nop())
	_, err := c.Predict(context.Background(), labValues)
	assert.ErrorIs(t, err, models.ErrPredictionUnavailable)
}

func Test_Predict_BadInput(t *testing.T) {
	c := NewClient(config.PredictionConfig{BaseURL: "http://unused"}, zerolog.Nop())
	_, err := c.Predict(context.Background(), []float64{1, 2})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func Test_Predict_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"detail": "oops"}`))
	}))
	defer srv.Close()

	c := NewClient(config.PredictionConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Predict(context.Background(), labValues)
	assert.ErrorIs(t, err, models.ErrPredictionUnavailable)
}
