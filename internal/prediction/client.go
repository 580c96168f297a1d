package prediction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/config"
	"github.com/treewskyblue/Medvise/internal/models"
)

// Quantity is one predicted supply value
type Quantity struct {
	Key   string  `json:"key"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Unit  string  `json:"unit"`
}

// Result is the prediction record, known outputs first in their fixed order
type Result struct {
	Quantities []Quantity
}

// Rounded returns display name to value rounded to two decimals
func (r Result) Rounded() map[string]float64 {
	out := make(map[string]float64, len(r.Quantities))
	for _, q := range r.Quantities {
		out[q.Name] = Round2(q.Value)
	}
	return out
}

func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// StatusError is a non-success answer from the prediction service
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prediction service returned %d - %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return models.ErrPredictionUnavailable }

type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

func NewClient(cfg config.PredictionConfig, log zerolog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout()},
		log:     log,
	}
}

type predictRequest struct {
	Data [][]float64 `json:"data"`
}

// Predict posts one record of five ordered lab values. There is no retry;
// timeouts and connection failures wrap ErrPredictionUnavailable.
func (c *Client) Predict(ctx context.Context, values []float64) (Result, error) {
	if len(values) != len(models.RequiredFields) {
		return Result{}, fmt.Errorf("%w: expected %d values, got %d", models.ErrInvalidInput, len(models.RequiredFields), len(values))
	}

	body, err := json.Marshal(predictRequest{Data: [][]float64{values}})
	if err != nil {
		return Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", models.ErrPredictionUnavailable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("%w: reading response: %v", models.ErrPredictionUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	var records []map[string]float64
	if err := json.Unmarshal(data, &records); err != nil {
		return Result{}, fmt.Errorf("%w: malformed response: %v", models.ErrPredictionUnavailable, err)
	}
	res := toResult(records)
	if len(res.Quantities) == 0 {
		return Result{}, fmt.Errorf("%w: empty prediction", models.ErrPredictionUnavailable)
	}

	c.log.Info().Interface("prediction", res.Rounded()).Msg("Prediction received")
	return res, nil
}

func toResult(records []map[string]float64) Result {
	merged := map[string]float64{}
	for _, r := range records {
		for k, v := range r {
			merged[k] = v
		}
	}

	var res Result
	for _, out := range models.PredictionOutputs {
		if v, ok := merged[out.Key]; ok {
			res.Quantities = append(res.Quantities, Quantity{Key: out.Key, Name: out.DisplayName, Value: v, Unit: out.Unit})
			delete(merged, out.Key)
		}
	}

	extra := make([]string, 0, len(merged))
	for k := range merged {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	for _, k := range extra {
		res.Quantities = append(res.Quantities, Quantity{Key: k, Name: k, Value: merged[k], Unit: "g"})
	}
	return res
}

// IsStatusError reports whether err came from a non-success response
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}
