package orchestrator

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"

	"github.com/treewskyblue/Medvise/internal/helper"
	"github.com/treewskyblue/Medvise/internal/llmservice"
	"github.com/treewskyblue/Medvise/internal/models"
	"github.com/treewskyblue/Medvise/internal/prediction"
	"github.com/treewskyblue/Medvise/internal/rag"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) (rag.Result, error)
}

type Extractor interface {
	Extract(ctx context.Context, message string, history []llmservice.Turn, guidelineContext string) (llmservice.ExtractionResult, error)
}

type Predictor interface {
	Predict(ctx context.Context, values []float64) (prediction.Result, error)
}

// State names a step of a chat turn
type State string

const (
	StateRetrieving State = "retrieving"
	StateExtracting State = "extracting"
	StatePredicting State = "predicting"
	StateAssembling State = "assembling"
	StateDone       State = "done"
)

type Request struct {
	Message string
	History []llmservice.Turn
}

// Response is the assembled answer of one turn. Failed is set only for
// unexpected faults; degraded answers still count as success.
type Response struct {
	TurnID     string
	Answer     string
	Prediction *prediction.Result
	References []models.Reference
	Error      string
	Failed     bool
}

type Options struct {
	TopK          int
	MaxReferences int
}

type Orchestrator struct {
	retriever Retriever
	extractor Extractor
	predictor Predictor
	opts      Options
	log       zerolog.Logger
}

func New(retriever Retriever, extractor Extractor, predictor Predictor, opts Options, log zerolog.Logger) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 7
	}
	if opts.MaxReferences <= 0 {
		opts.MaxReferences = 3
	}
	return &Orchestrator{
		retriever: retriever,
		extractor: extractor,
		predictor: predictor,
		opts:      opts,
		log:       log,
	}
}

// Ask runs one chat turn. The returned error is non-nil only when the turn
// failed unexpectedly, in which case the response carries a generic apology.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (resp Response, err error) {
	turnID, idErr := helper.GenerateUUID()
	if idErr != nil {
		turnID = "unknown"
	}
	log := o.log.With().Str("turn_id", turnID).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Chat turn failed")
			err = fmt.Errorf("chat turn failed: %v", r)
			resp = Response{TurnID: turnID, Answer: models.GenericApology, Error: err.Error(), Failed: true}
		}
	}()

	log.Info().Str("message", req.Message).Msg("Received user message")

	o.enter(log, StateRetrieving)
	retrieved, rerr := o.retriever.Retrieve(ctx, req.Message, o.opts.TopK)
	if rerr != nil {
		log.Warn().Err(rerr).Msg("Retrieval failed, answering without guidelines")
		retrieved = rag.Result{}
	}
	for i, item := range retrieved.Items {
		log.Debug().Int("rank", i+1).Str("source", item.Chunk.SourceID).Float32("score", item.Score).Msg("Relevant guideline")
	}
	refs := retrieved.References(o.opts.MaxReferences)

	o.enter(log, StateExtracting)
	extracted, xerr := o.extractor.Extract(ctx, req.Message, req.History, retrieved.Context)
	if xerr != nil {
		log.Warn().Err(xerr).Msg("Extraction failed, continuing without values")
		extracted.Values = nil
		if extracted.Text == "" {
			extracted.Text = models.ExtractionFallback
		}
	}

	resp = Response{TurnID: turnID, References: refs}

	if !extracted.Complete() {
		log.Info().Int("fields", len(extracted.Values)).Msg("Not all lab values present, skipping prediction")
		o.enter(log, StateAssembling)
		resp.Answer = withReferences(extracted.Text, refs)
		o.enter(log, StateDone)
		return resp, nil
	}

	o.enter(log, StatePredicting)
	pred, perr := o.predictor.Predict(ctx, extracted.Ordered())

	o.enter(log, StateAssembling)
	if perr != nil {
		log.Error().Err(perr).Msg("Prediction failed")
		note := models.PredictionOfflineNote
		if prediction.IsStatusError(perr) {
			note = models.PredictionErrorNote
		}
		resp.Answer = extracted.Text + "\n\n" + note
		resp.Error = perr.Error()
		o.enter(log, StateDone)
		return resp, nil
	}

	resp.Prediction = &pred
	resp.Answer = withReferences(extracted.Text+"\n\n"+prescription(pred), refs)
	o.enter(log, StateDone)
	return resp, nil
}

func (o *Orchestrator) enter(log zerolog.Logger, s State) {
	log.Debug().Str("state", string(s)).Msg("Turn state")
}

func prescription(pred prediction.Result) string {
	var b strings.Builder
	b.WriteString(models.PrescriptionHeading)
	b.WriteString("\n")
	for _, q := range pred.Quantities {
		fmt.Fprintf(&b, "- %s: %.2f %s\n", q.Name, prediction.Round2(q.Value), q.Unit)
	}
	return strings.TrimRight(b.String(), "\n")
}

func withReferences(answer string, refs []models.Reference) string {
	if len(refs) == 0 {
		return answer
	}
	var b strings.Builder
	b.WriteString(answer)
	b.WriteString("\n\n")
	b.WriteString(models.ReferencesHeading)
	b.WriteString("\n")
	for i, r := range refs {
		fmt.Fprintf(&b, "%d. %s", i+1, r.Filename)
		if r.Page > 0 {
			fmt.Fprintf(&b, " (page %d)", r.Page)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
