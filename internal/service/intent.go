package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/internal/prompt"
	"github.com/hidata/rag-platform/pkg/logger"
	"github.com/hidata/rag-platform/pkg/metrics"
)

// Intent is one recognized utterance category.
type Intent struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
}

var (
	IntentProjectPlanning = Intent{ID: 1, Label: "project_planning"}
	IntentConversation    = Intent{ID: 2, Label: "conversation"}
	IntentOther           = Intent{ID: 3, Label: "other"}
	IntentUnknown         = Intent{ID: -1, Label: "unknown"}
)

func intentByLabel(label string) Intent {
	switch strings.TrimSpace(strings.ToLower(label)) {
	case IntentProjectPlanning.Label:
		return IntentProjectPlanning
	case IntentConversation.Label:
		return IntentConversation
	case IntentOther.Label:
		return IntentOther
	}
	return IntentUnknown
}

// Classification is the transient per-request result of intent detection.
type Classification struct {
	Intent     Intent  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

const classifyInstruction = "Classify the user's message into exactly one of these categories: " +
	"project_planning (the user wants to start planning a new project), " +
	"conversation (the user is continuing an existing discussion or asking a follow-up), " +
	"other (anything else). Respond with only the category name."

// Classifier categorizes one utterance given the surrounding cross-block
// context. Detector and SampledDetector both satisfy it.
type Classifier interface {
	Classify(ctx context.Context, text, contextText string) Classification
}

// Detector performs single-shot deterministic classification with a keyword
// pre-check. The pre-check exists because pure classification under-detects
// implicit follow-up questions.
type Detector struct {
	llm     llm.Client
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

// NewDetector builds a single-shot detector. timeout bounds the model call
// so routing stays fast.
func NewDetector(client llm.Client, chatModel string, timeout time.Duration, log *logger.Logger) *Detector {
	return &Detector{llm: client, model: chatModel, timeout: timeout, logger: log}
}

// Classify categorizes text. When both the text and the surrounding
// cross-block context touch the follow-up keyword families, classification
// is skipped and the result is "conversation". A model failure degrades to
// the unknown intent with zero confidence rather than an error.
func (d *Detector) Classify(ctx context.Context, text, contextText string) Classification {
	if contextText != "" && prompt.ContainsRelevanceKeyword(text) && prompt.ContainsRelevanceKeyword(contextText) {
		metrics.IntentClassificationsTotal.WithLabelValues(IntentConversation.Label, "keyword").Inc()
		return Classification{Intent: IntentConversation, Confidence: 0.9}
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resp, err := d.llm.Complete(ctx, &llm.CompletionRequest{
		Model:       d.model,
		Temperature: 0,
		Messages: []llm.ChatMessage{
			{Role: string(model.RoleSystem), Content: classifyInstruction},
			{Role: string(model.RoleUser), Content: text},
		},
	})
	if err != nil {
		d.logger.Warn("intent classification failed", zap.Error(err))
		metrics.IntentClassificationsTotal.WithLabelValues(IntentUnknown.Label, "single").Inc()
		return Classification{Intent: IntentUnknown, Confidence: 0}
	}

	intent := intentByLabel(resp.Content)
	metrics.IntentClassificationsTotal.WithLabelValues(intent.Label, "single").Inc()
	return Classification{Intent: intent, Confidence: 1}
}

// SampledDetector estimates confidence by classifying the same text several
// times at a non-zero temperature and measuring agreement.
type SampledDetector struct {
	llm         llm.Client
	model       string
	samples     int
	temperature float64
	logger      *logger.Logger
}

// NewSampledDetector builds an ensemble detector drawing n samples.
func NewSampledDetector(client llm.Client, chatModel string, samples int, log *logger.Logger) *SampledDetector {
	if samples < 1 {
		samples = 1
	}
	return &SampledDetector{
		llm:         client,
		model:       chatModel,
		samples:     samples,
		temperature: 0.7,
		logger:      log,
	}
}

// Classify draws the configured number of samples and returns the modal
// intent. Confidence blends agreement ratio, sample completeness and
// distribution sharpness at weights 0.5/0.3/0.2, capped at 0.95, with a
// flat 0.8 penalty when only one sample came back. The keyword pre-check
// applies before any sampling, same as the single-shot detector.
func (s *SampledDetector) Classify(ctx context.Context, text, contextText string) Classification {
	if contextText != "" && prompt.ContainsRelevanceKeyword(text) && prompt.ContainsRelevanceKeyword(contextText) {
		metrics.IntentClassificationsTotal.WithLabelValues(IntentConversation.Label, "keyword").Inc()
		return Classification{Intent: IntentConversation, Confidence: 0.9}
	}

	counts := map[string]int{}
	succeeded := 0

	for i := 0; i < s.samples; i++ {
		resp, err := s.llm.Complete(ctx, &llm.CompletionRequest{
			Model:       s.model,
			Temperature: s.temperature,
			Messages: []llm.ChatMessage{
				{Role: string(model.RoleSystem), Content: classifyInstruction},
				{Role: string(model.RoleUser), Content: text},
			},
		})
		if err != nil {
			s.logger.Warn("classification sample failed", zap.Int("sample", i), zap.Error(err))
			continue
		}
		counts[intentByLabel(resp.Content).Label]++
		succeeded++
	}

	if succeeded == 0 {
		metrics.IntentClassificationsTotal.WithLabelValues(IntentUnknown.Label, "sampled").Inc()
		return Classification{Intent: IntentUnknown, Confidence: 0}
	}

	modalLabel := ""
	modalCount := 0
	for label, n := range counts {
		if n > modalCount {
			modalLabel, modalCount = label, n
		}
	}

	consistency := float64(modalCount) / float64(succeeded)
	completeness := float64(succeeded) / float64(s.samples)
	sharpness := 1.0 / float64(len(counts))

	confidence := 0.5*consistency + 0.3*completeness + 0.2*sharpness
	if confidence > 0.95 {
		confidence = 0.95
	}
	if succeeded == 1 {
		confidence *= 0.8
	}

	intent := intentByLabel(modalLabel)
	metrics.IntentClassificationsTotal.WithLabelValues(intent.Label, "sampled").Inc()
	return Classification{Intent: intent, Confidence: confidence}
}

// RouteRequest carries one utterance through intent routing.
type RouteRequest struct {
	WorkspaceID string
	BlockID     string
	Text        string
	Connections []model.Connection
}

// RouteResult is what an intent handler produced.
type RouteResult struct {
	Classification Classification `json:"classification"`
	Answer         string         `json:"answer,omitempty"`
	Action         string         `json:"action"`
}

// IntentHandler reacts to one classified utterance.
type IntentHandler interface {
	Handle(ctx context.Context, req RouteRequest, cls Classification) (RouteResult, error)
}

// IntentHandlerFunc adapts a function to IntentHandler.
type IntentHandlerFunc func(ctx context.Context, req RouteRequest, cls Classification) (RouteResult, error)

func (f IntentHandlerFunc) Handle(ctx context.Context, req RouteRequest, cls Classification) (RouteResult, error) {
	return f(ctx, req, cls)
}

var (
	_ Classifier = (*Detector)(nil)
	_ Classifier = (*SampledDetector)(nil)
)

// Router maps intents to handlers, with a fallback for unknown intents.
type Router struct {
	detector Classifier
	turns    TurnStore
	handlers map[int]IntentHandler
	fallback IntentHandler
}

// NewRouter builds a router over a classifier. The turn store supplies
// cross-block context for the keyword pre-check.
func NewRouter(detector Classifier, turns TurnStore, fallback IntentHandler) *Router {
	return &Router{
		detector: detector,
		turns:    turns,
		handlers: map[int]IntentHandler{},
		fallback: fallback,
	}
}

// Register binds a handler to an intent.
func (r *Router) Register(intent Intent, h IntentHandler) {
	r.handlers[intent.ID] = h
}

// Route classifies the request's text and dispatches to the bound handler.
func (r *Router) Route(ctx context.Context, req RouteRequest) (RouteResult, error) {
	cls := r.detector.Classify(ctx, req.Text, r.connectedContext(ctx, req.Connections))

	h, ok := r.handlers[cls.Intent.ID]
	if !ok {
		h = r.fallback
	}
	if h == nil {
		return RouteResult{}, fmt.Errorf("no handler for intent %s", cls.Intent.Label)
	}
	return h.Handle(ctx, req, cls)
}

// connectedContext flattens connected conversation blocks into one text
// blob for the keyword pre-check. Failures just shrink the context.
func (r *Router) connectedContext(ctx context.Context, connections []model.Connection) string {
	var sb strings.Builder
	for _, conn := range connections {
		if conn.Type != model.ConnectionTypeConversation {
			continue
		}
		turns, err := r.turns.History(ctx, conn.ID)
		if err != nil {
			continue
		}
		for _, t := range turns {
			sb.WriteString(t.Content)
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}
