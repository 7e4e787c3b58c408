package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hidata/rag-platform/internal/llm"
	"github.com/hidata/rag-platform/internal/model"
	"github.com/hidata/rag-platform/pkg/logger"
)

// sequenceLLM returns scripted labels, one per call; nil entries fail.
type sequenceLLM struct {
	labels []string
	errs   []error
	call   int
}

func (s *sequenceLLM) Complete(context.Context, *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	i := s.call
	s.call++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &llm.CompletionResponse{Content: s.labels[i]}, nil
}

func (s *sequenceLLM) Name() string     { return "sequence" }
func (s *sequenceLLM) Models() []string { return nil }

func TestDetectorKeywordPreCheck(t *testing.T) {
	client := &sequenceLLM{labels: []string{"other"}}
	d := NewDetector(client, "m", 3*time.Second, logger.NewNop())

	cls := d.Classify(context.Background(),
		"when is it due?",
		"The deadline we discussed is next Friday.")

	assert.Equal(t, IntentConversation, cls.Intent)
	assert.Zero(t, client.call, "pre-check must not call the model")
}

func TestDetectorSingleShot(t *testing.T) {
	client := &sequenceLLM{labels: []string{" Project_Planning \n"}}
	d := NewDetector(client, "m", 3*time.Second, logger.NewNop())

	cls := d.Classify(context.Background(), "let's plan something new", "")
	assert.Equal(t, IntentProjectPlanning, cls.Intent)
	assert.Equal(t, 1.0, cls.Confidence)
}

func TestDetectorFailureDegradesToUnknown(t *testing.T) {
	client := &sequenceLLM{labels: []string{""}, errs: []error{errors.New("timeout")}}
	d := NewDetector(client, "m", 3*time.Second, logger.NewNop())

	cls := d.Classify(context.Background(), "hm", "")
	assert.Equal(t, IntentUnknown, cls.Intent)
	assert.Zero(t, cls.Confidence)
}

func TestSampledDetectorUnanimous(t *testing.T) {
	client := &sequenceLLM{labels: []string{"conversation", "conversation", "conversation", "conversation", "conversation"}}
	d := NewSampledDetector(client, "m", 5, logger.NewNop())

	cls := d.Classify(context.Background(), "anyway, as I was saying", "")
	assert.Equal(t, IntentConversation, cls.Intent)
	// 0.5*1 + 0.3*1 + 0.2*1 = 1.0, capped at 0.95
	assert.InDelta(t, 0.95, cls.Confidence, 1e-9)
}

func TestSampledDetectorSplitVote(t *testing.T) {
	client := &sequenceLLM{labels: []string{"conversation", "conversation", "conversation", "other", "other"}}
	d := NewSampledDetector(client, "m", 5, logger.NewNop())

	cls := d.Classify(context.Background(), "hmm", "")
	assert.Equal(t, IntentConversation, cls.Intent)
	// 0.5*(3/5) + 0.3*(5/5) + 0.2*(1/2) = 0.3 + 0.3 + 0.1
	assert.InDelta(t, 0.7, cls.Confidence, 1e-9)
}

func TestSampledDetectorSingleSurvivorPenalty(t *testing.T) {
	fail := errors.New("rate limited")
	client := &sequenceLLM{
		labels: []string{"", "", "conversation"},
		errs:   []error{fail, fail, nil},
	}
	d := NewSampledDetector(client, "m", 3, logger.NewNop())

	cls := d.Classify(context.Background(), "hmm", "")
	assert.Equal(t, IntentConversation, cls.Intent)
	// (0.5*1 + 0.3*(1/3) + 0.2*1) * 0.8
	assert.InDelta(t, (0.5+0.1+0.2)*0.8, cls.Confidence, 1e-9)
}

func TestSampledDetectorKeywordPreCheck(t *testing.T) {
	client := &sequenceLLM{labels: []string{"other"}}
	d := NewSampledDetector(client, "m", 5, logger.NewNop())

	cls := d.Classify(context.Background(),
		"when is it due?",
		"The deadline we discussed is next Friday.")

	assert.Equal(t, IntentConversation, cls.Intent)
	assert.Zero(t, client.call, "pre-check must not draw samples")
}

func TestSampledDetectorAllFailed(t *testing.T) {
	fail := errors.New("down")
	client := &sequenceLLM{labels: []string{"", ""}, errs: []error{fail, fail}}
	d := NewSampledDetector(client, "m", 2, logger.NewNop())

	cls := d.Classify(context.Background(), "hmm", "")
	assert.Equal(t, IntentUnknown, cls.Intent)
	assert.Zero(t, cls.Confidence)
}

func TestRouterDispatch(t *testing.T) {
	client := &sequenceLLM{labels: []string{"project_planning"}}
	d := NewDetector(client, "m", 3*time.Second, logger.NewNop())
	router := NewRouter(d, newMemTurnStore(), IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "fallback"}, nil
		}))
	router.Register(IntentProjectPlanning, IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "plan"}, nil
		}))

	res, err := router.Route(context.Background(), RouteRequest{Text: "plan a new app"})
	require.NoError(t, err)
	assert.Equal(t, "plan", res.Action)

	// unregistered intent falls back
	client2 := &sequenceLLM{labels: []string{"other"}}
	router2 := NewRouter(NewDetector(client2, "m", time.Second, logger.NewNop()), newMemTurnStore(),
		IntentHandlerFunc(func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "fallback"}, nil
		}))
	res, err = router2.Route(context.Background(), RouteRequest{Text: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "fallback", res.Action)
}

func TestRouterWithSampledDetector(t *testing.T) {
	client := &sequenceLLM{labels: []string{"project_planning", "project_planning", "project_planning"}}
	d := NewSampledDetector(client, "m", 3, logger.NewNop())
	router := NewRouter(d, newMemTurnStore(), IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "fallback"}, nil
		}))
	router.Register(IntentProjectPlanning, IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "plan"}, nil
		}))

	res, err := router.Route(context.Background(), RouteRequest{Text: "plan a new app"})
	require.NoError(t, err)
	assert.Equal(t, "plan", res.Action)
	assert.Equal(t, 3, client.call)
	assert.InDelta(t, 0.95, res.Classification.Confidence, 1e-9)
}

func TestRouterKeywordContextFromConnections(t *testing.T) {
	turns := newMemTurnStore()
	turns.histories["B2"] = []model.TurnRecord{
		{ID: 0, Sender: "user-1", Content: "The due date is Friday."},
	}

	client := &sequenceLLM{labels: []string{"other"}}
	d := NewDetector(client, "m", time.Second, logger.NewNop())
	router := NewRouter(d, turns, IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "fallback"}, nil
		}))
	router.Register(IntentConversation, IntentHandlerFunc(
		func(_ context.Context, _ RouteRequest, cls Classification) (RouteResult, error) {
			return RouteResult{Classification: cls, Action: "answer"}, nil
		}))

	res, err := router.Route(context.Background(), RouteRequest{
		Text:        "when is it happening?",
		Connections: []model.Connection{{ID: "B2", Type: model.ConnectionTypeConversation}},
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Action)
	assert.Zero(t, client.call)
}
