package dispatch

import (
	"context"
	"log/slog"
	"strings"

	"taxquery-backend/internal/analytics"
	"taxquery-backend/internal/conversation"
	"taxquery-backend/internal/intent"
)

// Analyst is the remote side of a turn. ExplainSQL and ExplainBreakdown
// never fail; they return a displayable message instead.
type Analyst interface {
	AnswerQuery(ctx context.Context, query string) (analytics.Answer, error)
	ExplainSQL(ctx context.Context, previousQuery, lastAssistantText string) string
	ExplainBreakdown(ctx context.Context, previousQuery, lastAssistantText string) string
}

// Engine turns user utterances into transcript entries for one session.
// It does not serialize turns: callers must wait for HandleUserMessage to
// return before submitting the next utterance.
type Engine struct {
	state      *conversation.State
	classifier *intent.Classifier
	analyst    Analyst
	logger     *slog.Logger
}

func New(state *conversation.State, classifier *intent.Classifier, analyst Analyst, logger *slog.Logger) *Engine {
	if state == nil {
		state = conversation.NewState()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{state: state, classifier: classifier, analyst: analyst, logger: logger}
}

func (e *Engine) State() *conversation.State { return e.state }

// Turn summarizes what one call to HandleUserMessage did.
type Turn struct {
	Intent  intent.Kind
	Entries []conversation.Entry
	Dropped bool
}

// HandleUserMessage runs one conversational turn. Blank input is dropped
// without touching the state.
func (e *Engine) HandleUserMessage(ctx context.Context, text string) Turn {
	if strings.TrimSpace(text) == "" {
		return Turn{Intent: intent.None, Dropped: true}
	}

	t := &turn{engine: e}
	t.append(conversation.NewUserEntry(text))

	kind := e.classifier.Classify(text)
	t.result.Intent = kind
	e.logger.Debug("utterance classified", "intent", kind)

	switch kind {
	case intent.Greeting:
		t.reply(conversation.SourceCanned, greetingReply)
	case intent.Thanks:
		t.reply(conversation.SourceCanned, thanksReply)
	case intent.Goodbye:
		t.reply(conversation.SourceCanned, goodbyeReply)
	case intent.ListTables:
		t.reply(conversation.SourceCanned, tablesReply)
	case intent.ListQuestions:
		t.reply(conversation.SourceCanned, questionsReply)
	case intent.SQLRequest:
		e.explain(ctx, t, noSQLReferentReply, e.analyst.ExplainSQL)
	case intent.BreakdownRequest:
		e.explain(ctx, t, noBreakdownReferentReply, e.analyst.ExplainBreakdown)
	default:
		e.answer(ctx, t, text)
	}
	return t.result
}

type explainFunc func(ctx context.Context, previousQuery, lastAssistantText string) string

func (e *Engine) explain(ctx context.Context, t *turn, noReferent string, fn explainFunc) {
	previous := e.state.LastSubstantiveQuery()
	if previous == "" {
		t.reply(conversation.SourceFallback, noReferent)
		return
	}
	lastText := e.state.LastAssistantText()

	e.state.SetBusy(true)
	defer e.state.SetBusy(false)

	t.reply(conversation.SourceExplanation, fn(ctx, previous, lastText))
}

func (e *Engine) answer(ctx context.Context, t *turn, query string) {
	e.state.SetBusy(true)
	defer e.state.SetBusy(false)

	ans, err := e.analyst.AnswerQuery(ctx, query)
	if err != nil {
		e.logger.Error("fetching response failed", "error", err)
		t.reply(conversation.SourceFallback, rephraseReply)
		return
	}

	e.state.SetLastSubstantiveQuery(query)
	entry := conversation.NewAssistantEntry(conversation.SourceAnswer, ans.ResponseText)
	if ans.MetricKey != "" {
		label := titleCase(ans.MetricKey)
		entry.MetricLabel = &label
		entry.MetricValue = ans.MetricValue
	}
	entry.DetailedBreakdown = ans.DetailedBreakdown
	entry.Year = ans.Year
	t.append(entry)
}

type turn struct {
	engine *Engine
	result Turn
}

func (t *turn) append(entry conversation.Entry) {
	t.engine.state.Append(entry)
	t.result.Entries = append(t.result.Entries, entry)
}

func (t *turn) reply(source conversation.Source, text string) {
	t.append(conversation.NewAssistantEntry(source, text))
}
