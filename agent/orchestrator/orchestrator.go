package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/waritk/agentwidget/agent/contract"
	sessionx "github.com/waritk/agentwidget/agent/session"
)

// FallbackReply is returned to the user when the generation capability
// fails. The turn still completes; the failed exchange leaves no trace in
// history unless KeepFailedTurns is set.
const FallbackReply = "I apologize, but I'm having trouble responding right now. Please try again or contact support."

const contextBlockHeader = "Relevant context:"

// DefaultRetrieveLimit bounds long-term memory retrieval per turn.
const DefaultRetrieveLimit = 5

type stage string

const (
	stagePreparing   stage = "preparing"
	stageGenerating  stage = "generating"
	stageSummarizing stage = "summarizing"
	stageDone        stage = "done"
)

// Config tunes one Orchestrator.
type Config struct {
	RetrieveLimit   int           `envconfig:"RETRIEVE_LIMIT" split_words:"true" default:"5"`
	RetrieveTimeout time.Duration `envconfig:"RETRIEVE_TIMEOUT" split_words:"true" default:"5s"`
	GenerateTimeout time.Duration `envconfig:"GENERATE_TIMEOUT" split_words:"true" default:"30s"`
	StoreTimeout    time.Duration `envconfig:"STORE_TIMEOUT" split_words:"true" default:"10s"`

	// KeepFailedTurns appends the user turn and the fallback reply on
	// generation failure instead of dropping the exchange. Off by default:
	// a failed turn leaves no trace.
	KeepFailedTurns bool `envconfig:"KEEP_FAILED_TURNS" split_words:"true" default:"false"`
}

// Orchestrator runs one chat turn through a fixed three-stage sequence:
// prepare (optional long-term retrieval), generate (history read + model
// call + append, serialized per session), summarize (CRM note). No stage is
// skipped or reordered; per-turn failures degrade rather than propagate.
type Orchestrator struct {
	history   *sessionx.Store
	memory    contractx.MemoryGateway
	generator contractx.Generator
	cfg       Config

	now func() time.Time
}

func New(history *sessionx.Store, generator contractx.Generator, memory contractx.MemoryGateway, cfg Config) (*Orchestrator, error) {
	if history == nil {
		return nil, errors.New("history store is required")
	}
	if generator == nil {
		return nil, errors.New("generator is required")
	}
	if memory == nil {
		memory = noopGateway{}
	}
	if cfg.RetrieveLimit <= 0 {
		cfg.RetrieveLimit = DefaultRetrieveLimit
	}
	if cfg.RetrieveTimeout <= 0 {
		cfg.RetrieveTimeout = 5 * time.Second
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = 30 * time.Second
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	return &Orchestrator{
		history:   history,
		memory:    memory,
		generator: generator,
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Run executes one turn. It fails hard only on an invalid AgentContext;
// retrieval and generation failures degrade per the turn contract and still
// produce a TurnResult.
func (o *Orchestrator) Run(ctx context.Context, actx contractx.AgentContext) (contractx.TurnResult, error) {
	if actx.Key.IsZero() {
		return contractx.TurnResult{}, fmt.Errorf("%w: session key is not resolved", contractx.ErrValidation)
	}
	input := strings.TrimSpace(actx.Input)
	if input == "" {
		return contractx.TurnResult{}, fmt.Errorf("%w: user input is empty", contractx.ErrValidation)
	}

	started := o.now()

	snippets := o.prepare(ctx, actx, input)
	reply, failed := o.generate(ctx, actx, input, snippets)
	notes := Summarize(input)

	log.Info().
		Str("stage", string(stageDone)).
		Str("session", actx.Key.String()).
		Bool("degraded", failed).
		Dur("took", o.now().Sub(started)).
		Msg("turn completed")

	if !failed && actx.PersistMemory {
		o.storeMemoryAsync(actx, input)
	}

	return contractx.TurnResult{
		Reply:       reply,
		NotesForCRM: notes,
		TenantID:    actx.Key.TenantID,
		AgentID:     actx.Key.AgentID,
		SessionID:   actx.Key.SessionID,
	}, nil
}

// prepare retrieves long-term snippets when the agent persists memory.
// Retrieval failure degrades to an empty list; it never aborts the turn.
func (o *Orchestrator) prepare(ctx context.Context, actx contractx.AgentContext, input string) []contractx.MemorySnippet {
	if !actx.PersistMemory {
		return nil
	}

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RetrieveTimeout)
	defer cancel()

	snippets, err := o.memory.Retrieve(rctx, actx.Key.TenantID, actx.Key.AgentID, input, o.cfg.RetrieveLimit)
	if err != nil {
		log.Warn().
			Err(err).
			Str("stage", string(stagePreparing)).
			Str("session", actx.Key.String()).
			Msg("long-term memory retrieval degraded to empty")
		return nil
	}
	if len(snippets) > o.cfg.RetrieveLimit {
		snippets = snippets[:o.cfg.RetrieveLimit]
	}
	return snippets
}

// generate resolves the session history, calls the generator, and appends
// the user/assistant pair. The whole read-then-append sequence runs under
// the session's lock so concurrent turns on the same key cannot interleave.
func (o *Orchestrator) generate(ctx context.Context, actx contractx.AgentContext, input string, snippets []contractx.MemorySnippet) (reply string, failed bool) {
	prompt := effectivePrompt(actx.SystemPrompt, snippets)

	_ = o.history.WithSession(actx.Key, func(h *sessionx.History) error {
		gctx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
		defer cancel()

		text, err := o.generator.Generate(gctx, prompt, h.Turns(), input)
		if err != nil {
			log.Error().
				Err(err).
				Str("stage", string(stageGenerating)).
				Str("session", actx.Key.String()).
				Msg("generation failed, using fallback reply")
			reply = FallbackReply
			failed = true
			if o.cfg.KeepFailedTurns {
				h.Append(
					sessionx.ConversationTurn{Role: sessionx.RoleUser, Content: input},
					sessionx.ConversationTurn{Role: sessionx.RoleAssistant, Content: FallbackReply},
				)
			}
			return nil
		}

		reply = strings.TrimSpace(text)
		h.Append(
			sessionx.ConversationTurn{Role: sessionx.RoleUser, Content: input},
			sessionx.ConversationTurn{Role: sessionx.RoleAssistant, Content: reply},
		)
		return nil
	})

	return reply, failed
}

func (o *Orchestrator) storeMemoryAsync(actx contractx.AgentContext, input string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.StoreTimeout)
		defer cancel()
		err := o.memory.Store(ctx, actx.Key.TenantID, actx.Key.AgentID, input, map[string]string{
			"session_id": actx.Key.SessionID,
		})
		if err != nil {
			log.Warn().
				Err(err).
				Str("session", actx.Key.String()).
				Msg("long-term memory store failed")
		}
	}()
}

// effectivePrompt appends retrieved snippets to the base system prompt
// under a delimited context block, preserving retrieval order.
func effectivePrompt(systemPrompt string, snippets []contractx.MemorySnippet) string {
	if len(snippets) == 0 {
		return systemPrompt
	}
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")
	b.WriteString(contextBlockHeader)
	for _, snip := range snippets {
		b.WriteString("\n")
		b.WriteString(snip.Content)
	}
	return b.String()
}

type noopGateway struct{}

func (noopGateway) Retrieve(context.Context, string, string, string, int) ([]contractx.MemorySnippet, error) {
	return nil, nil
}

func (noopGateway) Store(context.Context, string, string, string, map[string]string) error {
	return nil
}
