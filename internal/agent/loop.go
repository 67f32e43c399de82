// Package agent implements the Supervisor Agent: a tool-calling loop
// that composes a bounded-token context, drives an LLMAdapter, executes
// tools through a registry, and gates destructive calls behind a
// PendingConfirmation before they run.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DrayChou/personal-ai-assistant/internal/llm"
	"github.com/DrayChou/personal-ai-assistant/internal/observability"
	"github.com/DrayChou/personal-ai-assistant/internal/retry"
	"github.com/DrayChou/personal-ai-assistant/internal/tools"
	"github.com/DrayChou/personal-ai-assistant/pkg/models"
)

// Chunk is one piece of a turn's output, streamed to the caller as it
// becomes available. At most one of Text, ToolEvent, Confirmation, or
// Err is set. The last chunk of a turn has Done set and carries the
// Termination reason; it also carries Err when the turn failed.
type Chunk struct {
	Text         string
	ToolEvent    *ToolEvent
	Confirmation *PendingConfirmation
	Err          error
	Done         bool
	Termination  TerminationReason
}

// ToolEvent reports one tool invocation's outcome as it happens, for
// streaming to a connected client.
type ToolEvent struct {
	ToolCallID string
	ToolName   string
	Result     models.ToolResult
}

// Loop is the supervisor agent. One Loop instance is shared across
// sessions; per-turn state lives entirely in the Run call and the
// injected session/confirmation stores.
type Loop struct {
	adapter  LLMAdapter
	tools    *tools.Registry
	history  SessionHistory
	memory   MemoryRecaller
	confirms *ConfirmationStore
	opts     Options
	logger   *slog.Logger
	metrics  *observability.Metrics
	retryCfg retry.Config

	turnLocks sync.Map // sessionKey -> *sync.Mutex
}

// NewLoop constructs a Loop. Any nil dependency among logger/metrics
// gets a safe default; memory may be nil, in which case the loop skips
// memory recall and capture entirely.
func NewLoop(adapter LLMAdapter, registry *tools.Registry, history SessionHistory, memory MemoryRecaller, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewTestMetrics()
	}
	opts = sanitizeOptions(opts)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = 3
	retryCfg.InitialDelay = time.Second

	return &Loop{
		adapter:  adapter,
		tools:    registry,
		history:  history,
		memory:   memory,
		confirms: NewConfirmationStore(opts.ConfirmationTTL),
		opts:     opts,
		logger:   logger,
		metrics:  metrics,
		retryCfg: retryCfg,
	}
}

// Run executes one turn for sessionKey given userInput, streaming Chunks
// on the returned channel. The channel is closed when the turn
// terminates (text reply, confirmation request, step cap, or error).
func (l *Loop) Run(ctx context.Context, sessionKey, userInput string) <-chan Chunk {
	out := make(chan Chunk, 16)
	turn := make(chan Chunk, 16)
	go func() {
		defer close(turn)
		l.run(ctx, sessionKey, userInput, turn)
	}()
	go func() {
		defer close(out)
		for c := range turn {
			if c.Done {
				l.metrics.TurnTerminationsTotal.WithLabelValues(string(c.Termination)).Inc()
			}
			out <- c
		}
	}()
	return out
}

func (l *Loop) run(ctx context.Context, sessionKey, userInput string, out chan<- Chunk) {
	if l.adapter == nil {
		out <- Chunk{Err: ErrNoAdapter, Done: true, Termination: TerminationError}
		return
	}

	// Turns for one session key run one at a time, so the transcript
	// and the pending confirmation see a single turn at once.
	lock, _ := l.turnLocks.LoadOrStore(sessionKey, &sync.Mutex{})
	lock.(*sync.Mutex).Lock()
	defer lock.(*sync.Mutex).Unlock()

	// Step 2: confirmation short-circuit, before anything else touches
	// the LLM.
	if handled := l.tryConfirmationShortCircuit(ctx, sessionKey, userInput, out); handled {
		return
	}

	if err := l.history.AppendMessage(ctx, sessionKey, models.Message{Role: models.RoleUser, Content: userInput, Timestamp: time.Now().UTC()}); err != nil {
		out <- Chunk{Err: fmt.Errorf("agent: persist user message: %w", err), Done: true, Termination: TerminationError}
		return
	}

	recalled := l.recallMemory(ctx, userInput)
	toolSpecs := toolSpecsFromRegistry(l.tools)

	for step := 0; step < l.opts.MaxSteps; step++ {
		select {
		case <-ctx.Done():
			out <- Chunk{Err: ctx.Err(), Done: true, Termination: TerminationError}
			return
		default:
		}

		history, err := l.history.GetHistory(ctx, sessionKey, 0)
		if err != nil {
			out <- Chunk{Err: fmt.Errorf("agent: load history: %w", err), Done: true, Termination: TerminationError}
			return
		}

		messages := buildContext(l.opts.SystemPrompt, recalled, historyMinusLast(history), userInput, l.opts.MaxWorkingTokens)

		completion, err := l.callLLM(ctx, messages, toolSpecs)
		if err != nil {
			out <- Chunk{Err: fmt.Errorf("agent: llm call: %w", err), Done: true, Termination: TerminationError}
			return
		}

		if len(completion.ToolCalls) == 0 {
			l.persistAssistant(ctx, sessionKey, completion.Text)
			l.captureOutcome(ctx, userInput, completion.Text)
			out <- Chunk{Text: completion.Text}
			out <- Chunk{Done: true, Termination: TerminationText}
			return
		}

		// Every tool call in the batch is inspected for the confirmation
		// gate before any of them runs; the first one that needs
		// confirmation ends the turn and none of the batch is executed.
		for _, call := range completion.ToolCalls {
			tool, ok := l.tools.Get(call.Name)
			if ok && tool.NeedsConfirmation(call.Arguments) {
				pc := PendingConfirmation{
					SessionKey: sessionKey,
					ToolCallID: call.ID,
					ToolName:   call.Name,
					Parameters: call.Arguments,
					Prompt:     fmt.Sprintf("Confirm running %q with %s? (yes/no)", call.Name, string(call.Arguments)),
					CreatedAt:  time.Now().UTC(),
				}
				l.confirms.Set(pc)
				l.persistAssistant(ctx, sessionKey, pc.Prompt)
				out <- Chunk{Confirmation: &pc}
				out <- Chunk{Done: true, Termination: TerminationConfirmWait}
				return
			}
		}

		for _, call := range completion.ToolCalls {
			result, _ := l.tools.Execute(ctx, call.Name, call.Arguments, l.opts.ToolTimeout)
			l.recordToolMetric(call.Name, result.Success)
			out <- Chunk{ToolEvent: &ToolEvent{ToolCallID: call.ID, ToolName: call.Name, Result: result}}

			observation := result.Observation
			if !result.Success {
				observation = result.Error
			}
			if err := l.history.AppendMessage(ctx, sessionKey, models.Message{
				Role:      models.RoleTool,
				Content:   observation,
				Timestamp: time.Now().UTC(),
			}); err != nil {
				l.logger.Error("agent: persist tool message failed", "error", err, "tool", call.Name)
			}
		}
	}

	msg := "I wasn't able to finish this within my step limit. Could you break the request down or try again?"
	l.persistAssistant(ctx, sessionKey, msg)
	out <- Chunk{Text: msg}
	out <- Chunk{Done: true, Termination: TerminationStepCap}
}

// historyMinusLast drops the just-appended user message from history
// before context-build re-adds it explicitly, avoiding duplication.
func historyMinusLast(history []models.Message) []models.Message {
	if len(history) == 0 {
		return history
	}
	return history[:len(history)-1]
}

func (l *Loop) tryConfirmationShortCircuit(ctx context.Context, sessionKey, userInput string, out chan<- Chunk) bool {
	pending, ok := l.confirms.Peek(sessionKey, time.Now().UTC())
	if !ok {
		return false
	}

	switch MatchLexeme(userInput) {
	case VerdictConfirm:
		l.confirms.Consume(sessionKey)
		result, _ := l.tools.Execute(ctx, pending.ToolName, pending.Parameters, l.opts.ToolTimeout)
		l.recordToolMetric(pending.ToolName, result.Success)
		out <- Chunk{ToolEvent: &ToolEvent{ToolCallID: pending.ToolCallID, ToolName: pending.ToolName, Result: result}}
		text := result.Observation
		if !result.Success {
			text = "That didn't work: " + result.Error
		}
		l.persistAssistant(ctx, sessionKey, text)
		out <- Chunk{Text: text}
		out <- Chunk{Done: true, Termination: TerminationText}
		return true
	case VerdictCancel:
		l.confirms.Consume(sessionKey)
		text := "Okay, cancelled."
		l.persistAssistant(ctx, sessionKey, text)
		out <- Chunk{Text: text}
		out <- Chunk{Done: true, Termination: TerminationText}
		return true
	default:
		// Neither confirm nor cancel: fall through to a normal turn.
		// If the confirmation has since expired, Peek already discarded
		// it above.
		return false
	}
}

func (l *Loop) callLLM(ctx context.Context, messages []models.Message, toolSpecs []llm.ToolSpec) (llm.Completion, error) {
	start := time.Now()
	var completion llm.Completion

	result := retry.Do(ctx, l.retryCfg, func(attempt int) error {
		callCtx, cancel := context.WithTimeout(ctx, l.opts.LLMTimeout)
		defer cancel()
		var err error
		completion, err = l.adapter.Generate(callCtx, messages, toolSpecs, llm.ToolChoiceAuto)
		return err
	})

	l.metrics.LLMLatencySeconds.Observe(time.Since(start).Seconds())
	if result.Err != nil {
		l.metrics.LLMCallsTotal.WithLabelValues("error").Inc()
		return llm.Completion{}, result.Err
	}
	l.metrics.LLMCallsTotal.WithLabelValues("success").Inc()
	return completion, nil
}

func (l *Loop) recallMemory(ctx context.Context, query string) string {
	if l.memory == nil {
		return ""
	}
	text, err := l.memory.Recall(ctx, query, l.opts.MemoryTopK)
	if err != nil {
		l.logger.Warn("agent: memory recall failed", "error", err)
		return ""
	}
	return text
}

func (l *Loop) captureOutcome(ctx context.Context, userInput, reply string) {
	if l.memory == nil {
		return
	}
	content := fmt.Sprintf("User asked: %s\nAssistant replied: %s", userInput, reply)
	if err := l.memory.Capture(ctx, content, "event", nil, nil); err != nil {
		l.logger.Warn("agent: memory capture failed", "error", err)
	}
}

func (l *Loop) persistAssistant(ctx context.Context, sessionKey, content string) {
	if err := l.history.AppendMessage(ctx, sessionKey, models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		l.logger.Error("agent: persist assistant message failed", "error", err)
	}
}

func (l *Loop) recordToolMetric(toolName string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	l.metrics.ToolExecutionsTotal.WithLabelValues(toolName, outcome).Inc()
}

// IsTimeout reports whether err represents a tool or LLM call timing out.
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
