package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"

	"chatdesk/mcp"
	"chatdesk/model"
)

// turn is one user message and the assistant reply it produces
type turn struct {
	engine   *Engine
	ctx      context.Context
	provider model.Provider
	req      model.SendRequest
	user     model.Message
	history  []model.Message
	log      zerolog.Logger

	assistantID string
	content     strings.Builder
	reasoning   strings.Builder
	calls       []model.ToolCall
}

func (t *turn) id() string { return t.user.ConversationID }

func (t *turn) emit(ev model.Event) { t.engine.emit(ev) }

func (t *turn) run() {
	t.assistantID = uuid.NewString()
	t.emit(model.TurnStarted{ConversationID: t.id(), UserMessage: t.user, AssistantMessageID: t.assistantID})

	var extra []string
	if len(t.user.Attachments) > 0 {
		extra = append(extra, t.attachments()...)
	}
	if t.req.SearchEnabled {
		extra = append(extra, t.search()...)
	}

	msgs := t.buildMessages(extra)

	var tools []mcptypes.Tool
	if t.engine.opts.Tools != nil {
		tools = t.engine.opts.Tools.Tools()
	}

	for round := 0; ; round++ {
		roundStart := t.content.Len()
		pending, err := t.stream(msgs, tools)
		if err != nil {
			t.fail(err)
			return
		}
		if len(pending) == 0 {
			break
		}
		if round == MaxToolRounds {
			t.log.Warn().Int("rounds", round).Msg("tool round limit reached")
			break
		}

		roundText := t.content.String()[roundStart:]
		msgs = append(msgs, model.Message{Role: model.RoleAssistant, Content: roundText, ToolCalls: pending})
		for _, call := range t.runTools(pending) {
			msgs = append(msgs, model.Message{Role: model.RoleTool, Content: call.Output, ToolCallID: call.ID})
		}
		if t.ctx.Err() != nil {
			t.fail(t.ctx.Err())
			return
		}
	}

	t.complete()
}

// stream plays one provider round and returns the tool calls it requested
func (t *turn) stream(msgs []model.Message, tools []mcptypes.Tool) ([]model.ToolCall, error) {
	var pending []model.ToolCall
	err := t.provider.ChatWithTools(t.ctx, msgs, tools, func(d model.StreamDelta) error {
		if d.Reasoning != "" {
			t.reasoning.WriteString(d.Reasoning)
			t.emit(model.ReasoningChunk{ConversationID: t.id(), Text: d.Reasoning})
		}
		if d.Content != "" {
			t.content.WriteString(d.Content)
			t.emit(model.ContentChunk{ConversationID: t.id(), Text: d.Content})
		}
		for _, call := range d.ToolCalls {
			if call.ID == "" {
				call.ID = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
			}
			pending = append(pending, call)
			t.emit(model.ToolCallStarted{
				ConversationID: t.id(),
				ToolCallID:     call.ID,
				ToolName:       call.Name,
				Input:          encodeArgs(call.Arguments),
			})
		}
		return nil
	})
	return pending, err
}

// runTools executes calls in order and records their results on the turn
func (t *turn) runTools(calls []model.ToolCall) []model.ToolCall {
	done := make([]model.ToolCall, 0, len(calls))
	for _, call := range calls {
		call.Output, call.IsError = t.callTool(call)
		t.emit(model.ToolCallFinished{
			ConversationID: t.id(),
			ToolCallID:     call.ID,
			Output:         call.Output,
			IsError:        call.IsError,
		})
		done = append(done, call)
	}
	t.calls = append(t.calls, done...)
	return done
}

func (t *turn) callTool(call model.ToolCall) (string, bool) {
	runner := t.engine.opts.Tools
	if runner == nil {
		return fmt.Sprintf("Tool %s is not available", call.Name), true
	}
	if t.ctx.Err() != nil {
		return "Tool call cancelled", true
	}

	t.log.Debug().Str("tool", call.Name).Msg("calling tool")
	result, err := runner.CallTool(t.ctx, call.Name, call.Arguments)
	if err != nil {
		t.log.Warn().Err(err).Str("tool", call.Name).Msg("tool call failed")
		return fmt.Sprintf("Error executing %s: %v", call.Name, err), true
	}
	return mcp.ResultText(result), result.IsError
}

func (t *turn) assistantMessage() model.Message {
	return model.Message{
		ID:               t.assistantID,
		ConversationID:   t.id(),
		Role:             model.RoleAssistant,
		Content:          t.content.String(),
		ReasoningContent: t.reasoning.String(),
		ToolCalls:        t.calls,
	}
}

func (t *turn) produced() bool {
	return t.content.Len() > 0 || t.reasoning.Len() > 0 || len(t.calls) > 0
}

// complete persists the assistant message and ends the turn
func (t *turn) complete() {
	// the turn context may already be cancelled; the write must still land
	saved, err := t.engine.opts.Storage.SaveMessage(context.Background(), t.assistantMessage())
	if err != nil {
		t.log.Error().Err(err).Msg("failed to save assistant message")
		t.end(model.TurnError{ConversationID: t.id(), Message: fmt.Sprintf("failed to save reply: %v", err)})
		return
	}
	t.end(model.MessageComplete{ConversationID: t.id(), Message: saved})
}

// end emits the terminal event and only then releases the conversation, so a
// follow-up turn's events always come after it
func (t *turn) end(ev model.Event) {
	t.emit(ev)
	t.engine.finish(t.id())
}

// fail ends the turn after a provider error or a stop request
func (t *turn) fail(err error) {
	if errors.Is(err, context.Canceled) || t.ctx.Err() != nil {
		t.log.Debug().Msg("turn cancelled")
		if t.produced() {
			t.complete()
			return
		}
		t.end(model.TurnCancelled{ConversationID: t.id()})
		return
	}

	t.log.Error().Err(err).Msg("turn failed")
	t.end(model.TurnError{ConversationID: t.id(), Message: err.Error()})
}

func encodeArgs(args map[string]any) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
