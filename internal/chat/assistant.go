// Package chat backs the on-site assistant widget. It is peripheral to the
// lead pipeline but shares the gateway and the interaction ledger.
package chat

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/flowstack-agency/leadflow/internal/gateway"
	"github.com/flowstack-agency/leadflow/internal/ledger"
	"github.com/flowstack-agency/leadflow/internal/model"
	"github.com/flowstack-agency/leadflow/pkg/openai"
)

const assistantSystemPrompt = `You are the website assistant for an automation agency that builds custom workflow automation for small and mid-size businesses. Answer questions about services, pricing, and process in 2-4 sentences. If the visitor seems ready to talk, suggest the contact form. Never invent specific prices.`

const chatMaxTokens = 512

// maxHistory bounds how much conversation is replayed per request.
const maxHistory = 20

// Completer is the slice of the gateway the assistant needs.
type Completer interface {
	Complete(ctx context.Context, req gateway.Request) (*gateway.Result, error)
	ModelFor(p gateway.Purpose) string
}

// Assistant answers visitor messages on the cost tier.
type Assistant struct {
	gateway Completer
	ledger  *ledger.Ledger
}

// New creates an Assistant.
func New(gw Completer, led *ledger.Ledger) *Assistant {
	return &Assistant{gateway: gw, ledger: led}
}

// Send answers one visitor message given the prior conversation.
func (a *Assistant) Send(ctx context.Context, message string, history []openai.Message) (string, error) {
	if message == "" {
		return "", eris.New("chat: empty message")
	}
	if len(history) > maxHistory {
		history = history[len(history)-maxHistory:]
	}

	res, err := a.gateway.Complete(ctx, gateway.Request{
		Purpose:   gateway.PurposeChat,
		System:    assistantSystemPrompt,
		History:   history,
		User:      message,
		MaxTokens: chatMaxTokens,
	})
	if err != nil {
		a.record(ctx, ledger.Entry{
			Type:         model.InteractionChat,
			Model:        a.gateway.ModelFor(gateway.PurposeChat),
			Success:      false,
			ErrorMessage: err.Error(),
		})
		return "", eris.Wrap(err, "chat: send message")
	}

	a.record(ctx, ledger.Entry{
		Type:         model.InteractionChat,
		Model:        res.Model,
		InputTokens:  res.InputTokens,
		OutputTokens: res.OutputTokens,
		Success:      true,
	})
	return res.Text, nil
}

func (a *Assistant) record(ctx context.Context, e ledger.Entry) {
	// Chat keeps working even when the audit write does not.
	_, _ = a.ledger.Record(ctx, e)
}
