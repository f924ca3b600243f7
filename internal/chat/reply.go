package chat

import (
	"context"

	"github.com/jomigata/wiz-coco-sub004/internal/risk"
	"github.com/jomigata/wiz-coco-sub004/internal/session"
)

// ReplyProvider produces the assistant's answer to a client message. The
// real provider sits behind an LLM gateway owned by another service; this
// core only needs the contract.
type ReplyProvider interface {
	Reply(ctx context.Context, sess session.ChatSession, message string, signals []risk.RiskSignal) (string, error)
}

// SupportiveReplyProvider returns fixed supportive responses, used for
// local development and tests. Escalated sessions get a handover message
// instead of an AI answer.
type SupportiveReplyProvider struct{}

func (SupportiveReplyProvider) Reply(ctx context.Context, sess session.ChatSession, message string, signals []risk.RiskSignal) (string, error) {
	if sess.Escalated() {
		return "A counselor has been notified and will join this conversation shortly. You are not alone.", nil
	}
	for _, sig := range signals {
		if sig.Severity.AtLeast(risk.SeverityMedium) {
			return "Thank you for sharing that with me. It sounds like things are really hard right now. I'm here with you.", nil
		}
	}
	return "Thank you for telling me. How long have you been feeling this way?", nil
}

var _ ReplyProvider = SupportiveReplyProvider{}
