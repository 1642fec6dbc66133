package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"mentorchat/backend/internal/alerting"
	"mentorchat/backend/internal/delivery"
	"mentorchat/backend/internal/lifecycle"
	"mentorchat/backend/internal/models"
	"mentorchat/backend/internal/moderation"
	"mentorchat/backend/internal/presence"
	"mentorchat/backend/internal/store"
	apperrors "mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/logger"
	"mentorchat/backend/pkg/ws"
	"mentorchat/backend/shared/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxContentLength bounds a message body in characters
const MaxContentLength = 4000

// SubmitRequest is one inbound message
type SubmitRequest struct {
	SenderID uint
	To       string
	Content  string
	ClientID string
}

// SubmitResult is the terminal outcome of a submission that did not fail.
type SubmitResult struct {
	Blocked       bool
	Reason        string
	Message       *models.Message
	Conversation  *models.Conversation
	DeliveredLive bool
}

// ChatService runs the message pipeline: moderation, persistence, live
// routing and status lifecycle.
type ChatService struct {
	store     store.Store
	directory Directory
	gate      *moderation.Gate
	router    *delivery.Router
	lifecycle *lifecycle.Manager
	alerts    *alerting.Dispatcher
	metrics   *observability.ChatMetrics
	tracer    trace.Tracer
	log       *logger.Logger
}

// ChatOption customises a ChatService
type ChatOption func(*ChatService)

// WithAlerts dispatches an alert for every blocked message
func WithAlerts(d *alerting.Dispatcher) ChatOption {
	return func(s *ChatService) { s.alerts = d }
}

// WithMetrics records pipeline metrics
func WithMetrics(m *observability.ChatMetrics) ChatOption {
	return func(s *ChatService) { s.metrics = m }
}

// NewChatService creates the chat pipeline
func NewChatService(
	st store.Store,
	directory Directory,
	gate *moderation.Gate,
	router *delivery.Router,
	lc *lifecycle.Manager,
	log *logger.Logger,
	opts ...ChatOption,
) *ChatService {
	s := &ChatService{
		store:     st,
		directory: directory,
		gate:      gate,
		router:    router,
		lifecycle: lc,
		tracer:    otel.Tracer("mentorchat/chat"),
		log:       log.WithComponent("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit runs one message through the pipeline. origin is the connection
// the message arrived on, or nil for HTTP submissions. Exactly one of three
// outcomes happens: the message is blocked (result.Blocked), accepted, or
// the call fails with an AppError and nothing is persisted.
func (s *ChatService) Submit(ctx context.Context, origin presence.Conn, req SubmitRequest) (*SubmitResult, error) {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, "chat.submit", trace.WithAttributes(
		attribute.Int64("chat.sender_id", int64(req.SenderID)),
	))
	defer span.End()

	res, outcome, err := s.submit(ctx, origin, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
	}
	span.SetAttributes(attribute.String("chat.outcome", outcome))
	s.metrics.Submission(ctx, outcome, time.Since(start).Seconds())
	return res, err
}

func (s *ChatService) submit(ctx context.Context, origin presence.Conn, req SubmitRequest) (*SubmitResult, string, error) {
	to := strings.TrimSpace(req.To)
	content := strings.TrimSpace(req.Content)
	if err := validateSubmission(req.SenderID, to, content); err != nil {
		return nil, observability.OutcomeInvalid, err
	}

	recipient, err := s.resolveRecipient(ctx, to)
	if err != nil {
		s.logFor(ctx).LogError(err, "recipient lookup failed", "sender_id", req.SenderID)
		return nil, observability.OutcomeFailed, apperrors.NewMessageNotSentError(err)
	}

	decision := s.gate.Evaluate(ctx, content)
	s.metrics.Decision(ctx, string(decision.Verdict), string(decision.Method))
	audit := s.recordDecision(ctx, req.SenderID, recipient, content, decision)

	if !decision.Allowed() {
		s.block(origin, req, recipient, audit, decision)
		return &SubmitResult{Blocked: true, Reason: decision.Reason}, observability.OutcomeBlocked, nil
	}

	conv, err := s.store.FindOrCreateConversation(ctx, models.Party{UserID: req.SenderID}, recipient)
	if err != nil {
		s.logFor(ctx).LogError(err, "conversation lookup failed", "sender_id", req.SenderID)
		return nil, observability.OutcomeFailed, apperrors.NewMessageNotSentError(err)
	}

	msg, err := s.store.InsertMessage(ctx, &models.Message{
		ClientID:         req.ClientID,
		ConversationID:   conv.ID,
		SenderID:         req.SenderID,
		RecipientID:      partyID(recipient),
		RecipientAddress: recipient.Address,
		Content:          content,
	})
	if err != nil {
		s.logFor(ctx).LogError(err, "message insert failed", "sender_id", req.SenderID, "conversation_id", conv.ID)
		return nil, observability.OutcomeFailed, apperrors.NewMessageNotSentError(err)
	}

	outcome := s.router.Deliver(msg)
	if outcome.DeliveredLive {
		s.metrics.LiveDelivery(ctx)
		if _, err := s.lifecycle.MarkDelivered(ctx, msg); err != nil {
			// The message stays sent and is still durably stored.
			s.logFor(ctx).LogError(err, "delivered transition failed", "message_id", msg.ID)
		}
	}

	conv, err = s.lifecycle.ApplyInbound(ctx, msg)
	if err != nil {
		// The counted flag keeps this message pending; the next inbound
		// message in the conversation sweeps it in.
		s.logFor(ctx).LogError(err, "conversation aggregate update failed", "message_id", msg.ID)
	}

	if origin != nil && !outcome.Acked(origin) {
		origin.Push(ws.EventMessageAccepted, ws.MessageAcceptedPayload{ClientID: req.ClientID, Message: msg})
	}

	return &SubmitResult{
		Message:       msg,
		Conversation:  conv,
		DeliveredLive: outcome.DeliveredLive,
	}, observability.OutcomeAccepted, nil
}

// logFor prefers the request or connection logger carried by ctx
func (s *ChatService) logFor(ctx context.Context) *logger.Logger {
	if l := logger.FromContext(ctx, nil); l != nil {
		return l.WithComponent("chat")
	}
	return s.log
}

func validateSubmission(senderID uint, to, content string) error {
	switch {
	case senderID == 0:
		return apperrors.NewValidationError("sender is required")
	case to == "":
		return apperrors.NewValidationError("recipient is required")
	case content == "":
		return apperrors.NewValidationError("content is required")
	case utf8.RuneCountInString(content) > MaxContentLength:
		return apperrors.NewValidationError(fmt.Sprintf("content exceeds %d characters", MaxContentLength))
	}
	return nil
}

// resolveRecipient maps an address to a registered user, or to an address
// token when nobody has registered it yet.
func (s *ChatService) resolveRecipient(ctx context.Context, address string) (models.Party, error) {
	user, err := s.directory.ResolveByAddress(ctx, address)
	switch {
	case err == nil:
		return models.Party{UserID: user.ID, Address: user.Email}, nil
	case errors.Is(err, ErrUserNotFound):
		return models.Party{Address: models.NormalizeEmail(address)}, nil
	default:
		return models.Party{}, err
	}
}

// recordDecision writes the audit record. A failed write is logged and the
// decision still stands.
func (s *ChatService) recordDecision(ctx context.Context, senderID uint, recipient models.Party, content string, d moderation.Decision) *models.ModerationLog {
	entry := &models.ModerationLog{
		SenderID:         senderID,
		RecipientID:      partyID(recipient),
		RecipientAddress: recipient.Address,
		Content:          content,
		Verdict:          d.Verdict,
		Method:           d.Method,
	}
	if !d.Allowed() {
		entry.Reason = d.Reason
	}
	if err := s.store.InsertModerationLog(ctx, entry); err != nil {
		s.logFor(ctx).LogError(err, "moderation audit write failed", "sender_id", senderID, "verdict", string(d.Verdict))
		entry.ID = 0
	}
	return entry
}

func partyID(p models.Party) *uint {
	if !p.Resolved() {
		return nil
	}
	id := p.UserID
	return &id
}

func (s *ChatService) block(origin presence.Conn, req SubmitRequest, recipient models.Party, audit *models.ModerationLog, d moderation.Decision) {
	s.log.Info("message blocked",
		"sender_id", req.SenderID,
		"method", string(d.Method),
		"moderation_log_id", audit.ID,
	)

	if origin != nil {
		origin.Push(ws.EventMessageBlocked, ws.MessageBlockedPayload{ClientID: req.ClientID, Reason: d.Reason})
	}

	if s.alerts != nil {
		s.alerts.Dispatch(alerting.Alert{
			LogID:            audit.ID,
			SenderID:         req.SenderID,
			RecipientID:      partyID(recipient),
			RecipientAddress: recipient.Address,
			Content:          audit.Content,
			Reason:           d.Reason,
			Method:           d.Method,
			Timestamp:        time.Now().UTC(),
		})
	}
}

// Typing forwards a typing indicator to the other participant if online.
func (s *ChatService) Typing(ctx context.Context, userID, conversationID uint, isTyping bool) error {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NewNotFoundError(apperrors.CodeNotFound, "conversation not found")
		}
		return err
	}
	if !conv.HasParticipant(userID) {
		return apperrors.NewForbiddenError(apperrors.CodeForbidden, "not a participant in this conversation")
	}

	notice := ws.TypingNotice{ConversationID: conv.ID, UserID: userID, IsTyping: isTyping}
	for _, id := range conv.ParticipantIDs() {
		if id != userID {
			s.router.PushTo(id, ws.EventTyping, notice)
		}
	}
	return nil
}

// MarkRead acknowledges every message addressed to userID in the
// conversation.
func (s *ChatService) MarkRead(ctx context.Context, userID, conversationID uint) (*store.ReadResult, error) {
	ctx, span := s.tracer.Start(ctx, "chat.mark_read", trace.WithAttributes(
		attribute.Int64("chat.user_id", int64(userID)),
		attribute.Int64("chat.conversation_id", int64(conversationID)),
	))
	defer span.End()

	if conversationID == 0 {
		return nil, apperrors.NewValidationError("conversation_id is required")
	}

	res, err := s.lifecycle.MarkRead(ctx, conversationID, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mark read failed")
		switch {
		case errors.Is(err, store.ErrNotFound):
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "conversation not found")
		case errors.Is(err, store.ErrNotParticipant):
			return nil, apperrors.NewForbiddenError(apperrors.CodeForbidden, "not a participant in this conversation")
		}
		s.logFor(ctx).LogError(err, "mark read failed", "conversation_id", conversationID, "user_id", userID)
		return nil, apperrors.NewMarkReadFailedError(err)
	}

	s.metrics.Read(ctx, len(res.Changed))
	span.SetAttributes(attribute.Int("chat.messages_read", len(res.Changed)))
	return res, nil
}

// Conversations lists the caller's conversations as per-viewer summaries.
func (s *ChatService) Conversations(ctx context.Context, userID uint, limit, offset int) ([]models.ConversationSummary, error) {
	convs, err := s.store.ListConversations(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]models.ConversationSummary, 0, len(convs))
	for i := range convs {
		out = append(out, convs[i].SummaryFor(userID))
	}
	return out, nil
}

// Messages pages through a conversation the caller participates in.
func (s *ChatService) Messages(ctx context.Context, userID, conversationID uint, q store.MessageQuery) ([]models.Message, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperrors.NewNotFoundError(apperrors.CodeNotFound, "conversation not found")
		}
		return nil, err
	}
	if !conv.HasParticipant(userID) {
		return nil, apperrors.NewForbiddenError(apperrors.CodeForbidden, "not a participant in this conversation")
	}
	return s.store.ListMessages(ctx, conversationID, q)
}

// ModerationLogs lists audit records for administrators
func (s *ChatService) ModerationLogs(ctx context.Context, filter store.ModerationLogFilter) ([]models.ModerationLog, error) {
	return s.store.ListModerationLogs(ctx, filter)
}
