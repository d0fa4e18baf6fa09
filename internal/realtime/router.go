package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Baaaki/parley/internal/broker"
	"github.com/Baaaki/parley/internal/identity"
	"github.com/Baaaki/parley/internal/models"
	"github.com/Baaaki/parley/internal/service"
	"github.com/Baaaki/parley/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageOps is the slice of the message service the router drives.
type MessageOps interface {
	Send(ctx context.Context, scope service.Scope, text string, hasAttachment bool) (*models.Message, error)
	Edit(ctx context.Context, scope service.Scope, messageID uuid.UUID, text string) (*models.Message, error)
	Delete(ctx context.Context, scope service.Scope, messageID uuid.UUID) (*models.Message, error)
	MarkRead(ctx context.Context, scope service.Scope, messageIDs []uuid.UUID) ([]uuid.UUID, error)
	Pin(ctx context.Context, scope service.Scope, messageID uuid.UUID) (*models.Message, error)
	Unpin(ctx context.Context, scope service.Scope, messageID uuid.UUID) (*models.Message, error)
}

// Router applies inbound events to the store and announces the results to
// the conversation's broadcast group. It holds no per-session state; one
// Router serves every session and the REST handlers.
type Router struct {
	ops           MessageOps
	group         broker.Broadcaster
	broadcastPins bool
}

func NewRouter(ops MessageOps, group broker.Broadcaster, broadcastPins bool) *Router {
	return &Router{ops: ops, group: group, broadcastPins: broadcastPins}
}

// Dispatch handles one inbound frame and returns the frame for the caller
// alone, or nil when the group broadcast is the only output.
func (r *Router) Dispatch(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	if in.Type == "" {
		in.Type = EventMessage
	}

	switch in.Type {
	case EventMessage:
		return r.send(ctx, scope, in)
	case EventTyping:
		r.AnnounceTyping(ctx, scope, in.IsTyping)
		return nil
	case EventRead:
		return r.read(ctx, scope, in)
	case EventEdit:
		return r.edit(ctx, scope, in)
	case EventDelete:
		return r.remove(ctx, scope, in)
	case EventPin, EventUnpin:
		return r.pin(ctx, scope, in)
	default:
		return errorFrame(CodeUnknownType, "unknown event type: "+string(in.Type), in.TempID)
	}
}

func (r *Router) send(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	msg, err := r.ops.Send(ctx, scope, in.Text, in.HasAttachment)
	if err != nil {
		return failure(err, in.TempID)
	}
	r.AnnounceCreated(ctx, scope, msg)

	if in.TempID == "" {
		return nil
	}
	return &Outbound{Type: TypeAck, TempID: in.TempID, MessageID: msg.MessageID.String(), Status: "sent"}
}

func (r *Router) read(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	if len(in.MessageIDs) == 0 {
		return errorFrame(CodeValidation, "message_ids must not be empty", in.TempID)
	}
	ids := make([]uuid.UUID, 0, len(in.MessageIDs))
	for _, raw := range in.MessageIDs {
		id, err := identity.ParseStrict(raw)
		if err != nil {
			return errorFrame(CodeValidation, "malformed message id: "+raw, in.TempID)
		}
		ids = append(ids, id)
	}

	marked, err := r.ops.MarkRead(ctx, scope, ids)
	if err != nil {
		return failure(err, in.TempID)
	}
	r.AnnounceRead(ctx, scope, marked)
	return nil
}

func (r *Router) edit(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	id, err := identity.ParseStrict(in.MessageID)
	if err != nil {
		return errorFrame(CodeValidation, "malformed message id", in.TempID)
	}
	msg, err := r.ops.Edit(ctx, scope, id, in.Text)
	if err != nil {
		return failure(err, in.TempID)
	}
	r.AnnounceEdited(ctx, scope, msg)
	return nil
}

func (r *Router) remove(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	id, err := identity.ParseStrict(in.MessageID)
	if err != nil {
		return errorFrame(CodeValidation, "malformed message id", in.TempID)
	}
	msg, err := r.ops.Delete(ctx, scope, id)
	if err != nil {
		return failure(err, in.TempID)
	}
	r.AnnounceDeleted(ctx, scope, msg)
	return nil
}

func (r *Router) pin(ctx context.Context, scope service.Scope, in Inbound) *Outbound {
	id, err := identity.ParseStrict(in.MessageID)
	if err != nil {
		return errorFrame(CodeValidation, "malformed message id", in.TempID)
	}

	var msg *models.Message
	if in.Type == EventPin {
		msg, err = r.ops.Pin(ctx, scope, id)
	} else {
		msg, err = r.ops.Unpin(ctx, scope, id)
	}
	if err != nil {
		return failure(err, in.TempID)
	}

	out := pinFrame(scope, msg)
	if r.broadcastPins {
		r.publish(ctx, scope, out)
		return nil
	}
	out.TempID = in.TempID
	return out
}

// AnnounceCreated broadcasts a chat_message for msg.
func (r *Router) AnnounceCreated(ctx context.Context, scope service.Scope, msg *models.Message) {
	r.publish(ctx, scope, &Outbound{Type: TypeChatMessage, Message: NewMessageView(msg)})
}

func (r *Router) AnnounceTyping(ctx context.Context, scope service.Scope, typing bool) {
	r.publish(ctx, scope, &Outbound{Type: TypeTypingIndicator, UserID: scope.UserID.String(), IsTyping: &typing})
}

// AnnounceRead broadcasts the ids that were actually marked. Nothing is sent
// for an empty list.
func (r *Router) AnnounceRead(ctx context.Context, scope service.Scope, ids []uuid.UUID) {
	if len(ids) == 0 {
		return
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}
	r.publish(ctx, scope, &Outbound{Type: TypeReadReceipt, UserID: scope.UserID.String(), MessageIDs: strs})
}

func (r *Router) AnnounceEdited(ctx context.Context, scope service.Scope, msg *models.Message) {
	r.publish(ctx, scope, &Outbound{
		Type:      TypeEditedMessage,
		MessageID: msg.MessageID.String(),
		Text:      msg.Text,
		UserID:    scope.UserID.String(),
		Timestamp: formatTime(msg.EditedAt),
	})
}

func (r *Router) AnnounceDeleted(ctx context.Context, scope service.Scope, msg *models.Message) {
	r.publish(ctx, scope, &Outbound{
		Type:      TypeDeletedMessage,
		MessageID: msg.MessageID.String(),
		UserID:    scope.UserID.String(),
	})
}

// AnnouncePin broadcasts a pin change when group pin broadcasts are enabled.
func (r *Router) AnnouncePin(ctx context.Context, scope service.Scope, msg *models.Message) {
	if r.broadcastPins {
		r.publish(ctx, scope, pinFrame(scope, msg))
	}
}

func pinFrame(scope service.Scope, msg *models.Message) *Outbound {
	out := &Outbound{
		Type:      TypeUnpinnedMessage,
		MessageID: msg.MessageID.String(),
		UserID:    scope.UserID.String(),
		Message:   NewMessageView(msg),
	}
	if msg.IsPinned {
		out.Type = TypePinnedMessage
		out.Timestamp = formatTime(msg.PinnedAt)
	}
	return out
}

// publish is best-effort: the store write already happened, so a failed
// broadcast is logged and members catch up on their next page.
func (r *Router) publish(ctx context.Context, scope service.Scope, out *Outbound) {
	payload, err := json.Marshal(out)
	if err != nil {
		logger.Log.Error("Failed to encode broadcast", zap.String("event_type", out.Type), zap.Error(err))
		return
	}
	if err := r.group.Publish(ctx, scope.Key(), payload); err != nil {
		logger.Log.Warn("Broadcast publish failed",
			zap.String("conversation_id", scope.ConversationID.String()),
			zap.String("event_type", out.Type),
			zap.Error(err),
		)
	}
}

// failure turns a service error into an error frame. Store details stay in
// the log.
func failure(err error, tempID string) *Outbound {
	switch {
	case errors.Is(err, service.ErrValidation):
		return errorFrame(CodeValidation, err.Error(), tempID)
	case errors.Is(err, service.ErrAuthorization):
		return errorFrame(CodeForbidden, "not allowed", tempID)
	case errors.Is(err, service.ErrNotFound):
		return errorFrame(CodeNotFound, "message not found", tempID)
	default:
		logger.Log.Error("Event failed", zap.Error(err))
		return errorFrame(CodeUnavailable, "temporarily unavailable", tempID)
	}
}
