// Package notify fans an assignment notice out to every delivery channel.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukerupert/chorly/internal/email"
	"github.com/dukerupert/chorly/internal/model"
	"github.com/dukerupert/chorly/internal/websocket"
)

// Mailer sends a composed message to one member.
type Mailer interface {
	Send(ctx context.Context, member model.Member, msg email.Message) error
}

// Broadcaster pushes realtime messages to a tenant's connected clients.
type Broadcaster interface {
	Broadcast(tenantID string, msg websocket.Message)
}

// Fanout implements chore.Notifier over email and websocket. Either channel
// may be nil.
type Fanout struct {
	mailer Mailer
	hub    Broadcaster
	logger *slog.Logger
}

func NewFanout(mailer Mailer, hub Broadcaster, logger *slog.Logger) *Fanout {
	return &Fanout{mailer: mailer, hub: hub, logger: logger.With("component", "notify")}
}

// NotifyAssigned pushes an assignment message to the member's tenant and
// emails the member. An unconfigured mailer is not an error.
func (f *Fanout) NotifyAssigned(ctx context.Context, member model.Member, ch model.ChoreDefinition, occ model.Occurrence) error {
	if f.hub != nil {
		f.hub.Broadcast(occ.TenantID, websocket.NewMessage("assignment", "created", occ.ID, map[string]any{
			"member_id": member.ID,
			"chore_id":  ch.ID,
			"title":     ch.Title,
			"due_at":    occ.DueAt,
		}))
	}
	if f.mailer == nil {
		return nil
	}
	err := f.mailer.Send(ctx, member, email.AssignedMessage(ch, occ))
	if errors.Is(err, email.ErrNotConfigured) {
		f.logger.Debug("email not configured, skip", "member_id", member.ID, "occurrence_id", occ.ID)
		return nil
	}
	return err
}

// Send delivers msg by email, treating an unconfigured mailer as a skip.
// It reports whether the message went out.
func (f *Fanout) Send(ctx context.Context, member model.Member, msg email.Message) (bool, error) {
	if f.mailer == nil || member.Email == "" {
		return false, nil
	}
	err := f.mailer.Send(ctx, member, msg)
	if errors.Is(err, email.ErrNotConfigured) {
		f.logger.Debug("email not configured, skip", "member_id", member.ID, "subject", msg.Subject)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
