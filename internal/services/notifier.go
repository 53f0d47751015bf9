package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/logger"
	"github.com/teampulse/insight/pkg/response"
)

// Delta types.
const (
	DeltaTaskUpdated   = "task_updated"
	DeltaModuleUpdated = "module_updated"
)

// ChannelAll receives every delta. Only full-access actors may join it.
const ChannelAll = "all"

func ProjectChannel(id uint) string { return fmt.Sprintf("project:%d", id) }
func TeamChannel(id uint) string    { return fmt.Sprintf("team:%d", id) }
func UserChannel(id uint) string    { return fmt.Sprintf("user:%d", id) }

// Delta describes one committed status transition.
type Delta struct {
	Type           string                     `json:"type"`
	ProjectID      uint                       `json:"project_id"`
	TeamID         *uint                      `json:"team_id,omitempty"`
	ItemID         uint                       `json:"item_id"`
	Title          string                     `json:"title"`
	AssigneeID     *uint                      `json:"assignee_id,omitempty"`
	Status         analytics.Status           `json:"status"`
	PreviousStatus analytics.Status           `json:"previous_status"`
	Timestamp      time.Time                  `json:"timestamp"`
	Overview       *ProjectOverview           `json:"overview,omitempty"`
	Delay          *analytics.DelayPrediction `json:"delay_prediction,omitempty"`

	// assigneeOverview replaces Overview on the assignee's own channel.
	assigneeOverview *ProjectOverview
}

// Message is one encoded payload and the channels it is addressed to.
type Message struct {
	Channels []string
	Payload  []byte
}

// Messages encodes the delta per audience. The project-wide overview goes
// to the all, project and team channels; the assignee channel only carries
// the assignee's own overview.
func (d *Delta) Messages() ([]Message, error) {
	payload, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	broad := []string{ChannelAll, ProjectChannel(d.ProjectID)}
	if d.TeamID != nil {
		broad = append(broad, TeamChannel(*d.TeamID))
	}
	msgs := []Message{{Channels: broad, Payload: payload}}
	if d.AssigneeID == nil {
		return msgs, nil
	}

	own := payload
	if d.Overview != nil {
		scoped := *d
		scoped.Overview = d.assigneeOverview
		if own, err = json.Marshal(&scoped); err != nil {
			return nil, err
		}
	}
	return append(msgs, Message{Channels: []string{UserChannel(*d.AssigneeID)}, Payload: own}), nil
}

// firstMatch picks the message a subscriber of channels receives: the first
// one addressed to a channel it follows. ok is false when none is.
func firstMatch(msgs []Message, channels map[string]bool) (msg Message, channel string, ok bool) {
	for _, m := range msgs {
		for _, ch := range m.Channels {
			if channels[ch] {
				return m, ch, true
			}
		}
	}
	return Message{}, "", false
}

// Publisher is a best-effort transport. Publish must not block on slow
// subscribers and hands each subscriber at most one of msgs.
type Publisher interface {
	Name() string
	Publish(msgs []Message) error
}

// Notifier fans deltas out to every configured transport.
type Notifier struct {
	publishers []Publisher
}

func NewNotifier(publishers ...Publisher) *Notifier {
	return &Notifier{publishers: publishers}
}

// Publish delivers d at most once per subscriber. Failures are logged and
// counted but never returned.
func (n *Notifier) Publish(d *Delta) {
	if n == nil || len(n.publishers) == 0 {
		return
	}
	msgs, err := d.Messages()
	if err != nil {
		logger.Error().Err(err).Uint("item", d.ItemID).Msg("[Notifier] Failed to encode delta")
		return
	}
	for _, p := range n.publishers {
		if err := p.Publish(msgs); err != nil {
			deltaPublishes.WithLabelValues(p.Name(), "error").Inc()
			logger.Warn().Err(err).Str("transport", p.Name()).Str("type", d.Type).Msg("[Notifier] Publish failed")
			continue
		}
		deltaPublishes.WithLabelValues(p.Name(), "ok").Inc()
	}
}

// SubscriptionChannels validates the channels an actor asked to follow.
// With no request the actor gets the widest channel their role allows.
func (s *InsightService) SubscriptionChannels(ctx context.Context, actor Actor, requested []string) ([]string, error) {
	level, err := actor.Level()
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		switch {
		case level == AccessFull:
			return []string{ChannelAll}, nil
		case level == AccessTeam && actor.TeamID != nil:
			return []string{TeamChannel(*actor.TeamID)}, nil
		}
		return []string{UserChannel(actor.ID)}, nil
	}

	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	for _, raw := range requested {
		ch := strings.TrimSpace(raw)
		if ch == "" || seen[ch] {
			continue
		}
		if err := s.authorizeChannel(ctx, actor, level, ch); err != nil {
			return nil, err
		}
		seen[ch] = true
		out = append(out, ch)
	}
	if len(out) == 0 {
		return nil, response.NewBadRequest("no channel requested")
	}
	return out, nil
}

func (s *InsightService) authorizeChannel(ctx context.Context, actor Actor, level AccessLevel, ch string) error {
	if ch == ChannelAll {
		if level != AccessFull {
			return response.NewForbidden("channel all requires full access")
		}
		return nil
	}
	kind, id, err := parseChannel(ch)
	if err != nil {
		return err
	}
	switch kind {
	case "user", "team", "project":
	default:
		return response.NewBadRequest("unknown channel " + ch)
	}
	if level == AccessFull {
		return nil
	}

	switch kind {
	case "user":
		if id == actor.ID {
			return nil
		}
		_, err := s.planner.User(ctx, actor, id)
		return err
	case "team":
		_, err := s.planner.Team(ctx, actor, id)
		return err
	}
	if level == AccessSelf {
		return response.NewForbidden("project channels require a team lead role")
	}
	_, err = s.planner.Project(ctx, actor, id)
	return err
}

func parseChannel(ch string) (string, uint, error) {
	kind, raw, ok := strings.Cut(ch, ":")
	if !ok {
		return "", 0, response.NewBadRequest("invalid channel " + ch)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return "", 0, response.NewBadRequest("invalid channel " + ch)
	}
	return kind, uint(id), nil
}
