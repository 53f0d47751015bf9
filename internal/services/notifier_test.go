package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/response"
)

func TestDelta_Messages(t *testing.T) {
	d := &Delta{ProjectID: 5}
	msgs, err := d.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, []string{"all", "project:5"}, msgs[0].Channels)

	d = &Delta{
		Type:             DeltaModuleUpdated,
		ProjectID:        5,
		TeamID:           uptr(2),
		AssigneeID:       uptr(9),
		Overview:         &ProjectOverview{TotalModules: 4},
		assigneeOverview: &ProjectOverview{TotalModules: 2},
	}
	msgs, err = d.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"all", "project:5", "team:2"}, msgs[0].Channels)
	assert.Equal(t, []string{"user:9"}, msgs[1].Channels)

	var wide, own Delta
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &wide))
	require.NoError(t, json.Unmarshal(msgs[1].Payload, &own))
	assert.Equal(t, 4, wide.Overview.TotalModules)
	assert.Equal(t, 2, own.Overview.TotalModules, "the assignee channel only sees the assignee's items")
}

func TestDelta_MessagesWithoutAssigneeOverview(t *testing.T) {
	d := &Delta{ProjectID: 5, AssigneeID: uptr(9), Overview: &ProjectOverview{TotalModules: 4}}
	msgs, err := d.Messages()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.NotContains(t, string(msgs[1].Payload), `"overview"`)
}

func TestNotifier_FansOutToEveryTransport(t *testing.T) {
	a := &recordingPublisher{}
	b := &recordingPublisher{err: errors.New("unreachable")}
	n := NewNotifier(b, a)

	n.Publish(&Delta{Type: DeltaTaskUpdated, ProjectID: 1, ItemID: 3, Status: analytics.StatusBlocked, Timestamp: testNow})

	assert.Equal(t, []string{"all", "project:1"}, a.channels(), "a failing transport does not stop the next one")
	assert.Equal(t, []string{"all", "project:1"}, b.channels())
	assert.Len(t, a.calls, 1)
}

func TestNotifier_NilIsSafe(t *testing.T) {
	var n *Notifier
	n.Publish(&Delta{ProjectID: 1})
}

func TestNotifier_DeliversThroughSSEHub(t *testing.T) {
	hub := NewSSEHub()
	lead := hub.Subscribe("lead", []string{"team:1"})
	other := hub.Subscribe("other", []string{"team:2"})

	NewNotifier(hub).Publish(&Delta{Type: DeltaModuleUpdated, ProjectID: 100, TeamID: uptr(1), ItemID: 1003})

	select {
	case ev := <-lead:
		assert.Equal(t, "team:1", ev.Channel)
		assert.Contains(t, string(ev.Data), `"item_id":1003`)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("team subscriber did not receive the delta")
	}
	assert.Len(t, other, 0)
}

func TestSubscriptionChannels(t *testing.T) {
	store := orgFixture()
	svc, _, _ := newTestService(store, t.TempDir())
	ctx := context.Background()

	tests := []struct {
		name      string
		actor     uint
		requested []string
		want      []string
		wantErr   error
	}{
		{"manager default", 1, nil, []string{"all"}, nil},
		{"lead default", 10, nil, []string{"team:1"}, nil},
		{"user default", 11, nil, []string{"user:11"}, nil},
		{"manager any channel", 1, []string{"team:2", "project:100"}, []string{"team:2", "project:100"}, nil},
		{"lead own project", 10, []string{"project:100", "project:100"}, []string{"project:100"}, nil},
		{"lead member", 10, []string{"user:12"}, []string{"user:12"}, nil},
		{"lead other team", 10, []string{"team:2"}, nil, response.ErrForbidden},
		{"lead all", 10, []string{"all"}, nil, response.ErrForbidden},
		{"user own channel", 11, []string{"user:11"}, []string{"user:11"}, nil},
		{"user peer channel", 11, []string{"user:12"}, nil, response.ErrForbidden},
		{"user project channel", 11, []string{"project:100"}, nil, response.ErrForbidden},
		{"malformed", 1, []string{"team:abc"}, nil, response.ErrInvalidInput},
		{"unknown kind", 10, []string{"org:1"}, nil, response.ErrInvalidInput},
		{"blank only", 1, []string{" "}, nil, response.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.SubscriptionChannels(ctx, actorFor(store, tt.actor), tt.requested)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNotifier_CommitReachesOverlappingSubscriberOnce(t *testing.T) {
	store := orgFixture()
	hub := NewSSEHub()
	svc, _ := newTestWorkItems(store, hub)
	lead := actorFor(store, 10)
	events := hub.Subscribe("lead", []string{"team:1", "project:100"})

	_, err := svc.UpdateStatus(context.Background(), lead, 1003, analytics.StatusCompleted)
	require.NoError(t, err)

	assert.Len(t, events, 2, "one event per delta, not one per matching channel")
	var types []string
	for len(events) > 0 {
		var d Delta
		require.NoError(t, json.Unmarshal((<-events).Data, &d))
		types = append(types, d.Type)
	}
	assert.Equal(t, []string{DeltaTaskUpdated, DeltaModuleUpdated}, types)
}

func TestNotifier_AssigneeChannelIsScoped(t *testing.T) {
	store := orgFixture()
	hub := NewSSEHub()
	svc, _ := newTestWorkItems(store, hub)
	bo := actorFor(store, 12)

	insights, _, _ := newTestService(store, t.TempDir())
	channels, err := insights.SubscriptionChannels(context.Background(), bo, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"user:12"}, channels)
	events := hub.Subscribe("bo", channels)

	_, err = svc.UpdateStatus(context.Background(), bo, 1003, analytics.StatusCompleted)
	require.NoError(t, err)

	require.Len(t, events, 2)
	<-events
	var module Delta
	require.NoError(t, json.Unmarshal((<-events).Data, &module))
	require.Equal(t, DeltaModuleUpdated, module.Type)
	require.NotNil(t, module.Overview)
	assert.Equal(t, 2, module.Overview.TotalModules, "items 1003 and 1004 only")
	assert.Equal(t, 1, module.Overview.CompletedModules)
	assert.Equal(t, 50, module.Overview.CompletionRate)
}
