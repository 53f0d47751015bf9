package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/response"
)

func TestActorLevel(t *testing.T) {
	tests := []struct {
		role    analytics.Role
		want    AccessLevel
		wantErr bool
	}{
		{analytics.RoleAdmin, AccessFull, false},
		{analytics.RoleManager, AccessFull, false},
		{analytics.RoleTeamLead, AccessTeam, false},
		{analytics.RoleUser, AccessSelf, false},
		{analytics.RoleStudent, AccessSelf, false},
		{"guest", "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			got, err := Actor{ID: 1, Role: tt.role}.Level()
			if tt.wantErr {
				assert.True(t, errors.Is(err, response.ErrForbidden))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPlanner_TeamLeadCannotSeeOtherTeam(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	lead := actorFor(store, 10)

	calls := store.calls
	_, err := planner.Team(context.Background(), lead, 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, response.ErrForbidden))
	assert.Equal(t, calls, store.calls, "scope is refused before any data is read")
}

func TestPlanner_TeamScope(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)

	scope, err := planner.Team(context.Background(), actorFor(store, 10), 1)
	require.NoError(t, err)
	require.Len(t, scope.Teams, 1)
	assert.Len(t, scope.Users, 3)
	require.Len(t, scope.Projects, 1)
	assert.Equal(t, uint(100), scope.Projects[0].ID)

	_, err = planner.Team(context.Background(), actorFor(store, 11), 1)
	assert.True(t, errors.Is(err, response.ErrForbidden), "plain users never see team analytics")

	_, err = planner.Team(context.Background(), actorFor(store, 1), 99)
	assert.True(t, errors.Is(err, response.ErrNotFound))

	_, err = planner.Team(context.Background(), actorFor(store, 1), 0)
	assert.True(t, errors.Is(err, response.ErrInvalidInput))
}

func TestPlanner_TeamIncludesUnlinkedActiveProject(t *testing.T) {
	store := orgFixture()
	// project 200 loses its team link but is still team 2's active project
	store.projects[1].TeamID = nil

	scope, err := NewScopePlanner(store).Team(context.Background(), actorFor(store, 20), 2)
	require.NoError(t, err)
	require.Len(t, scope.Projects, 1)
	assert.Equal(t, uint(200), scope.Projects[0].ID)
}

func TestPlanner_Summary(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	ctx := context.Background()

	full, err := planner.Summary(ctx, actorFor(store, 1))
	require.NoError(t, err)
	assert.Equal(t, AccessFull, full.Level)
	assert.Len(t, full.Projects, 2)
	assert.Len(t, full.Teams, 2)
	assert.Len(t, full.Users, 7)

	team, err := planner.Summary(ctx, actorFor(store, 10))
	require.NoError(t, err)
	assert.Equal(t, AccessTeam, team.Level)
	require.Len(t, team.Projects, 1)
	assert.Equal(t, uint(100), team.Projects[0].ID)
	assert.Len(t, team.Items(), 4)

	self, err := planner.Summary(ctx, actorFor(store, 11))
	require.NoError(t, err)
	assert.Equal(t, AccessSelf, self.Level)
	items := self.Items()
	assert.Len(t, items, 2)
	for _, item := range items {
		assert.True(t, item.AssignedTo(11))
	}
}

func TestPlanner_Project(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	ctx := context.Background()

	tests := []struct {
		name      string
		actor     uint
		project   uint
		wantErr   error
		wantItems int
	}{
		{"manager sees everything", 1, 200, nil, 2},
		{"lead sees own team project", 10, 100, nil, 4},
		{"lead refused on other team", 20, 100, response.ErrForbidden, 0},
		{"user sees own items only", 11, 100, nil, 2},
		{"user with no items refused", 21, 100, response.ErrForbidden, 0},
		{"unknown project", 1, 999, response.ErrNotFound, 0},
		{"zero id", 1, 0, response.ErrInvalidInput, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, err := planner.Project(ctx, actorFor(store, tt.actor), tt.project)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			require.Len(t, scope.Projects, 1)
			assert.Len(t, scope.Projects[0].Items, tt.wantItems)
		})
	}
}

func TestPlanner_User(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	ctx := context.Background()

	_, err := planner.User(ctx, actorFor(store, 11), 12)
	assert.True(t, errors.Is(err, response.ErrForbidden))

	_, err = planner.User(ctx, actorFor(store, 10), 21)
	assert.True(t, errors.Is(err, response.ErrForbidden))

	scope, err := planner.User(ctx, actorFor(store, 10), 12)
	require.NoError(t, err)
	assert.Len(t, scope.Items(), 2)

	scope, err = planner.User(ctx, actorFor(store, 11), 11)
	require.NoError(t, err)
	assert.Len(t, scope.Items(), 2)

	_, err = planner.User(ctx, actorFor(store, 1), 404)
	assert.True(t, errors.Is(err, response.ErrNotFound))
}

func TestPlanner_UnknownRoleRefused(t *testing.T) {
	store := orgFixture()
	_, err := NewScopePlanner(store).Summary(context.Background(), Actor{ID: 99, Role: "contractor"})
	assert.True(t, errors.Is(err, response.ErrForbidden))
}

func TestPlanner_ResolveActor(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)

	actor, err := planner.ResolveActor(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, analytics.RoleTeamLead, actor.Role)
	require.NotNil(t, actor.TeamID)
	assert.Equal(t, uint(1), *actor.TeamID)

	_, err = planner.ResolveActor(context.Background(), 404)
	assert.True(t, errors.Is(err, response.ErrNotFound))
}

func TestPlanner_AuthorizeItem(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	project := store.projects[0]
	item := project.Items[2] // assigned to 12

	assert.NoError(t, planner.AuthorizeItem(actorFor(store, 1), item, project))
	assert.NoError(t, planner.AuthorizeItem(actorFor(store, 10), item, project))
	assert.NoError(t, planner.AuthorizeItem(actorFor(store, 12), item, project))
	assert.True(t, errors.Is(planner.AuthorizeItem(actorFor(store, 11), item, project), response.ErrForbidden))
	assert.True(t, errors.Is(planner.AuthorizeItem(actorFor(store, 20), item, project), response.ErrForbidden))
}

// broadStore ignores assignee filters, like a store that only narrows by project.
type broadStore struct {
	*memStore
}

func (s broadStore) FindProjects(ctx context.Context, f ProjectFilter) ([]analytics.Project, error) {
	f.AssigneeID = nil
	return s.memStore.FindProjects(ctx, f)
}

func TestPlanner_LeadWithoutTeamSeesOwnItems(t *testing.T) {
	store := orgFixture()
	store.projects[0].Items[2].AssigneeID = uptr(10)
	lead := Actor{ID: 10, Name: "Lena", Role: analytics.RoleTeamLead}

	scope, err := NewScopePlanner(broadStore{store}).Summary(context.Background(), lead)
	require.NoError(t, err)
	assert.Equal(t, AccessTeam, scope.Level)
	require.Len(t, scope.Projects, 1)
	assert.Equal(t, uint(100), scope.Projects[0].ID)
	items := scope.Items()
	require.Len(t, items, 1)
	assert.Equal(t, uint(1003), items[0].ID)
}

func TestPlanner_VisibleProject(t *testing.T) {
	store := orgFixture()
	planner := NewScopePlanner(store)
	project := store.projects[0]

	full, err := planner.VisibleProject(actorFor(store, 1), project)
	require.NoError(t, err)
	assert.Len(t, full.Items, 4)

	team, err := planner.VisibleProject(actorFor(store, 10), project)
	require.NoError(t, err)
	assert.Len(t, team.Items, 4)

	own, err := planner.VisibleProject(actorFor(store, 12), project)
	require.NoError(t, err)
	require.Len(t, own.Items, 2)
	for _, item := range own.Items {
		assert.True(t, item.AssignedTo(12))
	}
	assert.Len(t, project.Items, 4, "caller's project is not modified")

	_, err = planner.VisibleProject(actorFor(store, 20), project)
	assert.True(t, errors.Is(err, response.ErrForbidden))

	_, err = planner.VisibleProject(actorFor(store, 21), project)
	assert.True(t, errors.Is(err, response.ErrForbidden))
}
