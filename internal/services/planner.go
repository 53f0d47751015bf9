package services

import (
	"context"
	"fmt"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/pkg/response"
	"golang.org/x/sync/errgroup"
)

// AccessLevel is the visibility an actor's role grants.
type AccessLevel string

const (
	AccessFull AccessLevel = "full"
	AccessTeam AccessLevel = "team"
	AccessSelf AccessLevel = "self"
)

// Actor is the identity a query runs as.
type Actor struct {
	ID     uint
	Name   string
	Role   analytics.Role
	TeamID *uint
}

// Level maps the actor's role to its access level.
func (a Actor) Level() (AccessLevel, error) {
	switch a.Role {
	case analytics.RoleManager, analytics.RoleAdmin:
		return AccessFull, nil
	case analytics.RoleTeamLead:
		return AccessTeam, nil
	case analytics.RoleUser, analytics.RoleStudent:
		return AccessSelf, nil
	}
	return "", response.NewForbidden(fmt.Sprintf("role %q has no analytics access", a.Role))
}

func (a Actor) onTeam(teamID *uint) bool {
	return a.TeamID != nil && teamID != nil && *a.TeamID == *teamID
}

// Scope is the visibility set handed to aggregation. Projects only carry
// items the actor may see.
type Scope struct {
	Actor    Actor
	Level    AccessLevel
	Projects []analytics.Project
	Teams    []analytics.Team
	Users    []analytics.User
}

// Items flattens the scope's work items.
func (s *Scope) Items() []analytics.WorkItem {
	return analytics.Flatten(s.Projects)
}

// Names maps visible user ids to display names.
func (s *Scope) Names() map[uint]string {
	names := make(map[uint]string, len(s.Users))
	for _, u := range s.Users {
		names[u.ID] = u.Name
	}
	return names
}

// ScopePlanner is the single place that decides what an actor may see.
// Every query resolves its scope here before aggregation runs.
//
// Store reads run on a context detached from the caller's cancellation so an
// abandoned request still finishes its snapshot.
type ScopePlanner struct {
	store Store
}

func NewScopePlanner(store Store) *ScopePlanner {
	return &ScopePlanner{store: store}
}

// ResolveActor loads the acting user. The stored role and team are
// authoritative over anything carried in the token.
func (p *ScopePlanner) ResolveActor(ctx context.Context, userID uint) (Actor, error) {
	users, err := p.store.FindUsers(context.WithoutCancel(ctx), UserFilter{IDs: []uint{userID}})
	if err != nil {
		return Actor{}, err
	}
	if len(users) == 0 {
		return Actor{}, response.NewNotFound("user not found")
	}
	u := users[0]
	return Actor{ID: u.ID, Name: u.Name, Role: u.Role, TeamID: u.TeamID}, nil
}

// Summary resolves the actor's whole visible world.
func (p *ScopePlanner) Summary(ctx context.Context, actor Actor) (*Scope, error) {
	level, err := actor.Level()
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)
	scope := &Scope{Actor: actor, Level: level}

	switch level {
	case AccessFull:
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			scope.Projects, err = p.store.FindProjects(gctx, ProjectFilter{})
			return err
		})
		g.Go(func() (err error) {
			scope.Teams, err = p.store.FindTeams(gctx, TeamFilter{})
			return err
		})
		g.Go(func() (err error) {
			scope.Users, err = p.store.FindUsers(gctx, UserFilter{})
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}

	case AccessTeam:
		if actor.TeamID == nil {
			scope.Projects, err = p.store.FindProjects(ctx, ProjectFilter{AssigneeID: &actor.ID})
			if err != nil {
				return nil, err
			}
			scope.Projects = ownProjects(scope.Projects, actor.ID)
			scope.Users = []analytics.User{{ID: actor.ID, Name: actor.Name, Role: actor.Role}}
			break
		}
		team, projects, err := p.loadTeam(ctx, *actor.TeamID)
		if err != nil {
			return nil, err
		}
		scope.Projects = projects
		if team != nil {
			scope.Teams = []analytics.Team{*team}
			scope.Users = team.Members
		}

	case AccessSelf:
		scope.Projects, err = p.store.FindProjects(ctx, ProjectFilter{AssigneeID: &actor.ID})
		if err != nil {
			return nil, err
		}
		scope.Projects = ownProjects(scope.Projects, actor.ID)
		scope.Users = []analytics.User{{ID: actor.ID, Name: actor.Name, Role: actor.Role, TeamID: actor.TeamID}}
	}
	return scope, nil
}

// Project resolves one project. Users see only their own items in it and
// are refused when they have none.
func (p *ScopePlanner) Project(ctx context.Context, actor Actor, projectID uint) (*Scope, error) {
	level, err := actor.Level()
	if err != nil {
		return nil, err
	}
	if projectID == 0 {
		return nil, response.NewBadRequest("invalid project id")
	}
	ctx = context.WithoutCancel(ctx)

	projects, err := p.store.FindProjects(ctx, ProjectFilter{IDs: []uint{projectID}})
	if err != nil {
		return nil, err
	}
	if len(projects) == 0 {
		return nil, response.NewNotFound("project not found")
	}
	project, err := p.VisibleProject(actor, projects[0])
	if err != nil {
		return nil, err
	}

	users := []analytics.User{}
	if ids := assigneeIDs(project.Items); len(ids) > 0 {
		users, err = p.store.FindUsers(ctx, UserFilter{IDs: ids})
		if err != nil {
			return nil, err
		}
	}
	return &Scope{Actor: actor, Level: level, Projects: []analytics.Project{project}, Users: users}, nil
}

// VisibleProject applies actor's visibility rules to an already loaded
// project: leads only see their team's projects, users only their own items.
func (p *ScopePlanner) VisibleProject(actor Actor, project analytics.Project) (analytics.Project, error) {
	level, err := actor.Level()
	if err != nil {
		return analytics.Project{}, err
	}
	switch level {
	case AccessTeam:
		if !actor.onTeam(project.TeamID) {
			return analytics.Project{}, response.NewForbidden("project belongs to another team")
		}
	case AccessSelf:
		project = restrictToAssignee([]analytics.Project{project}, actor.ID)[0]
		if len(project.Items) == 0 {
			return analytics.Project{}, response.NewForbidden("no work in this project is assigned to you")
		}
	}
	return project, nil
}

// Team resolves a team with the items of its projects. Only managers,
// admins and the team's own lead may look.
func (p *ScopePlanner) Team(ctx context.Context, actor Actor, teamID uint) (*Scope, error) {
	level, err := actor.Level()
	if err != nil {
		return nil, err
	}
	if teamID == 0 {
		return nil, response.NewBadRequest("invalid team id")
	}
	switch level {
	case AccessTeam:
		if actor.TeamID == nil || *actor.TeamID != teamID {
			return nil, response.NewForbidden("team is outside your scope")
		}
	case AccessSelf:
		return nil, response.NewForbidden("team analytics require a team lead role")
	}

	team, projects, err := p.loadTeam(context.WithoutCancel(ctx), teamID)
	if err != nil {
		return nil, err
	}
	if team == nil {
		return nil, response.NewNotFound("team not found")
	}
	return &Scope{Actor: actor, Level: level, Projects: projects, Teams: []analytics.Team{*team}, Users: team.Members}, nil
}

// User resolves another user's assigned work. Users may only look at
// themselves; leads at members of their team, limited to team projects.
func (p *ScopePlanner) User(ctx context.Context, actor Actor, userID uint) (*Scope, error) {
	level, err := actor.Level()
	if err != nil {
		return nil, err
	}
	if userID == 0 {
		return nil, response.NewBadRequest("invalid user id")
	}
	self := userID == actor.ID
	if level == AccessSelf && !self {
		return nil, response.NewForbidden("you can only view your own analytics")
	}
	ctx = context.WithoutCancel(ctx)

	users, err := p.store.FindUsers(ctx, UserFilter{IDs: []uint{userID}})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, response.NewNotFound("user not found")
	}
	target := users[0]
	if level == AccessTeam && !self && !actor.onTeam(target.TeamID) {
		return nil, response.NewForbidden("user is not a member of your team")
	}

	projects, err := p.store.FindProjects(ctx, ProjectFilter{AssigneeID: &userID})
	if err != nil {
		return nil, err
	}
	projects = restrictToAssignee(projects, userID)
	if level == AccessTeam && !self {
		visible := projects[:0]
		for _, proj := range projects {
			if actor.onTeam(proj.TeamID) {
				visible = append(visible, proj)
			}
		}
		projects = visible
	}
	return &Scope{Actor: actor, Level: level, Projects: projects, Users: []analytics.User{target}}, nil
}

// AuthorizeItem checks whether actor may change item inside project.
func (p *ScopePlanner) AuthorizeItem(actor Actor, item analytics.WorkItem, project analytics.Project) error {
	level, err := actor.Level()
	if err != nil {
		return err
	}
	switch level {
	case AccessTeam:
		if actor.onTeam(project.TeamID) || item.AssignedTo(actor.ID) {
			return nil
		}
		return response.NewForbidden("work item belongs to another team")
	case AccessSelf:
		if item.AssignedTo(actor.ID) {
			return nil
		}
		return response.NewForbidden("work item is not assigned to you")
	}
	return nil
}

// loadTeam fetches a team and the projects it owns, including the team's
// active project when it is not linked back through team_id.
func (p *ScopePlanner) loadTeam(ctx context.Context, teamID uint) (*analytics.Team, []analytics.Project, error) {
	var teams []analytics.Team
	var projects []analytics.Project

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		teams, err = p.store.FindTeams(gctx, TeamFilter{IDs: []uint{teamID}})
		return err
	})
	g.Go(func() (err error) {
		projects, err = p.store.FindProjects(gctx, ProjectFilter{TeamIDs: []uint{teamID}})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if len(teams) == 0 {
		return nil, projects, nil
	}
	team := teams[0]

	if team.ProjectID != nil && !containsProject(projects, *team.ProjectID) {
		active, err := p.store.FindProjects(ctx, ProjectFilter{IDs: []uint{*team.ProjectID}})
		if err != nil {
			return nil, nil, err
		}
		projects = append(projects, active...)
	}
	return &team, projects, nil
}

// restrictToAssignee keeps only items assigned to userID. It never trusts
// the store to have filtered already.
func restrictToAssignee(projects []analytics.Project, userID uint) []analytics.Project {
	out := make([]analytics.Project, 0, len(projects))
	for _, proj := range projects {
		items := make([]analytics.WorkItem, 0, len(proj.Items))
		for _, item := range proj.Items {
			if item.AssignedTo(userID) {
				items = append(items, item)
			}
		}
		proj.Items = items
		out = append(out, proj)
	}
	return out
}

// ownProjects keeps userID's items and drops projects left without any.
func ownProjects(projects []analytics.Project, userID uint) []analytics.Project {
	restricted := restrictToAssignee(projects, userID)
	out := restricted[:0]
	for _, proj := range restricted {
		if len(proj.Items) > 0 {
			out = append(out, proj)
		}
	}
	return out
}

func assigneeIDs(items []analytics.WorkItem) []uint {
	seen := make(map[uint]bool)
	ids := []uint{}
	for _, item := range items {
		if item.AssigneeID == nil || seen[*item.AssigneeID] {
			continue
		}
		seen[*item.AssigneeID] = true
		ids = append(ids, *item.AssigneeID)
	}
	return ids
}

func containsProject(projects []analytics.Project, id uint) bool {
	for _, proj := range projects {
		if proj.ID == id {
			return true
		}
	}
	return false
}
