package services

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/teampulse/insight/internal/analytics"
	"github.com/teampulse/insight/internal/models"
)

var testNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func uptr(v uint) *uint { return &v }

func tptr(t time.Time) *time.Time { return &t }

// memStore is an in-memory Store and ItemRepository with the same filter
// semantics as GormStore.
type memStore struct {
	mu       sync.Mutex
	projects []analytics.Project
	teams    []analytics.Team
	users    []analytics.User
	saveErr  error
	calls    int
}

func (s *memStore) FindProjects(_ context.Context, f ProjectFilter) ([]analytics.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := []analytics.Project{}
	for _, p := range s.projects {
		if len(f.IDs) > 0 && !containsUint(f.IDs, p.ID) {
			continue
		}
		if len(f.TeamIDs) > 0 && (p.TeamID == nil || !containsUint(f.TeamIDs, *p.TeamID)) {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		cp := p
		cp.Items = append([]analytics.WorkItem{}, p.Items...)
		if f.AssigneeID != nil {
			cp.Items = cp.Items[:0]
			for _, item := range p.Items {
				if item.AssignedTo(*f.AssigneeID) {
					cp.Items = append(cp.Items, item)
				}
			}
			if len(cp.Items) == 0 {
				continue
			}
		}
		out = append(out, cp)
	}
	return out, nil
}

func (s *memStore) FindTeams(_ context.Context, f TeamFilter) ([]analytics.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := []analytics.Team{}
	for _, t := range s.teams {
		if len(f.IDs) > 0 && !containsUint(f.IDs, t.ID) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *memStore) FindUsers(_ context.Context, f UserFilter) ([]analytics.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	out := []analytics.User{}
	for _, u := range s.users {
		if len(f.IDs) > 0 && !containsUint(f.IDs, u.ID) {
			continue
		}
		if len(f.TeamIDs) > 0 && (u.TeamID == nil || !containsUint(f.TeamIDs, *u.TeamID)) {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *memStore) GetItem(_ context.Context, id uint) (*analytics.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.projects {
		for _, item := range p.Items {
			if item.ID == id {
				cp := item
				return &cp, nil
			}
		}
	}
	return nil, nil
}

func (s *memStore) SaveStatus(_ context.Context, item *analytics.WorkItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	for pi := range s.projects {
		for ii := range s.projects[pi].Items {
			if s.projects[pi].Items[ii].ID == item.ID {
				s.projects[pi].Items[ii] = *item
				return nil
			}
		}
	}
	return errors.New("not found")
}

func (s *memStore) CompletedByAssignee(_ context.Context, assigneeID uint, limit int) ([]analytics.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []analytics.WorkItem
	for _, p := range s.projects {
		for _, item := range p.Items {
			if item.AssignedTo(assigneeID) && item.Status == analytics.StatusCompleted && item.CompletedAt != nil {
				out = append(out, item)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.After(*out[j].CompletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func containsUint(ids []uint, id uint) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// orgFixture builds two teams with one project each.
//
//	team 1 "Platform": lead 10, members 11, 12; project 100
//	team 2 "Mobile":   lead 20, member 21;     project 200
//	manager 1 has no team
func orgFixture() *memStore {
	t1, t2 := uptr(1), uptr(2)
	users := []analytics.User{
		{ID: 1, Name: "Morgan", Role: analytics.RoleManager},
		{ID: 10, Name: "Lena", Role: analytics.RoleTeamLead, TeamID: t1},
		{ID: 11, Name: "Ari", Role: analytics.RoleUser, TeamID: t1},
		{ID: 12, Name: "Bo", Role: analytics.RoleUser, TeamID: t1},
		{ID: 20, Name: "Kai", Role: analytics.RoleTeamLead, TeamID: t2},
		{ID: 21, Name: "Noor", Role: analytics.RoleStudent, TeamID: t2},
		{ID: 30, Name: "Idle", Role: analytics.RoleUser},
	}
	created := testNow.AddDate(0, 0, -40)
	item := func(id, project uint, status analytics.Status, assignee uint, updatedDaysAgo int) analytics.WorkItem {
		w := analytics.WorkItem{
			ID:         id,
			ProjectID:  project,
			Title:      "item",
			Status:     status,
			AssigneeID: uptr(assignee),
			CreatedAt:  created,
			UpdatedAt:  testNow.AddDate(0, 0, -updatedDaysAgo),
		}
		if status == analytics.StatusCompleted {
			w.CompletedAt = tptr(testNow.AddDate(0, 0, -updatedDaysAgo))
		}
		return w
	}

	projects := []analytics.Project{
		{
			ID: 100, Name: "Gateway", TeamID: t1, Status: analytics.ProjectActive,
			StartDate: tptr(testNow.AddDate(0, 0, -30)), EndDate: tptr(testNow.AddDate(0, 0, 30)),
			Items: []analytics.WorkItem{
				item(1001, 100, analytics.StatusCompleted, 11, 3),
				item(1002, 100, analytics.StatusCompleted, 11, 5),
				item(1003, 100, analytics.StatusInProgress, 12, 20),
				item(1004, 100, analytics.StatusBlocked, 12, 2),
			},
		},
		{
			ID: 200, Name: "App", TeamID: t2, Status: analytics.ProjectActive,
			Items: []analytics.WorkItem{
				item(2001, 200, analytics.StatusNotStarted, 21, 1),
				item(2002, 200, analytics.StatusInProgress, 21, 10),
			},
		},
	}
	teams := []analytics.Team{
		{ID: 1, Name: "Platform", ProjectID: uptr(100), Members: []analytics.User{users[1], users[2], users[3]}},
		{ID: 2, Name: "Mobile", ProjectID: uptr(200), Members: []analytics.User{users[4], users[5]}},
	}
	return &memStore{projects: projects, teams: teams, users: users}
}

func actorFor(s *memStore, id uint) Actor {
	for _, u := range s.users {
		if u.ID == id {
			return Actor{ID: u.ID, Name: u.Name, Role: u.Role, TeamID: u.TeamID}
		}
	}
	panic("unknown user")
}

// fakeRenderer writes a stub file or fails.
type fakeRenderer struct {
	mu    sync.Mutex
	err   error
	calls int
	paths []string
}

func (r *fakeRenderer) Render(_ context.Context, _ *ReportData, path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.paths = append(r.paths, path)
	if r.err != nil {
		// leave a partial file behind to check cleanup
		_ = os.WriteFile(path, []byte("partial"), 0o644)
		return r.err
	}
	return os.WriteFile(path, []byte("%PDF-1.3"), 0o644)
}

type memArtifacts struct {
	mu   sync.Mutex
	rows map[string]models.ReportArtifact
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{rows: make(map[string]models.ReportArtifact)}
}

func (a *memArtifacts) Create(_ context.Context, art *models.ReportArtifact) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rows[art.ID] = *art
	return nil
}

func (a *memArtifacts) Get(_ context.Context, id string) (*models.ReportArtifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	art, ok := a.rows[id]
	if !ok {
		return nil, nil
	}
	return &art, nil
}

func (a *memArtifacts) ListExpired(_ context.Context, now time.Time) ([]models.ReportArtifact, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []models.ReportArtifact
	for _, art := range a.rows {
		if !now.Before(art.ExpiresAt) {
			out = append(out, art)
		}
	}
	return out, nil
}

func (a *memArtifacts) Delete(_ context.Context, ids []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range ids {
		delete(a.rows, id)
	}
	return nil
}

func (a *memArtifacts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.rows)
}

// fakeCompleter returns a canned answer or error.
type fakeCompleter struct {
	text   string
	err    error
	calls  int
	prompt string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.text, f.err
}

func (f *fakeCompleter) Provider() string { return "fake" }

// recordingPublisher captures every publish.
type recordingPublisher struct {
	mu    sync.Mutex
	err   error
	calls [][]Message
}

func (p *recordingPublisher) Name() string { return "recording" }

func (p *recordingPublisher) Publish(msgs []Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, msgs)
	return p.err
}

// channels lists every addressed channel in publish order.
func (p *recordingPublisher) channels() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := []string{}
	for _, msgs := range p.calls {
		for _, m := range msgs {
			out = append(out, m.Channels...)
		}
	}
	return out
}

// payload returns what call delivered to subscribers of channel.
func (p *recordingPublisher) payload(call int, channel string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	msg, _, ok := firstMatch(p.calls[call], map[string]bool{channel: true})
	if !ok {
		return nil
	}
	return msg.Payload
}

// on addresses payload to channels as a single message.
func on(payload string, channels ...string) []Message {
	return []Message{{Channels: channels, Payload: []byte(payload)}}
}

// newTestService builds an InsightService over store with in-memory
// collaborators and a fixed clock.
func newTestService(store *memStore, dir string) (*InsightService, *fakeRenderer, *memArtifacts) {
	renderer := &fakeRenderer{}
	artifacts := newMemArtifacts()
	svc := NewInsightService(InsightDeps{
		Planner:    NewScopePlanner(store),
		Thresholds: analytics.DefaultThresholds(),
		Cache:      NewMemoryCacheStore(fixedClock),
		Insights:   NewTemplateInsightProvider(),
		Renderer:   renderer,
		Artifacts:  artifacts,
		Now:        fixedClock,
		ReportDir:  dir,
	})
	return svc, renderer, artifacts
}
