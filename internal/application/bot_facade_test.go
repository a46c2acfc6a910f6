package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/repository"
	"telegram-study-planner/internal/usecase"
)

// ---- fakes ----

type memStates struct {
	mu sync.Mutex
	m  map[int64]*repository.ConversationState
}

func newMemStates() *memStates { return &memStates{m: map[int64]*repository.ConversationState{}} }

func (s *memStates) SetState(ctx context.Context, requesterID int64, state *repository.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.m[requesterID] = &cp
	return nil
}

func (s *memStates) GetState(ctx context.Context, requesterID int64) (*repository.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.m[requesterID]; ok {
		cp := *st
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (s *memStates) ClearState(ctx context.Context, requesterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, requesterID)
	return nil
}

type memPrefs struct {
	mu      sync.Mutex
	prefs   map[int64]*repository.UserPrefs
	lastJob map[int64]string
}

func newMemPrefs() *memPrefs {
	return &memPrefs{prefs: map[int64]*repository.UserPrefs{}, lastJob: map[int64]string{}}
}

func (p *memPrefs) SavePrefs(ctx context.Context, requesterID int64, prefs *repository.UserPrefs) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *prefs
	p.prefs[requesterID] = &cp
	return nil
}

func (p *memPrefs) GetPrefs(ctx context.Context, requesterID int64) (*repository.UserPrefs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pr, ok := p.prefs[requesterID]; ok {
		cp := *pr
		return &cp, nil
	}
	return &repository.UserPrefs{}, nil
}

func (p *memPrefs) SetLastJob(ctx context.Context, requesterID int64, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastJob[requesterID] = jobID
	return nil
}

func (p *memPrefs) GetLastJob(ctx context.Context, requesterID int64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.lastJob[requesterID]; ok {
		return id, nil
	}
	return "", domain.ErrNotFound
}

func (p *memPrefs) ClearLastJob(ctx context.Context, requesterID int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lastJob, requesterID)
	return nil
}

type fakePlanUC struct {
	mu                  sync.Mutex
	submits             int
	lastGoal, lastGroup string
	submitID            string
	submitErr           error
	jobs                map[string]*model.PlanJob
}

func (f *fakePlanUC) Submit(ctx context.Context, requesterID int64, goal, groupID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submits++
	f.lastGoal, f.lastGroup = goal, groupID
	return f.submitID, f.submitErr
}

func (f *fakePlanUC) GetStatus(ctx context.Context, jobID string) (*model.PlanJob, error) {
	if j, ok := f.jobs[jobID]; ok {
		return j, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakePlanUC) Execute(ctx context.Context, job *model.PlanJob) {}
func (f *fakePlanUC) Cancel(ctx context.Context, requesterID int64) {}

type nullJobRepo struct{}

func (nullJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.PlanJob) error {
	return nil
}
func (nullJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanJob, error) {
	return nil, domain.ErrNotFound
}
func (nullJobRepo) FindActiveByRequester(ctx context.Context, tx repository.Tx, requesterID int64) (*model.PlanJob, error) {
	return nil, domain.ErrNotFound
}
func (nullJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.PlanJob, error) {
	return nil, domain.ErrNotFound
}
func (nullJobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PlanJobStatus, result *model.JobResult) error {
	return nil
}
func (nullJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PlanJobStatus]int, error) {
	return nil, nil
}

type recordingPresenter struct {
	mu      sync.Mutex
	results []*model.PlanJob
}

func (p *recordingPresenter) DeliverResult(ctx context.Context, chatID int64, job *model.PlanJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, job)
	return nil
}

func (p *recordingPresenter) DeliverTimeout(ctx context.Context, chatID int64, jobID string) error {
	return nil
}

type testRig struct {
	facade    *BotFacade
	uc        *fakePlanUC
	states    *memStates
	prefs     *memPrefs
	presenter *recordingPresenter
	poller    *usecase.Poller
}

func newRig(uc *fakePlanUC) *testRig {
	l := zerolog.Nop()
	states := newMemStates()
	prefs := newMemPrefs()
	presenter := &recordingPresenter{}
	poller := usecase.NewPoller(nullJobRepo{}, presenter, uc,
		config.PollConfig{Interval: time.Minute, MaxWait: time.Hour}, &l)
	return &testRig{
		facade:    NewBotFacade(context.Background(), uc, poller, states, prefs, presenter),
		uc:        uc,
		states:    states,
		prefs:     prefs,
		presenter: presenter,
		poller:    poller,
	}
}

func mustReply(t *testing.T) func(string, error) string {
	return func(reply string, err error) string {
		t.Helper()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return reply
	}
}

// ---- tests ----

func TestGeneratePlan_WithCompleteProfile(t *testing.T) {
	rig := newRig(&fakePlanUC{submitID: "job-1"})
	ctx := context.Background()
	rig.prefs.SavePrefs(ctx, 10, &repository.UserPrefs{Group: "IS-21", Goal: "learn calculus"})

	reply := mustReply(t)(rig.facade.HandleGeneratePlan(ctx, 10, 100))
	if !strings.Contains(reply, "Generation started") {
		t.Fatalf("reply = %q", reply)
	}
	if rig.uc.submits != 1 || rig.uc.lastGroup != "IS-21" {
		t.Fatalf("submit not routed: %+v", rig.uc)
	}
	if id, _ := rig.prefs.GetLastJob(ctx, 10); id != "job-1" {
		t.Fatalf("last job = %q", id)
	}
	if _, active := rig.poller.Active(10); !active {
		t.Fatal("poll session should be running")
	}
}

func TestGeneratePlan_CollectsMissingData(t *testing.T) {
	rig := newRig(&fakePlanUC{submitID: "job-2"})
	ctx := context.Background()

	reply := mustReply(t)(rig.facade.HandleGeneratePlan(ctx, 11, 100))
	if !strings.Contains(reply, "group") {
		t.Fatalf("should ask for group first: %q", reply)
	}
	if rig.uc.submits != 0 {
		t.Fatal("must not submit before profile is complete")
	}

	now := time.Now().Add(time.Second)
	reply = mustReply(t)(rig.facade.HandleText(ctx, 11, 100, "IS-21", now))
	if !strings.Contains(reply, "learn") {
		t.Fatalf("should ask for goal next: %q", reply)
	}

	reply = mustReply(t)(rig.facade.HandleText(ctx, 11, 100, "pass the databases course", now.Add(time.Second)))
	if !strings.Contains(reply, "Generation started") {
		t.Fatalf("reply = %q", reply)
	}
	if rig.uc.submits != 1 || rig.uc.lastGoal != "pass the databases course" {
		t.Fatalf("submit not routed: %+v", rig.uc)
	}
	if _, err := rig.states.GetState(ctx, 11); err == nil {
		t.Fatal("state should be cleared after submission")
	}
}

func TestHandleText_IgnoresStaleMessages(t *testing.T) {
	rig := newRig(&fakePlanUC{})
	ctx := context.Background()

	mustReply(t)(rig.facade.HandleEnterGroup(ctx, 12))
	stale := time.Now().Add(-time.Hour)
	reply := mustReply(t)(rig.facade.HandleText(ctx, 12, 100, "IS-21", stale))
	if reply != "" {
		t.Fatalf("stale message must be ignored, got %q", reply)
	}

	prefs, _ := rig.prefs.GetPrefs(ctx, 12)
	if prefs.Group != "" {
		t.Fatal("stale input must not be saved")
	}
}

func TestEnterGoal_Validation(t *testing.T) {
	rig := newRig(&fakePlanUC{})
	ctx := context.Background()

	mustReply(t)(rig.facade.HandleEnterGoal(ctx, 13))
	reply := mustReply(t)(rig.facade.HandleText(ctx, 13, 100, "hi", time.Now().Add(time.Second)))
	if !strings.Contains(reply, "at least 5 characters") {
		t.Fatalf("reply = %q", reply)
	}
	// The dialogue survives a rejected answer.
	reply = mustReply(t)(rig.facade.HandleText(ctx, 13, 100, "learn databases properly", time.Now().Add(2*time.Second)))
	if !strings.Contains(reply, "Saved your goal") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGeneratePlan_ActiveJobConflict(t *testing.T) {
	rig := newRig(&fakePlanUC{submitErr: domain.ErrJobAlreadyActive})
	ctx := context.Background()
	rig.prefs.SavePrefs(ctx, 14, &repository.UserPrefs{Group: "IS-21", Goal: "learn calculus"})

	reply := mustReply(t)(rig.facade.HandleGeneratePlan(ctx, 14, 100))
	if !strings.Contains(reply, "already being generated") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestGetPlan(t *testing.T) {
	terminal := &model.PlanJob{
		ID:     "job-3",
		Status: model.PlanJobStatusCompleted,
		Result: &model.JobResult{Plan: &model.StudyPlan{PlanTitle: "T"}},
	}
	running := &model.PlanJob{ID: "job-4", Status: model.PlanJobStatusProcessing}
	rig := newRig(&fakePlanUC{jobs: map[string]*model.PlanJob{"job-3": terminal, "job-4": running}})
	ctx := context.Background()

	t.Run("no job yet", func(t *testing.T) {
		reply := mustReply(t)(rig.facade.HandleGetPlan(ctx, 15, 100))
		if !strings.Contains(reply, "/generateplan") {
			t.Fatalf("reply = %q", reply)
		}
	})

	t.Run("in-flight job", func(t *testing.T) {
		rig.prefs.SetLastJob(ctx, 15, "job-4")
		reply := mustReply(t)(rig.facade.HandleGetPlan(ctx, 15, 100))
		if !strings.Contains(reply, "processing") {
			t.Fatalf("reply = %q", reply)
		}
	})

	t.Run("vanished job clears the stale link", func(t *testing.T) {
		rig.prefs.SetLastJob(ctx, 15, "job-gone")
		reply := mustReply(t)(rig.facade.HandleGetPlan(ctx, 15, 100))
		if !strings.Contains(reply, "no longer available") {
			t.Fatalf("reply = %q", reply)
		}
		if _, err := rig.prefs.GetLastJob(ctx, 15); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("stale link survived: %v", err)
		}
	})

	t.Run("terminal job goes through the presenter", func(t *testing.T) {
		rig.prefs.SetLastJob(ctx, 15, "job-3")
		reply := mustReply(t)(rig.facade.HandleGetPlan(ctx, 15, 100))
		if reply != "" {
			t.Fatalf("expected empty direct reply, got %q", reply)
		}
		if len(rig.presenter.results) != 1 {
			t.Fatalf("presenter deliveries = %d", len(rig.presenter.results))
		}
	})
}

func TestCancel(t *testing.T) {
	rig := newRig(&fakePlanUC{submitID: "job-5"})
	ctx := context.Background()

	t.Run("nothing to cancel", func(t *testing.T) {
		reply := mustReply(t)(rig.facade.HandleCancel(ctx, 16))
		if !strings.Contains(reply, "Nothing to cancel") {
			t.Fatalf("reply = %q", reply)
		}
	})

	t.Run("cancels an active session", func(t *testing.T) {
		rig.prefs.SavePrefs(ctx, 16, &repository.UserPrefs{Group: "IS-21", Goal: "learn calculus"})
		mustReply(t)(rig.facade.HandleGeneratePlan(ctx, 16, 100))

		reply := mustReply(t)(rig.facade.HandleCancel(ctx, 16))
		if !strings.Contains(reply, "Cancelled") {
			t.Fatalf("reply = %q", reply)
		}
		if _, active := rig.poller.Active(16); active {
			t.Fatal("session should be gone")
		}
	})
}
