package usecase

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"telegram-study-planner/internal/config"
	"telegram-study-planner/internal/domain"
	"telegram-study-planner/internal/domain/model"
	"telegram-study-planner/internal/domain/ports/adapter"
	"telegram-study-planner/internal/domain/ports/repository"
)

// ---- Fakes ----

const validPlanJSON = `{
  "plan_title": "Learn Go in three weeks",
  "estimated_duration_weeks": "3",
  "weekly_overview": [
    {
      "week_number": 1,
      "weekly_goal": "Basics",
      "daily_tasks": [
        {
          "day_name": "Monday",
          "learning_activities": [
            {"suggested_slot": "18:00-20:00", "topic": "Syntax", "description": "Read the tour", "estimated_duration_minutes": 90}
          ]
        }
      ]
    }
  ],
  "general_recommendations": "Practice daily"
}`

func testLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func testGenCfg() config.GeneratorConfig {
	return config.GeneratorConfig{
		JobTimeout:  500 * time.Millisecond,
		CallTimeout: 200 * time.Millisecond,
		Attempts:    2,
		Backoff:     time.Millisecond,
	}
}

func testSchedCfg() config.ScheduleConfig {
	return config.ScheduleConfig{DefaultPeriod: "1 numerator", CallTimeout: 50 * time.Millisecond}
}

type memJobRepo struct {
	mu   sync.Mutex
	byID map[string]*model.PlanJob

	errFind error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{byID: map[string]*model.PlanJob{}}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.PlanJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.byID[job.ID] = &cp
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.PlanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.errFind != nil {
		return nil, m.errFind
	}
	if j, ok := m.byID[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memJobRepo) FindActiveByRequester(ctx context.Context, tx repository.Tx, requesterID int64) (*model.PlanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []*model.PlanJob
	for _, j := range m.byID {
		if j.RequesterID == requesterID && !j.Status.Terminal() {
			active = append(active, j)
		}
	}
	if len(active) == 0 {
		return nil, domain.ErrNotFound
	}
	sort.Slice(active, func(i, k int) bool { return active[i].CreatedAt.Before(active[k].CreatedAt) })
	cp := *active[0]
	return &cp, nil
}

func (m *memJobRepo) FetchAndMarkProcessing(ctx context.Context) (*model.PlanJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var oldest *model.PlanJob
	for _, j := range m.byID {
		if j.Status == model.PlanJobStatusPending && (oldest == nil || j.CreatedAt.Before(oldest.CreatedAt)) {
			oldest = j
		}
	}
	if oldest == nil {
		return nil, domain.ErrNotFound
	}
	oldest.Status = model.PlanJobStatusProcessing
	cp := *oldest
	return &cp, nil
}

func (m *memJobRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PlanJobStatus, result *model.JobResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.byID[id]
	if !ok || j.Status.Terminal() {
		return nil
	}
	j.Status = status
	j.Result = result
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.PlanJobStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[model.PlanJobStatus]int{}
	for _, j := range m.byID {
		counts[j.Status]++
	}
	return counts, nil
}

func (m *memJobRepo) get(id string) *model.PlanJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.byID[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

func (m *memJobRepo) put(j *model.PlanJob) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.byID[j.ID] = &cp
}

// memLocker mimics the redis SetNX lock: holding a key blocks further
// TryLock calls for it until Unlock.
type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{held: map[string]string{}}
}

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrJobAlreadyActive
	}
	token := key + "-token"
	l.held[key] = token
	return token, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// scriptedGenerator replays a fixed sequence of outcomes and records calls.
type scriptedGenerator struct {
	mu      sync.Mutex
	outputs []string
	errs    []error
	prompts []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := len(g.prompts)
	g.prompts = append(g.prompts, prompt)
	var out string
	var err error
	if i < len(g.outputs) {
		out = g.outputs[i]
	}
	if i < len(g.errs) {
		err = g.errs[i]
	}
	return out, err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

func (g *scriptedGenerator) prompt(i int) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i < len(g.prompts) {
		return g.prompts[i]
	}
	return ""
}

// blockingGenerator parks until released or the call context dies.
type blockingGenerator struct {
	startOnce sync.Once
	started   chan struct{}
	release   chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.startOnce.Do(func() { close(g.started) })
	select {
	case <-g.release:
		return validPlanJSON, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type fakeSchedule struct {
	period    string
	periodErr error
	slots     adapter.FreeTimetable
	slotsErr  error
}

func (s *fakeSchedule) CurrentPeriod(ctx context.Context) (string, error) {
	return s.period, s.periodErr
}

func (s *fakeSchedule) FreeSlots(ctx context.Context, groupID string) (adapter.FreeTimetable, error) {
	return s.slots, s.slotsErr
}

// recordingPresenter records deliveries for assertions.
type recordingPresenter struct {
	mu       sync.Mutex
	results  []*model.PlanJob
	timeouts []string
}

func (p *recordingPresenter) DeliverResult(ctx context.Context, chatID int64, job *model.PlanJob) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, job)
	return nil
}

func (p *recordingPresenter) DeliverTimeout(ctx context.Context, chatID int64, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeouts = append(p.timeouts, jobID)
	return nil
}

func (p *recordingPresenter) delivered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.results)
}

func (p *recordingPresenter) timedOut() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.timeouts)
}

type recordingCanceller struct {
	mu    sync.Mutex
	calls []int64
}

func (c *recordingCanceller) Cancel(ctx context.Context, requesterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, requesterID)
}

func (c *recordingCanceller) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}
