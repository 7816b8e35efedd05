package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"dataset-platform/core/models"
)

// Memory bundles in-process implementations of every repository interface
// over one shared store. It mirrors the Postgres semantics, including the
// single-active-run constraint, and replaces the database in tests.
type Memory struct {
	Batches     *MemoryBatches
	Assets      *MemoryAssets
	Runs        *MemoryRuns
	Tasks       *MemoryTasks
	Annotations *MemoryAnnotations
	Exports     *MemoryExports
	Users       *MemoryUsers
}

// NewMemory creates an empty in-memory repository set.
func NewMemory() *Memory {
	s := &memoryStore{
		nextID:      map[string]int64{},
		batches:     map[int64]*models.Batch{},
		assets:      map[int64]*models.Asset{},
		runs:        map[int64]*models.QCRun{},
		results:     map[int64]*models.QCResult{},
		tasks:       map[int64]*models.LabelingTask{},
		taskAssets:  map[int64][]int64{},
		annotations: map[int64]*models.Annotation{},
		exports:     map[int64]*models.Export{},
		users:       map[int64]*models.User{},
	}
	return &Memory{
		Batches:     &MemoryBatches{s},
		Assets:      &MemoryAssets{s},
		Runs:        &MemoryRuns{s},
		Tasks:       &MemoryTasks{s},
		Annotations: &MemoryAnnotations{s},
		Exports:     &MemoryExports{s},
		Users:       &MemoryUsers{s},
	}
}

type memoryStore struct {
	mu sync.Mutex

	nextID      map[string]int64
	batches     map[int64]*models.Batch
	assets      map[int64]*models.Asset
	runs        map[int64]*models.QCRun
	results     map[int64]*models.QCResult
	tasks       map[int64]*models.LabelingTask
	taskAssets  map[int64][]int64
	annotations map[int64]*models.Annotation
	exports     map[int64]*models.Export
	users       map[int64]*models.User
}

func (s *memoryStore) id(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

// MemoryBatches implements Batches.
type MemoryBatches struct{ s *memoryStore }

func (r *MemoryBatches) Create(ctx context.Context, b *models.Batch) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b.ID = r.s.id("batches")
	cp := *b
	r.s.batches[b.ID] = &cp
	return nil
}

func (r *MemoryBatches) Get(ctx context.Context, id int64) (*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	b, ok := r.s.batches[id]
	if !ok {
		return nil, nil
	}
	cp := *b
	return &cp, nil
}

func (r *MemoryBatches) ListByOwner(ctx context.Context, ownerID int64) ([]*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Batch
	for _, b := range r.s.batches {
		if b.OwnerID == ownerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryBatches) ListAll(ctx context.Context) ([]*models.Batch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Batch
	for _, b := range r.s.batches {
		cp := *b
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryBatches) UpdateStatus(ctx context.Context, id int64, status models.BatchStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if b, ok := r.s.batches[id]; ok {
		b.Status = status
	}
	return nil
}

// MemoryAssets implements Assets.
type MemoryAssets struct{ s *memoryStore }

func (r *MemoryAssets) Create(ctx context.Context, a *models.Asset) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a.ID = r.s.id("assets")
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	r.s.assets[a.ID] = &cp
	return nil
}

func (r *MemoryAssets) Get(ctx context.Context, id int64) (*models.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.assets[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *MemoryAssets) ListByBatch(ctx context.Context, batchID int64) ([]*models.Asset, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Asset
	for _, a := range r.s.assets {
		if a.BatchID == batchID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryAssets) CountByBatch(ctx context.Context, batchID int64) (int, error) {
	assets, err := r.ListByBatch(ctx, batchID)
	return len(assets), err
}

// MemoryRuns implements Runs.
type MemoryRuns struct{ s *memoryStore }

func (r *MemoryRuns) CreateQueued(ctx context.Context, run *models.QCRun) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.runs {
		if existing.BatchID == run.BatchID && !existing.Status.Terminal() {
			return ErrActiveRun
		}
	}
	run.ID = r.s.id("qc_runs")
	run.Status = models.QCRunStatusQueued
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	cp := *run
	r.s.runs[run.ID] = &cp
	return nil
}

func (r *MemoryRuns) Get(ctx context.Context, id int64) (*models.QCRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	run, ok := r.s.runs[id]
	if !ok {
		return nil, nil
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRuns) LatestByBatch(ctx context.Context, batchID int64) (*models.QCRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.QCRun
	for _, run := range r.s.runs {
		if run.BatchID == batchID && (latest == nil || run.ID > latest.ID) {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryRuns) ActiveByBatch(ctx context.Context, batchID int64) (*models.QCRun, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, run := range r.s.runs {
		if run.BatchID == batchID && !run.Status.Terminal() {
			cp := *run
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRuns) SetCorrelationID(ctx context.Context, runID int64, correlationID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if run, ok := r.s.runs[runID]; ok {
		run.CorrelationID = correlationID
	}
	return nil
}

func (r *MemoryRuns) MarkRunning(ctx context.Context, runID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if run, ok := r.s.runs[runID]; ok {
		run.Status = models.QCRunStatusRunning
		run.StartedAt = &at
		run.Error = nil
	}
	return nil
}

func (r *MemoryRuns) MarkDone(ctx context.Context, runID int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if run, ok := r.s.runs[runID]; ok {
		run.Status = models.QCRunStatusDone
		run.FinishedAt = &at
	}
	return nil
}

func (r *MemoryRuns) MarkFailed(ctx context.Context, runID int64, message string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if run, ok := r.s.runs[runID]; ok {
		run.Status = models.QCRunStatusFailed
		run.Error = &message
		run.FinishedAt = &at
	}
	return nil
}

func (r *MemoryRuns) DeleteResults(ctx context.Context, runID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, res := range r.s.results {
		if res.RunID == runID {
			delete(r.s.results, id)
		}
	}
	return nil
}

func (r *MemoryRuns) InsertResults(ctx context.Context, results []*models.QCResult) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, res := range results {
		res.ID = r.s.id("qc_results")
		if res.CreatedAt.IsZero() {
			res.CreatedAt = time.Now().UTC()
		}
		cp := *res
		r.s.results[res.ID] = &cp
	}
	return nil
}

func (r *MemoryRuns) ResultsByRun(ctx context.Context, runID int64) ([]*models.QCResult, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.QCResult
	for _, res := range r.s.results {
		if res.RunID == runID {
			cp := *res
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AssetID < out[j].AssetID })
	return out, nil
}

func (r *MemoryRuns) CountResults(ctx context.Context, runID int64) (int, error) {
	results, err := r.ResultsByRun(ctx, runID)
	return len(results), err
}

// MemoryTasks implements Tasks.
type MemoryTasks struct{ s *memoryStore }

func (r *MemoryTasks) Create(ctx context.Context, t *models.LabelingTask, assetIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t.ID = r.s.id("tasks")
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	cp := *t
	r.s.tasks[t.ID] = &cp
	r.s.taskAssets[t.ID] = append([]int64(nil), assetIDs...)
	return nil
}

func (r *MemoryTasks) Get(ctx context.Context, id int64) (*models.LabelingTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *MemoryTasks) GetByBatch(ctx context.Context, batchID int64) (*models.LabelingTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.LabelingTask
	for _, t := range r.s.tasks {
		if t.BatchID == batchID && (latest == nil || t.ID > latest.ID) {
			latest = t
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (r *MemoryTasks) ListByAssignee(ctx context.Context, assigneeID int64) ([]*models.LabelingTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.LabelingTask
	for _, t := range r.s.tasks {
		if t.AssigneeID == assigneeID {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryTasks) ListAll(ctx context.Context) ([]*models.LabelingTask, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.LabelingTask
	for _, t := range r.s.tasks {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *MemoryTasks) UpdateStatus(ctx context.Context, id int64, status models.TaskStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tasks[id]; ok {
		t.Status = status
	}
	return nil
}

func (r *MemoryTasks) AssetIDs(ctx context.Context, taskID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := append([]int64(nil), r.s.taskAssets[taskID]...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MemoryTasks) HasAsset(ctx context.Context, taskID, assetID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.taskAssets[taskID] {
		if id == assetID {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemoryTasks) CountAssets(ctx context.Context, taskID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.taskAssets[taskID]), nil
}

// MemoryAnnotations implements Annotations.
type MemoryAnnotations struct{ s *memoryStore }

func (r *MemoryAnnotations) Upsert(ctx context.Context, a *models.Annotation) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now().UTC()
	for _, existing := range r.s.annotations {
		if existing.TaskID == a.TaskID && existing.AssetID == a.AssetID && existing.LabelerID == a.LabelerID {
			existing.Labels = append([]string(nil), a.Labels...)
			existing.UpdatedAt = now
			*a = *existing
			return nil
		}
	}
	a.ID = r.s.id("annotations")
	a.CreatedAt = now
	a.UpdatedAt = now
	cp := *a
	r.s.annotations[a.ID] = &cp
	return nil
}

func (r *MemoryAnnotations) CountAssetsByLabeler(ctx context.Context, taskID, labelerID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[int64]bool{}
	for _, a := range r.s.annotations {
		if a.TaskID == taskID && a.LabelerID == labelerID {
			seen[a.AssetID] = true
		}
	}
	return len(seen), nil
}

func (r *MemoryAnnotations) CountLabeledAssets(ctx context.Context, batchID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := map[int64]bool{}
	for _, a := range r.s.annotations {
		if asset, ok := r.s.assets[a.AssetID]; ok && asset.BatchID == batchID {
			seen[a.AssetID] = true
		}
	}
	return len(seen), nil
}

func (r *MemoryAnnotations) LatestByAsset(ctx context.Context, batchID int64) (map[int64]*models.Annotation, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	latest := map[int64]*models.Annotation{}
	for _, a := range r.s.annotations {
		asset, ok := r.s.assets[a.AssetID]
		if !ok || asset.BatchID != batchID {
			continue
		}
		cur, ok := latest[a.AssetID]
		if !ok || a.UpdatedAt.After(cur.UpdatedAt) ||
			(a.UpdatedAt.Equal(cur.UpdatedAt) && a.ID > cur.ID) {
			cp := *a
			latest[a.AssetID] = &cp
		}
	}
	return latest, nil
}

// MemoryExports implements Exports.
type MemoryExports struct{ s *memoryStore }

func (r *MemoryExports) Create(ctx context.Context, e *models.Export) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = r.s.id("exports")
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	cp := *e
	r.s.exports[e.ID] = &cp
	return nil
}

func (r *MemoryExports) Update(ctx context.Context, e *models.Export) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.exports[e.ID]; ok {
		cp := *e
		r.s.exports[e.ID] = &cp
	}
	return nil
}

func (r *MemoryExports) LatestByBatch(ctx context.Context, batchID int64) (*models.Export, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *models.Export
	for _, e := range r.s.exports {
		if e.BatchID == batchID && (latest == nil || e.ID > latest.ID) {
			latest = e
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// MemoryUsers implements Users.
type MemoryUsers struct{ s *memoryStore }

func (r *MemoryUsers) Create(ctx context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u.ID = r.s.id("users")
	cp := *u
	r.s.users[u.ID] = &cp
	return nil
}

func (r *MemoryUsers) Get(ctx context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (r *MemoryUsers) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryUsers) LowestActiveLabeler(ctx context.Context) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var lowest *models.User
	for _, u := range r.s.users {
		if u.Role == models.RoleLabeler && u.Active && (lowest == nil || u.ID < lowest.ID) {
			lowest = u
		}
	}
	if lowest == nil {
		return nil, nil
	}
	cp := *lowest
	return &cp, nil
}

var (
	_ Batches     = (*MemoryBatches)(nil)
	_ Assets      = (*MemoryAssets)(nil)
	_ Runs        = (*MemoryRuns)(nil)
	_ Tasks       = (*MemoryTasks)(nil)
	_ Annotations = (*MemoryAnnotations)(nil)
	_ Exports     = (*MemoryExports)(nil)
	_ Users       = (*MemoryUsers)(nil)
)
