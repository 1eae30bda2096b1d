package calendar

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"orderlyflow/internal/model"
	"orderlyflow/internal/store"
)

// memRepo is an in-memory Repository with the same not-found and dedupe
// behavior as the SQL store.
type memRepo struct {
	mu     sync.Mutex
	seq    int
	events []model.EventInstance
	homes  []model.Home
	tasks  []model.Task

	insertCalls int
	failInsert  error
}

var _ Repository = (*memRepo)(nil)

func newMemRepo() *memRepo { return &memRepo{} }

func (r *memRepo) id(prefix string) string {
	r.seq++
	return fmt.Sprintf("%s-%d", prefix, r.seq)
}

func (r *memRepo) InsertEvents(_ context.Context, events []model.EventInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.failInsert != nil {
		return r.failInsert
	}
	for i := range events {
		if events[i].ID == "" {
			events[i].ID = r.id("evt")
		}
		r.events = append(r.events, events[i])
	}
	return nil
}

func (r *memRepo) InsertImportedEvents(_ context.Context, events []model.EventInstance) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.insertCalls++
	if r.failInsert != nil {
		return 0, r.failInsert
	}
	var n int64
	for i := range events {
		if r.hasExternal(events[i]) {
			continue
		}
		events[i].ID = r.id("evt")
		r.events = append(r.events, events[i])
		n++
	}
	return n, nil
}

func (r *memRepo) hasExternal(e model.EventInstance) bool {
	for _, x := range r.events {
		if x.ExternalUID != "" && x.OwnerID == e.OwnerID && x.ExternalUID == e.ExternalUID && x.Start.Equal(e.Start) {
			return true
		}
	}
	return false
}

func (r *memRepo) ListEvents(_ context.Context, f store.EventFilter) ([]model.EventInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.EventInstance, 0)
	for _, e := range r.events {
		switch {
		case e.OwnerID != f.OwnerID,
			f.SeriesID != "" && e.SeriesID != f.SeriesID,
			f.TaskID != "" && e.LinkedTaskID != f.TaskID,
			f.HomeID != "" && e.LinkedHomeID != f.HomeID,
			f.From != nil && e.Start.Before(*f.From),
			f.To != nil && e.Start.After(*f.To):
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *memRepo) GetEvent(_ context.Context, ownerID, id string) (model.EventInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.OwnerID == ownerID && e.ID == id {
			return e, nil
		}
	}
	return model.EventInstance{}, store.ErrNotFound
}

func (r *memRepo) DeleteEvent(_ context.Context, ownerID, id string) error {
	n := r.remove(func(e model.EventInstance) bool { return e.OwnerID == ownerID && e.ID == id })
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *memRepo) DeleteSeries(_ context.Context, ownerID, seriesID string) (int64, error) {
	n := r.remove(func(e model.EventInstance) bool { return e.OwnerID == ownerID && e.SeriesID == seriesID })
	if n == 0 {
		return 0, store.ErrNotFound
	}
	return n, nil
}

func (r *memRepo) remove(match func(model.EventInstance) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	var n int64
	for _, e := range r.events {
		if match(e) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return n
}

func (r *memRepo) InsertHome(_ context.Context, h *model.Home) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	h.ID = r.id("home")
	h.CreatedAt = time.Now().UTC()
	r.homes = append(r.homes, *h)
	return nil
}

func (r *memRepo) ListHomes(_ context.Context, ownerID string) ([]model.Home, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Home, 0)
	for _, h := range r.homes {
		if h.OwnerID == ownerID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (r *memRepo) GetHome(_ context.Context, ownerID, id string) (model.Home, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range r.homes {
		if h.OwnerID == ownerID && h.ID == id {
			return h, nil
		}
	}
	return model.Home{}, store.ErrNotFound
}

func (r *memRepo) InsertTask(_ context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.ID = r.id("task")
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.tasks = append(r.tasks, *t)
	return nil
}

func (r *memRepo) ListTasks(_ context.Context, f store.TaskFilter) ([]model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]model.Task, 0)
	for _, t := range r.tasks {
		if t.OwnerID != f.OwnerID || (f.HomeID != "" && t.HomeID != f.HomeID) {
			continue
		}
		if f.Completed != nil && t.Completed != *f.Completed {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *memRepo) GetTask(_ context.Context, ownerID, id string) (model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.tasks {
		if t.OwnerID == ownerID && t.ID == id {
			return t, nil
		}
	}
	return model.Task{}, store.ErrNotFound
}

func (r *memRepo) SetTaskCompleted(_ context.Context, ownerID, id string, completed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.tasks {
		if r.tasks[i].OwnerID == ownerID && r.tasks[i].ID == id {
			r.tasks[i].Completed = completed
			r.tasks[i].UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return store.ErrNotFound
}
