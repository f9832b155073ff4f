package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"tally/internal/core"
)

// fakeStore is an in-memory TemplateStore and InstanceStore. It mirrors the
// SQLite repository's semantics closely enough for service tests: the
// (template, date) pair is unique, BatchInsert skips collisions, and
// UpdateTemplate leaves the bookmark alone.
type fakeStore struct {
	mu        sync.Mutex
	templates map[int64]core.RecurringTemplate
	instances map[int64]core.TransactionInstance
	nextID    int64

	// error injection
	listErr      error
	bookmarkErr  error
	existsErrFor int64 // template id whose existence checks fail

	// raceDates simulates a concurrent run winning the insert race for these
	// instanceKey values: the existence check misses them, the insert skips.
	raceDates map[string]bool

	bookmarkCalls int
}

func newFakeStore(templates ...core.RecurringTemplate) *fakeStore {
	s := &fakeStore{
		templates: make(map[int64]core.RecurringTemplate),
		instances: make(map[int64]core.TransactionInstance),
	}
	for _, t := range templates {
		s.templates[t.ID] = t
	}
	return s
}

func instanceKey(templateID int64, date core.Date) string {
	return fmt.Sprintf("%d|%s", templateID, date)
}

// seed places an instance directly, bypassing BatchInsert bookkeeping.
func (s *fakeStore) seed(i core.TransactionInstance) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	i.ID = s.nextID
	s.instances[i.ID] = i
	return i.ID
}

func (s *fakeStore) template(id int64) core.RecurringTemplate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.templates[id]
}

// instancesOf returns the template's instances ordered by date.
func (s *fakeStore) instancesOf(templateID int64) []core.TransactionInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.TransactionInstance
	for _, i := range s.instances {
		if i.TemplateID == templateID {
			out = append(out, i)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Date.Before(out[b].Date) })
	return out
}

func (s *fakeStore) instanceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// TemplateStore

func (s *fakeStore) ListActiveDueBefore(_ context.Context, windowEnd core.Date) ([]core.RecurringTemplate, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringTemplate
	for _, t := range s.templates {
		if t.IsActive && (t.NextGeneration.IsZero() || !t.NextGeneration.After(windowEnd)) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (s *fakeStore) UpdateBookmark(_ context.Context, id int64, lastGenerated, nextGeneration core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookmarkCalls++
	if s.bookmarkErr != nil {
		return s.bookmarkErr
	}
	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %d not found", id)
	}
	t.LastGenerated = lastGenerated
	t.NextGeneration = nextGeneration
	s.templates[id] = t
	return nil
}

func (s *fakeStore) UpdateTemplate(_ context.Context, t core.RecurringTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.templates[t.ID]
	if !ok {
		return fmt.Errorf("template %d not found", t.ID)
	}
	// Bookmark and pause flag are not user-editable.
	t.LastGenerated = old.LastGenerated
	t.NextGeneration = old.NextGeneration
	t.IsActive = old.IsActive
	s.templates[t.ID] = t
	return nil
}

func (s *fakeStore) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.templates[id]
	if !ok {
		return fmt.Errorf("template %d not found", id)
	}
	t.IsActive = active
	s.templates[id] = t
	return nil
}

func (s *fakeStore) DeleteTemplateRow(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.templates, id)
	return nil
}

// InstanceStore

func (s *fakeStore) ExistsForTemplateOnDate(_ context.Context, templateID int64, date core.Date) (bool, error) {
	if s.existsErrFor != 0 && s.existsErrFor == templateID {
		return false, fmt.Errorf("injected existence failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, i := range s.instances {
		if i.TemplateID == templateID && i.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) BatchInsert(_ context.Context, instances []core.TransactionInstance) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	taken := make(map[string]bool)
	for _, i := range s.instances {
		if i.TemplateID != 0 {
			taken[instanceKey(i.TemplateID, i.Date)] = true
		}
	}
	var inserted []int64
	for _, i := range instances {
		k := instanceKey(i.TemplateID, i.Date)
		if taken[k] || s.raceDates[k] {
			continue
		}
		taken[k] = true
		s.nextID++
		i.ID = s.nextID
		s.instances[i.ID] = i
		inserted = append(inserted, i.ID)
	}
	return inserted, nil
}

func (s *fakeStore) LatestGeneratedDate(_ context.Context, templateID int64) (core.Date, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest core.Date
	for _, i := range s.instances {
		if i.TemplateID == templateID && i.IsGenerated && i.Date.After(latest) {
			latest = i.Date
		}
	}
	return latest, nil
}

func (s *fakeStore) DeleteFutureGenerated(_ context.Context, templateID int64, after core.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, i := range s.instances {
		if i.TemplateID == templateID && i.IsGenerated && i.Date.After(after) {
			delete(s.instances, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) DeleteFutureLinked(_ context.Context, templateID int64, after core.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, i := range s.instances {
		if i.TemplateID == templateID && i.Date.After(after) {
			delete(s.instances, id)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) UnlinkThrough(_ context.Context, templateID int64, through core.Date) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, i := range s.instances {
		if i.TemplateID == templateID && !i.Date.After(through) {
			i.TemplateID = 0
			s.instances[id] = i
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) Detach(_ context.Context, instanceID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.instances[instanceID]
	if !ok {
		return fmt.Errorf("instance %d not found", instanceID)
	}
	i.TemplateID = 0
	s.instances[instanceID] = i
	return nil
}

// fakePublisher records published instance ids.
type fakePublisher struct {
	mu  sync.Mutex
	ids []int64
	err error
}

func (p *fakePublisher) PublishInstanceSync(_ context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, id)
	return nil
}

func (p *fakePublisher) published() []int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]int64, len(p.ids))
	copy(out, p.ids)
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
