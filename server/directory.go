package server

import (
	"sync"

	"lessonsync/models"
)

// Directory maps each teacher identity to the set of student connections
// currently subscribed to it. Each teacher's actor adds and removes its
// own subscribers, but different teachers' actors run concurrently, so
// every broadcast iterates over a snapshot copy rather than the live set.
type Directory struct {
	mu   sync.RWMutex
	subs map[string]map[*models.Client]struct{}
}

func NewDirectory() *Directory {
	return &Directory{
		subs: make(map[string]map[*models.Client]struct{}),
	}
}

func (d *Directory) Add(teacherID string, c *models.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.subs[teacherID]
	if !ok {
		set = make(map[*models.Client]struct{})
		d.subs[teacherID] = set
	}
	set[c] = struct{}{}
}

func (d *Directory) Remove(teacherID string, c *models.Client) {
	d.mu.Lock()
	defer d.mu.Unlock()
	set, ok := d.subs[teacherID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(d.subs, teacherID)
	}
}

func (d *Directory) Contains(teacherID string, c *models.Client) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.subs[teacherID][c]
	return ok
}

// Subscribers returns a copy of the subscriber set for one teacher.
func (d *Directory) Subscribers(teacherID string) []*models.Client {
	d.mu.RLock()
	defer d.mu.RUnlock()
	set := d.subs[teacherID]
	out := make([]*models.Client, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	return out
}

func (d *Directory) Count(teacherID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subs[teacherID])
}
