package server

import (
	"sync"

	"lessonsync/models"
	"lessonsync/utils"
)

// Registry is the authoritative store of live lesson sessions: at most
// one per teacher, each owned by a lazily-spawned session actor.
// Teacher-side mutations are synchronous calls so the caller learns the
// outcome; student-side operations are fire-and-forget, answered by
// events pushed over the student's connection.
type Registry struct {
	dir    *Directory
	logger *utils.Logger
	buf    int

	mu     sync.Mutex
	actors map[string]*sessionActor
	closed bool
}

func NewRegistry(dir *Directory, logger *utils.Logger, buf int) *Registry {
	if buf < 1 {
		buf = 16
	}
	return &Registry{
		dir:    dir,
		logger: logger,
		buf:    buf,
		actors: make(map[string]*sessionActor),
	}
}

func (r *Registry) actor(teacherID string) *sessionActor {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.actors[teacherID]; ok {
		return a
	}
	a := newSessionActor(teacherID, r.dir, r.logger, r.buf)
	if r.closed {
		a.stop()
	}
	r.actors[teacherID] = a
	return a
}

// Close stops every session actor. Pending commands are discarded.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for _, a := range r.actors {
		a.stop()
	}
}

// --- teacher-side operations ---

// AttachTeacher binds a connection as the session owner for teacherID.
func (r *Registry) AttachTeacher(c *models.Client, teacherID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.attachTeacher(c) })
}

// DetachTeacher unbinds the connection and ends any live lesson, since
// a lesson cannot outlive its broadcaster.
func (r *Registry) DetachTeacher(c *models.Client, teacherID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.detachTeacher(c) })
}

// StartLesson creates (or replaces) the teacher's session with the
// cursor at step 1 and broadcasts lesson:available to all subscribers.
func (r *Registry) StartLesson(teacherID, teacherName, lessonID, lessonTitle string, totalSteps int) (*models.Session, error) {
	a := r.actor(teacherID)
	var sess *models.Session
	err := a.call(func() error {
		var err error
		sess, err = a.startLesson(teacherName, lessonID, lessonTitle, totalSteps)
		return err
	})
	return sess, err
}

// AdvanceStep moves the teacher's cursor and broadcasts the change.
func (r *Registry) AdvanceStep(teacherID string, step int) error {
	a := r.actor(teacherID)
	return a.call(func() error { return a.advanceStep(step) })
}

// EndLesson clears the session and broadcasts lesson:ended. Idempotent.
func (r *Registry) EndLesson(teacherID, reason string) {
	a := r.actor(teacherID)
	_ = a.call(func() error {
		a.endLesson(reason)
		return nil
	})
}

// --- student-side operations ---

// Subscribe registers the student under teacherID and replies with
// subscription:confirmed carrying the current snapshot or null.
func (r *Registry) Subscribe(c *models.Client, teacherID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.subscribe(c) })
}

// Unsubscribe removes a disconnected student. The removal rides the
// actor's queue so it always lands after any subscribe the connection
// issued before dying; removing directly here could race a queued
// subscribe and leave a ghost directory entry behind.
func (r *Registry) Unsubscribe(c *models.Client, teacherID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.dropStudent(c) })
}

// JoinLesson opts a subscribed student into following the live lesson.
func (r *Registry) JoinLesson(c *models.Client, teacherID, lessonID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.join(c, lessonID) })
}

// LeaveLesson opts the student out of following; the subscription stays.
func (r *Registry) LeaveLesson(c *models.Client, teacherID, lessonID string) {
	a := r.actor(teacherID)
	a.cast(func() { a.leave(c) })
}

// RelayAnswer forwards an answer report to the teacher's connection.
func (r *Registry) RelayAnswer(c *models.Client, teacherID, lessonID string, step int, correct bool) {
	a := r.actor(teacherID)
	a.cast(func() { a.relayAnswer(c, lessonID, step, correct) })
}
