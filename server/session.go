package server

import (
	"time"

	"github.com/google/uuid"

	"lessonsync/models"
	"lessonsync/utils"
)

// sessionActor owns everything mutable about one teacher: the live
// session record, the teacher's directory entry, and the bound teacher
// connection. All of it is touched only from the actor's own goroutine,
// which drains the command queue one entry at a time. That single-writer
// discipline is what gives subscribers a per-teacher ordering guarantee
// without any locking around the session itself, and it keeps a
// subscribe queued before a disconnect from re-adding the student to
// the directory afterwards.
type sessionActor struct {
	teacherID string

	cmds chan func()
	done chan struct{}

	dir    *Directory
	logger *utils.Logger

	// actor-goroutine state, never touched from outside
	teacher *models.Client
	session *models.Session
}

func newSessionActor(teacherID string, dir *Directory, logger *utils.Logger, buf int) *sessionActor {
	a := &sessionActor{
		teacherID: teacherID,
		cmds:      make(chan func(), buf),
		done:      make(chan struct{}),
		dir:       dir,
		logger:    logger,
	}
	go a.run()
	return a
}

func (a *sessionActor) run() {
	for {
		select {
		case fn := <-a.cmds:
			fn()
		case <-a.done:
			return
		}
	}
}

func (a *sessionActor) stop() {
	close(a.done)
}

// cast enqueues a command without waiting for it.
func (a *sessionActor) cast(fn func()) {
	select {
	case a.cmds <- fn:
	case <-a.done:
	}
}

// call enqueues a command and waits for its result.
func (a *sessionActor) call(fn func() error) error {
	errc := make(chan error, 1)
	a.cast(func() { errc <- fn() })
	select {
	case err := <-errc:
		return err
	case <-a.done:
		return nil
	}
}

// --- commands, run on the actor goroutine ---

func (a *sessionActor) startLesson(teacherName, lessonID, lessonTitle string, totalSteps int) (*models.Session, error) {
	if totalSteps < 1 {
		return nil, ErrInvalidStep
	}
	// Starting a new lesson implicitly ends any prior one: followers must
	// see the old lesson end before the new one appears.
	if a.session != nil {
		a.endLesson(models.EndReasonReplaced)
	}
	a.session = &models.Session{
		TeacherID:       a.teacherID,
		TeacherUsername: teacherName,
		LessonID:        lessonID,
		LessonTitle:     lessonTitle,
		CurrentStep:     1,
		TotalSteps:      totalSteps,
		RoomID:          uuid.NewString(),
	}
	a.logger.Infof("teacher %s started lesson %s (%d steps)", a.teacherID, lessonID, totalSteps)
	a.broadcast(models.EvtLessonAvailable, a.snapshot())
	return a.snapshot(), nil
}

func (a *sessionActor) advanceStep(step int) error {
	if a.session == nil {
		return ErrNoActiveSession
	}
	if step < 1 || step > a.session.TotalSteps {
		return ErrInvalidStep
	}
	a.session.CurrentStep = step
	a.broadcast(models.EvtLessonStepChanged, models.StepChanged{
		LessonID:  a.session.LessonID,
		Step:      step,
		ChangedAt: time.Now().UTC(),
	})
	return nil
}

// endLesson clears the session and tells every subscriber. Ending when
// no session is live is a no-op, not an error.
func (a *sessionActor) endLesson(reason string) {
	if a.session == nil {
		return
	}
	ended := models.LessonEnded{
		LessonID: a.session.LessonID,
		Reason:   reason,
		EndedAt:  time.Now().UTC(),
	}
	a.logger.Infof("teacher %s ended lesson %s (%s)", a.teacherID, a.session.LessonID, reason)
	a.session = nil
	a.broadcast(models.EvtLessonEnded, ended)
}

// subscribe registers the student and immediately answers with the
// current snapshot (or null), so late joiners never miss the fact that
// a lesson is already in progress.
func (a *sessionActor) subscribe(c *models.Client) {
	a.dir.Add(a.teacherID, c)
	a.sendTo(c, models.EvtSubscriptionConfirmed, models.SubscriptionConfirmed{
		TeacherID:    a.teacherID,
		ActiveLesson: a.snapshot(),
	})
}

// join answers the requesting student directly with the full snapshot.
// Following lives in the student's own state: lifecycle and step events
// are subscriber-wide broadcasts, and lesson:left is a direct reply, so
// the server keeps no follower registry of its own.
func (a *sessionActor) join(c *models.Client, lessonID string) {
	if !a.dir.Contains(a.teacherID, c) {
		a.sendErr(c, ErrNotSubscribed)
		return
	}
	if a.session == nil || a.session.LessonID != lessonID {
		a.sendErr(c, ErrStaleLesson)
		return
	}
	a.sendTo(c, models.EvtLessonState, a.snapshot())
}

func (a *sessionActor) leave(c *models.Client) {
	a.sendTo(c, models.EvtLessonLeft, struct{}{})
}

// relayAnswer forwards a student's answer report to the teacher's
// connection. Nothing is stored; if the teacher is gone the report is
// dropped silently.
func (a *sessionActor) relayAnswer(c *models.Client, lessonID string, step int, correct bool) {
	if a.session == nil || a.session.LessonID != lessonID {
		a.sendErr(c, ErrStaleLesson)
		return
	}
	if a.teacher == nil {
		return
	}
	_, studentID, _ := c.Binding()
	a.sendTo(a.teacher, models.EvtStudentAnswer, models.AnswerReport{
		StudentID:  studentID,
		LessonID:   lessonID,
		StepNumber: step,
		IsCorrect:  correct,
	})
}

func (a *sessionActor) attachTeacher(c *models.Client) {
	if a.teacher != nil && a.teacher != c {
		a.logger.Warnf("teacher %s reconnected, replacing previous connection", a.teacherID)
		close(a.teacher.Send)
	}
	a.teacher = c
	// A reconnecting teacher learns its own live state back.
	if a.session != nil {
		a.sendTo(c, models.EvtLessonState, a.snapshot())
	}
}

func (a *sessionActor) detachTeacher(c *models.Client) {
	if a.teacher != c {
		return
	}
	a.teacher = nil
	a.endLesson(models.EndReasonTeacherDisconnected)
	close(c.Send)
}

// dropStudent forgets a disconnected student. Removal runs here, on the
// same queue as subscribe, so a subscribe still in flight when the
// student disconnects can never re-add it afterwards. Closing Send
// tears the write pump down; nothing targets the client once it is out
// of the directory.
func (a *sessionActor) dropStudent(c *models.Client) {
	a.dir.Remove(a.teacherID, c)
	close(c.Send)
}

// --- delivery helpers ---

func (a *sessionActor) snapshot() *models.Session {
	if a.session == nil {
		return nil
	}
	cp := *a.session
	return &cp
}

func (a *sessionActor) broadcast(typ string, payload interface{}) {
	data, err := models.NewMessage(typ, payload)
	if err != nil {
		a.logger.Errorf("marshal %s: %v", typ, err)
		return
	}
	for _, sub := range a.dir.Subscribers(a.teacherID) {
		if !sub.TrySend(data) {
			a.logger.Warnf("subscriber %s send buffer full, dropping %s", sub.ClientID, typ)
		}
	}
}

func (a *sessionActor) sendTo(c *models.Client, typ string, payload interface{}) {
	data, err := models.NewMessage(typ, payload)
	if err != nil {
		a.logger.Errorf("marshal %s: %v", typ, err)
		return
	}
	if !c.TrySend(data) {
		a.logger.Warnf("client %s send buffer full, dropping %s", c.ClientID, typ)
	}
}

func (a *sessionActor) sendErr(c *models.Client, err error) {
	a.sendTo(c, models.EvtError, models.ErrorPayload{Message: err.Error()})
}
