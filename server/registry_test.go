package server

import (
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lessonsync/models"
	"lessonsync/utils"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	logger := utils.NewLoggerTo(io.Discard)
	logger.SetLevel(utils.ERROR)
	r := NewRegistry(NewDirectory(), logger, 64)
	t.Cleanup(r.Close)
	return r
}

func newStudent(id, teacherID string) *models.Client {
	return &models.Client{
		Send:      make(chan []byte, 64),
		ClientID:  id,
		Role:      models.RoleStudent,
		TeacherID: teacherID,
	}
}

func newTeacherConn(id string) *models.Client {
	return &models.Client{
		Send:      make(chan []byte, 64),
		ClientID:  id,
		Role:      models.RoleTeacher,
		TeacherID: id,
	}
}

func recv(t *testing.T, c *models.Client) models.Message {
	t.Helper()
	select {
	case data := <-c.Send:
		var msg models.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
	return models.Message{}
}

func recvType(t *testing.T, c *models.Client, typ string) models.Message {
	t.Helper()
	msg := recv(t, c)
	require.Equal(t, typ, msg.Type)
	return msg
}

func noMsg(t *testing.T, c *models.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func unmarshalInto(t *testing.T, msg models.Message, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Data, dst))
}

func TestSubscribeWithoutLesson(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")

	r.Subscribe(s, "t1")

	var p models.SubscriptionConfirmed
	unmarshalInto(t, recvType(t, s, models.EvtSubscriptionConfirmed), &p)
	assert.Equal(t, "t1", p.TeacherID)
	assert.Nil(t, p.ActiveLesson)
}

// A student subscribing after the lesson started must learn the current
// state from the confirmation alone, without any step-changed replay.
func TestLateSubscriberSeesSnapshot(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.StartLesson("t1", "Ms. Rivera", "algebra-1", "Algebra I", 5)
	require.NoError(t, err)
	require.NoError(t, r.AdvanceStep("t1", 4))

	b := newStudent("b", "t1")
	r.Subscribe(b, "t1")

	var p models.SubscriptionConfirmed
	unmarshalInto(t, recvType(t, b, models.EvtSubscriptionConfirmed), &p)
	require.NotNil(t, p.ActiveLesson)
	assert.Equal(t, 4, p.ActiveLesson.CurrentStep)
	assert.Equal(t, "algebra-1", p.ActiveLesson.LessonID)
	noMsg(t, b)
}

func TestStartLessonBroadcastsAvailable(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	sess, err := r.StartLesson("t1", "Ms. Rivera", "algebra-1", "Algebra I", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, sess.CurrentStep)
	assert.NotEmpty(t, sess.RoomID)

	var got models.Session
	unmarshalInto(t, recvType(t, s, models.EvtLessonAvailable), &got)
	assert.Equal(t, "algebra-1", got.LessonID)
	assert.Equal(t, 1, got.CurrentStep)
	assert.Equal(t, 5, got.TotalSteps)
	assert.Equal(t, "Ms. Rivera", got.TeacherUsername)
}

func TestAdvanceStepValidation(t *testing.T) {
	r := newTestRegistry(t)

	err := r.AdvanceStep("t1", 2)
	assert.ErrorIs(t, err, ErrNoActiveSession)

	_, err = r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)

	assert.ErrorIs(t, r.AdvanceStep("t1", 0), ErrInvalidStep)
	assert.ErrorIs(t, r.AdvanceStep("t1", 4), ErrInvalidStep)
	assert.NoError(t, r.AdvanceStep("t1", 3))
}

func TestStartLessonRejectsZeroSteps(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StartLesson("t1", "", "algebra-1", "", 0)
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestEndLessonIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	// No live session: no broadcast, no error.
	r.EndLesson("t1", "whatever")
	noMsg(t, s)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	r.EndLesson("t1", "done")
	var ended models.LessonEnded
	unmarshalInto(t, recvType(t, s, models.EvtLessonEnded), &ended)
	assert.Equal(t, "algebra-1", ended.LessonID)
	assert.Equal(t, "done", ended.Reason)
	assert.False(t, ended.EndedAt.IsZero())

	// Second end is a no-op.
	r.EndLesson("t1", "done")
	noMsg(t, s)
}

// Starting a new lesson while one is live ends the old one first, in
// that order, on every subscriber's stream.
func TestReplaceBroadcastsEndedThenAvailable(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	_, err = r.StartLesson("t1", "", "geometry-2", "", 4)
	require.NoError(t, err)

	var ended models.LessonEnded
	unmarshalInto(t, recvType(t, s, models.EvtLessonEnded), &ended)
	assert.Equal(t, "algebra-1", ended.LessonID)
	assert.Equal(t, models.EndReasonReplaced, ended.Reason)

	var avail models.Session
	unmarshalInto(t, recvType(t, s, models.EvtLessonAvailable), &avail)
	assert.Equal(t, "geometry-2", avail.LessonID)
	assert.Equal(t, 1, avail.CurrentStep)
}

func TestJoinRequiresSubscription(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)

	s := newStudent("a", "t1")
	r.JoinLesson(s, "t1", "algebra-1")

	var p models.ErrorPayload
	unmarshalInto(t, recvType(t, s, models.EvtError), &p)
	assert.Equal(t, ErrNotSubscribed.Error(), p.Message)
}

func TestJoinStaleLesson(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	// The teacher has moved on from this lesson id.
	r.JoinLesson(s, "t1", "algebra-0")
	var p models.ErrorPayload
	unmarshalInto(t, recvType(t, s, models.EvtError), &p)
	assert.Equal(t, ErrStaleLesson.Error(), p.Message)

	// No session at all is stale too.
	r.EndLesson("t1", "")
	recvType(t, s, models.EvtLessonEnded)
	r.JoinLesson(s, "t1", "algebra-1")
	unmarshalInto(t, recvType(t, s, models.EvtError), &p)
	assert.Equal(t, ErrStaleLesson.Error(), p.Message)
}

func TestJoinThenLeave(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	r.JoinLesson(s, "t1", "algebra-1")
	var state models.Session
	unmarshalInto(t, recvType(t, s, models.EvtLessonState), &state)
	assert.Equal(t, 1, state.CurrentStep)

	r.LeaveLesson(s, "t1", "algebra-1")
	recvType(t, s, models.EvtLessonLeft)

	// Leaving does not unsubscribe: broadcasts keep arriving.
	require.NoError(t, r.AdvanceStep("t1", 2))
	var step models.StepChanged
	unmarshalInto(t, recvType(t, s, models.EvtLessonStepChanged), &step)
	assert.Equal(t, 2, step.Step)
}

func TestRelayAnswerReachesTeacherOnly(t *testing.T) {
	r := newTestRegistry(t)
	teacher := newTeacherConn("t1")
	r.AttachTeacher(teacher, "t1")

	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	r.RelayAnswer(s, "t1", "algebra-1", 3, true)

	var report models.AnswerReport
	unmarshalInto(t, recvType(t, teacher, models.EvtStudentAnswer), &report)
	assert.Equal(t, "a", report.StudentID)
	assert.Equal(t, "algebra-1", report.LessonID)
	assert.Equal(t, 3, report.StepNumber)
	assert.True(t, report.IsCorrect)

	// The relay changes nothing for the student.
	noMsg(t, s)
}

func TestRelayAnswerStaleLesson(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	r.RelayAnswer(s, "t1", "algebra-0", 3, true)
	var p models.ErrorPayload
	unmarshalInto(t, recvType(t, s, models.EvtError), &p)
	assert.Equal(t, ErrStaleLesson.Error(), p.Message)
}

func TestRelayAnswerDroppedWhenTeacherGone(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	// No teacher connection bound: best-effort means silent drop, not an
	// error back to the student.
	r.RelayAnswer(s, "t1", "algebra-1", 2, false)
	noMsg(t, s)
}

func TestTeacherDisconnectEndsLesson(t *testing.T) {
	r := newTestRegistry(t)
	teacher := newTeacherConn("t1")
	r.AttachTeacher(teacher, "t1")

	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	r.DetachTeacher(teacher, "t1")
	var ended models.LessonEnded
	unmarshalInto(t, recvType(t, s, models.EvtLessonEnded), &ended)
	assert.Equal(t, models.EndReasonTeacherDisconnected, ended.Reason)
}

func TestTeacherReconnectGetsStateBack(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	require.NoError(t, r.AdvanceStep("t1", 2))

	teacher := newTeacherConn("t1")
	r.AttachTeacher(teacher, "t1")

	var state models.Session
	unmarshalInto(t, recvType(t, teacher, models.EvtLessonState), &state)
	assert.Equal(t, 2, state.CurrentStep)
}

func TestTeachersAreIndependent(t *testing.T) {
	r := newTestRegistry(t)
	a := newStudent("a", "t1")
	b := newStudent("b", "t2")
	r.Subscribe(a, "t1")
	r.Subscribe(b, "t2")
	recvType(t, a, models.EvtSubscriptionConfirmed)
	recvType(t, b, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)

	recvType(t, a, models.EvtLessonAvailable)
	noMsg(t, b)
}

// Every subscriber observes step changes in the order the teacher
// applied them.
func TestStepOrderingPerTeacher(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	_, err := r.StartLesson("t1", "", "algebra-1", "", 5)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)

	steps := []int{2, 3, 2, 4, 5}
	for _, step := range steps {
		require.NoError(t, r.AdvanceStep("t1", step))
	}

	for _, want := range steps {
		var p models.StepChanged
		unmarshalInto(t, recvType(t, s, models.EvtLessonStepChanged), &p)
		assert.Equal(t, want, p.Step)
	}
}

// A student that disconnects while its subscribe is still queued must
// not linger in the directory: the removal rides the same actor queue
// as the add, so it always lands second.
func TestDisconnectDuringQueuedSubscribe(t *testing.T) {
	r := newTestRegistry(t)

	for i := 0; i < 200; i++ {
		s := newStudent(fmt.Sprintf("s%d", i), "t1")
		r.Subscribe(s, "t1")
		r.Unsubscribe(s, "t1")
	}

	require.Eventually(t, func() bool {
		return r.dir.Count("t1") == 0
	}, time.Second, 5*time.Millisecond, "disconnected students remained in the directory")

	// The churn leaves the teacher fully usable for the next subscriber.
	s := newStudent("fresh", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)
	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	recvType(t, s, models.EvtLessonAvailable)
	assert.Equal(t, 1, r.dir.Count("t1"))
}

func awaitSendClosed(t *testing.T, c *models.Client) {
	t.Helper()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-c.Send:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond, "Send channel was never closed")
}

// Teardown must close the client's Send channel so the write pump exits
// immediately rather than waiting for its next ping to fail.
func TestUnsubscribeClosesSend(t *testing.T) {
	r := newTestRegistry(t)
	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	recvType(t, s, models.EvtSubscriptionConfirmed)

	r.Unsubscribe(s, "t1")
	awaitSendClosed(t, s)
}

func TestDetachTeacherClosesSend(t *testing.T) {
	r := newTestRegistry(t)
	teacher := newTeacherConn("t1")
	r.AttachTeacher(teacher, "t1")

	r.DetachTeacher(teacher, "t1")
	awaitSendClosed(t, teacher)
}

func TestTeacherReplacementClosesOldConnection(t *testing.T) {
	r := newTestRegistry(t)
	old := newTeacherConn("t1")
	r.AttachTeacher(old, "t1")

	replacement := newTeacherConn("t1")
	r.AttachTeacher(replacement, "t1")
	awaitSendClosed(t, old)

	// The stale connection's own teardown must not end the session or
	// touch the replacement.
	_, err := r.StartLesson("t1", "", "algebra-1", "", 3)
	require.NoError(t, err)
	r.DetachTeacher(old, "t1")

	s := newStudent("a", "t1")
	r.Subscribe(s, "t1")
	var conf models.SubscriptionConfirmed
	unmarshalInto(t, recvType(t, s, models.EvtSubscriptionConfirmed), &conf)
	require.NotNil(t, conf.ActiveLesson)
	assert.Equal(t, "algebra-1", conf.ActiveLesson.LessonID)
}

// The full walkthrough: subscribe, start, join, advance, answer, end.
func TestLessonLifecycleScenario(t *testing.T) {
	r := newTestRegistry(t)
	teacher := newTeacherConn("t1")
	r.AttachTeacher(teacher, "t1")

	a := newStudent("a", "t1")
	r.Subscribe(a, "t1")
	var conf models.SubscriptionConfirmed
	unmarshalInto(t, recvType(t, a, models.EvtSubscriptionConfirmed), &conf)
	require.Nil(t, conf.ActiveLesson)

	_, err := r.StartLesson("t1", "Ms. Rivera", "algebra-1", "Algebra I", 5)
	require.NoError(t, err)
	var avail models.Session
	unmarshalInto(t, recvType(t, a, models.EvtLessonAvailable), &avail)
	require.Equal(t, 1, avail.CurrentStep)

	r.JoinLesson(a, "t1", "algebra-1")
	var state models.Session
	unmarshalInto(t, recvType(t, a, models.EvtLessonState), &state)
	require.Equal(t, 1, state.CurrentStep)

	require.NoError(t, r.AdvanceStep("t1", 3))
	var step models.StepChanged
	unmarshalInto(t, recvType(t, a, models.EvtLessonStepChanged), &step)
	require.Equal(t, 3, step.Step)

	r.RelayAnswer(a, "t1", "algebra-1", 3, true)
	var report models.AnswerReport
	unmarshalInto(t, recvType(t, teacher, models.EvtStudentAnswer), &report)
	require.Equal(t, 3, report.StepNumber)
	require.True(t, report.IsCorrect)
	noMsg(t, a)

	r.EndLesson("t1", "")
	var ended models.LessonEnded
	unmarshalInto(t, recvType(t, a, models.EvtLessonEnded), &ended)
	require.Equal(t, "algebra-1", ended.LessonID)
}
