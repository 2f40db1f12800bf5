// Package syncclient implements the student side of live lesson
// synchronization: one client per student, bound to the student's
// assigned teacher, mirroring the teacher's lesson state over a
// persistent websocket.
package syncclient

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"lessonsync/models"
	"lessonsync/utils"
)

// FollowState is the client's local view of its teacher's lesson.
// IsFollowing can only be true while ActiveLesson is non-nil.
type FollowState struct {
	ActiveLesson *models.Session
	IsFollowing  bool
	IsSubscribed bool
}

// Client maintains FollowState for one student. All state lives on a
// single actor goroutine: server pushes and user actions are queued into
// the same loop and processed to completion one at a time, so a push can
// never race a user-initiated action.
type Client struct {
	teacherID string
	studentID string
	logger    *utils.Logger

	conn   *websocket.Conn
	send   chan []byte
	events chan models.Message
	acts   chan func()
	done   chan struct{}
	once   sync.Once

	// loop-goroutine state, never touched from outside
	state    FollowState
	onChange func(FollowState)
}

func newClient(teacherID, studentID string, logger *utils.Logger) *Client {
	if logger == nil {
		logger = utils.NewLogger()
	}
	return &Client{
		teacherID: teacherID,
		studentID: studentID,
		logger:    logger,
		send:      make(chan []byte, 32),
		events:    make(chan models.Message, 32),
		acts:      make(chan func(), 32),
		done:      make(chan struct{}),
	}
}

// Dial connects to the sync server, starts the client's pumps and runs
// the subscribe handshake for the assigned teacher.
func Dial(url, teacherID, studentID string, logger *utils.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	c := newClient(teacherID, studentID, logger)
	c.conn = conn
	go c.readPump()
	go c.writePump()
	go c.loop()
	c.Subscribe()
	return c, nil
}

// SetOnChange registers the listener invoked after every state change
// and returns once it is in effect. The listener runs on the client's
// own goroutine; keep it quick.
func (c *Client) SetOnChange(fn func(FollowState)) {
	applied := make(chan struct{})
	c.do(func() {
		c.onChange = fn
		close(applied)
	})
	select {
	case <-applied:
	case <-c.done:
	}
}

// Close tears the client down. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// State returns a copy of the current follow state.
func (c *Client) State() FollowState {
	out := make(chan FollowState, 1)
	select {
	case c.acts <- func() { out <- c.state }:
	case <-c.done:
		return FollowState{}
	}
	select {
	case st := <-out:
		return st
	case <-c.done:
		return FollowState{}
	}
}

// --- user actions (fire-and-forget; state updates arrive as events) ---

// Subscribe runs the subscribe handshake. Called on connect, and again
// by the owner after a reconnect: a disconnect wipes all local state, so
// the handshake always starts from scratch.
func (c *Client) Subscribe() {
	c.do(func() {
		c.sendCmd(models.CmdSubscribe, models.SubscribePayload{
			TeacherID: c.teacherID,
			StudentID: c.studentID,
		})
	})
}

// JoinLesson opts into mirroring the current lesson. No-op when no
// lesson is known.
func (c *Client) JoinLesson() {
	c.do(func() {
		if c.state.ActiveLesson == nil || c.teacherID == "" {
			return
		}
		c.sendCmd(models.CmdJoinLesson, models.JoinLessonPayload{
			TeacherID: c.teacherID,
			LessonID:  c.state.ActiveLesson.LessonID,
		})
	})
}

// LeaveLesson opts out of following. No-op when not following.
func (c *Client) LeaveLesson() {
	c.do(func() {
		if !c.state.IsFollowing || c.state.ActiveLesson == nil {
			return
		}
		c.sendCmd(models.CmdLeaveLesson, models.LeaveLessonPayload{
			TeacherID: c.teacherID,
			LessonID:  c.state.ActiveLesson.LessonID,
		})
	})
}

// SubmitAnswer reports a step outcome to the teacher. Following is not
// required, only a known lesson: a student may answer steps the UI
// tracks without being in follow mode.
func (c *Client) SubmitAnswer(stepNumber int, isCorrect bool) {
	c.do(func() {
		if c.state.ActiveLesson == nil {
			return
		}
		c.sendCmd(models.CmdSubmitAnswer, models.SubmitAnswerPayload{
			LessonID:   c.state.ActiveLesson.LessonID,
			StepNumber: stepNumber,
			IsCorrect:  isCorrect,
		})
	})
}

// --- actor internals ---

func (c *Client) do(fn func()) {
	select {
	case c.acts <- fn:
	case <-c.done:
	}
}

func (c *Client) loop() {
	events := c.events
	for {
		select {
		case msg, ok := <-events:
			if !ok {
				// Transport died: partial state such as "following
				// without a live subscription" is unsafe to display,
				// so reset hard to Unsubscribed.
				events = nil
				c.state = FollowState{}
				c.fire()
				continue
			}
			c.handleEvent(msg)
		case fn := <-c.acts:
			fn()
		case <-c.done:
			return
		}
	}
}

func (c *Client) handleEvent(msg models.Message) {
	switch msg.Type {
	case models.EvtSubscriptionConfirmed:
		var p models.SubscriptionConfirmed
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.logger.Warn("bad subscription:confirmed payload: " + err.Error())
			return
		}
		c.state.IsSubscribed = true
		c.state.ActiveLesson = p.ActiveLesson
		c.state.IsFollowing = false
		c.fire()

	case models.EvtLessonAvailable:
		var s models.Session
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			c.logger.Warn("bad lesson:available payload: " + err.Error())
			return
		}
		// A fresh lesson always requires re-opting in.
		c.state.ActiveLesson = &s
		c.state.IsFollowing = false
		c.fire()

	case models.EvtLessonState:
		var s models.Session
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			c.logger.Warn("bad lesson:state payload: " + err.Error())
			return
		}
		c.state.ActiveLesson = &s
		c.state.IsFollowing = true
		c.fire()

	case models.EvtLessonStepChanged:
		var p models.StepChanged
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.logger.Warn("bad lesson:step_changed payload: " + err.Error())
			return
		}
		if c.state.ActiveLesson == nil || c.state.ActiveLesson.LessonID != p.LessonID {
			return
		}
		cp := *c.state.ActiveLesson
		cp.CurrentStep = p.Step
		c.state.ActiveLesson = &cp
		c.fire()

	case models.EvtLessonLeft:
		if !c.state.IsFollowing {
			return
		}
		c.state.IsFollowing = false
		c.fire()

	case models.EvtLessonEnded:
		var p models.LessonEnded
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			c.logger.Warn("bad lesson:ended payload: " + err.Error())
			return
		}
		if c.state.ActiveLesson == nil || c.state.ActiveLesson.LessonID != p.LessonID {
			return
		}
		c.state.ActiveLesson = nil
		c.state.IsFollowing = false
		c.fire()

	case models.EvtError:
		var p models.ErrorPayload
		_ = json.Unmarshal(msg.Data, &p)
		// Protocol errors are recoverable: log, leave state untouched.
		c.logger.Warnf("server error: %s", p.Message)

	default:
		c.logger.Debug("ignoring event: " + msg.Type)
	}
}

func (c *Client) fire() {
	if c.onChange != nil {
		c.onChange(c.state)
	}
}

func (c *Client) sendCmd(typ string, payload interface{}) {
	data, err := models.NewMessage(typ, payload)
	if err != nil {
		c.logger.Errorf("marshal %s: %v", typ, err)
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warnf("send buffer full, dropping %s", typ)
	}
}

// readPump feeds server frames into the event channel. The server may
// coalesce queued messages into one frame separated by newlines.
func (c *Client) readPump() {
	defer func() {
		c.conn.Close()
		close(c.events)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		for _, raw := range bytes.Split(data, []byte{'\n'}) {
			if len(bytes.TrimSpace(raw)) == 0 {
				continue
			}
			var msg models.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				c.logger.Warn("invalid server frame: " + err.Error())
				continue
			}
			select {
			case c.events <- msg:
			case <-c.done:
				return
			}
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for {
		select {
		case data := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
