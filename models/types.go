package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client roles.
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// Client represents a connected WebSocket client
type Client struct {
	Conn *websocket.Conn
	// Buffered channel for outbound messages
	Send chan []byte

	ClientID string
	Role     string // "student" or "teacher"
	// TeacherID is the teacher this connection is bound to: the student's
	// assigned teacher, or the teacher's own identity.
	TeacherID string
	// DisplayName is shown to followers (teachers only).
	DisplayName string
	LastSeen    time.Time

	// We use a RWMutex specifically for client state to allow
	// high-speed concurrent reads of client status
	mu sync.RWMutex
}

func (c *Client) UpdateLastSeen() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LastSeen = time.Now()
}

// Bind attaches an identity to the connection. Called from the
// connection's read goroutine when a command first names the client.
func (c *Client) Bind(role, clientID, teacherID, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Role = role
	c.ClientID = clientID
	c.TeacherID = teacherID
	c.DisplayName = displayName
}

// Binding returns the connection's identity fields.
func (c *Client) Binding() (role, clientID, teacherID string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Role, c.ClientID, c.TeacherID
}

// TrySend queues data for delivery, dropping it if the client's send
// buffer is full. Reports whether the message was queued.
func (c *Client) TrySend(data []byte) bool {
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// Message is the wire envelope for every frame in both directions.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals a payload into a wire-ready envelope.
func NewMessage(typ string, payload interface{}) ([]byte, error) {
	msg := Message{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Data = data
	}
	return json.Marshal(msg)
}

// Session is the snapshot of one teacher's live lesson. Mutated only by
// the owning teacher's session actor; everyone else sees copies.
type Session struct {
	TeacherID       string `json:"teacherId"`
	TeacherUsername string `json:"teacherUsername"`
	LessonID        string `json:"lessonId"`
	LessonTitle     string `json:"lessonTitle"`
	CurrentStep     int    `json:"currentStep"`
	TotalSteps      int    `json:"totalSteps"`
	RoomID          string `json:"roomId"`
}
