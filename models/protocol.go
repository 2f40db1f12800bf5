package models

import "time"

// Client -> server commands.
const (
	CmdTeacherConnect = "teacher:connect"
	CmdStartLesson    = "teacher:start_lesson"
	CmdAdvanceStep    = "teacher:advance_step"
	CmdEndLesson      = "teacher:end_lesson"

	CmdSubscribe    = "student:subscribe"
	CmdJoinLesson   = "student:join_lesson"
	CmdLeaveLesson  = "student:leave_lesson"
	CmdSubmitAnswer = "student:submit_answer"
)

// Server -> client events.
const (
	EvtSubscriptionConfirmed = "subscription:confirmed"
	EvtLessonAvailable       = "lesson:available"
	EvtLessonState           = "lesson:state"
	EvtLessonStepChanged     = "lesson:step_changed"
	EvtLessonLeft            = "lesson:left"
	EvtLessonEnded           = "lesson:ended"
	EvtStudentAnswer         = "student:answer"
	EvtError                 = "error"
)

// End-of-lesson reasons emitted by the server itself.
const (
	EndReasonReplaced            = "replaced"
	EndReasonTeacherDisconnected = "teacher_disconnected"
)

// TeacherConnectPayload binds a connection as a lesson broadcaster.
type TeacherConnectPayload struct {
	TeacherID   string `json:"teacherId" validate:"required"`
	TeacherName string `json:"teacherName"`
}

type StartLessonPayload struct {
	LessonID    string `json:"lessonId" validate:"required"`
	LessonTitle string `json:"lessonTitle"`
	TotalSteps  int    `json:"totalSteps" validate:"required,min=1"`
}

type AdvanceStepPayload struct {
	Step int `json:"step" validate:"required,min=1"`
}

type EndLessonPayload struct {
	Reason string `json:"reason,omitempty"`
}

type SubscribePayload struct {
	TeacherID string `json:"teacherId" validate:"required"`
	StudentID string `json:"studentId"`
}

type JoinLessonPayload struct {
	TeacherID string `json:"teacherId" validate:"required"`
	LessonID  string `json:"lessonId" validate:"required"`
}

type LeaveLessonPayload struct {
	TeacherID string `json:"teacherId" validate:"required"`
	LessonID  string `json:"lessonId" validate:"required"`
}

type SubmitAnswerPayload struct {
	LessonID   string `json:"lessonId" validate:"required"`
	StepNumber int    `json:"stepNumber" validate:"required,min=1"`
	IsCorrect  bool   `json:"isCorrect"`
}

// SubscriptionConfirmed carries the current session snapshot (or null)
// so a late joiner learns the lesson state without a history replay.
type SubscriptionConfirmed struct {
	TeacherID    string   `json:"teacherId"`
	ActiveLesson *Session `json:"activeLesson"`
}

type StepChanged struct {
	LessonID  string    `json:"lessonId"`
	Step      int       `json:"step"`
	ChangedAt time.Time `json:"changedAt"`
}

type LessonEnded struct {
	LessonID string    `json:"lessonId"`
	Reason   string    `json:"reason,omitempty"`
	EndedAt  time.Time `json:"endedAt"`
}

// AnswerReport is relayed to the teacher's connection and never stored.
type AnswerReport struct {
	StudentID  string `json:"studentId"`
	LessonID   string `json:"lessonId"`
	StepNumber int    `json:"stepNumber"`
	IsCorrect  bool   `json:"isCorrect"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
