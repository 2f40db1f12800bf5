package syncclient

import "sync"

// FollowMode is the contract handed to the stepper UI while a student
// mirrors a live lesson. While supplied, the stepper forces its
// displayed step to TeacherStep, disables manual navigation, routes
// "back" to OnLeave and reports completions through OnStepComplete.
type FollowMode struct {
	TeacherName    string
	TeacherStep    int
	OnLeave        func()
	OnStepComplete func(stepNumber int, isCorrect bool)
}

// DeriveFollowMode computes the follow mode for the lesson currently on
// screen. It is a pure function of its inputs: non-nil iff a lesson is
// known, the student opted into following it, and the displayed lesson
// is the broadcast one. Anything else means self-paced navigation.
func DeriveFollowMode(state FollowState, displayedLessonID string, onLeave func(), onStepComplete func(int, bool)) *FollowMode {
	if state.ActiveLesson == nil || !state.IsFollowing || state.ActiveLesson.LessonID != displayedLessonID {
		return nil
	}
	return &FollowMode{
		TeacherName:    state.ActiveLesson.TeacherUsername,
		TeacherStep:    state.ActiveLesson.CurrentStep,
		OnLeave:        onLeave,
		OnStepComplete: onStepComplete,
	}
}

// Stepper is the external multi-step lesson UI. SetFollowMode receives
// the freshly derived mode on every relevant change, nil meaning the
// student is back to navigating on their own.
type Stepper interface {
	SetFollowMode(mode *FollowMode)
}

// Adapter bridges a sync client into a Stepper. The mode is recomputed
// from scratch on every state change and on every displayed-lesson
// change rather than toggled imperatively, so navigating away from the
// broadcast lesson can never leave a stale follow mode behind.
type Adapter struct {
	client  *Client
	stepper Stepper

	mu        sync.Mutex
	displayed string
	last      FollowState
}

func NewAdapter(client *Client, stepper Stepper) *Adapter {
	a := &Adapter{client: client, stepper: stepper}
	client.SetOnChange(func(st FollowState) {
		a.mu.Lock()
		a.last = st
		displayed := a.displayed
		a.mu.Unlock()
		a.push(st, displayed)
	})
	return a
}

// SetDisplayedLesson tells the adapter which lesson the UI is showing.
func (a *Adapter) SetDisplayedLesson(lessonID string) {
	a.mu.Lock()
	a.displayed = lessonID
	st := a.last
	a.mu.Unlock()
	a.push(st, lessonID)
}

func (a *Adapter) push(st FollowState, displayed string) {
	a.stepper.SetFollowMode(DeriveFollowMode(st, displayed, a.client.LeaveLesson, a.client.SubmitAnswer))
}
