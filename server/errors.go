package server

import "errors"

var (
	// ErrNoActiveSession indicates a command referenced a teacher with no live lesson.
	ErrNoActiveSession = errors.New("no active lesson session for this teacher")
	// ErrInvalidStep indicates a step outside [1, totalSteps].
	ErrInvalidStep = errors.New("step is outside the lesson's step range")
	// ErrStaleLesson indicates the referenced lesson no longer matches the
	// teacher's current session (the teacher ended or replaced it).
	ErrStaleLesson = errors.New("lesson no longer matches the teacher's current session")
	// ErrNotSubscribed indicates a join without a prior successful subscribe.
	ErrNotSubscribed = errors.New("student is not subscribed to this teacher")
)
