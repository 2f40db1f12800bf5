package handlers

import (
	"lessonsync/models"
	"lessonsync/server"
	"lessonsync/utils"
)

func HandleSubscribe(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	var p models.SubscribePayload
	if err := decode(msg, &p); err != nil {
		logger.Warn("student:subscribe rejected: " + err.Error())
		sendErr(client, "invalid student:subscribe payload")
		return
	}

	// Keep the transport-assigned id unless the student names itself.
	studentID := p.StudentID
	if studentID == "" {
		studentID = client.ClientID
	}
	client.Bind(models.RoleStudent, studentID, p.TeacherID, "")

	registry.Subscribe(client, p.TeacherID)
	logger.Infof("student %s subscribed to teacher %s", studentID, p.TeacherID)
}

func HandleJoinLesson(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	if role, _, _ := client.Binding(); role != models.RoleStudent {
		sendErr(client, server.ErrNotSubscribed.Error())
		return
	}

	var p models.JoinLessonPayload
	if err := decode(msg, &p); err != nil {
		sendErr(client, "invalid student:join_lesson payload")
		return
	}

	registry.JoinLesson(client, p.TeacherID, p.LessonID)
}

func HandleLeaveLesson(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	if role, _, _ := client.Binding(); role != models.RoleStudent {
		sendErr(client, server.ErrNotSubscribed.Error())
		return
	}

	var p models.LeaveLessonPayload
	if err := decode(msg, &p); err != nil {
		sendErr(client, "invalid student:leave_lesson payload")
		return
	}

	registry.LeaveLesson(client, p.TeacherID, p.LessonID)
}

func HandleSubmitAnswer(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	role, _, teacherID := client.Binding()
	if role != models.RoleStudent {
		sendErr(client, server.ErrNotSubscribed.Error())
		return
	}

	var p models.SubmitAnswerPayload
	if err := decode(msg, &p); err != nil {
		sendErr(client, "invalid student:submit_answer payload")
		return
	}

	registry.RelayAnswer(client, teacherID, p.LessonID, p.StepNumber, p.IsCorrect)
}
