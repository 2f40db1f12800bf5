package handlers

import (
	"lessonsync/models"
	"lessonsync/server"
	"lessonsync/utils"
)

func HandleTeacherConnect(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	var p models.TeacherConnectPayload
	if err := decode(msg, &p); err != nil {
		logger.Warn("teacher:connect rejected: " + err.Error())
		sendErr(client, "invalid teacher:connect payload")
		return
	}

	client.Bind(models.RoleTeacher, p.TeacherID, p.TeacherID, p.TeacherName)
	registry.AttachTeacher(client, p.TeacherID)
	logger.Infof("teacher connected: %s", p.TeacherID)
}

func HandleStartLesson(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	role, _, teacherID := client.Binding()
	if role != models.RoleTeacher {
		sendErr(client, "not connected as a teacher")
		return
	}

	var p models.StartLessonPayload
	if err := decode(msg, &p); err != nil {
		sendErr(client, "invalid teacher:start_lesson payload")
		return
	}

	if _, err := registry.StartLesson(teacherID, client.DisplayName, p.LessonID, p.LessonTitle, p.TotalSteps); err != nil {
		sendErr(client, err.Error())
	}
}

func HandleAdvanceStep(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	role, _, teacherID := client.Binding()
	if role != models.RoleTeacher {
		sendErr(client, "not connected as a teacher")
		return
	}

	var p models.AdvanceStepPayload
	if err := decode(msg, &p); err != nil {
		sendErr(client, "invalid teacher:advance_step payload")
		return
	}

	if err := registry.AdvanceStep(teacherID, p.Step); err != nil {
		sendErr(client, err.Error())
	}
}

func HandleEndLesson(client *models.Client, msg models.Message, registry *server.Registry, logger *utils.Logger) {
	role, _, teacherID := client.Binding()
	if role != models.RoleTeacher {
		sendErr(client, "not connected as a teacher")
		return
	}

	var p models.EndLessonPayload
	if len(msg.Data) > 0 {
		if err := decode(msg, &p); err != nil {
			sendErr(client, "invalid teacher:end_lesson payload")
			return
		}
	}

	registry.EndLesson(teacherID, p.Reason)
}
