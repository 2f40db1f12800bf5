package handlers

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"lessonsync/models"
)

var validate = validator.New()

// decode unmarshals a command payload and checks its validate tags.
func decode(msg models.Message, dst interface{}) error {
	if err := json.Unmarshal(msg.Data, dst); err != nil {
		return err
	}
	return validate.Struct(dst)
}

// sendErr answers the offending client only; protocol errors never
// escalate past the connection they came from.
func sendErr(client *models.Client, message string) {
	data, err := models.NewMessage(models.EvtError, models.ErrorPayload{Message: message})
	if err != nil {
		return
	}
	client.TrySend(data)
}
