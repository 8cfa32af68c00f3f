package tasks

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("task_status", func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).Valid()
	})
	return v
}

// Validate trims the title and checks every required field, returning a
// validation *Error listing each offending field.
func (n *NewTask) Validate() error {
	n.Title = strings.TrimSpace(n.Title)
	if err := validate.Struct(n); err != nil {
		return fromValidatorError("create task", err)
	}
	return nil
}

func validateStatus(op string, s Status) error {
	if err := validate.Var(string(s), "required,task_status"); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return validationError(op, "invalid status",
				FieldError{Field: "status", Message: fieldMessage("status", verrs[0])})
		}
		return validationError(op, "invalid status")
	}
	return nil
}

func validateID(op string, id int64) error {
	if id <= 0 {
		return validationError(op, "invalid task id",
			FieldError{Field: "id", Message: "id must be a positive integer"})
	}
	return nil
}

func fromValidatorError(op string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return validationError(op, err.Error())
	}
	msg := "invalid task"
	fields := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			msg = "title, status and dueDateTime are required"
		}
		fields = append(fields, FieldError{Field: fe.Field(), Message: fieldMessage(fe.Field(), fe)})
	}
	return validationError(op, msg, fields...)
}

func fieldMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "task_status":
		return fmt.Sprintf("%s must be one of %s", field, statusList())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func statusList() string {
	names := make([]string, len(Statuses))
	for i, s := range Statuses {
		names[i] = string(s)
	}
	return strings.Join(names, ", ")
}
