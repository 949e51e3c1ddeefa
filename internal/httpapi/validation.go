package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/mesh-intelligence/lawcascade/pkg/types"
)

var registerOnce sync.Once

// registerValidators adds the lawid tag to gin's validator engine.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("lawid", validateLawID)
	})
}

// validateLawID accepts identifiers that types.LawID.Validate accepts.
func validateLawID(fl validator.FieldLevel) bool {
	return types.LawID(fl.Field().String()).Validate() == nil
}

// bindingMessage renders a bind error as one line naming each failed field.
func bindingMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "lawid":
			msgs = append(msgs, fmt.Sprintf("%s: invalid law identifier %q", fe.Namespace(), fe.Value()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s]", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}
