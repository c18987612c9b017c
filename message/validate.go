// File: message/validate.go
// License: Apache-2.0

package message

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/go-playground/validator.v9"

	"github.com/momentics/beatbridge/api"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterStructValidation(commandStructLevel, Command{})
	})
	return validate
}

// seek needs a non-negative position in seconds.
func commandStructLevel(sl validator.StructLevel) {
	cmd := sl.Current().Interface().(Command)
	if cmd.Command != CommandSeek {
		return
	}
	if cmd.Data == nil || cmd.Data.Position == nil {
		sl.ReportError(cmd.Data, "Data.Position", "Position", "required_for_seek", "")
		return
	}
	if *cmd.Data.Position < 0 {
		sl.ReportError(*cmd.Data.Position, "Data.Position", "Position", "min", "0")
	}
}

// Validate checks m against its field constraints.
func Validate(m Message) error {
	if m == nil {
		return api.NewError(api.ErrCodeProtocol, "nil message")
	}
	err := validatorInstance().Struct(m)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return errorFromValidation(m.Kind(), verrs)
	}
	return api.WrapError(api.ErrCodeProtocol, fmt.Sprintf("validate %s", m.Kind()), err)
}

func errorFromValidation(kind Type, verrs validator.ValidationErrors) error {
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Namespace(), fe.Tag()))
	}
	return api.NewError(api.ErrCodeProtocol, fmt.Sprintf("invalid %s message", kind)).
		WithContext("fields", strings.Join(fields, ", ")).
		WithContext("violations", len(verrs))
}
