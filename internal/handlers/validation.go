package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9]{5,50}$`)
	validatorsOnce  sync.Once
	validatorsErr   error
)

// registerValidators adds the custom tags used in request bindings to gin's
// validator engine.
func registerValidators() error {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validatorsErr = errors.New("binding engine is not a validator.Validate")
			return
		}
		validatorsErr = registerCustomValidations(v)
	})
	return validatorsErr
}

func registerCustomValidations(v *validator.Validate) error {
	err := v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	if err != nil {
		return fmt.Errorf("register username validator: %w", err)
	}
	return nil
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func respondValidationError(c *gin.Context, err error) {
	body := gin.H{"ok": false, "code": "VALIDATION_ERROR", "message": "Datos inválidos"}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fieldError{Field: fe.Field(), Rule: fe.Tag()})
		}
		body["errors"] = fields
	}
	c.JSON(http.StatusBadRequest, body)
}
