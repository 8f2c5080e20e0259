package config

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
)

// modelPattern accepts identifiers such as gemini-2.0-flash or models/gemini-1.5-pro-002
var modelPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]*(/[A-Za-z0-9][A-Za-z0-9._:-]*)*$`)

func newValidator() (*validator.Validate, ut.Translator, error) {
	validate := validator.New()

	enLocale := en.New()
	uni := ut.New(enLocale, enLocale)
	trans, _ := uni.GetTranslator("en")
	if err := enTranslations.RegisterDefaultTranslations(validate, trans); err != nil {
		return nil, nil, fmt.Errorf("failed to register default translations: %w", err)
	}

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := validate.RegisterValidation("model", isModelIdentifier); err != nil {
		return nil, nil, fmt.Errorf("failed to register model validation: %w", err)
	}
	if err := validate.RegisterTranslation("model", trans, func(ut ut.Translator) error {
		return ut.Add("model", "{0} must be a model identifier like gemini-2.0-flash", true)
	}, func(ut ut.Translator, fe validator.FieldError) string {
		t, _ := ut.T("model", strings.TrimPrefix(fe.Namespace(), "Config."))
		return t
	}); err != nil {
		return nil, nil, fmt.Errorf("failed to register model translation: %w", err)
	}

	return validate, trans, nil
}

func isModelIdentifier(fl validator.FieldLevel) bool {
	return modelPattern.MatchString(fl.Field().String())
}
