package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/okhabit/okhabit/internal/models"
	"github.com/okhabit/okhabit/internal/routine"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate

	hexColorRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
	hhmmRe     = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)
)

func init() {
	Validate = validator.New()
	// Report fields by their JSON names.
	Validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	custom := map[string]validator.Func{
		"routine":  validateRoutine,
		"hexcolor": validateHexColor,
		"pattern":  validatePattern,
		"hhmm":     validateHHMM,
		"timezone": validateTimezone,
	}
	for tag, fn := range custom {
		if err := Validate.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("failed to register %s validator: %v", tag, err))
		}
	}
}

// validateRoutine accepts descriptors the strict routine parser understands.
func validateRoutine(fl validator.FieldLevel) bool {
	_, err := routine.Parse(fl.Field().String())
	return err == nil
}

// validateHexColor accepts #RRGGBB only.
func validateHexColor(fl validator.FieldLevel) bool {
	return hexColorRe.MatchString(fl.Field().String())
}

func validatePattern(fl validator.FieldLevel) bool {
	return models.Pattern(fl.Field().String()).Valid()
}

// validateHHMM accepts 24-hour HH:MM. An empty string clears the preference.
func validateHHMM(fl validator.FieldLevel) bool {
	v := fl.Field().String()
	return v == "" || hhmmRe.MatchString(v)
}

// validateTimezone accepts IANA names, or empty to clear. "Local" is rejected
// since it depends on the host.
func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" {
		return true
	}
	if name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}
	return sanitized.String()
}

// Message turns a validator error into a short client-facing sentence.
func Message(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok || len(verrs) == 0 {
		return "invalid request"
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "routine":
		return field + " is not a valid routine"
	case "hexcolor":
		return field + " must be #RRGGBB"
	case "pattern":
		return field + " must be solid, striped, dotted or checkered"
	case "hhmm":
		return field + " must be HH:MM"
	case "timezone":
		return field + " must be an IANA timezone"
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
