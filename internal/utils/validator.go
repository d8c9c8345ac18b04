package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationErrorDetail represents the structure of a single validation error.
type ValidationErrorDetail struct {
	Field    string      `json:"field"`
	Message  string      `json:"message"`
	Expected string      `json:"expected"`
	Received interface{} `json:"received"`
}

// ValidationErrorData represents the data field in the validation error response.
type ValidationErrorData struct {
	Errors []ValidationErrorDetail `json:"errors"`
}

func init() {
	// Report fields by their JSON name.
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(jsonTagName)
	}
}

func jsonTagName(f reflect.StructField) string {
	name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	if name == "" || name == "-" {
		return f.Name
	}
	return name
}

// BindAndValidate binds the request body to the given object and validates it.
// If validation fails, it sends a formatted error response and returns false.
// If validation succeeds, it returns true.
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	err := c.ShouldBindJSON(obj)
	if err == nil {
		return true
	}

	var validationErrors []ValidationErrorDetail
	var errs validator.ValidationErrors
	var typeErr *json.UnmarshalTypeError

	switch {
	case errors.As(err, &errs):
		for _, e := range errs {
			validationErrors = append(validationErrors, describe(e))
		}
	case errors.As(err, &typeErr):
		// Handle JSON type mismatch errors
		validationErrors = append(validationErrors, ValidationErrorDetail{
			Field:    typeErr.Field,
			Message:  fmt.Sprintf("Field '%s' has invalid type", typeErr.Field),
			Expected: typeErr.Type.String(),
			Received: typeErr.Value,
		})
	default:
		// Malformed JSON, or a value a custom unmarshaler rejected
		validationErrors = append(validationErrors, ValidationErrorDetail{
			Field:    "body",
			Message:  "Malformed JSON or invalid request body",
			Expected: "valid JSON",
			Received: "invalid",
		})
	}

	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Status:  http.StatusBadRequest,
		Message: "Invalid request parameters",
		Data:    ValidationErrorData{Errors: validationErrors},
	})
	return false
}

func describe(e validator.FieldError) ValidationErrorDetail {
	detail := ValidationErrorDetail{
		Field:    e.Field(),
		Message:  fmt.Sprintf("Field validation for '%s' failed on the '%s' tag", e.Field(), e.Tag()),
		Expected: e.Param(),
		Received: e.Value(),
	}
	if detail.Expected == "" {
		detail.Expected = e.Tag()
	}

	// Customize messages based on tag
	switch e.Tag() {
	case "required":
		detail.Message = fmt.Sprintf("Field '%s' is required", e.Field())
		detail.Expected = "not null"
	case "min":
		detail.Message = fmt.Sprintf("Field '%s' must be at least %s characters long", e.Field(), e.Param())
		detail.Expected = fmt.Sprintf("min length %s", e.Param())
	case "max":
		detail.Message = fmt.Sprintf("Field '%s' must be at most %s characters long", e.Field(), e.Param())
		detail.Expected = fmt.Sprintf("max length %s", e.Param())
	case "iso4217":
		detail.Message = fmt.Sprintf("Field '%s' must be an ISO 4217 currency code", e.Field())
		detail.Expected = "currency code, e.g. USD"
	case "oneof":
		detail.Message = fmt.Sprintf("Field '%s' must be one of: %s", e.Field(), e.Param())
	}
	return detail
}
