package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ValidateJSON checks a document (raw JSON bytes) against a JSON schema
// document. Model output is untrusted; every structured reply passes through
// here before the values are used.
func ValidateJSON(document []byte, schema string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, resErr := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   resErr.Field(),
			Message: resErr.Description(),
			Code:    strings.ToUpper(resErr.Type()),
		})
	}
	return vr, nil
}

// ValidateMap validates an already-decoded document against a schema.
func ValidateMap(document map[string]interface{}, schema string) (*ValidationResult, error) {
	schemaLoader := gojsonschema.NewStringLoader(schema)
	docLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, docLoader)
	if err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	vr := &ValidationResult{Valid: result.Valid()}
	for _, resErr := range result.Errors() {
		vr.Errors = append(vr.Errors, ValidationError{
			Field:   resErr.Field(),
			Message: resErr.Description(),
			Code:    strings.ToUpper(resErr.Type()),
		})
	}
	return vr, nil
}

// GetErrorMessages returns a simple list of error messages
func (vr *ValidationResult) GetErrorMessages() []string {
	messages := make([]string, len(vr.Errors))
	for i, err := range vr.Errors {
		messages[i] = fmt.Sprintf("%s: %s", err.Field, err.Message)
	}
	return messages
}

// HasErrors checks if validation has errors for specific field
func (vr *ValidationResult) HasErrors(field string) bool {
	for _, err := range vr.Errors {
		if err.Field == field || strings.HasPrefix(err.Field, field+".") {
			return true
		}
	}
	return false
}

// ValidateActivityNaming validates activity ID follows naming convention
func ValidateActivityNaming(activityId string) error {
	namingPattern := regexp.MustCompile(`^[a-z]+(-[a-z]+)*\.[a-z]+(-[a-z]+)*\.[a-z]+(-[a-z]+)*$`)
	if !namingPattern.MatchString(activityId) {
		return fmt.Errorf("activity ID must follow format: domain.subdomain.action (e.g., drafting.announcement.analyze)")
	}
	return nil
}

// ValidateEmail validates email format
func ValidateEmail(email string) bool {
	emailPattern := regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	return emailPattern.MatchString(email)
}

// ValidatePhone validates basic phone number format
func ValidatePhone(phone string) bool {
	phonePattern := regexp.MustCompile(`^\+?[\d\s\-\(\)]{10,}$`)
	return phonePattern.MatchString(phone)
}
