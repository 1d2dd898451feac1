package validation

import (
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
)

// ValidationError represents a structured validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects multiple field errors.
type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (ve *ValidationErrors) Add(field, message string) {
	ve.Errors = append(ve.Errors, ValidationError{Field: field, Message: message})
}

func (ve *ValidationErrors) HasErrors() bool {
	return len(ve.Errors) > 0
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		msgs[i] = e.Field + ": " + e.Message
	}
	return strings.Join(msgs, "; ")
}

// RequireField checks a required string field is non-empty.
func RequireField(ve *ValidationErrors, field, value string) {
	if strings.TrimSpace(value) == "" {
		ve.Add(field, "is required")
	}
}

// ValidateEnum checks a field is one of allowed values.
func ValidateEnum(ve *ValidationErrors, field, value string, allowed []string) {
	if value == "" {
		return
	}
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	ve.Add(field, fmt.Sprintf("must be one of: %s", strings.Join(allowed, ", ")))
}

// ValidateEnumList checks every element of values is allowed.
func ValidateEnumList(ve *ValidationErrors, field string, values, allowed []string) {
	before := len(ve.Errors)
	for _, v := range values {
		ValidateEnum(ve, field, v, allowed)
		if len(ve.Errors) > before {
			return
		}
	}
}

// ValidateEmail checks value is a single bare address.
func ValidateEmail(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value || !strings.Contains(value[strings.LastIndex(value, "@")+1:], ".") {
		ve.Add(field, "must be a valid email address")
	}
}

// NormalizeEmail trims and lowercases an email address.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidatePhone checks value is an E.164 number.
func ValidatePhone(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !phonePattern.MatchString(value) {
		ve.Add(field, "must be an E.164 phone number like +12065550100")
	}
}

// ValidatePositiveInt checks a field is > 0.
func ValidatePositiveInt(ve *ValidationErrors, field string, value int) {
	if value <= 0 {
		ve.Add(field, "must be a positive integer")
	}
}

// ValidateNonNegativeInt checks a field is >= 0.
func ValidateNonNegativeInt(ve *ValidationErrors, field string, value int) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateIntRange checks a field is within a specified range.
func ValidateIntRange(ve *ValidationErrors, field string, value, min, max int) {
	if value < min || value > max {
		ve.Add(field, fmt.Sprintf("must be between %d and %d", min, max))
	}
}

// Maximum value constants to prevent overflow and ensure reasonable limits.
const (
	MaxQuantity     = 1000000
	MaxStringLength = 10000
	MaxNameLength   = 200
)

// ValidateMaxQuantity checks quantity doesn't exceed reasonable maximum.
func ValidateMaxQuantity(ve *ValidationErrors, field string, value int) {
	if value > MaxQuantity {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %d", MaxQuantity))
	}
}

func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// SKUPattern matches valid SKUs (letters, numbers, hyphens, underscores, dots).
var SKUPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_.]*$`)

func ValidateSKU(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !SKUPattern.MatchString(value) {
		ve.Add(field, "must contain only letters, numbers, hyphens, underscores, and dots")
	}
}

// Upload limits for bulk restock files.
const (
	MaxUploadSize = 5 * 1024 * 1024
)

// UploadExtensions lists the spreadsheet types accepted for bulk restock.
var UploadExtensions = []string{".csv", ".xlsx"}

// ValidateUpload validates an uploaded spreadsheet's name and size.
func ValidateUpload(ve *ValidationErrors, filename string, size int64) {
	if size == 0 {
		ve.Add("file", "cannot be empty (0 bytes)")
		return
	}
	if size > MaxUploadSize {
		ve.Add("file", fmt.Sprintf("exceeds maximum size of %d MB", MaxUploadSize/(1024*1024)))
		return
	}
	ValidateFilename(ve, filename)
	ext := strings.ToLower(filepath.Ext(filename))
	for _, ok := range UploadExtensions {
		if ext == ok {
			return
		}
	}
	ve.Add("filename", fmt.Sprintf("file type not allowed: %q (allowed: %s)", ext, strings.Join(UploadExtensions, ", ")))
}

// ValidateFilename checks for path traversal and malicious characters.
func ValidateFilename(ve *ValidationErrors, filename string) {
	if filename == "" {
		ve.Add("filename", "is required")
		return
	}
	if strings.Contains(filename, "..") {
		ve.Add("filename", "contains invalid path traversal sequence (..)")
	}
	if strings.HasPrefix(filename, "/") || strings.HasPrefix(filename, "\\") {
		ve.Add("filename", "cannot be an absolute path")
	}
	if strings.Contains(filename, "\x00") {
		ve.Add("filename", "contains null bytes")
	}
	if strings.ContainsAny(filename, "\r\n") {
		ve.Add("filename", "contains line breaks")
	}
}
