package validation

import (
	"database/sql"
	"fmt"
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"
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

// RequireID checks a required foreign key is set.
func RequireID(ve *ValidationErrors, field string, value int64) {
	if value <= 0 {
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

// ValidateDate checks a field is a valid date (YYYY-MM-DD).
func ValidateDate(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := time.Parse("2006-01-02", value)
	if err != nil {
		ve.Add(field, "must be a valid date (YYYY-MM-DD)")
	}
}

// ValidatePositiveFloat checks a field is > 0.
func ValidatePositiveFloat(ve *ValidationErrors, field string, value float64) {
	if value <= 0 {
		ve.Add(field, "must be a positive number")
	}
}

// ValidateNonNegativeFloat checks a field is >= 0.
func ValidateNonNegativeFloat(ve *ValidationErrors, field string, value float64) {
	if value < 0 {
		ve.Add(field, "must be non-negative")
	}
}

// ValidateOptionalNonNegative checks an optional number is >= 0 when set.
func ValidateOptionalNonNegative(ve *ValidationErrors, field string, value *float64) {
	if value != nil && *value < 0 {
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
// Prices are in VND.
const (
	MaxQuantity     = 1000000.0
	MaxPrice        = 100000000000.0
	MaxPercentage   = 100.0
	MaxStringLength = 10000
)

// ValidateMaxQuantity checks quantity doesn't exceed reasonable maximum.
func ValidateMaxQuantity(ve *ValidationErrors, field string, value float64) {
	if value > MaxQuantity {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed quantity of %.0f", MaxQuantity))
	}
}

// ValidateMaxPrice checks price doesn't exceed reasonable maximum.
func ValidateMaxPrice(ve *ValidationErrors, field string, value float64) {
	if value > MaxPrice {
		ve.Add(field, fmt.Sprintf("exceeds maximum allowed price of %.0f", MaxPrice))
	}
}

// ValidatePercentage checks a value is a valid percentage (0-100).
func ValidatePercentage(ve *ValidationErrors, field string, value float64) {
	if value < 0 || value > MaxPercentage {
		ve.Add(field, "must be between 0 and 100")
	}
}

// ValidateVATRate checks the rate is one of the Vietnamese VAT brackets.
func ValidateVATRate(ve *ValidationErrors, field string, value float64) {
	for _, r := range ValidVATRates {
		if value == r {
			return
		}
	}
	ve.Add(field, "must be one of: 0, 5, 8, 10")
}

// ValidateEmail checks a field is a valid email (if non-empty).
func ValidateEmail(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	_, err := mail.ParseAddress(value)
	if err != nil {
		ve.Add(field, "must be a valid email address")
	}
}

// ValidateMaxLength checks string doesn't exceed max length.
func ValidateMaxLength(ve *ValidationErrors, field, value string, max int) {
	if len(value) > max {
		ve.Add(field, fmt.Sprintf("must be at most %d characters", max))
	}
}

// PhonePattern accepts digits with optional leading + and common separators.
var PhonePattern = regexp.MustCompile(`^\+?[0-9][0-9 .\-]{7,18}$`)

// ValidatePhone validates a phone number (if non-empty).
func ValidatePhone(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !PhonePattern.MatchString(value) {
		ve.Add(field, "must be a valid phone number")
	}
}

// TaxCodePattern matches a Vietnamese enterprise tax code (10 digits, optional 3-digit branch suffix).
var TaxCodePattern = regexp.MustCompile(`^[0-9]{10}(-[0-9]{3})?$`)

// ValidateTaxCode validates a tax code field (if non-empty).
func ValidateTaxCode(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !TaxCodePattern.MatchString(value) {
		ve.Add(field, "must be 10 digits, optionally followed by -NNN")
	}
}

// CodePattern matches valid product codes (letters, numbers, hyphens, dots, slashes).
var CodePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9\-_./]*$`)

// ValidateCode validates a product code field.
func ValidateCode(ve *ValidationErrors, field, value string) {
	if value == "" {
		return
	}
	if !CodePattern.MatchString(value) {
		ve.Add(field, "must contain only letters, numbers, hyphens, underscores, dots and slashes")
	}
}

// HasReferences checks if a record is referenced by other tables.
func HasReferences(db *sql.DB, id int64, refs []struct{ Table, Col string }) bool {
	for _, ref := range refs {
		var count int
		db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s=?", ref.Table, ref.Col), id).Scan(&count)
		if count > 0 {
			return true
		}
	}
	return false
}

// ValidateForeignKey checks that a referenced record exists.
func ValidateForeignKey(ve *ValidationErrors, db *sql.DB, field, table string, id int64) {
	if id <= 0 {
		return
	}
	var count int
	err := db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id=?", table), id).Scan(&count)
	if err != nil || count == 0 {
		ve.Add(field, fmt.Sprintf("references non-existent %s: %d", table, id))
	}
}

// Import upload limits.
const (
	MaxImportSize = 20 * 1024 * 1024
)

// ImportExtensions is the whitelist of spreadsheet formats accepted for import.
var ImportExtensions = []string{".xlsx"}

// ValidateImportUpload validates an uploaded workbook's size and name.
func ValidateImportUpload(ve *ValidationErrors, filename string, size int64) {
	if size == 0 {
		ve.Add("file", "cannot be empty (0 bytes)")
		return
	}
	if size > MaxImportSize {
		ve.Add("file", fmt.Sprintf("exceeds maximum size of %d MB", MaxImportSize/(1024*1024)))
		return
	}
	if strings.Contains(filename, "..") || strings.ContainsAny(filename, "/\\\x00") {
		ve.Add("filename", "contains invalid path characters")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	for _, ok := range ImportExtensions {
		if ext == ok {
			return
		}
	}
	ve.Add("filename", fmt.Sprintf("file type not allowed: %q (allowed: %s)", ext, strings.Join(ImportExtensions, ", ")))
}
