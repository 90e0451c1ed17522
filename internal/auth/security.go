package auth

import (
	"errors"
	"regexp"
)

// ProductColumns whitelists the product columns that partial updates may
// set, mapped to their kind.
var ProductColumns = map[string]string{
	"code":          "text",
	"name":          "text",
	"brand":         "text",
	"machine_model": "text",
	"category":      "text",
	"unit":          "text",
	"stock":         "number",
	"cost_price":    "number",
	"sale_price":    "number",
	"supplier_id":   "id",
	"location":      "text",
	"notes":         "text",
}

var identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidateColumnName checks a product column name against the whitelist.
func ValidateColumnName(column string) error {
	if !identPattern.MatchString(column) {
		return errors.New("invalid identifier format")
	}
	if _, ok := ProductColumns[column]; !ok {
		return errors.New("unknown field: " + column)
	}
	return nil
}

var (
	hasUpper   = regexp.MustCompile(`[A-Z]`).MatchString
	hasLower   = regexp.MustCompile(`[a-z]`).MatchString
	hasNumber  = regexp.MustCompile(`[0-9]`).MatchString
	hasSpecial = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>_\-+=]`).MatchString
)

// ValidatePasswordStrength checks password complexity.
func ValidatePasswordStrength(password string) error {
	if len(password) < 10 {
		return errors.New("password must be at least 10 characters")
	}
	checks := 0
	for _, f := range []func(string) bool{hasUpper, hasLower, hasNumber, hasSpecial} {
		if f(password) {
			checks++
		}
	}
	if checks < 3 {
		return errors.New("password must contain at least 3 of: uppercase, lowercase, numbers, special characters")
	}
	return nil
}
