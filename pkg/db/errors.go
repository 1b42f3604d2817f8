package db

import "strings"

// IsUniqueViolation reports whether the provided error is a unique constraint
// violation. When constraintName is provided and appears in the error text the
// match is exact; otherwise any unique violation qualifies (sqlite, used in
// tests, does not name indexes in its error message).
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	if constraintName != "" && strings.Contains(msg, constraintName) {
		return true
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
