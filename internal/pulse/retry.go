package pulse

import (
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	maxAttempts  = 3
	retryBackoff = 25 * time.Millisecond
)

// withRetry runs fn up to maxAttempts times, retrying only transient
// storage failures. Safe because every mutating operation in this package
// is idempotent.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(retryBackoff * time.Duration(attempt))
		}
		err = fn()
		if err == nil || !errors.Is(err, ErrTransient) {
			return err
		}
	}
	return err
}

// classifyStorageErr folds driver-level contention into ErrTransient and
// leaves domain errors untouched.
func classifyStorageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrInvalidReveal) ||
		errors.Is(err, ErrTransient) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if isContention(err) {
		return errors.Join(ErrTransient, err)
	}
	return err
}

// isContention matches the duplicate-key and busy errors the supported
// drivers surface when concurrent writers collide on a unique index.
func isContention(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "deadlock")
}
