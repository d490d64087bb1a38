package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ppiankov/codepatrol/internal/models"
)

// MaxRuns bounds the ?last= window.
const MaxRuns = 365

// Finding statuses accepted by ?status=.
const (
	StatusOpen  = "open"
	StatusFixed = "fixed"
)

// ParseLast reads the ?last= parameter. Empty means def.
func ParseLast(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("last must be an integer")
	}
	if n < 1 || n > MaxRuns {
		return 0, fmt.Errorf("last must be between 1 and %d", MaxRuns)
	}
	return n, nil
}

// ParseKind reads the ?kind= filter. Empty means every kind.
func ParseKind(raw string) (models.FindingKind, error) {
	switch k := models.FindingKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case "", models.KindDependency, models.KindSecret, models.KindStatic:
		return k, nil
	default:
		return "", fmt.Errorf("unsupported kind %q (must be dependency, secret, or static)", raw)
	}
}

// ParseStatus reads the ?status= filter. Empty means both.
func ParseStatus(raw string) (string, error) {
	switch s := strings.ToLower(strings.TrimSpace(raw)); s {
	case "", StatusOpen, StatusFixed:
		return s, nil
	default:
		return "", fmt.Errorf("unsupported status %q (must be open or fixed)", raw)
	}
}
