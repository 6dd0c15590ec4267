package store

import (
	"errors"
	"log/slog"
	"time"

	"github.com/healthspend/apiserver/internal/docstore"
)

var (
	// ErrNotFound is returned when a record does not exist or is not owned by
	// the caller.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate is returned when a record conflicts with a unique index.
	ErrDuplicate = errors.New("duplicate record")
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// naiveTimeLayout matches timestamps written without a zone; they are read as UTC.
const naiveTimeLayout = "2006-01-02T15:04:05.999999999"

// normalizeTime returns t at the precision it is stored with.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func formatTime(t time.Time) string {
	return normalizeTime(t).Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	t, err := time.ParseInLocation(naiveTimeLayout, s, time.UTC)
	if err != nil {
		slog.Warn("unparseable stored timestamp", "value", s, "error", err)
		return time.Time{}
	}
	return t.UTC()
}

func mapErr(err error) error {
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, docstore.ErrDuplicate):
		return ErrDuplicate
	default:
		return err
	}
}
