package gate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryable_StructuredCodes(t *testing.T) {
	assert.True(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.True(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrLocked}))

	assert.False(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrConstraint}))
	assert.False(t, IsRetryable(sqlite3.Error{Code: sqlite3.ErrCorrupt}))
}

func TestIsRetryable_StructuredCodeIsAuthoritative(t *testing.T) {
	// A structured non-contention code stays non-retryable even when the
	// surrounding message mentions locking.
	err := fmt.Errorf("database is locked cleanup failed: %w",
		sqlite3.Error{Code: sqlite3.ErrConstraint})
	assert.False(t, IsRetryable(err))
}

func TestIsRetryable_WrappedStructuredCode(t *testing.T) {
	err := fmt.Errorf("write wallet: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	assert.True(t, IsRetryable(err))
}

func TestIsRetryable_MessageVocabulary(t *testing.T) {
	cases := []struct {
		msg  string
		want bool
	}{
		{"database is locked", true},
		{"DATABASE IS LOCKED", true},
		{"exec: database table is locked", true},
		{"driver: SQLITE_BUSY (5)", true},
		{"database busy, try again", true},
		{"UNIQUE constraint failed: wallets.id", false},
		{"no such table: wallets", false},
		{"i/o error", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsRetryable(errors.New(tc.msg)), "message %q", tc.msg)
	}
}

func TestIsRetryable_Nil(t *testing.T) {
	assert.False(t, IsRetryable(nil))
}
