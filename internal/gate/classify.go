package gate

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"
)

// lockPhrases is the fixed vocabulary of contention messages checked when
// an error carries no structured SQLite result code. Matching is
// case-insensitive substring.
var lockPhrases = []string{
	"database is locked",
	"database table is locked",
	"database busy",
	"sqlite_busy",
	"sqlite_locked",
}

// IsRetryable reports whether err represents transient store contention.
//
// Classification order:
//  1. A structured sqlite3.Error result code: retryable only for
//     SQLITE_BUSY and SQLITE_LOCKED. A structured code is authoritative -
//     other codes are never retried, regardless of message text.
//  2. Otherwise, a case-insensitive substring match of the error message
//     against the fixed lock/busy vocabulary.
//
// Everything else (constraint violations, schema errors, caller bugs,
// I/O failures) is non-retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range lockPhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}
	return false
}
