// Package env reads settings from environment variables.
package env

import (
	"os"
	"strconv"
	"time"
)

// Lookup is a getter for environment-like key/value sources.
type Lookup func(key string) (string, bool)

// OS reads the process environment.
func OS(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

func (l Lookup) Int(key string, dst *int) error {
	v, ok := l(key)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return &Error{Key: key, Value: v, Err: err}
	}
	*dst = n
	return nil
}

func (l Lookup) Duration(key string, dst *time.Duration) error {
	v, ok := l(key)
	if !ok {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare numbers are milliseconds:
		n, nerr := strconv.Atoi(v)
		if nerr != nil {
			return &Error{Key: key, Value: v, Err: err}
		}
		d = time.Duration(n) * time.Millisecond
	}
	*dst = d
	return nil
}

func (l Lookup) String(key string, dst *string) {
	if v, ok := l(key); ok {
		*dst = v
	}
}

type Error struct {
	Key   string
	Value string
	Err   error
}

func (e *Error) Error() string {
	return "env: " + e.Key + "=" + strconv.Quote(e.Value) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }
