package errors

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestError(t *testing.T) {
	t.Run("Message", func(t *testing.T) {
		tests := []struct {
			name string
			err  *Error
			want string
			code ErrorCode
		}{
			{"directory", DirectoryNotFound("/tmp/x"), "unable to find directory /tmp/x", ErrDirectoryNotFound},
			{"table", TableNotFound("users"), `unable to find table "users"`, ErrTableNotFound},
			{"key", KeyNotFound("users", "u1"), `unable to find key "u1" in table "users"`, ErrKeyNotFound},
			{"validation", Validation("field %q", "age"), `field "age"`, ErrValidationFailed},
			{"type", TypeMismatch("must be an object"), "must be an object", ErrTypeMismatch},
			{"name", InvalidName("a/b", "contains a path separator"), `invalid table name "a/b": contains a path separator`, ErrInvalidName},
			{"storage", Storage("failed to write", fs.ErrPermission), "failed to write: permission denied", ErrStorageError},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				if got := tt.err.Error(); got != tt.want {
					t.Errorf("Error() = %q, want %q", got, tt.want)
				}
				if got := tt.err.Code(); got != tt.code {
					t.Errorf("Code() = %q, want %q", got, tt.code)
				}
			})
		}
	})

	t.Run("Details", func(t *testing.T) {
		err := KeyNotFound("users", "u1").WithDetail("extra", 1)
		d := err.Details()
		if d["table"] != "users" || d["key"] != "u1" || d["extra"] != 1 {
			t.Errorf("unexpected details: %v", d)
		}
	})

	t.Run("CodeOf", func(t *testing.T) {
		wrapped := fmt.Errorf("write users: %w", Validation("bad"))
		if got := CodeOf(wrapped); got != ErrValidationFailed {
			t.Errorf("CodeOf() = %q, want %q", got, ErrValidationFailed)
		}
		if got := CodeOf(stderrors.New("plain")); got != "" {
			t.Errorf("CodeOf(plain) = %q, want empty", got)
		}
		if got := CodeOf(nil); got != "" {
			t.Errorf("CodeOf(nil) = %q, want empty", got)
		}
	})

	t.Run("Is", func(t *testing.T) {
		err := fmt.Errorf("ctx: %w", TableNotFound("users"))
		if !stderrors.Is(err, New(ErrTableNotFound, "")) {
			t.Error("expected errors.Is to match on code")
		}
		if stderrors.Is(err, New(ErrKeyNotFound, "")) {
			t.Error("expected errors.Is not to match a different code")
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		err := Storage("failed to read", fs.ErrNotExist)
		if !stderrors.Is(err, fs.ErrNotExist) {
			t.Error("expected wrapped error to be reachable")
		}
	})
}
