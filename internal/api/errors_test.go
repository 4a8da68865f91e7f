package api

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesCode(t *testing.T) {
	err := UnknownUser("activate_user", "u2")

	assert.True(t, errors.Is(err, ErrUnknownUser))
	assert.False(t, errors.Is(err, ErrUnauthorized))

	wrapped := fmt.Errorf("control surface: %w", err)
	assert.True(t, errors.Is(wrapped, ErrUnknownUser))
	assert.Equal(t, CodeUnknownUser, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, CodeUnknownUser))
}

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "code only",
			err:  &Error{Code: CodeNotConfigured},
			want: "NotConfigured",
		},
		{
			name: "op and subject",
			err:  Unauthorized("clear_user_data", "u1"),
			want: "clear_user_data: Unauthorized (u1)",
		},
		{
			name: "with cause",
			err:  InvalidIdentity("resolve_context", "", "user id is empty"),
			want: "resolve_context: InvalidIdentity: user id is empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestError_UnwrapCause(t *testing.T) {
	cause := errors.New("address already in use")
	err := NewError(CodeBindFailed, "listen", "127.0.0.1:0", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrBindFailed)
}

func TestCodeOf_ForeignError(t *testing.T) {
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain")))
	assert.Equal(t, ErrorCode(""), CodeOf(nil))
}

func TestLayoutState_Valid(t *testing.T) {
	assert.True(t, LayoutState{}.Valid())
	assert.True(t, LayoutState{Primary: "a"}.Valid())
	assert.True(t, LayoutState{Primary: "a", Secondary: "b"}.Valid())
	assert.False(t, LayoutState{Secondary: "b"}.Valid())
	assert.False(t, LayoutState{Primary: "a", Secondary: "a"}.Valid())
}

func TestPrincipal(t *testing.T) {
	assert.True(t, ControlSurface().IsControlSurface())
	p := UserPrincipal("  u1 ")
	assert.False(t, p.IsControlSurface())
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, "user:u1", p.String())
	assert.Equal(t, "none", Principal{}.String())
}
