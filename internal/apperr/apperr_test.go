package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(ErrBind, "listen on %s failed", "0.0.0.0:80")
	assert.Equal(t, ErrBind, err.Code())
	assert.Contains(t, err.Error(), "listen on 0.0.0.0:80 failed")
}

func TestWrapPreservesParentForUnwrap(t *testing.T) {
	parent := errors.New("connection refused")
	err := Wrap(ErrListen, parent)

	assert.ErrorIs(t, err, parent)
	assert.Equal(t, ErrListen, CodeOf(err))
}

func TestCodeOfUnknownErrorIsUnknown(t *testing.T) {
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
}

func TestWrapMsgIncludesBothMessageAndParent(t *testing.T) {
	parent := errors.New("disk full")
	err := WrapMsg(ErrConfigLoad, parent, "reading %s", "config.toml")

	assert.Contains(t, err.Error(), "reading config.toml")
	assert.Contains(t, err.Error(), "disk full")
}
