package orcherrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfUnwraps(t *testing.T) {
	cause := errors.New("boom")
	wrapped := fmtWrap(Source("clone failed", cause))
	require.Equal(t, KindSource, KindOf(wrapped))
}

func TestKindOfNonTaxonomyError(t *testing.T) {
	require.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestSubprocessExitMessage(t *testing.T) {
	err := SubprocessExit("terraform", 1, "no such file")
	require.Contains(t, err.Error(), "terraform")
	require.Contains(t, err.Error(), "no such file")
	require.Equal(t, KindSubprocessExit, err.Kind())
}

func fmtWrap(err error) error {
	return &wrapper{err}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }
