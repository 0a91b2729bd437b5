package errs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOkReportsOnlySuccess(t *testing.T) {
	require.True(t, OK.Ok())
	require.False(t, ParamErr.Ok())
}

func TestErrorStringsAreStableAndNonEmpty(t *testing.T) {
	for code, name := range names {
		require.Equal(t, name, code.Error())
	}
}

func TestUnknownCodeFallsBackToNumeric(t *testing.T) {
	var unknown Err_t = -999
	require.Contains(t, unknown.Error(), "-999")
}

func TestErrTSatisfiesStdlibErrorInterface(t *testing.T) {
	var err error = HandleErr
	require.True(t, errors.Is(err, HandleErr))
}
