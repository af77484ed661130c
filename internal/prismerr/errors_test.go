package prismerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodeMapping(t *testing.T) {
	cases := map[Kind]int{
		KindNotFound:            1,
		KindInvalidInput:        1,
		KindConflict:            1,
		KindExternalUnavailable: 3,
		KindConfigurationMissing: 2,
		KindCancelled:           0,
		KindInvariantViolation:  4,
	}
	for kind, want := range cases {
		assert.Equal(t, want, kind.ExitCode(), "kind=%s", kind)
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("board down")
	err := ExternalUnavailable(cause, "fetch task %s", "b-42")

	require.Error(t, err)
	assert.True(t, Is(err, KindExternalUnavailable))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindExternalUnavailable, KindOf(err))
}

func TestKindOfDefaultsToInvalidInputForUnclassifiedErrors(t *testing.T) {
	plain := errors.New("boom")
	assert.Equal(t, KindInvalidInput, KindOf(plain))
}

func TestWithMetaChains(t *testing.T) {
	err := NotFound("skill %s missing", "jwt-refresh").WithMeta("skill_id", "jwt-refresh")
	assert.Equal(t, "jwt-refresh", err.Meta["skill_id"])
}
