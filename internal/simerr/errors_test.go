package simerr

import (
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchWithErrorsIs(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind error
	}{
		{"config", Configf("std missing for %s", "beta"), ErrConfiguration},
		{"unsupported", Unsupportedf("model %q", "Probit"), ErrUnsupportedModel},
		{"assert", Assertf("length %d != %d", 1, 2), ErrAssertionFailed},
		{"dangling", Dangling("node", 7, "edge 3"), ErrDanglingReference},
		{"io", IO("read", "out.json", os.ErrNotExist), ErrIO},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.kind)
		})
	}
}

func TestIOKeepsCause(t *testing.T) {
	err := IO("read", "out.json", os.ErrNotExist)
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Contains(t, err.Error(), "out.json")
}

func TestDanglingReferenceErrorFields(t *testing.T) {
	err := Dangling("node", 42, "edge 9")
	var dre *DanglingReferenceError
	if assert.True(t, errors.As(err, &dre)) {
		assert.Equal(t, "node", dre.Kind)
		assert.Equal(t, int64(42), dre.ID)
	}
	assert.Equal(t, "dangling reference: edge 9 references unknown node 42", err.Error())
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "", Describe(nil))
	assert.Equal(t, "another job is already running for this target", Describe(ErrJobInFlight))
	assert.Contains(t, Describe(Configf("bad")), "configuration error: bad")
}
