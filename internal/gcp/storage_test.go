package gcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("EXPJOBS_TEST_SET", "value")
	t.Setenv("EXPJOBS_TEST_EMPTY", "")

	assert.Equal(t, "value", GetEnv("EXPJOBS_TEST_SET", "fallback"))
	assert.Equal(t, "", GetEnv("EXPJOBS_TEST_EMPTY", "fallback"))
	assert.Equal(t, "fallback", GetEnv("EXPJOBS_TEST_UNSET", "fallback"))
}
