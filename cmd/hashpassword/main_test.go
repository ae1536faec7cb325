package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/deepmed-api/pkg/security"
)

func TestRun_PrintsVerifiableHash(t *testing.T) {
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	var out bytes.Buffer

	require.NoError(t, run(strings.NewReader("correct horse battery\n"), &out, hasher))

	hash := strings.TrimSpace(out.String())
	assert.NoError(t, hasher.Compare(hash, "correct horse battery"))
	assert.Error(t, hasher.Compare(hash, "correct horse battery\n"))
}

func TestRun_AcceptsInputWithoutNewline(t *testing.T) {
	hasher := security.NewBcryptHasher(bcrypt.MinCost)
	var out bytes.Buffer

	require.NoError(t, run(strings.NewReader("s3cret-pass"), &out, hasher))
	assert.NoError(t, hasher.Compare(strings.TrimSpace(out.String()), "s3cret-pass"))
}

func TestRun_RejectsShortPassword(t *testing.T) {
	var out bytes.Buffer

	err := run(strings.NewReader("short\n"), &out, security.NewBcryptHasher(bcrypt.MinCost))
	assert.ErrorIs(t, err, security.ErrPasswordTooShort)
	assert.Empty(t, out.String())
}
