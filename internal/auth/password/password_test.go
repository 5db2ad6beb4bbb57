package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	encoded, err := Hash("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$m=65536,t=1,p=4$"))

	assert.True(t, Verify("correct horse battery", encoded))
	assert.False(t, Verify("wrong horse battery", encoded))
	assert.False(t, Verify("correct horse battery", "$bcrypt$garbage"))
	assert.False(t, NeedsRehash(encoded))
}

func TestNeedsRehash(t *testing.T) {
	encoded, err := Hash("correct horse battery")
	require.NoError(t, err)

	weaker := strings.Replace(encoded, "m=65536", "m=32768", 1)
	assert.True(t, NeedsRehash(weaker))
	assert.True(t, NeedsRehash("not-a-hash"))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate("short"), ErrTooShort)
	assert.ErrorIs(t, Validate("   seven   "), ErrTooShort)
	assert.NoError(t, Validate("long-enough"))
}
