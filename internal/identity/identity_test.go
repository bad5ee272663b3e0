package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserIdentity(t *testing.T) {
	id := User("u1")
	assert.True(t, id.IsAuthenticated())
	assert.True(t, id.Valid())
	assert.Equal(t, "user:u1", id.Key())
	assert.Equal(t, ClassAuthenticated, id.Class())
	assert.Equal(t, "u1", id.UserID())
}

func TestAnonymousIdentity(t *testing.T) {
	id := Anonymous("203.0.113.5")
	assert.False(t, id.IsAuthenticated())
	assert.True(t, id.Valid())
	assert.Equal(t, "ip:203.0.113.5", id.Key())
	assert.Equal(t, ClassAnonymous, id.Class())
	assert.Empty(t, id.UserID())
}

func TestZeroIdentityIsInvalid(t *testing.T) {
	var id Identity
	assert.False(t, id.Valid())
}
