package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapabilitiesByRole(t *testing.T) {
	staff := Identity{Username: "clerk", Role: RoleStaff}
	admin := Identity{Username: "admin", Role: RoleAdmin}
	super := Identity{Username: "captain", Role: RoleSuperadmin}

	assert.False(t, staff.HasCapability(CapManageTemplates))
	assert.False(t, staff.HasCapability(CapBypassSignature))
	assert.False(t, staff.Elevated())

	assert.True(t, admin.HasCapability(CapManageTemplates))
	assert.True(t, admin.HasCapability(CapReissue))
	assert.False(t, admin.HasCapability(CapBypassSignature))
	assert.True(t, admin.Elevated())

	assert.True(t, super.HasCapability(CapBypassSignature))
	assert.True(t, super.Elevated())
}

func TestJWTRoundTrip(t *testing.T) {
	v := NewJWTValidator("test-key")

	token, err := v.Mint(Identity{Username: "admin2", Role: RoleAdmin})
	require.NoError(t, err)

	id, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "admin2", id.Username)
	assert.Equal(t, RoleAdmin, id.Role)
}

func TestJWTRejectsWrongKey(t *testing.T) {
	minter := NewJWTValidator("key-a")
	token, err := minter.Mint(Identity{Username: "u", Role: RoleStaff})
	require.NoError(t, err)

	_, err = NewJWTValidator("key-b").Validate(token)
	assert.Error(t, err)
}

func TestJWTUnknownRoleFallsBackToStaff(t *testing.T) {
	v := NewJWTValidator("k")
	token, err := v.Mint(Identity{Username: "u", Role: Role("auditor")})
	require.NoError(t, err)

	id, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, RoleStaff, id.Role)
}
