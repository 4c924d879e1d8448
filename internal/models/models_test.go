package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeValid(t *testing.T) {
	assert.True(t, EventEntry.Valid())
	assert.True(t, EventExit.Valid())
	assert.True(t, EventContentView.Valid())
	assert.False(t, EventType("teleport").Valid())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("root").Valid())
}

func TestUserIsAdmin(t *testing.T) {
	var nilUser *User
	assert.False(t, nilUser.IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
}

func TestJSONMapScanValue(t *testing.T) {
	m := JSONMap{"color": "#ff0000", "floor": float64(2)}
	v, err := m.Value()
	require.NoError(t, err)

	var scanned JSONMap
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, m, scanned)

	var fromBytes JSONMap
	require.NoError(t, fromBytes.Scan([]byte(`{"a":true}`)))
	assert.Equal(t, true, fromBytes["a"])

	var empty JSONMap
	require.NoError(t, empty.Scan(nil))
	assert.Nil(t, empty)

	assert.Error(t, empty.Scan(42))
}
