package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoreAliasesResolve(t *testing.T) {
	r := New("/opt/serclient")

	restart := r.Lookup("restart")
	assert.True(t, restart.Valid())
	assert.True(t, restart.Blocking)
	assert.Equal(t, "/opt/serclient/internals/restart", restart.FullPath)

	osinfo := r.Lookup("osinfo")
	assert.True(t, osinfo.Valid())
	assert.False(t, osinfo.Blocking)
	assert.True(t, osinfo.Upgradeable)

	modulemng := r.Lookup("modulemng")
	assert.True(t, modulemng.Valid())
	assert.False(t, modulemng.Blocking)
}

func TestUnknownAliasIsInvalid(t *testing.T) {
	r := New("/opt/serclient")
	m := r.Lookup("frobnicate")
	assert.False(t, m.Valid())
}

func TestAliasOfTakesFirstToken(t *testing.T) {
	assert.Equal(t, "osinfo", AliasOf("osinfo --verbose"))
	assert.Equal(t, "restart", AliasOf("restart"))
	assert.Equal(t, "", AliasOf("   "))
}

func TestLookupCommandUsesFirstToken(t *testing.T) {
	r := New("")
	m := r.LookupCommand("osinfo --verbose now")
	assert.True(t, m.Valid())
	assert.Equal(t, "osinfo", m.Alias)
}
