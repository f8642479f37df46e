package config

import (
	"testing"

	viper "github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestAdminDirectory(t *testing.T) {
	v := viper.New()
	v.Set("admin.identities", []string{"1001", " 1002 "})
	dir := NewAdminDirectory(v)

	assert.True(t, dir.IsAdmin("1001"))
	assert.True(t, dir.IsAdmin("1002"))
	assert.False(t, dir.IsAdmin("2002"))
	assert.False(t, dir.IsAdmin(""))

	t.Run("reflects live changes", func(t *testing.T) {
		v.Set("admin.identities", []string{"2002"})
		assert.True(t, dir.IsAdmin("2002"))
		assert.False(t, dir.IsAdmin("1001"))
	})

	t.Run("comma separated values", func(t *testing.T) {
		v.Set("admin.identities", "3003,3004")
		assert.Equal(t, []string{"3003", "3004"}, dir.Identities())
	})
}
