package config

import (
	"strings"

	viper "github.com/spf13/viper"
)

// AdminDirectory answers admin lookups from live configuration, so edits
// to admin.identities apply once viper reloads the file
type AdminDirectory struct {
	v *viper.Viper
}

// NewAdminDirectory creates an admin directory backed by v
func NewAdminDirectory(v *viper.Viper) *AdminDirectory {
	return &AdminDirectory{v: v}
}

// IsAdmin reports whether identity is on the allow-list
func (d *AdminDirectory) IsAdmin(identity string) bool {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return false
	}
	for _, id := range d.Identities() {
		if id == identity {
			return true
		}
	}
	return false
}

// Identities returns the configured admin identities. Comma separated
// environment values are accepted.
func (d *AdminDirectory) Identities() []string {
	var out []string
	for _, entry := range d.v.GetStringSlice("admin.identities") {
		for _, id := range strings.Split(entry, ",") {
			if id = strings.TrimSpace(id); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}
