package domain

import "fmt"

// VersionInfo contains build-time version information
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

// String renders the version the way `chatledger version` prints it
func (v VersionInfo) String() string {
	return fmt.Sprintf("chatledger version %s\ncommit: %s\nbuilt at: %s", v.Version, v.Commit, v.Date)
}
