package toml

import "fmt"

const currentSchemaVersion = 1

type fileSchema struct {
	Version  int             `toml:"version"`
	Accounts []accountSchema `toml:"accounts"`
}

func (s *fileSchema) applyDefaults() {
	if s.Version == 0 {
		s.Version = currentSchemaVersion
	}
}

func (s fileSchema) validateVersion() error {
	if s.Version > currentSchemaVersion {
		return fmt.Errorf("unsupported accounts schema version %d (current %d)", s.Version, currentSchemaVersion)
	}

	return nil
}

type accountSchema struct {
	Name          string `toml:"name"`
	CredentialRef string `toml:"credential_ref"`
	Status        string `toml:"status,omitempty"`
	CheckedAt     string `toml:"checked_at,omitempty"`
	StarsBalance  int64  `toml:"stars_balance,omitempty"`
	Disabled      bool   `toml:"disabled,omitempty"`
}
