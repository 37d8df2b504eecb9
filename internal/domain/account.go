package domain

import (
	"strings"
	"time"
)

type AuthStatus string

const (
	AuthStatusUnauthenticated AuthStatus = "unauthenticated"
	AuthStatusAuthenticated   AuthStatus = "authenticated"
	AuthStatusInvalid         AuthStatus = "invalid"
)

type Account struct {
	Name          string
	CredentialRef string
	Status        AuthStatus
	CheckedAt     time.Time
	StarsBalance  int64
	Disabled      bool
}

// CredentialSuffix marks a loadable credential blob in the credential directory.
const CredentialSuffix = ".session"

// AccountNameFromCredential returns the account name for a credential file name,
// or false when the file is not a credential blob.
func AccountNameFromCredential(fileName string) (string, bool) {
	if !strings.HasSuffix(fileName, CredentialSuffix) {
		return "", false
	}

	name := strings.TrimSuffix(fileName, CredentialSuffix)
	if strings.TrimSpace(name) == "" {
		return "", false
	}

	return name, true
}

func CredentialFileName(name string) string {
	return name + CredentialSuffix
}
