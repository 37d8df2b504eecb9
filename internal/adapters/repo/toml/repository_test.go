package toml

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bnema/spin-accounts-cli/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T) (*Repository, string) {
	t.Helper()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")
	repo, err := NewRepository(accountsPath)
	require.NoError(t, err)
	return repo, accountsPath
}

func TestRepositoryRoundTrip(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	checked := time.Date(2026, 2, 14, 11, 0, 0, 0, time.UTC)

	first := domain.Account{
		Name:          "alice",
		CredentialRef: "alice.session",
		Status:        domain.AuthStatusAuthenticated,
		CheckedAt:     checked,
		StarsBalance:  350,
	}
	second := domain.Account{
		Name:          "bob",
		CredentialRef: "bob.session",
		Status:        domain.AuthStatusInvalid,
		Disabled:      true,
	}

	require.NoError(t, repo.Save(context.Background(), second))
	require.NoError(t, repo.Save(context.Background(), first))

	got, err := repo.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.Account{first, second}, accounts)
}

func TestRepositorySaveAllUpsertsByName(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, domain.Account{Name: "alice", StarsBalance: 10}))
	require.NoError(t, repo.SaveAll(ctx, []domain.Account{
		{Name: "alice", StarsBalance: 20, Status: domain.AuthStatusAuthenticated},
		{Name: "carol"},
	}))

	accounts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, int64(20), accounts[0].StarsBalance)
	assert.Equal(t, "carol.session", accounts[1].CredentialRef)
	assert.Equal(t, domain.AuthStatusUnauthenticated, accounts[1].Status)
}

func TestRepositoryReadsMinimalEntries(t *testing.T) {
	t.Parallel()

	repo, accountsPath := newTestRepository(t)
	require.NoError(t, os.WriteFile(accountsPath, []byte(strings.Join([]string{
		"version = 1",
		"",
		"[[accounts]]",
		"name = \"alice\"",
		"credential_ref = \"alice.session\"",
		"",
	}, "\n")), 0o600))

	account, err := repo.GetByName(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.AuthStatusUnauthenticated, account.Status)
	assert.True(t, account.CheckedAt.IsZero())
}

func TestRepositorySaveCreatesDirectoryAndEnforcesPermissions(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "nested", "accounts.toml")
	repo, err := NewRepository(accountsPath)
	require.NoError(t, err)

	require.NoError(t, repo.Save(context.Background(), domain.Account{Name: "alice"}))

	info, err := os.Stat(accountsPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestRepositoryMissingFileBehaviors(t *testing.T) {
	t.Parallel()

	repo, err := NewRepository(filepath.Join(t.TempDir(), "missing", "accounts.toml"))
	require.NoError(t, err)

	accounts, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = repo.GetByName(context.Background(), "alice")
	require.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRepositoryListMalformedTOMLReturnsError(t *testing.T) {
	t.Parallel()

	repo, accountsPath := newTestRepository(t)
	require.NoError(t, os.WriteFile(accountsPath, []byte("accounts = ["), 0o600))

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "decode accounts file")
}

func TestRepositorySaveCanceledContextReturnsContextError(t *testing.T) {
	t.Parallel()

	repo, _ := newTestRepository(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Save(ctx, domain.Account{Name: "alice"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRepositoryConcurrentSavesAcrossInstancesPreserveBothAccounts(t *testing.T) {
	t.Parallel()

	accountsPath := filepath.Join(t.TempDir(), "accounts.toml")

	newRepo := func() *Repository {
		repo, err := NewRepository(accountsPath)
		require.NoError(t, err)
		return repo
	}

	repoA := newRepo()
	repoB := newRepo()

	const perRepoWrites = 50
	start := make(chan struct{})
	errCh := make(chan error, perRepoWrites*2)
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoA.Save(context.Background(), domain.Account{Name: "a-" + strconv.Itoa(i)})
		}
	}()

	go func() {
		defer wg.Done()
		<-start
		for i := 0; i < perRepoWrites; i++ {
			errCh <- repoB.Save(context.Background(), domain.Account{Name: "b-" + strconv.Itoa(i)})
		}
	}()

	close(start)
	wg.Wait()
	close(errCh)

	for err := range errCh {
		require.NoError(t, err)
	}

	accounts, err := repoA.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, accounts, perRepoWrites*2)
}

func TestRepositorySaveSerializedTOMLIncludesVersion(t *testing.T) {
	t.Parallel()

	repo, accountsPath := newTestRepository(t)
	require.NoError(t, repo.Save(context.Background(), domain.Account{Name: "alice"}))

	data, err := os.ReadFile(accountsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "version = 1")
	assert.Contains(t, string(data), "alice.session")
}

func TestRepositoryFutureSchemaVersionReturnsError(t *testing.T) {
	t.Parallel()

	repo, accountsPath := newTestRepository(t)
	require.NoError(t, os.WriteFile(accountsPath, []byte(strings.Join([]string{
		"version = 999",
		"",
		"accounts = []",
		"",
	}, "\n")), 0o600))

	_, err := repo.List(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "unsupported accounts schema version")
}
