package fs_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	ic "github.com/panyam/incognito"
	"github.com/panyam/incognito/stores/fs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndFind(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSCredentialStore(t.TempDir())

	user, err := store.Create(ctx, ic.NewLocalUser("alice", "$2a$10$hash"))
	require.NoError(t, err)

	byName, err := store.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)
	assert.Equal(t, "$2a$10$hash", byName.PasswordHash)

	byID, err := store.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = store.FindByUsername(ctx, "Alice")
	assert.ErrorIs(t, err, ic.ErrUserNotFound, "usernames are case-sensitive")

	_, err = store.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, ic.ErrUserNotFound)
	_, err = store.FindByExternalID(ctx, "missing")
	assert.ErrorIs(t, err, ic.ErrUserNotFound)
}

func TestDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSCredentialStore(t.TempDir())

	_, err := store.Create(ctx, ic.NewLocalUser("bob", "first-hash"))
	require.NoError(t, err)

	_, err = store.Create(ctx, ic.NewLocalUser("bob", "second-hash"))
	assert.ErrorIs(t, err, ic.ErrUsernameTaken)

	existing, err := store.FindByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "first-hash", existing.PasswordHash)

	// A differently cased name is a different user.
	_, err = store.Create(ctx, ic.NewLocalUser("Bob", "third-hash"))
	assert.NoError(t, err)
}

func TestCreateRejectsInvalidRecord(t *testing.T) {
	store := fs.NewFSCredentialStore(t.TempDir())
	_, err := store.Create(context.Background(), &ic.User{ID: "x", Username: "nobody"})
	assert.Error(t, err)
}

func TestFindOrCreateByExternalID(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSCredentialStore(t.TempDir())

	first, created, err := store.FindOrCreateByExternalID(ctx, "g-1")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "g-1", first.GoogleID)
	assert.Empty(t, first.PasswordHash)

	again, created, err := store.FindOrCreateByExternalID(ctx, "g-1")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	found, err := store.FindByExternalID(ctx, "g-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)
}

func TestFindOrCreateConcurrent(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSCredentialStore(t.TempDir())

	const workers = 32
	ids := make([]string, workers)
	var createdCount int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, created, err := store.FindOrCreateByExternalID(ctx, "g-race")
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = user.ID
			if created {
				mu.Lock()
				createdCount++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, createdCount)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}

func TestSaveAndListSecrets(t *testing.T) {
	ctx := context.Background()
	store := fs.NewFSCredentialStore(t.TempDir())

	secrets, err := store.ListSecrets(ctx)
	require.NoError(t, err)
	assert.Empty(t, secrets)

	var users []*ic.User
	for i := 0; i < 3; i++ {
		u, err := store.Create(ctx, ic.NewLocalUser(fmt.Sprintf("user%d", i), "hash"))
		require.NoError(t, err)
		users = append(users, u)
	}

	users[0].SetSecret("first")
	require.NoError(t, store.Save(ctx, users[0]))
	users[0].SetSecret("first, revised")
	require.NoError(t, store.Save(ctx, users[0]))
	users[2].SetSecret("third")
	require.NoError(t, store.Save(ctx, users[2]))

	secrets, err = store.ListSecrets(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"first, revised", "third"}, secrets)
}

func TestSaveUnknownUser(t *testing.T) {
	store := fs.NewFSCredentialStore(t.TempDir())
	err := store.Save(context.Background(), ic.NewLocalUser("ghost", "hash"))
	assert.ErrorIs(t, err, ic.ErrUserNotFound)
}
