package repo

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exposurehub/exposure-search/internal/models"
)

func newTestDocumentStore(t *testing.T) *DocumentStore {
	t.Helper()
	store, err := OpenDocumentStore(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRecords() []models.CredentialRecord {
	base := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	return []models.CredentialRecord{
		{ID: "r1", Login: "Alice@Example.com", Password: "hunter2", URL: "https://shop.example.com/login", Domain: "shop.example.com", Source: "combo-2024", Timestamp: base, Metadata: map[string]string{"country": "de"}},
		{ID: "r2", Login: "bob", URL: "https://forum.test/", Domain: "forum.test", Source: "forum-dump", Timestamp: base.Add(24 * time.Hour)},
		{ID: "r3", Login: "alice@example.com", URL: "https://mail.example.com", Domain: "mail.example.com", Source: "mail-leak", Timestamp: base.Add(48 * time.Hour)},
	}
}

func TestDocumentStoreFindByIDsKeepsOrder(t *testing.T) {
	store := newTestDocumentStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecords(ctx, seedRecords()))

	recs, err := store.FindByIDs(ctx, []string{"r3", "missing", "r1"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r3", recs[0].ID)
	assert.Equal(t, "r1", recs[1].ID)
	assert.Equal(t, "de", recs[1].Metadata["country"])
	assert.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), recs[1].Timestamp)
}

func TestDocumentStoreCaseInsensitiveLookups(t *testing.T) {
	store := newTestDocumentStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecords(ctx, seedRecords()))

	byLogin, err := store.FindByLogin(ctx, "ALICE@example.COM", 10, 0)
	require.NoError(t, err)
	require.Len(t, byLogin, 2)
	assert.Equal(t, "r3", byLogin[0].ID, "newest first")

	byDomain, err := store.FindByDomainContains(ctx, "EXAMPLE", 10, 0)
	require.NoError(t, err)
	assert.Len(t, byDomain, 2)

	byURL, err := store.FindByURL(ctx, "HTTPS://FORUM.TEST/", 10, 0)
	require.NoError(t, err)
	require.Len(t, byURL, 1)
	assert.Equal(t, "bob", byURL[0].Login)

	paged, err := store.FindByLogin(ctx, "alice@example.com", 1, 1)
	require.NoError(t, err)
	require.Len(t, paged, 1)
	assert.Equal(t, "r1", paged[0].ID)
}

func TestDocumentStoreUpsert(t *testing.T) {
	store := newTestDocumentStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveRecords(ctx, seedRecords()))

	updated := seedRecords()[1]
	updated.Password = "changed"
	require.NoError(t, store.SaveRecords(ctx, []models.CredentialRecord{updated}))

	recs, err := store.FindByIDs(ctx, []string{"r2"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "changed", recs[0].Password)
}

func TestDocumentStoreOrdersSubSecondTimestamps(t *testing.T) {
	store := newTestDocumentStore(t)
	ctx := context.Background()
	whole := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	half := whole.Add(500 * time.Millisecond)
	require.NoError(t, store.SaveRecords(ctx, []models.CredentialRecord{
		{ID: "whole", Login: "carol", Timestamp: whole},
		{ID: "half", Login: "carol", Timestamp: half},
	}))

	recs, err := store.FindByLogin(ctx, "carol", 10, 0)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "half", recs[0].ID, "later instant sorts first")
	assert.Equal(t, half, recs[0].Timestamp)
	assert.Equal(t, whole, recs[1].Timestamp)
}

func TestDocumentStoreReadsLegacyTimestamps(t *testing.T) {
	store := newTestDocumentStore(t)
	_, err := store.db.Exec(`INSERT INTO records (id, login, breached_at) VALUES ('old', 'dave', '2026-09-01T12:00:00.5Z')`)
	require.NoError(t, err)

	recs, err := store.FindByIDs(context.Background(), []string{"old"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, time.Date(2026, 9, 1, 12, 0, 0, 500_000_000, time.UTC), recs[0].Timestamp)
}

func TestDocumentStoreLogsCorruptMetadata(t *testing.T) {
	var buf bytes.Buffer
	store, err := OpenDocumentStore(":memory:", slog.New(slog.NewTextHandler(&buf, nil)))
	require.NoError(t, err)
	defer store.Close()
	_, err = store.db.Exec(`INSERT INTO records (id, login, metadata) VALUES ('bad', 'erin', '{not json')`)
	require.NoError(t, err)

	recs, err := store.FindByIDs(context.Background(), []string{"bad"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "erin", recs[0].Login)
	assert.Nil(t, recs[0].Metadata)
	assert.Contains(t, buf.String(), "dropping undecodable record metadata")
	assert.Contains(t, buf.String(), "id=bad")
}

func TestDocumentStoreOnDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "records.db")
	store, err := OpenDocumentStore(path, nil)
	require.NoError(t, err)
	defer store.Close()
	assert.NoError(t, store.Ping(context.Background()))
}
