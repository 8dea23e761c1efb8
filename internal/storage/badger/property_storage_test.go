package badger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praedium/internal/common"
	"github.com/ternarybob/praedium/internal/models"
)

func openTestDB(t *testing.T) *BadgerDB {
	t.Helper()
	db, err := NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testRecord(parcelID, owner, address, city string) models.PropertyRecord {
	return models.PropertyRecord{
		ParcelID:   parcelID,
		OwnerName:  owner,
		Address:    address,
		City:       city,
		SearchTerm: "test",
		ScrapedAt:  time.Now(),
	}
}

func TestUpsertPropertiesIsIdempotentOnParcelID(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	first := testRecord("R100", "SMITH JOHN", "100 MAIN ST", "AUSTIN")
	require.NoError(t, store.UpsertProperties(ctx, []models.PropertyRecord{first}))

	// Re-scraping the same parcel replaces the record, never duplicates it
	second := first
	second.OwnerName = "SMITH JANE"
	require.NoError(t, store.UpsertProperties(ctx, []models.PropertyRecord{second}))

	count, err := store.CountProperties(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	got, err := store.GetProperty(ctx, "R100")
	require.NoError(t, err)
	require.Equal(t, "SMITH JANE", got.OwnerName)
}

func TestUpsertPropertiesRejectsMissingParcelID(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())

	err := store.UpsertProperties(t.Context(), []models.PropertyRecord{
		testRecord("", "NOBODY", "1 NOWHERE", "AUSTIN"),
	})
	require.Error(t, err)
}

func TestGetPropertyNotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())

	_, err := store.GetProperty(t.Context(), "R999")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found")
}

func TestSearchPropertiesMatchesOwnerAddressAndCity(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	require.NoError(t, store.UpsertProperties(ctx, []models.PropertyRecord{
		testRecord("R1", "GARCIA MARIA", "12 OAK AVE", "AUSTIN"),
		testRecord("R2", "JONES PETER", "400 GARCIA BLVD", "DALLAS"),
		testRecord("R3", "SMITH ANNA", "9 ELM ST", "GARCIAVILLE"),
		testRecord("R4", "BROWN LEE", "77 PINE RD", "HOUSTON"),
	}))

	matches, err := store.SearchProperties(ctx, "garcia", 10)
	require.NoError(t, err)
	require.Len(t, matches, 3)
	for _, m := range matches {
		require.NotEqual(t, "R4", m.ParcelID)
	}
}

func TestSearchPropertiesIsCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	require.NoError(t, store.UpsertProperties(ctx, []models.PropertyRecord{
		testRecord("R1", "McAllister Roy", "8 HIGH ST", "WACO"),
	}))

	matches, err := store.SearchProperties(ctx, "  MCALLISTER ", 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestSearchPropertiesHonorsLimit(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	records := make([]models.PropertyRecord, 0, 5)
	for _, id := range []string{"R1", "R2", "R3", "R4", "R5"} {
		records = append(records, testRecord(id, "SMITH", "1 MAIN", "AUSTIN"))
	}
	require.NoError(t, store.UpsertProperties(ctx, records))

	matches, err := store.SearchProperties(ctx, "smith", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Blank query lists stored records up to the limit
	all, err := store.SearchProperties(ctx, "", 3)
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestTermCompletionRequiresResults(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	done, err := store.IsTermCompleted(ctx, "smith")
	require.NoError(t, err)
	require.False(t, done)

	// Zero-result completions are recorded but do not saturate the term
	require.NoError(t, store.MarkTermCompleted(ctx, "smith", 0))
	done, err = store.IsTermCompleted(ctx, "smith")
	require.NoError(t, err)
	require.False(t, done)

	require.NoError(t, store.MarkTermCompleted(ctx, "smith", 42))
	done, err = store.IsTermCompleted(ctx, "smith")
	require.NoError(t, err)
	require.True(t, done)
}

func TestTermCompletionNormalizesCase(t *testing.T) {
	db := openTestDB(t)
	store := NewPropertyStorage(db, arbor.NewLogger())
	ctx := t.Context()

	require.NoError(t, store.MarkTermCompleted(ctx, "  Garcia ", 7))

	done, err := store.IsTermCompleted(ctx, "GARCIA")
	require.NoError(t, err)
	require.True(t, done)
}
