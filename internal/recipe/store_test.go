package recipe

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "pantrychef.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecipe(name string, cookTime int, ingredients ...string) *Recipe {
	return &Recipe{
		Name:            name,
		Ingredients:     ingredients,
		Instructions:    "1. Prepare.\n2. Cook.",
		Cuisine:         CuisineGlobal,
		Difficulty:      2,
		CookTimeMinutes: cookTime,
		Servings:        2,
	}
}

func TestSQLStore_InsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calories := 420
	r := testRecipe("Chicken Rice", 30, "chicken", "rice", "onion")
	r.DietaryTags = []string{"dairy-free"}
	r.CaloriesPerServing = &calories

	id, err := s.Insert(ctx, r)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := s.GetRecipe(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Chicken Rice", got.Name)
	assert.Equal(t, []string{"chicken", "rice", "onion"}, got.Ingredients)
	assert.Equal(t, []string{"dairy-free"}, got.DietaryTags)
	assert.Equal(t, ProvenanceStored, got.Provenance)
	require.NotNil(t, got.CaloriesPerServing)
	assert.Equal(t, 420, *got.CaloriesPerServing)
	assert.Equal(t, []string{"Prepare.", "Cook."}, got.Steps())
}

func TestSQLStore_GetRecipe_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecipe(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLStore_InsertRejectsInvalidRecipe(t *testing.T) {
	s := newTestStore(t)

	r := testRecipe("Empty", 10)
	_, err := s.Insert(context.Background(), r)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSQLStore_FindByIngredients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	chicken := testRecipe("Chicken Rice", 30, "chicken", "rice", "onion")
	chicken.DietaryTags = []string{"dairy-free"}
	tomato := testRecipe("Tomato Soup", 20, "tomatoes", "basil")
	tomato.Cuisine = CuisineItalian
	slow := testRecipe("Slow Beef", 240, "beef", "onion")
	unrelated := testRecipe("Fruit Salad", 5, "apple", "banana")
	for _, r := range []*Recipe{chicken, tomato, slow, unrelated} {
		_, err := s.Insert(ctx, r)
		require.NoError(t, err)
	}

	// Symmetric containment: "tomato" finds "tomatoes".
	got, err := s.FindByIngredients(ctx, []string{"Tomato"}, Filters{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Tomato Soup", got[0].Name)

	// Any shared ingredient qualifies; ranking is not the store's job.
	got, err = s.FindByIngredients(ctx, []string{"onion"}, Filters{})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Cook time ceiling.
	got, err = s.FindByIngredients(ctx, []string{"onion"}, Filters{MaxCookTime: 60})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Chicken Rice", got[0].Name)

	// Cuisine filter, with "any" meaning no filter.
	got, err = s.FindByIngredients(ctx, []string{"tomato", "chicken"}, Filters{Cuisine: "Italian"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Tomato Soup", got[0].Name)
	got, err = s.FindByIngredients(ctx, []string{"tomato", "chicken"}, Filters{Cuisine: "any"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// Dietary tags must all be present.
	got, err = s.FindByIngredients(ctx, []string{"onion"}, Filters{Dietary: []string{"Dairy-Free"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Chicken Rice", got[0].Name)

	// Blank input matches nothing.
	got, err = s.FindByIngredients(ctx, []string{"  "}, Filters{})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLStore_MalformedRowFailsFast(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.db.ExecContext(ctx, `INSERT INTO recipes (id, name, ingredients, instructions, cuisine_type, difficulty_level, cook_time_minutes, serving_size, dietary_tags, source, created_at)
		VALUES ('bad', 'Broken', 'chicken, rice', '1. Cook', 'global', 1, 10, 1, '[]', 'stored', ?)`, time.Now().UTC())
	require.NoError(t, err)

	_, err = s.FindByIngredients(ctx, []string{"chicken"}, Filters{})
	assert.ErrorIs(t, err, ErrMalformedRow)

	_, err = s.GetRecipe(ctx, "bad")
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestSQLStore_SearchLogsAndPopularIngredients(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendSearchLog(ctx, SearchLog{Ingredients: []string{"chicken", "rice"}, ResultsCount: 2}))
	require.NoError(t, s.AppendSearchLog(ctx, SearchLog{Ingredients: []string{"Chicken", "onion"}, ResultsCount: 1, GenerationUsed: true}))
	require.NoError(t, s.AppendSearchLog(ctx, SearchLog{Ingredients: []string{"okra"}, Cuisine: "sudanese", Dietary: []string{"vegan"}}))

	popular, err := s.PopularIngredients(ctx, 2)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, IngredientCount{Ingredient: "chicken", Count: 2}, popular[0])
	assert.Equal(t, 1, popular[1].Count)
}

func TestSQLStore_Pantry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	s.now = func() time.Time { return now }

	soon := now.Add(24 * time.Hour)
	later := now.Add(10 * 24 * time.Hour)
	qty := 2.0

	require.NoError(t, s.UpsertPantryItem(ctx, &PantryItem{SessionID: "s1", IngredientName: " Milk ", ExpiryDate: &soon}))
	require.NoError(t, s.UpsertPantryItem(ctx, &PantryItem{SessionID: "s1", IngredientName: "rice", Quantity: &qty, Unit: "kg", ExpiryDate: &later}))
	require.NoError(t, s.UpsertPantryItem(ctx, &PantryItem{SessionID: "s2", IngredientName: "eggs"}))

	items, err := s.ListPantry(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "milk", items[0].IngredientName)
	assert.Equal(t, "rice", items[1].IngredientName)
	require.NotNil(t, items[1].Quantity)
	assert.Equal(t, 2.0, *items[1].Quantity)

	// Upsert updates instead of duplicating and keeps the stored identity.
	riceID, riceCreated := items[1].ID, items[1].CreatedAt
	s.now = func() time.Time { return now.Add(time.Hour) }
	qty = 5
	update := &PantryItem{SessionID: "s1", IngredientName: "RICE", Quantity: &qty, Unit: "kg", ExpiryDate: &later}
	require.NoError(t, s.UpsertPantryItem(ctx, update))
	assert.Equal(t, riceID, update.ID)
	assert.True(t, riceCreated.Equal(update.CreatedAt))
	items, err = s.ListPantry(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, 5.0, *items[1].Quantity)
	assert.Equal(t, riceID, items[1].ID)

	expiring, err := s.ListExpiringPantry(ctx, "s1", 3*24*time.Hour)
	require.NoError(t, err)
	require.Len(t, expiring, 1)
	assert.Equal(t, "milk", expiring[0].IngredientName)

	require.NoError(t, s.RemovePantryItem(ctx, "s1", "Milk"))
	err = s.RemovePantryItem(ctx, "s1", "milk")
	assert.True(t, errors.Is(err, ErrNotFound))

	err = s.UpsertPantryItem(ctx, &PantryItem{SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestSQLStore_ClosedDatabaseIsUnavailable(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.FindByIngredients(context.Background(), []string{"chicken"}, Filters{})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.ErrorIs(t, s.Ping(context.Background()), ErrStorageUnavailable)
}

func TestSeed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := Seed(ctx, s)
	require.NoError(t, err)
	assert.Greater(t, n, 4)

	// Seeding a populated store is a no-op.
	n, err = Seed(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := s.FindByIngredients(ctx, []string{"okra"}, Filters{Cuisine: CuisineSudanese})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Sudanese Bamia (Okra Stew)", got[0].Name)
}

func TestSeedIngredientsAndSuggest(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	all, err := CommonIngredients()
	require.NoError(t, err)
	assert.Len(t, all, 59)

	n, err := SeedIngredients(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, len(all), n)

	// Seeding again adds nothing.
	n, err = SeedIngredients(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)

	tests := []struct {
		name  string
		query string
		limit int
		want  []string
	}{
		{"prefix matches first", "pea", 10, []string{"peanut butter", "peanuts", "chickpeas"}},
		{"case and space insensitive", "  OKRA ", 10, []string{"okra"}},
		{"substring", "flour", 10, []string{"flour", "sorghum flour"}},
		{"limit", "", 3, []string{"barley", "basil", "beans"}},
		{"wildcards match literally", "%", 10, []string{}},
		{"no match", "durian", 10, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.SuggestIngredients(ctx, tt.query, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewSQLStore_UnsupportedDriver(t *testing.T) {
	_, err := NewSQLStore("mysql", "")
	assert.Error(t, err)
}

func TestSQLStore_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const writers, perWriter = 32, 20
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed []error
	)
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				err := s.AppendSearchLog(ctx, SearchLog{
					SessionID:    fmt.Sprintf("s%d", w),
					Ingredients:  []string{"rice", "onion"},
					ResultsCount: i,
				})
				if err != nil {
					mu.Lock()
					failed = append(failed, err)
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	require.Empty(t, failed)
	var n int
	require.NoError(t, s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM search_logs"))
	assert.Equal(t, writers*perWriter, n)
}

func TestSQLStore_PragmasApplyToEveryConnection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Hold several connections at once so the pool has to open new ones.
	conns := make([]*sql.Conn, 3)
	for i := range conns {
		conn, err := s.db.Conn(ctx)
		require.NoError(t, err)
		defer conn.Close()
		conns[i] = conn
	}
	for _, conn := range conns {
		var timeout int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
		assert.Equal(t, 5000, timeout)

		var mode string
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
		assert.Equal(t, "wal", strings.ToLower(mode))
	}
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "a.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", sqliteDSN("a.db"))
	assert.Equal(t, "file:a.db?mode=rwc&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", sqliteDSN("file:a.db?mode=rwc"))
}
