package recipe

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Store defines the interface for recipe data operations.
type Store interface {
	FindByIngredients(ctx context.Context, ingredients []string, filters Filters) ([]Recipe, error)
	Insert(ctx context.Context, recipe *Recipe) (string, error)
	GetRecipe(ctx context.Context, id string) (*Recipe, error)
	CountRecipes(ctx context.Context) (int, error)
	AppendSearchLog(ctx context.Context, entry SearchLog) error
	PopularIngredients(ctx context.Context, limit int) ([]IngredientCount, error)
	ListPantry(ctx context.Context, sessionID string) ([]PantryItem, error)
	ListExpiringPantry(ctx context.Context, sessionID string, within time.Duration) ([]PantryItem, error)
	UpsertPantryItem(ctx context.Context, item *PantryItem) error
	RemovePantryItem(ctx context.Context, sessionID, ingredient string) error
	AddCommonIngredients(ctx context.Context, ingredients []CommonIngredient) (int, error)
	SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// popularWindow bounds how many recent search logs the popularity report scans.
const popularWindow = 1000

// SQLStore implements Store on top of sqlx for PostgreSQL and SQLite.
type SQLStore struct {
	db     *sqlx.DB
	driver string
	now    func() time.Time
}

// NewPostgresStore creates a new SQLStore backed by PostgreSQL.
func NewPostgresStore(dataSourceName string) (*SQLStore, error) {
	return NewSQLStore(DriverPostgres, dataSourceName)
}

// NewSQLiteStore creates a new SQLStore backed by an SQLite file.
func NewSQLiteStore(path string) (*SQLStore, error) {
	return NewSQLStore(DriverSQLite, path)
}

// NewSQLStore connects to the database and creates the schema if needed.
func NewSQLStore(driver, dataSourceName string) (*SQLStore, error) {
	var schema []string
	switch driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	if driver == DriverSQLite {
		dataSourceName = sqliteDSN(dataSourceName)
	}

	db, err := sqlx.Connect(driver, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w: %w", ErrStorageUnavailable, err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLStore{db: db, driver: driver, now: func() time.Time { return time.Now().UTC() }}, nil
}

// sqlitePragmas are applied by the driver to every new connection in the pool.
// SQLite serializes writers itself. The busy timeout makes a writer wait for the
// lock instead of failing, and WAL lets readers proceed alongside a writer.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
}

// sqliteDSN appends the connection pragmas to a file path or file: URI.
func sqliteDSN(dsn string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ingredients JSONB NOT NULL,
		instructions TEXT NOT NULL,
		cuisine_type TEXT NOT NULL DEFAULT 'global',
		difficulty_level INTEGER NOT NULL,
		cook_time_minutes INTEGER NOT NULL,
		serving_size INTEGER NOT NULL,
		dietary_tags JSONB NOT NULL DEFAULT '[]',
		calories_per_serving INTEGER,
		source TEXT NOT NULL DEFAULT 'stored',
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_cuisine ON recipes(cuisine_type);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_difficulty ON recipes(difficulty_level);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_cook_time ON recipes(cook_time_minutes);`,
	`CREATE TABLE IF NOT EXISTS pantry_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		ingredient_name TEXT NOT NULL,
		quantity DOUBLE PRECISION,
		unit TEXT NOT NULL DEFAULT '',
		expiry_date TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (session_id, ingredient_name)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pantry_session ON pantry_items(session_id);`,
	`CREATE TABLE IF NOT EXISTS search_logs (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL DEFAULT '',
		ingredients JSONB NOT NULL,
		cuisine TEXT NOT NULL DEFAULT '',
		dietary JSONB NOT NULL DEFAULT '[]',
		results_count INTEGER NOT NULL,
		generation_used BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS common_ingredients (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_common_ingredients_category ON common_ingredients(category);`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS recipes (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ingredients TEXT NOT NULL,
		instructions TEXT NOT NULL,
		cuisine_type TEXT NOT NULL DEFAULT 'global',
		difficulty_level INTEGER NOT NULL,
		cook_time_minutes INTEGER NOT NULL,
		serving_size INTEGER NOT NULL,
		dietary_tags TEXT NOT NULL DEFAULT '[]',
		calories_per_serving INTEGER,
		source TEXT NOT NULL DEFAULT 'stored',
		created_at DATETIME NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_cuisine ON recipes(cuisine_type);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_difficulty ON recipes(difficulty_level);`,
	`CREATE INDEX IF NOT EXISTS idx_recipes_cook_time ON recipes(cook_time_minutes);`,
	`CREATE TABLE IF NOT EXISTS pantry_items (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		ingredient_name TEXT NOT NULL,
		quantity REAL,
		unit TEXT NOT NULL DEFAULT '',
		expiry_date DATETIME,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, ingredient_name)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_pantry_session ON pantry_items(session_id);`,
	`CREATE TABLE IF NOT EXISTS search_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL DEFAULT '',
		ingredients TEXT NOT NULL,
		cuisine TEXT NOT NULL DEFAULT '',
		dietary TEXT NOT NULL DEFAULT '[]',
		results_count INTEGER NOT NULL,
		generation_used BOOLEAN NOT NULL,
		created_at DATETIME NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS common_ingredients (
		name TEXT PRIMARY KEY,
		category TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE INDEX IF NOT EXISTS idx_common_ingredients_category ON common_ingredients(category);`,
}

// recipeRow is the raw shape of a recipes row before its JSON columns are decoded.
type recipeRow struct {
	ID                 string        `db:"id"`
	Name               string        `db:"name"`
	Ingredients        string        `db:"ingredients"`
	Instructions       string        `db:"instructions"`
	CuisineType        string        `db:"cuisine_type"`
	DifficultyLevel    int           `db:"difficulty_level"`
	CookTimeMinutes    int           `db:"cook_time_minutes"`
	ServingSize        int           `db:"serving_size"`
	DietaryTags        string        `db:"dietary_tags"`
	CaloriesPerServing sql.NullInt64 `db:"calories_per_serving"`
	Source             string        `db:"source"`
	CreatedAt          time.Time     `db:"created_at"`
}

const recipeColumns = `id, name, ingredients, instructions, cuisine_type, difficulty_level, cook_time_minutes, serving_size, dietary_tags, calories_per_serving, source, created_at`

// toRecipe decodes the JSON columns. A row that does not decode into a valid
// ingredient list is rejected instead of being passed on half-formed.
func (row recipeRow) toRecipe() (Recipe, error) {
	r := Recipe{
		ID:              row.ID,
		Name:            row.Name,
		Instructions:    row.Instructions,
		Cuisine:         row.CuisineType,
		Difficulty:      row.DifficultyLevel,
		CookTimeMinutes: row.CookTimeMinutes,
		Servings:        row.ServingSize,
		Provenance:      ProvenanceStored,
		CreatedAt:       row.CreatedAt,
	}
	if err := json.Unmarshal([]byte(row.Ingredients), &r.Ingredients); err != nil {
		return Recipe{}, fmt.Errorf("%w: recipe %s ingredients: %v", ErrMalformedRow, row.ID, err)
	}
	if len(r.Ingredients) == 0 {
		return Recipe{}, fmt.Errorf("%w: recipe %s has no ingredients", ErrMalformedRow, row.ID)
	}
	if err := json.Unmarshal([]byte(row.DietaryTags), &r.DietaryTags); err != nil {
		return Recipe{}, fmt.Errorf("%w: recipe %s dietary tags: %v", ErrMalformedRow, row.ID, err)
	}
	if row.CaloriesPerServing.Valid {
		c := int(row.CaloriesPerServing.Int64)
		r.CaloriesPerServing = &c
	}
	return r, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, ErrStorageUnavailable, err)
}

// FindByIngredients returns every recipe sharing at least one ingredient with
// the selection that also passes the cuisine, dietary and cook time filters.
// The result is unranked.
func (s *SQLStore) FindByIngredients(ctx context.Context, ingredients []string, filters Filters) ([]Recipe, error) {
	selected := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		if n := NormalizeIngredient(ing); n != "" {
			selected = append(selected, n)
		}
	}
	if len(selected) == 0 {
		return nil, nil
	}

	query := "SELECT " + recipeColumns + " FROM recipes WHERE 1=1"
	var args []interface{}
	if cuisine := NormalizeCuisine(filters.Cuisine); cuisine != "" {
		query += " AND cuisine_type = ?"
		args = append(args, cuisine)
	}
	if filters.MaxCookTime > 0 {
		query += " AND cook_time_minutes <= ?"
		args = append(args, filters.MaxCookTime)
	}
	query += " ORDER BY name"

	var rows []recipeRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, unavailable("query recipes", err)
	}

	var recipes []Recipe
	for _, row := range rows {
		r, err := row.toRecipe()
		if err != nil {
			return nil, err
		}
		if !SharesIngredient(r.Ingredients, selected) || !r.HasDietaryTags(filters.Dietary) {
			continue
		}
		recipes = append(recipes, r)
	}
	return recipes, nil
}

// Insert validates and saves a recipe, returning its id.
func (s *SQLStore) Insert(ctx context.Context, recipe *Recipe) (string, error) {
	if err := recipe.Validate(); err != nil {
		return "", err
	}
	if recipe.ID == "" {
		recipe.ID = uuid.NewString()
	}
	if recipe.CreatedAt.IsZero() {
		recipe.CreatedAt = s.now()
	}
	if recipe.Cuisine == "" {
		recipe.Cuisine = CuisineGlobal
	}
	source := recipe.Provenance
	if source == "" {
		source = ProvenanceStored
	}

	ingredientsJSON, err := json.Marshal(recipe.Ingredients)
	if err != nil {
		return "", fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	tags := recipe.DietaryTags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to marshal dietary tags: %w", err)
	}
	var calories sql.NullInt64
	if recipe.CaloriesPerServing != nil {
		calories = sql.NullInt64{Int64: int64(*recipe.CaloriesPerServing), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO recipes ("+recipeColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"),
		recipe.ID,
		recipe.Name,
		string(ingredientsJSON),
		recipe.Instructions,
		strings.ToLower(recipe.Cuisine),
		recipe.Difficulty,
		recipe.CookTimeMinutes,
		recipe.Servings,
		string(tagsJSON),
		calories,
		string(source),
		recipe.CreatedAt,
	)
	if err != nil {
		return "", unavailable("insert recipe", err)
	}
	return recipe.ID, nil
}

// GetRecipe retrieves a recipe by id.
func (s *SQLStore) GetRecipe(ctx context.Context, id string) (*Recipe, error) {
	var row recipeRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind("SELECT "+recipeColumns+" FROM recipes WHERE id = ?"), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("recipe %s: %w", id, ErrNotFound)
		}
		return nil, unavailable("get recipe", err)
	}
	r, err := row.toRecipe()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRecipes returns the number of stored recipes.
func (s *SQLStore) CountRecipes(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM recipes"); err != nil {
		return 0, unavailable("count recipes", err)
	}
	return n, nil
}

// AppendSearchLog writes one audit row for a completed search.
func (s *SQLStore) AppendSearchLog(ctx context.Context, entry SearchLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	ingredients := entry.Ingredients
	if ingredients == nil {
		ingredients = []string{}
	}
	dietary := entry.Dietary
	if dietary == nil {
		dietary = []string{}
	}
	ingredientsJSON, err := json.Marshal(ingredients)
	if err != nil {
		return fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	dietaryJSON, err := json.Marshal(dietary)
	if err != nil {
		return fmt.Errorf("failed to marshal dietary filters: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.db.Rebind(
		"INSERT INTO search_logs (session_id, ingredients, cuisine, dietary, results_count, generation_used, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)"),
		entry.SessionID,
		string(ingredientsJSON),
		entry.Cuisine,
		string(dietaryJSON),
		entry.ResultsCount,
		entry.GenerationUsed,
		entry.CreatedAt,
	)
	if err != nil {
		return unavailable("append search log", err)
	}
	return nil
}

// PopularIngredients counts how often each ingredient was searched for across
// the most recent search logs.
func (s *SQLStore) PopularIngredients(ctx context.Context, limit int) ([]IngredientCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var rows []string
	err := s.db.SelectContext(ctx, &rows, s.db.Rebind("SELECT ingredients FROM search_logs ORDER BY id DESC LIMIT ?"), popularWindow)
	if err != nil {
		return nil, unavailable("query search logs", err)
	}

	counts := make(map[string]int)
	for _, raw := range rows {
		var ingredients []string
		if err := json.Unmarshal([]byte(raw), &ingredients); err != nil {
			return nil, fmt.Errorf("%w: search log ingredients: %v", ErrMalformedRow, err)
		}
		for _, ing := range ingredients {
			if n := NormalizeIngredient(ing); n != "" {
				counts[n]++
			}
		}
	}

	out := make([]IngredientCount, 0, len(counts))
	for ing, c := range counts {
		out = append(out, IngredientCount{Ingredient: ing, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Ingredient < out[j].Ingredient
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AddCommonIngredients inserts ingredients into the autocomplete list, skipping
// names already present. It returns the number of rows added.
func (s *SQLStore) AddCommonIngredients(ctx context.Context, ingredients []CommonIngredient) (int, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, unavailable("begin ingredient seed", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := tx.Rebind("INSERT INTO common_ingredients (name, category) VALUES (?, ?) ON CONFLICT (name) DO NOTHING")
	added := 0
	for _, ing := range ingredients {
		name := NormalizeIngredient(ing.Name)
		if name == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, stmt, name, strings.ToLower(strings.TrimSpace(ing.Category)))
		if err != nil {
			return 0, unavailable("insert common ingredient", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			added += int(n)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, unavailable("commit ingredient seed", err)
	}
	return added, nil
}

// SuggestIngredients returns up to limit common ingredient names containing
// query, names starting with it first. An empty query lists names in order.
func (s *SQLStore) SuggestIngredients(ctx context.Context, query string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	q := escapeLike(strings.ToLower(strings.TrimSpace(query)))

	names := []string{}
	err := s.db.SelectContext(ctx, &names, s.db.Rebind(
		`SELECT name FROM common_ingredients
		WHERE name LIKE ? ESCAPE '\'
		ORDER BY CASE WHEN name LIKE ? ESCAPE '\' THEN 0 ELSE 1 END, name
		LIMIT ?`),
		"%"+q+"%", q+"%", limit,
	)
	if err != nil {
		return nil, unavailable("suggest ingredients", err)
	}
	return names, nil
}

// escapeLike makes LIKE wildcards in s match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}

// ListPantry returns the pantry of a session ordered by ingredient name.
func (s *SQLStore) ListPantry(ctx context.Context, sessionID string) ([]PantryItem, error) {
	var items []PantryItem
	err := s.db.SelectContext(ctx, &items, s.db.Rebind(
		"SELECT id, session_id, ingredient_name, quantity, unit, expiry_date, created_at FROM pantry_items WHERE session_id = ? ORDER BY ingredient_name"),
		sessionID,
	)
	if err != nil {
		return nil, unavailable("list pantry", err)
	}
	return items, nil
}

// ListExpiringPantry returns the items that expire within the given window,
// soonest first. Items that already expired are included.
func (s *SQLStore) ListExpiringPantry(ctx context.Context, sessionID string, within time.Duration) ([]PantryItem, error) {
	items, err := s.ListPantry(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(within)
	var expiring []PantryItem
	for _, it := range items {
		if it.ExpiryDate != nil && !it.ExpiryDate.After(cutoff) {
			expiring = append(expiring, it)
		}
	}
	sort.SliceStable(expiring, func(i, j int) bool {
		return expiring[i].ExpiryDate.Before(*expiring[j].ExpiryDate)
	})
	return expiring, nil
}

// UpsertPantryItem adds an ingredient to a session's pantry or updates the
// quantity, unit and expiry of an existing one.
func (s *SQLStore) UpsertPantryItem(ctx context.Context, item *PantryItem) error {
	item.IngredientName = NormalizeIngredient(item.IngredientName)
	if item.SessionID == "" || item.IngredientName == "" {
		return fmt.Errorf("%w: session id and ingredient name are required", ErrInvalidRequest)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}

	// On conflict the existing row keeps its id and created_at. RETURNING
	// reports the stored id so the caller sees the row's identity.
	proposed := item.ID
	err := s.db.QueryRowxContext(ctx, s.db.Rebind(
		`INSERT INTO pantry_items (id, session_id, ingredient_name, quantity, unit, expiry_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id, ingredient_name) DO UPDATE SET quantity = excluded.quantity, unit = excluded.unit, expiry_date = excluded.expiry_date
		RETURNING id`),
		item.ID,
		item.SessionID,
		item.IngredientName,
		item.Quantity,
		item.Unit,
		item.ExpiryDate,
		item.CreatedAt,
	).Scan(&item.ID)
	if err != nil {
		return unavailable("upsert pantry item", err)
	}
	if item.ID != proposed {
		err := s.db.GetContext(ctx, &item.CreatedAt, s.db.Rebind("SELECT created_at FROM pantry_items WHERE id = ?"), item.ID)
		if err != nil {
			return unavailable("read pantry item", err)
		}
	}
	return nil
}

// RemovePantryItem deletes an ingredient from a session's pantry.
func (s *SQLStore) RemovePantryItem(ctx context.Context, sessionID, ingredient string) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(
		"DELETE FROM pantry_items WHERE session_id = ? AND ingredient_name = ?"),
		sessionID, NormalizeIngredient(ingredient),
	)
	if err != nil {
		return unavailable("remove pantry item", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("pantry item %q: %w", ingredient, ErrNotFound)
	}
	return nil
}

// Ping checks that the database is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping database", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *SQLStore) Close() error {
	return s.db.Close()
}
