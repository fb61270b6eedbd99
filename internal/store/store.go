package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/pimguilherme/st2/internal/model"
)

// Store is the system store backing the identity and credential records:
// users, tokens, API keys, SSO requests, and the role assignments consumed
// by the store-backed RBAC resolver. It is safe for concurrent use; the
// uniqueness constraints the records declare are enforced atomically by the
// database at write time.
type Store struct {
	db     *sqlx.DB
	driver string
}

// NewStore opens a SQLite-backed store rooted at dataDir. Pass empty string
// for in-memory (used by tests).
func NewStore(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == "" {
		dsn = ":memory:?_journal_mode=WAL"
	} else {
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
		dsn = filepath.Join(dataDir, "st2auth.db") + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	return Open("sqlite", dsn)
}

// Open connects to the system store. driver is one of "sqlite", "postgres",
// or "mysql"; dsn is the driver-specific connection string.
func Open(driver, dsn string) (*Store, error) {
	driverName := driver
	if driver == "postgres" {
		driverName = "pgx" // jackc/pgx registered under database/sql
	}

	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open system store: %w", err)
	}

	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate system store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// get, selectAll, and exec rebind `?` placeholders to the active driver's
// bindvar style before executing.
func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) selectAll(ctx context.Context, dest any, query string, args ...any) error {
	return s.db.SelectContext(ctx, dest, s.db.Rebind(query), args...)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.db.Rebind(query), args...)
}

// insertID runs a named INSERT and returns the generated surrogate id.
// Postgres has no LastInsertId, so the query gains a RETURNING clause there.
func (s *Store) insertID(ctx context.Context, query string, arg any) (int64, error) {
	if s.driver == "postgres" {
		rows, err := s.db.NamedQueryContext(ctx, query+" RETURNING id", arg)
		if err != nil {
			return 0, err
		}
		defer rows.Close()
		var id int64
		if !rows.Next() {
			return 0, fmt.Errorf("insert returned no id")
		}
		if err := rows.Scan(&id); err != nil {
			return 0, err
		}
		return id, rows.Err()
	}

	result, err := s.db.NamedExecContext(ctx, query, arg)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Timestamps are stored as fixed-width RFC 3339 text so that string order
// matches time order. RFC3339Nano drops trailing fractional zeros, which
// would break the lexicographic expiry comparisons the purges rely on: a
// whole-second "…:05Z" sorts after a later "…:05.3Z" because 'Z' > '.'.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json column: %w", err)
	}
	return string(data), nil
}

// ---------------------------------------------------------------------------
// User CRUD
// ---------------------------------------------------------------------------

// userRow maps 1:1 to the users table. Nicknames are stored JSON-encoded.
type userRow struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"`
	IsService     bool   `db:"is_service"`
	NicknamesJSON string `db:"nicknames_json"`
}

func userRowFromModel(u *model.User) (userRow, error) {
	nicknames, err := encodeJSON(u.Nicknames)
	if err != nil {
		return userRow{}, err
	}
	return userRow{
		ID:            u.ID,
		Name:          u.Name,
		IsService:     u.IsService,
		NicknamesJSON: nicknames,
	}, nil
}

func (r userRow) toModel() (*model.User, error) {
	u := &model.User{
		Base:      model.Base{ID: r.ID},
		Name:      r.Name,
		IsService: r.IsService,
	}
	if r.NicknamesJSON != "" {
		if err := json.Unmarshal([]byte(r.NicknamesJSON), &u.Nicknames); err != nil {
			return nil, fmt.Errorf("unmarshal nicknames: %w", err)
		}
	}
	return u, nil
}

// CreateUser inserts a new user. The ID field is populated after a
// successful insert. A duplicate name yields a UniquenessError.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	row, err := userRowFromModel(user)
	if err != nil {
		return err
	}

	const q = `INSERT INTO users (name, is_service, nicknames_json)
		VALUES (:name, :is_service, :nicknames_json)`

	id, err := s.insertID(ctx, q, row)
	if err != nil {
		return uniqueViolation(err, "name")
	}
	user.ID = id
	return nil
}

// GetUserByName returns a user by its unique name.
func (s *Store) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	var row userRow
	if err := s.get(ctx, &row, "SELECT * FROM users WHERE name = ?", name); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get user by name: %w", err)
	}
	return row.toModel()
}

// ListUsers returns all users ordered by name.
func (s *Store) ListUsers(ctx context.Context) ([]*model.User, error) {
	var rows []userRow
	if err := s.selectAll(ctx, &rows, "SELECT * FROM users ORDER BY name"); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]*model.User, len(rows))
	for i, r := range rows {
		u, err := r.toModel()
		if err != nil {
			return nil, err
		}
		users[i] = u
	}
	return users, nil
}

// UpdateUser updates an existing user's mutable fields (is_service,
// nicknames; renames included, subject to the same uniqueness constraint).
func (s *Store) UpdateUser(ctx context.Context, user *model.User) error {
	row, err := userRowFromModel(user)
	if err != nil {
		return err
	}

	const q = `UPDATE users SET name = :name, is_service = :is_service,
		nicknames_json = :nicknames_json WHERE id = :id`

	result, err := s.db.NamedExecContext(ctx, q, row)
	if err != nil {
		return uniqueViolation(err, "name")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes a user by name. Deletion does not cascade: tokens and
// API keys reference the username by value and are left in place.
func (s *Store) DeleteUser(ctx context.Context, name string) error {
	result, err := s.exec(ctx, "DELETE FROM users WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete user rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Token CRUD
// ---------------------------------------------------------------------------

type tokenRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	Token        string `db:"token"`
	Expiry       string `db:"expiry"`
	MetadataJSON string `db:"metadata_json"`
	Service      bool   `db:"service"`
}

func tokenRowFromModel(t *model.Token) (tokenRow, error) {
	metadata, err := encodeJSON(t.Metadata)
	if err != nil {
		return tokenRow{}, err
	}
	return tokenRow{
		ID:           t.ID,
		Username:     t.User,
		Token:        t.Token,
		Expiry:       encodeTime(t.Expiry),
		MetadataJSON: metadata,
		Service:      t.Service,
	}, nil
}

func (r tokenRow) toModel() (*model.Token, error) {
	expiry, err := decodeTime(r.Expiry)
	if err != nil {
		return nil, err
	}
	t := &model.Token{
		Base:    model.Base{ID: r.ID},
		User:    r.Username,
		Token:   r.Token,
		Expiry:  expiry,
		Service: r.Service,
	}
	if r.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(r.MetadataJSON), &t.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal token metadata: %w", err)
		}
	}
	return t, nil
}

// CreateToken inserts a new token. A duplicate token value yields a
// UniquenessError; the ID field is populated after a successful insert.
func (s *Store) CreateToken(ctx context.Context, token *model.Token) error {
	row, err := tokenRowFromModel(token)
	if err != nil {
		return err
	}

	const q = `INSERT INTO tokens (username, token, expiry, metadata_json, service)
		VALUES (:username, :token, :expiry, :metadata_json, :service)`

	id, err := s.insertID(ctx, q, row)
	if err != nil {
		return uniqueViolation(err, "token")
	}
	token.ID = id
	return nil
}

// GetTokenByValue looks up a token by its unique opaque value.
func (s *Store) GetTokenByValue(ctx context.Context, value string) (*model.Token, error) {
	var row tokenRow
	if err := s.get(ctx, &row, "SELECT * FROM tokens WHERE token = ?", value); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return row.toModel()
}

// ListTokensByUser returns all tokens issued to the named user, newest id
// first.
func (s *Store) ListTokensByUser(ctx context.Context, user string) ([]*model.Token, error) {
	var rows []tokenRow
	if err := s.selectAll(ctx, &rows,
		"SELECT * FROM tokens WHERE username = ? ORDER BY id DESC", user); err != nil {
		return nil, fmt.Errorf("list tokens by user: %w", err)
	}

	tokens := make([]*model.Token, len(rows))
	for i, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, err
		}
		tokens[i] = t
	}
	return tokens, nil
}

// DeleteToken revokes a token by its opaque value. Revocation is terminal.
func (s *Store) DeleteToken(ctx context.Context, value string) error {
	result, err := s.exec(ctx, "DELETE FROM tokens WHERE token = ?", value)
	if err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete token rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredTokens garbage-collects tokens whose expiry is at or before
// now, returning the number removed. Expiry strings are RFC 3339 in UTC, so
// lexicographic comparison matches chronological order.
func (s *Store) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.exec(ctx, "DELETE FROM tokens WHERE expiry <= ?", encodeTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired tokens: %w", err)
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// API key CRUD
// ---------------------------------------------------------------------------

type apiKeyRow struct {
	ID           int64  `db:"id"`
	Username     string `db:"username"`
	KeyHash      string `db:"key_hash"`
	MetadataJSON string `db:"metadata_json"`
	CreatedAt    string `db:"created_at"`
	Enabled      bool   `db:"enabled"`
	UID          string `db:"uid"`
}

func apiKeyRowFromModel(k *model.APIKey) (apiKeyRow, error) {
	metadata, err := encodeJSON(k.Metadata)
	if err != nil {
		return apiKeyRow{}, err
	}
	return apiKeyRow{
		ID:           k.ID,
		Username:     k.User,
		KeyHash:      k.KeyHash,
		MetadataJSON: metadata,
		CreatedAt:    encodeTime(k.CreatedAt),
		Enabled:      k.Enabled,
		UID:          k.UID,
	}, nil
}

func (r apiKeyRow) toModel() (*model.APIKey, error) {
	createdAt, err := decodeTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	k := &model.APIKey{
		Base:      model.Base{ID: r.ID},
		User:      r.Username,
		KeyHash:   r.KeyHash,
		CreatedAt: createdAt,
		Enabled:   r.Enabled,
		UID:       r.UID,
	}
	if r.MetadataJSON != "" {
		if err := json.Unmarshal([]byte(r.MetadataJSON), &k.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal api key metadata: %w", err)
		}
	}
	return k, nil
}

// CreateAPIKey inserts a new API key record. The key_hash and the uid
// derived from it must already be set (see model.NewAPIKey). A duplicate
// key_hash yields a UniquenessError.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	row, err := apiKeyRowFromModel(key)
	if err != nil {
		return err
	}

	const q = `INSERT INTO api_keys (username, key_hash, metadata_json, created_at, enabled, uid)
		VALUES (:username, :key_hash, :metadata_json, :created_at, :enabled, :uid)`

	id, err := s.insertID(ctx, q, row)
	if err != nil {
		return uniqueViolation(err, "key_hash")
	}
	key.ID = id
	return nil
}

// GetAPIKeyByHash looks up an API key by the hash of its secret. This is the
// live-record path for internal matching logic; exports of the result must
// still go through MaskSecrets before leaving the trust boundary.
func (s *Store) GetAPIKeyByHash(ctx context.Context, hash string) (*model.APIKey, error) {
	var row apiKeyRow
	if err := s.get(ctx, &row, "SELECT * FROM api_keys WHERE key_hash = ?", hash); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get api key by hash: %w", err)
	}
	return row.toModel()
}

// ListAPIKeys returns all API keys, newest first.
func (s *Store) ListAPIKeys(ctx context.Context) ([]*model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.selectAll(ctx, &rows, "SELECT * FROM api_keys ORDER BY id DESC"); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return apiKeysFromRows(rows)
}

// ListAPIKeysByUser returns all API keys scoped to the named user, newest
// first. Backed by the username index.
func (s *Store) ListAPIKeysByUser(ctx context.Context, user string) ([]*model.APIKey, error) {
	var rows []apiKeyRow
	if err := s.selectAll(ctx, &rows,
		"SELECT * FROM api_keys WHERE username = ? ORDER BY id DESC", user); err != nil {
		return nil, fmt.Errorf("list api keys by user: %w", err)
	}
	return apiKeysFromRows(rows)
}

func apiKeysFromRows(rows []apiKeyRow) ([]*model.APIKey, error) {
	keys := make([]*model.APIKey, len(rows))
	for i, r := range rows {
		k, err := r.toModel()
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// SetAPIKeyEnabled toggles a key between revoked and reinstated without
// deleting its history.
func (s *Store) SetAPIKeyEnabled(ctx context.Context, id int64, enabled bool) error {
	result, err := s.exec(ctx, "UPDATE api_keys SET enabled = ? WHERE id = ?", enabled, id)
	if err != nil {
		return fmt.Errorf("set api key enabled: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set api key enabled rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey removes an API key by id. Administrative action; prefer
// SetAPIKeyEnabled when history should be kept.
func (s *Store) DeleteAPIKey(ctx context.Context, id int64) error {
	result, err := s.exec(ctx, "DELETE FROM api_keys WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// SSO request CRUD
// ---------------------------------------------------------------------------

type ssoRequestRow struct {
	ID          int64  `db:"id"`
	RequestID   string `db:"request_id"`
	KeyMaterial string `db:"key_material"`
	Expiry      string `db:"expiry"`
	Type        string `db:"type"`
}

func ssoRequestRowFromModel(r *model.SSORequest) ssoRequestRow {
	return ssoRequestRow{
		ID:          r.ID,
		RequestID:   r.RequestID,
		KeyMaterial: r.Key,
		Expiry:      encodeTime(r.Expiry),
		Type:        string(r.Type),
	}
}

func (r ssoRequestRow) toModel() (*model.SSORequest, error) {
	expiry, err := decodeTime(r.Expiry)
	if err != nil {
		return nil, err
	}
	return &model.SSORequest{
		Base:      model.Base{ID: r.ID},
		RequestID: r.RequestID,
		Key:       r.KeyMaterial,
		Expiry:    expiry,
		Type:      model.SSORequestType(r.Type),
	}, nil
}

// CreateSSORequest inserts a new SSO handshake record. request_id is indexed
// for lookup but deliberately not unique: per-handshake uniqueness is the
// issuing caller's responsibility.
func (s *Store) CreateSSORequest(ctx context.Context, req *model.SSORequest) error {
	row := ssoRequestRowFromModel(req)

	const q = `INSERT INTO sso_requests (request_id, key_material, expiry, type)
		VALUES (:request_id, :key_material, :expiry, :type)`

	id, err := s.insertID(ctx, q, row)
	if err != nil {
		return fmt.Errorf("insert sso request: %w", err)
	}
	req.ID = id
	return nil
}

// GetSSORequestByRequestID returns the SSO request with the given
// correlation id.
func (s *Store) GetSSORequestByRequestID(ctx context.Context, requestID string) (*model.SSORequest, error) {
	var row ssoRequestRow
	if err := s.get(ctx, &row,
		"SELECT * FROM sso_requests WHERE request_id = ?", requestID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get sso request: %w", err)
	}
	return row.toModel()
}

// DeleteSSORequest destroys an SSO request once its handshake completes or
// is abandoned.
func (s *Store) DeleteSSORequest(ctx context.Context, requestID string) error {
	result, err := s.exec(ctx, "DELETE FROM sso_requests WHERE request_id = ?", requestID)
	if err != nil {
		return fmt.Errorf("delete sso request: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete sso request rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeExpiredSSORequests garbage-collects requests whose expiry is at or
// before now.
func (s *Store) PurgeExpiredSSORequests(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.exec(ctx, "DELETE FROM sso_requests WHERE expiry <= ?", encodeTime(now))
	if err != nil {
		return 0, fmt.Errorf("purge expired sso requests: %w", err)
	}
	return result.RowsAffected()
}

// ---------------------------------------------------------------------------
// Roles and assignments (store-backed RBAC resolver)
// ---------------------------------------------------------------------------

type roleRow struct {
	ID          int64  `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	IsSystem    bool   `db:"is_system"`
}

// CreateRole inserts a role definition. A duplicate name yields a
// UniquenessError.
func (s *Store) CreateRole(ctx context.Context, role *model.Role) error {
	row := roleRow{Name: role.Name, Description: role.Description, IsSystem: role.System}

	const q = `INSERT INTO roles (name, description, is_system)
		VALUES (:name, :description, :is_system)`

	if _, err := s.insertID(ctx, q, row); err != nil {
		return uniqueViolation(err, "name")
	}
	return nil
}

// AssignRole grants the named role to a user. source is "local" for
// assignments made here and "remote" for assignments synced from an external
// identity source. Re-granting the same triple is a no-op conflict surfaced
// as a UniquenessError.
func (s *Store) AssignRole(ctx context.Context, user, role, source string) error {
	_, err := s.exec(ctx,
		"INSERT INTO role_assignments (username, role_name, source) VALUES (?, ?, ?)",
		user, role, source)
	if err != nil {
		return uniqueViolation(err, "role_assignment")
	}
	return nil
}

// RolesForUser returns the roles assigned to a user in assignment order.
// includeRemote controls whether remote-sourced assignments are included.
func (s *Store) RolesForUser(ctx context.Context, user string, includeRemote bool) ([]model.Role, error) {
	q := `SELECT r.name, r.description, r.is_system
		FROM role_assignments a
		JOIN roles r ON r.name = a.role_name
		WHERE a.username = ?`
	args := []any{user}
	if !includeRemote {
		q += " AND a.source <> ?"
		args = append(args, "remote")
	}
	q += " ORDER BY a.id"

	var rows []roleRow
	if err := s.selectAll(ctx, &rows, q, args...); err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}

	roles := make([]model.Role, len(rows))
	for i, r := range rows {
		roles[i] = model.Role{Name: r.Name, Description: r.Description, System: r.IsSystem}
	}
	return roles, nil
}
