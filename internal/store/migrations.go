package store

import (
	"fmt"
	"strings"
)

// serialPK returns the engine-specific definition of the surrogate id column.
func (s *Store) serialPK() string {
	switch s.driver {
	case "postgres":
		return "id BIGSERIAL PRIMARY KEY"
	case "mysql":
		return "id BIGINT PRIMARY KEY AUTO_INCREMENT"
	default: // sqlite
		return "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}

func (s *Store) migrate() error {
	pk := s.serialPK()

	// Unique and indexed columns use VARCHAR so MySQL can key them; JSON
	// blobs and free text use TEXT. Timestamps are RFC 3339 text (see
	// encodeTime), kept in UTC so string order matches time order.
	migrations := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS users (
			%s,
			name VARCHAR(255) UNIQUE NOT NULL,
			is_service BOOLEAN NOT NULL DEFAULT FALSE,
			nicknames_json TEXT NOT NULL DEFAULT ''
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS tokens (
			%s,
			username VARCHAR(255) NOT NULL,
			token VARCHAR(255) UNIQUE NOT NULL,
			expiry VARCHAR(64) NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '',
			service BOOLEAN NOT NULL DEFAULT FALSE
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS api_keys (
			%s,
			username VARCHAR(255) NOT NULL,
			key_hash VARCHAR(255) UNIQUE NOT NULL,
			metadata_json TEXT NOT NULL DEFAULT '',
			created_at VARCHAR(64) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			uid VARCHAR(512) NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS sso_requests (
			%s,
			request_id VARCHAR(255) NOT NULL,
			key_material TEXT NOT NULL DEFAULT '',
			expiry VARCHAR(64) NOT NULL,
			type VARCHAR(16) NOT NULL
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS roles (
			%s,
			name VARCHAR(255) UNIQUE NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			is_system BOOLEAN NOT NULL DEFAULT FALSE
		)`, pk),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS role_assignments (
			%s,
			username VARCHAR(255) NOT NULL,
			role_name VARCHAR(255) NOT NULL,
			source VARCHAR(16) NOT NULL DEFAULT 'local',
			UNIQUE (username, role_name, source)
		)`, pk),

		// Lookup indexes the record types declare.
		`CREATE INDEX IF NOT EXISTS idx_tokens_username ON tokens(username)`,
		`CREATE INDEX IF NOT EXISTS idx_tokens_expiry ON tokens(expiry)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_username ON api_keys(username)`,
		`CREATE INDEX IF NOT EXISTS idx_api_keys_hash ON api_keys(key_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_sso_requests_request_id ON sso_requests(request_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sso_requests_expiry ON sso_requests(expiry)`,
		`CREATE INDEX IF NOT EXISTS idx_role_assignments_username ON role_assignments(username)`,
	}

	for _, m := range migrations {
		if s.driver == "mysql" {
			// MySQL has no CREATE INDEX IF NOT EXISTS; duplicate-index
			// errors on re-run are treated as no-ops below.
			m = strings.Replace(m, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX", 1)
		}
		if _, err := s.db.Exec(m); err != nil {
			if strings.Contains(err.Error(), "Duplicate key name") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
