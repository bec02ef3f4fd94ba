package auth

import (
	"embed"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded schema migrations: the users table
// with role and approval columns, and the refresh_tokens table backing
// rotation and chain revocation. Hosts apply them with their own runner.
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
