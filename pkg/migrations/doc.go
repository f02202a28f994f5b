// Package migrations provides SQL migration generation for the provider's
// worker-type and worker tables. It generates database schema migrations
// across PostgreSQL, MySQL/MariaDB, and SQLite databases.
package migrations
