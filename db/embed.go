// Package db embeds the database schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for every table, index, and constraint the
// application relies on, including the uniqueness guarantees that back
// idempotent cart creation and line-item merging.
//
//go:embed migrations/001_schema.sql
var Schema string
