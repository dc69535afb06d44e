// Package db embeds the database schema and seed data.
package db

import _ "embed"

// Schema contains the idempotent DDL for schemes, override audit logs and
// API keys.
//
//go:embed migrations/001_schema.sql
var Schema string
