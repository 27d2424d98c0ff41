// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the storefront DDL: products, cart_lines, orders and
// order_lines, including the partial unique index on payment_intent_id.
//
//go:embed migrations/001_schema.sql
var Schema string
