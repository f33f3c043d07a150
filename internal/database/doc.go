// Package database builds pgx connection pools for the bar cache store.
package database
