// Package config loads typed configuration structs from environment
// variables, with optional .env bootstrap for local development. Parsed
// configurations are cached per type for the process lifetime.
package config
