// Package config loads application configuration from environment variables
// (INVODESK_ prefix) overlaid on an optional config.yaml, and resolves the
// filesystem paths the installed application uses.
//
// Secrets (session signing secret, storage encryption key) deliberately have
// no defaults: a missing secret is a startup error, never a silent fallback.
package config
