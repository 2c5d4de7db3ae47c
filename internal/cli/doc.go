// Package cli defines the Cobra command tree for the neu CLI. Each file in
// this package registers one top-level command (update, daemon, status,
// etc.) with the root command. Commands resolve settings through the config
// package and delegate the work to updater and daemon; they only handle
// flag parsing, output formatting, and exit status.
package cli
