// Package config loads, validates, and persists the cytopipe run
// configuration. Configuration errors are fail-fast: they surface before
// any stage work begins.
package config
