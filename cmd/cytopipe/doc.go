// Package main hosts the cytopipe CLI entrypoint and command graph.
//
// The Cobra-based command tree covers running the pipeline, inspecting
// acquisition and output state, browsing the run log, and configuration
// scaffolding. It centralizes configuration resolution and structured
// logging setup so subcommands can focus on user experience.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it here through dedicated commands or flags.
package main
