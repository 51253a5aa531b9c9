// Package core defines the shared language of the CADAC system.
//
// This package contains:
//   - Model entities (ModelIdentity, ModelMetadata, RawReference, ResolvedDependency)
//   - Run entities (RunOptions, ExecutionResult, RunReport)
//   - Connection settings (Target, AdapterConfig)
//   - The error taxonomy shared by discovery, graph construction and execution
//
// pkg/core imports only the standard library.
// All other packages depend on core, not the reverse.
package core
