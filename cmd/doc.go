// Package cmd implements the command-line interface of serdata. It provides a
// hierarchical command structure around the serialized sample core.
//
// The package is organized into several subpackages:
//
//   - types: Commands to list and inspect type layouts (key size, fingerprint, ...)
//   - sample: Commands to encode samples into serialized payloads and decode them again
//   - perf: Benchmarks of the sample lifecycle (construction, sharing, fan-out)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set with an environment variable SERDATA_<flag>
// (e.g. SERDATA_LOG_LEVEL=debug), .env and .env.local files are loaded on start.
//
// See serdata -help for a list of all commands.
package cmd
