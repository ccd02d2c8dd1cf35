// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config loads the striploop configuration.
//
// Precedence is defaults, then a strict YAML file, then STRIPLOOP_* environment
// variables. The merged result is validated once; any unknown YAML key or invalid
// value fails startup.
package config
