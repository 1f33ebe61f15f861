// Copyright 2026 The Rocket Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the agent's YAML configuration.
//
// The file is named explicitly by the --config flag or the
// ROCKET_CONFIG environment variable; there is no search path. Values
// in the file are merged over [Default]. Secret-bearing and path
// fields may reference the environment with ${VAR} or ${VAR:-default}
// so tokens do not have to live in the file:
//
//	discord:
//	  token: ${ROCKET_TOKEN}
//	log_webhook:
//	  id: "112233445566778899"
//
// [Config.Validate] reports every problem in one joined error.
package config
