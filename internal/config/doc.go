// Package config handles configuration loading for the engine bridge.
//
// Files may be YAML (.yaml, .yml) or TOML (.toml) and support ${VAR} syntax
// for environment variable interpolation. After the file is parsed, ENGINE_*
// environment variables override individual fields, then defaults are
// applied and the result is validated.
package config
