// Package config loads assetcache settings from a TOML file and the
// environment.
//
// Precedence, lowest first: built-in defaults, the TOML file, variables from
// a .env file, and the process environment. Durations are Go duration
// strings ("90m") and sizes accept either a byte count or a humanized value
// ("10GiB").
package config
