// Package config loads synctui's own configuration file.
//
// The file lives at ~/.config/synctui/config.toml:
//
//	api-key = "abc123..."
//	address = "127.0.0.1:8384"
//
// Only the API key has no default; it can also arrive via the -api-key flag,
// which is why Load tolerates a missing file. The address defaults to the
// daemon's standard GUI listen address on localhost.
package config
