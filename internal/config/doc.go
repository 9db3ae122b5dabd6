// Package config loads famigo's startup settings.
//
// # Resolution Order
//
//  1. Defaults
//  2. The TOML file at the given path, or ~/.config/famigo/config.toml
//  3. FAMIGO_* environment variables
//
// A missing file is fine. A missing API base URL is not, unless dev mode is
// on, in which case the client talks to http://localhost:8080.
//
// # Fields
//
//	api_base_url = "https://api.example.com"
//	credential_path = "~/.config/famigo/credential.toml"
//	log_level = "info"
//	log_file = "~/.local/state/famigo/famigo.log"
//	request_timeout_seconds = 10
//	theme = "Nightfox"
//	dev = false
//
// Each key has a matching variable: FAMIGO_API_BASE_URL, FAMIGO_CREDENTIAL_PATH,
// FAMIGO_LOG_LEVEL, FAMIGO_LOG_FILE, FAMIGO_REQUEST_TIMEOUT_SECONDS,
// FAMIGO_THEME and FAMIGO_DEV.
//
// # Paths
//
// Tilde paths are expanded against the user's home directory and every path
// is made absolute.
//
// The base URL is normalized: whitespace and trailing slashes are trimmed
// and a bare host:port gets an http:// scheme.
package config
