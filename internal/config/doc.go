// Package config loads textstorm settings.
//
// Settings are layered, lowest priority first:
//
//  1. Built-in defaults (Defaults)
//  2. The TOML file, by default ~/.config/textstorm/config.toml
//  3. TEXTSTORM_* environment variables
//
// A Manager holds the current snapshot, reloads it when the file changes
// on disk and publishes every new snapshot on the notify.PathSettings path.
//
// # Example file
//
//	enabled = true
//	excludedHosts = ["bank.example.com", "*.internal"]
//	caseSensitive = false
//
//	[log]
//	level = "info"
//
//	[lock]
//	cooldown = "500ms"
//	settle = "100ms"
//	failureCooldown = "5s"
//
//	[expand]
//	suppressionWindow = "300ms"
//	dedupeWindow = "1s"
//
//	[replace]
//	settleDelay = "50ms"
//	retryDelay = "200ms"
//	keyDelay = "10ms"
//
//	[llm]
//	timeout = "30s"
//
//	[llm.providers.openai]
//	model = "gpt-4o-mini"
//
//	[store]
//	driver = "sqlite"
//	path = "~/.config/textstorm/textstorm.db"
package config
