// Package config loads scoopie's Lua configuration.
//
// # Overview
//
// The configuration file (default ~/.config/scoopie/config.lua, or
// $SCOOPIE_HOME/config.lua) assigns a global "scoopie" table:
//
//	scoopie = {
//	  cache_dir = "~/.cache/scoopie",
//	  buckets_dir = "~/.local/share/scoopie/buckets",
//	  log_level = "info",
//	  download = { max_retries = 3, concurrent_downloads = 4, verify = true },
//	  buckets = { main = "https://github.com/ScoopInstaller/Main" },
//	  keyring = "~/.config/scoopie/trusted.asc",
//	}
//
// Every field is optional. A missing file yields the defaults.
//
// # Sandboxing
//
// The file runs in gopher-lua with the os, io, debug and module loading
// functions removed. A read-only "platform" table (see the platform
// package) is injected first, so a config can branch on the host:
//
//	scoopie = {
//	  download = { concurrent_downloads = platform.is_arm64 and 2 or 8 },
//	}
//
// Evaluation is bound to the caller's context and the file size is capped
// at MaxConfigSize.
//
// # Environment
//
// SCOOPIE_CACHE_DIR and SCOOPIE_BUCKETS_DIR override the corresponding
// fields after the file is evaluated.
//
// # Error Handling
//
// Lua errors are reported as *ParseError; semantic problems as
// *ValidationError naming the offending field. FormatError renders either
// for the terminal.
package config
