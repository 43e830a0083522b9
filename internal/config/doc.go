// Package config loads, normalizes, and validates reelforge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks for provider
// credentials such as REELFORGE_VIDEOGEN_API_KEY. The Config type is an
// explicit value passed to every constructor that needs limits, prices, or
// provider settings; nothing in the repository reads configuration from
// process-global state.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical provider names, and clear validation errors.
package config
