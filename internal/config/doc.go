// Package config provides the configuration of mailspider: crawl limits,
// fetch settings, report preferences, server options, and the optional
// .mailspider YAML file with per-site overrides.
package config
