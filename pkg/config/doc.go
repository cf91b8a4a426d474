// Package config loads the single YAML file that drives a catalogsync
// process: the list of stores to sync and the global tunables (sync
// interval, batch plans, rate-limit and adaptive-batch parameters,
// background worker pacing, priority weights). It reads the file with
// os.ReadFile and gopkg.in/yaml.v3; credentials are read from
// environment variables named in the file, never stored in it.
package config
