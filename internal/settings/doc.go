// Package settings loads CLI configuration from a YAML file, a .env file and
// PEERBONUS_ environment variables, in increasing order of precedence, on
// top of peerbonus.DefaultConfig.
package settings
