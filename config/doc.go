// Package config loads the monitor's settings from a YAML file and
// environment variables: listen address, logging, probe limits, the window
// time zone, history depth, persistence and the seed monitors.
package config
