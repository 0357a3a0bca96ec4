// Package env reads the few process settings that live outside pkg/config:
// they are consulted before config loads or are set by the platform.
package env

import "os"

// Get returns the value of key, or fallback when it is unset or empty.
func Get(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// InstanceID names this process in logs. WORKER_ID wins over the platform
// dyno name; fallback is used when neither is set.
func InstanceID(fallback string) string {
	return Get("WORKER_ID", Get("DYNO", fallback))
}
