// Package daemon runs update cycles on a timer and on external signals,
// and serves health, status, trigger and metrics endpoints over HTTP.
package daemon
