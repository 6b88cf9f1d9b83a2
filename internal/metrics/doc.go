// Package metrics provides Prometheus instrumentation for the voicebot service.
package metrics
