// jddb enforces per-service rate limits and cost budgets on outbound LLM
// usage and reports on usage history.
//
// Usage:
//
//	# Start the admin server with built-in defaults
//	jddb run
//
//	# Start with a configuration file (hot reloaded on change)
//	jddb run --config /etc/jddb/config.yaml
//
//	# Aggregate the last 48 hours of usage history
//	jddb stats openai --period-hours 48
//
//	# Print cost optimization findings as JSON
//	jddb recommend openai -o json
//
//	# Dry-run an admission check against the configured limits
//	jddb check openai --tokens 1500 --cost 0.03
//
//	# Show version information
//	jddb version
package main

func main() {
	Execute()
}
