// Relay is a single-upstream reverse proxy with a managed lifecycle.
//
// A relay process owns at most one proxy listener. The listener forwards
// every request to one target host:port, answers /health locally, and can
// be started, stopped and re-pointed at runtime through a local control
// API.
//
// Usage:
//
//	# Run with relay.yaml in the working directory
//	relay run
//
//	# Run against a specific target without a config file
//	relay run --target-host localhost --target-port 3000 --proxy-port 8080
//
//	# Inspect and drive a running process
//	relay status
//	relay reconfigure --target-port 4000
//	relay stop
//
//	# Edit the saved route
//	relay config set --proxy-port 9090
package main

func main() {
	Execute()
}
