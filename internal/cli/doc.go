// Package cli holds the client side of the conductor command line: an admin
// API client, the shared flag set and output formatting.
//
// Commands register the common flags with RegisterCommonFlags. Every flag
// can also be set through a CONDUCTOR_* environment variable, with the flag
// winning when both are given:
//
//	conductor topology --endpoint http://10.0.0.5:8095
//	CONDUCTOR_ENDPOINT=http://10.0.0.5:8095 conductor topology
//
// An Executor wraps each API call with a timeout and a spinner and prints the
// result as a kubectl-style table (table, wide), JSON or YAML. Connection
// failures are classified into ConnectionError values that carry a hint for
// the user; error responses from the server become APIError values holding
// the problem detail.
package cli
