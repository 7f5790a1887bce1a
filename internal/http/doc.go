// Package http provides the HTTP client shared by the remote adapters.
//
// The Client in this package handles:
//   - User-Agent headers
//   - Request pacing, since the photo source allows only a few calls a second
//   - Timeout handling
//   - Mapping of transport and status failures to error kinds
//
// # Basic Usage
//
//	client := http.NewClient(http.WithRateLimit(3, 1))
//
//	// Fetch and decode a JSON document
//	var out map[string]any
//	err := client.GetJSON(ctx, "https://api.vk.com/method/users.get?...", &out)
//
//	// Stream a body
//	body, size, err := client.Open(ctx, photoURL)
//
// # Error kinds
//
// Transport failures come back as REMOTE_TRANSIENT. Unexpected statuses come
// back as a *StatusError wrapped with the kind from KindForStatus.
package http
