// Package api provides the HTTP REST API and WebSocket server for Locker Core.
//
// It exposes delivery lifecycle operations (drop-off, pickup, listing),
// cabinet provisioning and compartment control, and a realtime event feed
// for operator dashboards.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Authentication is bearer-token based; tokens are minted by the account
// service and validated here against a shared secret. The two pickup
// endpoints are public: recipients authenticate with their one-time
// credentials rather than an account.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
