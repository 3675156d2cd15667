// Package client talks to the AiVedha Guard backend over its REST/JSON API.
//
// # Overview
//
// The package provides:
//  1. A transport-agnostic API contract (see the Client interface) covering
//     consumer sign-in, the subscription snapshot, subscription activation,
//     audit start and the admin token endpoints.
//  2. A net/http implementation (see HTTPClient) that attaches the bearer
//     token, decodes the backend's loosely shaped payloads and maps failures
//     to sentinel errors.
//
// # Error Handling
//
// Callers match conditions with errors.Is: ErrUnavailable (transport
// failure, timeout or gateway error), ErrUnauthorized (401/403 or an invalid
// token) and ErrRejected (the backend answered success=false).
// Other non-2xx answers surface as *StatusError.
//
// All operations accept context.Context and honor cancellation and deadlines.
package client
