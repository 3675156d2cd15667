// Package cli provides the interactive AiVedha Guard terminal client.
//
// The client signs a consumer in (email, Google credential or GitHub code),
// shows session and subscription state, pre-checks audit targets and starts
// audits. Session and subscription state live in the shared credential
// store, so several terminals on one profile stay consistent.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See App and runREPL for details.
package cli
