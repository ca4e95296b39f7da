// Package gateway exposes the broker over REST: Basic-auth
// authentication, pattern-based authorization, request validation and
// response shaping for the publish and pull paths.
//
// Every inbound request is assigned a correlation ID that is echoed in
// the response and attached to every log line written while handling it.
package gateway
