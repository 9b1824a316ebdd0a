// Package chat implements the broadcast hub core: the session registry,
// per-address rate limiting and login capping, display-name allocation,
// the fan-out engine, and the periodic maintenance sweep. The transport
// layer hands each accepted connection to the Lifecycle and feeds it
// inbound events; all policy decisions live here.
package chat
