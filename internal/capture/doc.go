// Package capture defines the external screen-capture source contract:
// frames are pulled, environment changes arrive as events.
package capture
