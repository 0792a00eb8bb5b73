// Package recorder coordinates the recording lifecycle. The coordinator
// pulls frames from the capture source at a fixed cadence, buffers them in
// the frame pool, transfers them to the encoder, and rotates chunks on a
// timer. Completed chunks are registered in the store and fed to the
// adaptive compression controller. Every state change and failure is
// published on a bounded status hub for external observers.
package recorder
