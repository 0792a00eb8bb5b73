// Package framepool holds captured frames between acquisition and encoding
// in a bounded pool with FIFO eviction and single-owner payload lifetime.
package framepool
