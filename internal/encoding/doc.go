// Package encoding defines the external encoder-backend contract, its
// failure taxonomy, and the chunk file naming convention.
package encoding
