// Package domain contains the core types and ports of the sentiment
// pipeline. It has no dependencies on transport, storage, or any concrete
// source; those live in the outer packages and implement the interfaces
// defined here.
package domain
