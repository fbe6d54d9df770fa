// Package storage provides the durable keyed document store backing
// per-guild state. The core is agnostic to the serialization: documents are
// opaque byte blobs keyed by guild ID, with per-key get/put and no
// cross-guild transactions.
package storage
