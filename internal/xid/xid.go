// Package xid builds human-readable document numbers such as receipt numbers.
package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

const ReceiptPrefix = "RCP"

var fallbackSeq atomic.Uint64

// New returns PREFIX-<unix nanos>-<random hex>. When the random source
// fails a process-local sequence keeps numbers distinct.
func New(prefix string, at time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d-%08x", prefix, at.UnixNano(), fallbackSeq.Add(1))
	}
	return fmt.Sprintf("%s-%d-%s", prefix, at.UnixNano(), hex.EncodeToString(buf))
}

func Receipt(at time.Time) string {
	return New(ReceiptPrefix, at)
}
