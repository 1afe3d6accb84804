package janus

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"go.uber.org/atomic"
)

var (
	transactionPrefix = newTransactionPrefix()
	transactionSeq    atomic.Uint64
)

func newTransactionPrefix() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return hex.EncodeToString(b[:])
}

// transactionID returns a correlation token unique within the process.
// Janus matches replies to requests by it; it carries no secret.
func transactionID() string {
	return fmt.Sprintf("%s-%d", transactionPrefix, transactionSeq.Add(1))
}
