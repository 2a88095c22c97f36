package router

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ridSeq uint64

	ridMu  sync.Mutex
	ridRng = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// newReqID builds a short correlation id for request logs: base36
// timestamp + sequence + 2 random chars.
func newReqID() string {
	n := atomic.AddUint64(&ridSeq, 1)
	ts := time.Now().UnixNano()
	return base36(ts) + "-" + base36(int64(n)) + randSuffix(2)
}

func randSuffix(n int) string {
	const alpha = "abcdefghijklmnopqrstuvwxyz0123456789"
	var b strings.Builder
	ridMu.Lock()
	for i := 0; i < n; i++ {
		b.WriteByte(alpha[ridRng.Intn(len(alpha))])
	}
	ridMu.Unlock()
	return b.String()
}

func base36(v int64) string {
	const chars = "0123456789abcdefghijklmnopqrstuvwxyz"
	if v < 0 {
		v = -v
	}
	if v == 0 {
		return "0"
	}
	var out [32]byte
	i := len(out)
	for v > 0 {
		i--
		out[i] = chars[v%36]
		v /= 36
	}
	return string(out[i:])
}
