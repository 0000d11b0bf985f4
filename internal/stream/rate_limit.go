package stream

import "sync"

const defaultMaxTotal = 1000

// streamLimiter caps concurrent streams per client IP and overall.
type streamLimiter struct {
	mu          sync.Mutex
	connections map[string]int
	total       int
	maxPerIP    int
	maxTotal    int
}

func newStreamLimiter(maxPerIP, maxTotal int) *streamLimiter {
	if maxPerIP <= 0 {
		maxPerIP = 10
	}
	if maxTotal <= 0 {
		maxTotal = defaultMaxTotal
	}
	return &streamLimiter{
		connections: make(map[string]int),
		maxPerIP:    maxPerIP,
		maxTotal:    maxTotal,
	}
}

// acquire registers a stream for ip. On success the returned release func
// must be called once the stream ends; it is idempotent.
func (l *streamLimiter) acquire(ip string) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.total >= l.maxTotal || l.connections[ip] >= l.maxPerIP {
		return nil, false
	}
	l.connections[ip]++
	l.total++

	var once sync.Once
	return func() { once.Do(func() { l.release(ip) }) }, true
}

func (l *streamLimiter) release(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.total--
	if l.connections[ip]--; l.connections[ip] <= 0 {
		delete(l.connections, ip)
	}
}

// count returns the number of streams open for ip.
func (l *streamLimiter) count(ip string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connections[ip]
}
