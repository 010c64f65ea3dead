package rpc

import (
	"net"
	"net/http"
	"strings"
	"sync"
)

const (
	defaultStreamsTotal     = 32
	defaultStreamsPerCaller = 4
)

// StreamLimit caps concurrent /rpc/stream subscriptions. Zero values take the defaults.
type StreamLimit struct {
	Total     int
	PerCaller int
}

// callerKey identifies a caller for rate and stream limits: the RPC token
// when one is sent, otherwise the remote host.
func callerKey(r *http.Request, token string) string {
	if token = strings.TrimSpace(token); token != "" {
		return "token:" + token
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err != nil {
		host = strings.TrimSpace(r.RemoteAddr)
	}
	if host == "" {
		host = "unknown"
	}
	return "ip:" + host
}

type streamSlots struct {
	total     int
	perCaller int

	mu       sync.Mutex
	open     int
	byCaller map[string]int
}

func newStreamSlots(limit StreamLimit) *streamSlots {
	if limit.Total <= 0 {
		limit.Total = defaultStreamsTotal
	}
	if limit.PerCaller <= 0 {
		limit.PerCaller = defaultStreamsPerCaller
	}
	return &streamSlots{
		total:     limit.Total,
		perCaller: limit.PerCaller,
		byCaller:  make(map[string]int),
	}
}

// take reserves a stream for caller. release must be called exactly once.
func (s *streamSlots) take(caller string) (release func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open >= s.total || s.byCaller[caller] >= s.perCaller {
		return nil, false
	}
	s.open++
	s.byCaller[caller]++
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.open--
			if s.byCaller[caller]--; s.byCaller[caller] <= 0 {
				delete(s.byCaller, caller)
			}
		})
	}, true
}

func (s *streamSlots) inUse() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}
