package server

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Health returns a simple health check handler.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// ipLimiter hands out a token-bucket limiter per remote IP. Entries
// idle longer than ttl are swept by a background loop so the map does
// not grow for the life of the process.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	lastSeen map[string]time.Time
	rate     rate.Limit
	burst    int
	ttl      time.Duration
	stop     chan struct{}
}

func newIPLimiter(r rate.Limit, burst int, ttl, sweepEvery time.Duration) *ipLimiter {
	l := &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		lastSeen: make(map[string]time.Time),
		rate:     r,
		burst:    burst,
		ttl:      ttl,
		stop:     make(chan struct{}),
	}
	go l.sweep(sweepEvery)
	return l
}

func (l *ipLimiter) sweep(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.mu.Lock()
			for ip, seen := range l.lastSeen {
				if time.Since(seen) > l.ttl {
					delete(l.limiters, ip)
					delete(l.lastSeen, ip)
				}
			}
			l.mu.Unlock()
		}
	}
}

func (l *ipLimiter) allow(remoteAddr string) bool {
	ip, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		ip = remoteAddr
	}

	l.mu.Lock()
	lim, ok := l.limiters[ip]
	if !ok {
		lim = rate.NewLimiter(l.rate, l.burst)
		l.limiters[ip] = lim
	}
	l.lastSeen[ip] = time.Now()
	l.mu.Unlock()

	return lim.Allow()
}

// Rooms handles the room directory endpoint: GET lists rooms, POST
// creates one. Creation is rate limited per remote IP; the created
// room is also pushed to every connected client as a rooms event, which
// is what the creator's own directory update rides on.
func Rooms(h *Hub) http.HandlerFunc {
	limiter := newIPLimiter(rate.Limit(1), 5, 10*time.Minute, time.Minute)

	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(h.Rooms())

		case http.MethodPost:
			if !limiter.allow(r.RemoteAddr) {
				http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
				return
			}

			var body struct {
				Name string `json:"name"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
				return
			}
			if strings.TrimSpace(body.Name) == "" {
				http.Error(w, `{"error":"name required"}`, http.StatusBadRequest)
				return
			}

			room, err := h.CreateRoom(body.Name)
			if err != nil {
				http.Error(w, `{"error":"create failed"}`, http.StatusInternalServerError)
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(room)

		default:
			http.Error(w, `{"error":"method not allowed"}`, http.StatusMethodNotAllowed)
		}
	}
}
