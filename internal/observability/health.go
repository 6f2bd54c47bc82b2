package observability

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// HealthChecker manages liveness and readiness state. Readiness is the
// conjunction of named components (postgres, nats, replay) so the readyz
// response can say which one is holding startup back.
type HealthChecker struct {
	mu         sync.RWMutex
	components map[string]bool
	startTime  time.Time
}

// NewHealthChecker creates a health checker tracking the given components,
// all initially not ready.
func NewHealthChecker(components ...string) *HealthChecker {
	hc := &HealthChecker{
		components: make(map[string]bool, len(components)),
		startTime:  time.Now(),
	}
	for _, c := range components {
		hc.components[c] = false
	}
	return hc
}

// SetComponentReady marks a single component ready or not ready.
func (h *HealthChecker) SetComponentReady(name string, ready bool) {
	h.mu.Lock()
	h.components[name] = ready
	h.mu.Unlock()
}

// IsReady returns true when every tracked component is ready.
func (h *HealthChecker) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ok := range h.components {
		if !ok {
			return false
		}
	}
	return true
}

func (h *HealthChecker) notReady() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []string
	for name, ok := range h.components {
		if !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// LivenessHandler returns HTTP 200 whenever the process is running.
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "alive",
		"uptime": time.Since(h.startTime).String(),
	})
}

// ReadinessHandler returns HTTP 200 once all components are ready,
// 503 with the list of pending components otherwise.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.IsReady() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ready",
		})
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "not_ready",
		"waiting": h.notReady(),
	})
}
