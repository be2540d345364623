package health

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
)

// Manager tracks readiness per dependency. The service is ready only
// when every registered component is; optional components (kafka,
// postgres in dev) simply never register.
type Manager struct {
	mu         sync.RWMutex
	components map[string]bool
}

func NewManager() *Manager {
	return &Manager{components: map[string]bool{}}
}

func (m *Manager) SetComponent(name string, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components[name] = ready
}

func (m *Manager) IsReady() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ready := range m.components {
		if !ready {
			return false
		}
	}
	return true
}

func (m *Manager) snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]string, len(m.components))
	for name, ready := range m.components {
		if ready {
			out[name] = "ready"
		} else {
			out[name] = "not_ready"
		}
	}
	return out
}

func LivenessHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func ReadinessHandler(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		overall := "ready"
		if !m.IsReady() {
			status = http.StatusServiceUnavailable
			overall = "not_ready"
		}
		c.JSON(status, gin.H{"status": overall, "components": m.snapshot()})
	}
}
