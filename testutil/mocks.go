package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// MockTwitchServer mocks the Helix endpoints used by the bot. Point a
// twitchapi.HelixClient's BaseURL at URL.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	Handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server.
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		Handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.hits[r.URL.Path]++
		handler, ok := m.Handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Hits returns how many requests reached path.
func (m *MockTwitchServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

func (m *MockTwitchServer) handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Handlers[path] = h
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

func loginPage(logins []string) map[string]interface{} {
	data := make([]map[string]string, 0, len(logins))
	for _, l := range logins {
		data = append(data, map[string]string{"user_login": l, "user_name": l})
	}
	return map[string]interface{}{"data": data, "pagination": map[string]string{}}
}

// MockUsers answers /users lookups from a login -> id map.
func (m *MockTwitchServer) MockUsers(ids map[string]string) {
	m.handle("/users", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		if id, ok := ids[r.URL.Query().Get("login")]; ok {
			data = append(data, map[string]string{"id": id, "login": r.URL.Query().Get("login")})
		}
		writeJSON(w, map[string]interface{}{"data": data})
	})
}

// MockChatters answers /chat/chatters with a single page of logins.
func (m *MockTwitchServer) MockChatters(logins []string) {
	m.handle("/chat/chatters", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, loginPage(logins))
	})
}

// MockModerators answers /moderation/moderators with a single page of logins.
func (m *MockTwitchServer) MockModerators(logins []string) {
	m.handle("/moderation/moderators", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, loginPage(logins))
	})
}

// MockSubscriptions answers /subscriptions: user ids in subs are subscribed.
func (m *MockTwitchServer) MockSubscriptions(subs map[string]bool) {
	m.handle("/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		data := []map[string]string{}
		if subs[r.URL.Query().Get("user_id")] {
			data = append(data, map[string]string{"user_id": r.URL.Query().Get("user_id"), "tier": "1000"})
		}
		writeJSON(w, map[string]interface{}{"data": data})
	})
}
