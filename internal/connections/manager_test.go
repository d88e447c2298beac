package connections

import (
	"context"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestManager(t *testing.T) {
	// Create a context with timeout for the entire test
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Add cleanup function that will run after each test
	t.Cleanup(func() {
		cancel()
		// Give any goroutines a chance to clean up
		time.Sleep(100 * time.Millisecond)
	})

	t.Run("basic add and remove client", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)

		client := manager.AddClient(&websocket.Conn{})
		if !manager.HasClient(client) {
			t.Error("Client not found after adding")
		}

		manager.RemoveClient(client)
		if manager.HasClient(client) {
			t.Error("Client still exists after removal")
		}
	})

	t.Run("concurrent client operations", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		concurrentOps := 100
		var wg sync.WaitGroup
		wg.Add(concurrentOps)

		for i := 0; i < concurrentOps; i++ {
			go func() {
				defer wg.Done()
				select {
				case <-ctx.Done():
					return
				default:
					manager.AddClient(&websocket.Conn{})
				}
			}()
		}

		// Wait with timeout
		waitCh := make(chan struct{})
		go func() {
			wg.Wait()
			close(waitCh)
		}()

		select {
		case <-ctx.Done():
			t.Fatal("Test timed out")
		case <-waitCh:
			// Continue with test
		}

		if got := manager.GetClientCount(); got != concurrentOps {
			t.Errorf("Expected %d clients, got %d", concurrentOps, got)
		}
	})

	t.Run("memory leak check", func(t *testing.T) {
		manager := NewManager(DefaultTimeouts)
		iterations := 1000

		var m1, m2 runtime.MemStats
		runtime.GC()
		runtime.ReadMemStats(&m1)

		for i := 0; i < iterations; i++ {
			client := manager.AddClient(&websocket.Conn{})
			manager.RemoveClient(client)
		}

		runtime.GC()
		time.Sleep(100 * time.Millisecond) // Allow time for GC to complete
		runtime.ReadMemStats(&m2)

		// Handle both positive and negative growth
		var memoryGrowth int64
		if m2.HeapAlloc >= m1.HeapAlloc {
			memoryGrowth = int64(m2.HeapAlloc - m1.HeapAlloc)
		} else {
			memoryGrowth = -int64(m1.HeapAlloc - m2.HeapAlloc)
		}

		// Set a reasonable threshold (e.g., 1KB per iteration)
		maxAcceptableGrowth := int64(iterations * 1024) // 1KB per iteration
		if memoryGrowth > maxAcceptableGrowth {
			t.Errorf("Possible memory leak detected: memory growth of %d bytes exceeds threshold of %d bytes",
				memoryGrowth, maxAcceptableGrowth)
		}

		select {
		case <-ctx.Done():
			t.Fatal("Memory leak test timed out")
		default:
			// Continue with test
		}
	})

	t.Run("timeout configuration", func(t *testing.T) {
		customTimeouts := TimeoutConfig{
			PongWait:   1 * time.Minute,
			PingPeriod: 54 * time.Second,
			WriteWait:  20 * time.Second,
		}

		manager := NewManager(customTimeouts)
		if manager.GetTimeouts() != customTimeouts {
			t.Error("Timeout configuration not set correctly")
		}
	})
}

// A directive socket sits idle on the read side for the whole duration of a
// relayed stream, which is routinely longer than PongWait. The read deadline
// must survive that gap so the next directive on the same socket still works.
func TestReadDeadlineSurvivesStreamingPause(t *testing.T) {
	timeouts := TimeoutConfig{
		PongWait:   100 * time.Millisecond,
		PingPeriod: 90 * time.Millisecond,
		WriteWait:  time.Second,
	}
	manager := NewManager(timeouts)
	pause := 3 * timeouts.PongWait

	upgrader := websocket.Upgrader{}
	serverErr := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			serverErr <- err
			return
		}
		client := manager.AddClient(conn)
		defer client.Close()
		client.PrepareRead()

		var frame map[string]string
		if err := client.ReadJSON(&frame); err != nil {
			serverErr <- err
			return
		}
		// Stand-in for relaying a stream: no reads until it finishes.
		time.Sleep(pause)
		serverErr <- client.ReadJSON(&frame)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"directive": "send"}); err != nil {
		t.Fatalf("First write failed: %v", err)
	}
	time.Sleep(pause)
	if err := conn.WriteJSON(map[string]string{"directive": "continue"}); err != nil {
		t.Fatalf("Second write failed: %v", err)
	}

	select {
	case err := <-serverErr:
		if err != nil {
			t.Fatalf("Read after streaming pause failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for server reads")
	}
}
