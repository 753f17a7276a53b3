package presence

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/ernie/pokearena/internal/domain"
)

type fakeConn struct {
	id     string
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.sent = append(c.sent, msg)
	return true
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) lastOnline(t *testing.T) []domain.OnlineUser {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		var msg domain.OnlineUsersMessage
		if err := json.Unmarshal(c.sent[i], &msg); err == nil && msg.Type == domain.MessageOnlineUsers {
			return msg.Users
		}
	}
	t.Fatalf("conn %s never received online_users", c.id)
	return nil
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

func TestRegisterBroadcastsOnlineList(t *testing.T) {
	r := NewRegistry(nil)
	ash := newFakeConn("a")
	misty := newFakeConn("m")

	r.Register(1, "Ash", ash)
	if got := ash.lastOnline(t); len(got) != 1 || got[0].Username != "Ash" {
		t.Errorf("after first register: %+v", got)
	}

	r.Register(2, "Misty", misty)
	for _, c := range []*fakeConn{ash, misty} {
		got := c.lastOnline(t)
		if len(got) != 2 || got[0].ID != 1 || got[1].ID != 2 {
			t.Errorf("conn %s saw %+v", c.id, got)
		}
	}
	if r.Count() != 2 {
		t.Errorf("Count = %d, want 2", r.Count())
	}
}

func TestReconnectReplacesEntry(t *testing.T) {
	r := NewRegistry(nil)
	first := newFakeConn("first")
	second := newFakeConn("second")

	r.Register(1, "Ash", first)
	r.Register(1, "Ash", second)

	if first.closed {
		t.Error("replaced connection should not be closed")
	}
	e, ok := r.Lookup(1)
	if !ok || e.Conn.ID() != "second" {
		t.Fatalf("Lookup = %+v, %v", e, ok)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}

	// The stale socket closing must not evict the reconnect.
	if r.Unregister(1, first) {
		t.Error("stale Unregister removed the live entry")
	}
	if _, ok := r.Lookup(1); !ok {
		t.Error("entry missing after stale Unregister")
	}

	if !r.Unregister(1, second) {
		t.Error("Unregister of live conn failed")
	}
	if r.Count() != 0 {
		t.Errorf("Count = %d, want 0", r.Count())
	}
}

func TestUnregisterBroadcasts(t *testing.T) {
	r := NewRegistry(nil)
	ash := newFakeConn("a")
	misty := newFakeConn("m")
	r.Register(1, "Ash", ash)
	r.Register(2, "Misty", misty)

	r.Unregister(2, misty)
	got := ash.lastOnline(t)
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("after unregister: %+v", got)
	}
}

func TestBroadcastSkipsClosed(t *testing.T) {
	r := NewRegistry(nil)
	open := newFakeConn("open")
	gone := newFakeConn("gone")
	r.Register(1, "Ash", open)
	r.Register(2, "Brock", gone)
	gone.Close()

	before := open.count()
	if err := r.Broadcast(domain.NewBattleError("hello")); err != nil {
		t.Fatal(err)
	}
	if open.count() != before+1 {
		t.Errorf("open conn got %d new messages, want 1", open.count()-before)
	}
}

func TestSend(t *testing.T) {
	r := NewRegistry(nil)
	ash := newFakeConn("a")
	r.Register(1, "Ash", ash)

	if !r.Send(1, domain.YourIDMessage{Type: domain.MessageYourID, UserID: 1}) {
		t.Error("Send to online user failed")
	}
	if r.Send(99, domain.YourIDMessage{Type: domain.MessageYourID, UserID: 99}) {
		t.Error("Send to offline user succeeded")
	}
	ash.Close()
	if r.Send(1, domain.NewBattleError("x")) {
		t.Error("Send to closed conn succeeded")
	}
}

func TestCloseClearsRegistry(t *testing.T) {
	r := NewRegistry(nil)
	var counts []int
	r.OnChange(func(n int) { counts = append(counts, n) })

	ash := newFakeConn("a")
	misty := newFakeConn("m")
	r.Register(1, "Ash", ash)
	r.Register(2, "Misty", misty)
	r.Close()

	if r.Count() != 0 {
		t.Errorf("Count = %d after Close", r.Count())
	}
	if !ash.closed || !misty.closed {
		t.Error("Close should close every connection")
	}
	late := newFakeConn("late")
	r.Register(3, "Brock", late)
	if !late.closed || r.Count() != 0 {
		t.Error("registration after Close should be refused")
	}
	if want := []int{1, 2, 0}; len(counts) != len(want) || counts[0] != 1 || counts[1] != 2 || counts[2] != 0 {
		t.Errorf("OnChange counts = %v, want %v", counts, want)
	}
}

func TestConcurrentRegister(t *testing.T) {
	r := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 1; i <= 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := newFakeConn(string(rune('A' + id)))
			r.Register(id, "user", c)
			r.List()
		}(int64(i))
	}
	wg.Wait()
	if r.Count() != 50 {
		t.Errorf("Count = %d, want 50", r.Count())
	}
}

func TestReplacedConnKeepsPresenceUpdates(t *testing.T) {
	r := NewRegistry(nil)
	first := newFakeConn("first")
	second := newFakeConn("second")
	misty := newFakeConn("m")

	r.Register(1, "Ash", first)
	r.Register(1, "Ash", second)
	r.Register(2, "Misty", misty)

	// The old tab is still open and sees Misty arrive.
	if got := first.lastOnline(t); len(got) != 2 {
		t.Errorf("replaced conn saw %+v", got)
	}

	r.Unregister(1, first)
	before := first.count()
	r.Unregister(2, misty)
	if first.count() != before {
		t.Error("unregistered conn still receives broadcasts")
	}
	if got := second.lastOnline(t); len(got) != 1 || got[0].ID != 1 {
		t.Errorf("live conn saw %+v", got)
	}
}

func TestConcurrentChurnEndsWithCurrentList(t *testing.T) {
	r := NewRegistry(nil)
	watcher := newFakeConn("watcher")
	r.Register(1000, "Oak", watcher)

	var wg sync.WaitGroup
	for i := 1; i <= 40; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			c := newFakeConn(fmt.Sprintf("c%d", id))
			r.Register(id, "trainer", c)
			if id%2 == 0 {
				r.Unregister(id, c)
			}
		}(int64(i))
	}
	wg.Wait()

	got := watcher.lastOnline(t)
	want := r.List()
	if len(got) != len(want) || len(want) != 21 {
		t.Fatalf("last broadcast has %d users, registry has %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("last broadcast[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}
}
