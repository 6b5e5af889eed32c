package registry

import (
	"testing"
	"time"
)

func TestMemoryRegistry(t *testing.T) {
	reg := NewMemoryRegistry()
	watch := reg.Watch("perforce")

	reg.Register("perforce", ServiceInstance{Addr: "a", Weight: 1}, 10)
	reg.Register("perforce", ServiceInstance{Addr: "b", Weight: 1}, 10)
	// Re-registering the same address replaces it.
	reg.Register("perforce", ServiceInstance{Addr: "a", Weight: 3}, 10)

	instances, _ := reg.Discover("perforce")
	if len(instances) != 2 {
		t.Fatalf("expect 2 instances, got %v", instances)
	}

	select {
	case latest := <-watch:
		if len(latest) != 2 {
			t.Fatalf("expect watcher to see the latest list, got %v", latest)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher was not notified")
	}

	reg.Deregister("perforce", "b")
	instances, _ = reg.Discover("perforce")
	if len(instances) != 1 || instances[0].Addr != "a" || instances[0].Weight != 3 {
		t.Fatalf("unexpected instances after deregister %v", instances)
	}

	if other, _ := reg.Discover("other"); len(other) != 0 {
		t.Fatalf("expect no instances, got %v", other)
	}
}
