package redisclient

import (
	"testing"
	"time"
)

func TestClientOptionsDefaults(t *testing.T) {
	got := ClientOptions{Addr: "127.0.0.1:6379"}.withDefaults()
	if got.DialTimeout != 5*time.Second {
		t.Fatalf("DialTimeout = %v, want 5s", got.DialTimeout)
	}
	if got.ReadTimeout != 2*time.Second {
		t.Fatalf("ReadTimeout = %v, want 2s", got.ReadTimeout)
	}
	if got.PoolSize != 10 {
		t.Fatalf("PoolSize = %d, want 10", got.PoolSize)
	}

	custom := ClientOptions{
		DialTimeout: time.Second,
		ReadTimeout: 500 * time.Millisecond,
		PoolSize:    4,
	}.withDefaults()
	if custom.DialTimeout != time.Second || custom.ReadTimeout != 500*time.Millisecond || custom.PoolSize != 4 {
		t.Fatalf("explicit options were overridden: %+v", custom)
	}
}
