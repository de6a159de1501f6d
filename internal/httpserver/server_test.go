package httpserver

import (
	"net/http"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	srv := New(8081, http.NewServeMux(), Timeouts{})

	if srv.Addr() != ":8081" {
		t.Fatalf("expected :8081 got %s", srv.Addr())
	}
	if srv.inner.ReadHeaderTimeout != defaultReadHeaderTimeout {
		t.Fatalf("expected default read header timeout got %s", srv.inner.ReadHeaderTimeout)
	}
	if srv.inner.WriteTimeout != defaultWriteTimeout {
		t.Fatalf("expected default write timeout got %s", srv.inner.WriteTimeout)
	}

	srv = New(8081, http.NewServeMux(), Timeouts{ReadHeader: time.Second, Write: 2 * time.Second})
	if srv.inner.ReadHeaderTimeout != time.Second || srv.inner.WriteTimeout != 2*time.Second {
		t.Fatalf("expected configured timeouts got %s %s", srv.inner.ReadHeaderTimeout, srv.inner.WriteTimeout)
	}
}

func TestShutdownWithinIdleServer(t *testing.T) {
	srv := New(0, http.NewServeMux(), Timeouts{})

	if err := srv.ShutdownWithin(0); err != nil {
		t.Fatalf("expected clean shutdown of unstarted server got %v", err)
	}
}
