package wiring

import (
	"errors"
	"io"
	"strings"
	"testing"

	"papercast/services/upload/internal/config"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestOpenFailsOnUnreachableObjectStore(t *testing.T) {
	cfg := config.FileConfig{
		StoreDriver:    config.StoreDriverMemory,
		MinioEndpoint:  "127.0.0.1:1",
		MinioAccessKey: "key",
		MinioSecretKey: "secret",
		MinioBucket:    "uploads",
	}
	deps, err := Open(cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	if deps != nil {
		t.Fatalf("expected nil deps on error, got %+v", deps)
	}
	if !strings.Contains(err.Error(), "init object store") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCloseRunsInReverseAndJoinsErrors(t *testing.T) {
	var order []int
	boom := errors.New("boom")
	d := &Deps{closers: []io.Closer{
		closerFunc(func() error { order = append(order, 1); return nil }),
		closerFunc(func() error { order = append(order, 2); return boom }),
		closerFunc(func() error { order = append(order, 3); return nil }),
	}}
	err := d.Close()
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined boom, got %v", err)
	}
	if len(order) != 3 || order[0] != 3 || order[2] != 1 {
		t.Fatalf("unexpected close order %v", order)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
