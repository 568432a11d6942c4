package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"papercast/pkg/domain"
	"papercast/pkg/queue"
	"papercast/pkg/storage"
	"papercast/pkg/store"
)

var (
	alice  = domain.Actor{ID: "user-a", Role: domain.RoleUser, Email: "a@example.com", Name: "Alice"}
	bob    = domain.Actor{ID: "user-b", Role: domain.RoleUser}
	admin  = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
	worker = domain.Actor{ID: "pdf-worker-1", Role: domain.RoleWorker}
)

var errInjected = errors.New("injected failure")

type fakeObject struct {
	data         []byte
	lastModified time.Time
}

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	putErr    error
	deleteErr error
	listErr   error
	onDelete  func(key string)
	now       func() time.Time
	deletes   []string
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]fakeObject), now: time.Now}
}

func (f *fakeObjects) Put(_ context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	if contentType != domain.ContentTypePDF {
		return "", fmt.Errorf("unexpected content type %q", contentType)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if int64(len(data)) != size {
		return "", fmt.Errorf("size mismatch: %d != %d", len(data), size)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = fakeObject{data: data, lastModified: f.now()}
	return "http://objects.test/uploads/" + key, nil
}

func (f *fakeObjects) PresignGet(_ context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("http://objects.test/uploads/%s?expires=%d", key, int(expiry.Seconds())), nil
}

func (f *fakeObjects) Delete(_ context.Context, key string) error {
	if f.onDelete != nil {
		f.onDelete(key)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]storage.ObjectInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.ObjectInfo
	for key, obj := range f.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, storage.ObjectInfo{Key: key, Size: int64(len(obj.data)), LastModified: obj.lastModified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeObjects) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

func (f *fakeObjects) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []queue.Notice
	err     error
}

func (f *fakeNotifier) Notify(_ context.Context, n queue.Notice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, n)
	return f.err
}

// flakyStore fails CreateUpload failures times before delegating.
type flakyStore struct {
	store.Store
	mu       sync.Mutex
	failures int
	attempts int
}

func (s *flakyStore) CreateUpload(ctx context.Context, u domain.Upload) error {
	s.mu.Lock()
	s.attempts++
	fail := s.failures != 0
	if s.failures > 0 {
		s.failures--
	}
	s.mu.Unlock()
	if fail {
		return errInjected
	}
	return s.Store.CreateUpload(ctx, u)
}

// lostAckStore commits the create and then reports a failure, as when the
// connection drops before the commit is acknowledged.
type lostAckStore struct {
	store.Store
	getErr error
}

func (s *lostAckStore) CreateUpload(ctx context.Context, u domain.Upload) error {
	if err := s.Store.CreateUpload(ctx, u); err != nil {
		return err
	}
	return errInjected
}

func (s *lostAckStore) GetUpload(ctx context.Context, id string) (domain.Upload, bool, error) {
	if s.getErr != nil {
		return domain.Upload{}, false, s.getErr
	}
	return s.Store.GetUpload(ctx, id)
}

// staleStore serves reads one version behind, as if a writer sneaked in.
type staleStore struct {
	store.Store
}

func (s staleStore) GetUpload(ctx context.Context, id string) (domain.Upload, bool, error) {
	u, ok, err := s.Store.GetUpload(ctx, id)
	if ok {
		u.Version--
	}
	return u, ok, err
}

// clock hands out strictly increasing timestamps.
type clock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	app      *App
	store    store.Store
	mem      *store.MemoryStore
	objects  *fakeObjects
	notifier *fakeNotifier
	clock    *clock
}

type harnessOption func(*Config, *harness)

func withStore(wrap func(store.Store) store.Store) harnessOption {
	return func(cfg *Config, h *harness) {
		cfg.Store = wrap(cfg.Store)
		h.store = cfg.Store
	}
}

func withRetry(r RetryPolicy) harnessOption {
	return func(cfg *Config, _ *harness) { cfg.Retry = r }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		mem:      store.NewMemoryStore(),
		objects:  newFakeObjects(),
		notifier: &fakeNotifier{},
		clock:    newClock(),
	}
	h.objects.now = h.clock.Now
	h.store = h.mem
	cfg := Config{
		Store:    h.mem,
		Objects:  h.objects,
		Notifier: h.notifier,
		Retry:    NoRetry{},
		Now:      h.clock.Now,
	}
	for _, opt := range opts {
		opt(&cfg, h)
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	h.app = a
	return h
}

var samplePDF = []byte("%PDF-1.4\n% not a real document\n")

func pdfRequest(priority *int) SubmitRequest {
	return SubmitRequest{
		Filename:    "paper.pdf",
		ContentType: domain.ContentTypePDF,
		Size:        int64(len(samplePDF)),
		Body:        bytes.NewReader(samplePDF),
		Priority:    priority,
	}
}

func intPtr(v int) *int { return &v }

func (h *harness) submit(t *testing.T, actor domain.Actor, priority int) domain.Upload {
	t.Helper()
	u, err := h.app.Submit(context.Background(), actor, pdfRequest(intPtr(priority)))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	return u
}

func wantKind(t *testing.T, err error, kind domain.Kind) {
	t.Helper()
	if got := domain.KindOf(err); got != kind {
		t.Fatalf("error kind = %q, want %q (err=%v)", got, kind, err)
	}
}
