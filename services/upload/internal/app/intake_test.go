package app

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"papercast/pkg/domain"
	"papercast/pkg/store"
)

func TestSubmitStoresBlobThenRecord(t *testing.T) {
	h := newHarness(t)
	req := pdfRequest(nil)
	req.Filename = `C:\papers\draft\paper.pdf`
	req.Title = "  Attention Is Enough "
	req.Authors = []string{"Ada Lovelace, Alan Turing", " ", "Grace Hopper"}

	u, err := h.app.Submit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if u.OwnerID != alice.ID || u.Status != domain.StatusPending || u.Version != 1 {
		t.Fatalf("unexpected record: %+v", u)
	}
	if u.Priority != domain.DefaultPriority {
		t.Fatalf("priority = %d, want default %d", u.Priority, domain.DefaultPriority)
	}
	if u.StorageKey != "pending/"+u.ID+".pdf" {
		t.Fatalf("storage key = %q", u.StorageKey)
	}
	if !h.objects.has(u.StorageKey) || u.StorageLocator != "http://objects.test/uploads/"+u.StorageKey {
		t.Fatalf("blob missing or locator wrong: %q", u.StorageLocator)
	}
	if u.OriginalFilename != "paper.pdf" || u.ExtractedTitle != "Attention Is Enough" {
		t.Fatalf("filename/title = %q/%q", u.OriginalFilename, u.ExtractedTitle)
	}
	if got := strings.Join(u.ExtractedAuthors, "|"); got != "Ada Lovelace|Alan Turing|Grace Hopper" {
		t.Fatalf("authors = %q", got)
	}

	stored, ok, err := h.store.GetUpload(context.Background(), u.ID)
	if err != nil || !ok || stored.StorageLocator != u.StorageLocator {
		t.Fatalf("stored record mismatch: ok=%v err=%v %+v", ok, err, stored)
	}
	if len(h.notifier.notices) != 1 || h.notifier.notices[0].UploadID != u.ID {
		t.Fatalf("expected one work notice, got %+v", h.notifier.notices)
	}

	list, err := h.app.ListAll(context.Background(), admin, store.ListFilter{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(list.Items) != 1 || list.Items[0].Owner.Email != alice.Email || list.Items[0].Owner.DisplayName != alice.Name {
		t.Fatalf("owner directory not joined: %+v", list.Items)
	}
}

func TestSubmitAcceptsContentTypeParameters(t *testing.T) {
	h := newHarness(t)
	req := pdfRequest(intPtr(1))
	req.ContentType = "Application/PDF; charset=binary"
	if _, err := h.app.Submit(context.Background(), alice, req); err != nil {
		t.Fatalf("submit: %v", err)
	}
}

func TestSubmitValidationHasNoSideEffects(t *testing.T) {
	big := int64(domain.MaxUploadBytes + 1)
	tests := []struct {
		name   string
		mutate func(*SubmitRequest)
	}{
		{name: "not a pdf", mutate: func(r *SubmitRequest) { r.ContentType = "image/png" }},
		{name: "missing content type", mutate: func(r *SubmitRequest) { r.ContentType = "" }},
		{name: "empty file", mutate: func(r *SubmitRequest) { r.Size = 0; r.Body = bytes.NewReader(nil) }},
		{name: "over ceiling", mutate: func(r *SubmitRequest) { r.Size = big }},
		{name: "priority too low", mutate: func(r *SubmitRequest) { r.Priority = intPtr(0) }},
		{name: "priority too high", mutate: func(r *SubmitRequest) { r.Priority = intPtr(11) }},
		{name: "body longer than declared", mutate: func(r *SubmitRequest) { r.Size = 4 }},
		{name: "body shorter than declared", mutate: func(r *SubmitRequest) { r.Size += 10 }},
		{name: "no body", mutate: func(r *SubmitRequest) { r.Body = nil }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			req := pdfRequest(nil)
			tc.mutate(&req)
			_, err := h.app.Submit(context.Background(), alice, req)
			wantKind(t, err, domain.KindValidation)
			if h.objects.count() != 0 {
				t.Fatalf("validation failure wrote a blob")
			}
			items, _ := h.store.ListUploadsByOwner(context.Background(), alice.ID)
			if len(items) != 0 {
				t.Fatalf("validation failure wrote a record")
			}
			if len(h.notifier.notices) != 0 {
				t.Fatalf("validation failure published a notice")
			}
		})
	}
}

func TestSubmitHonoursConfiguredCeiling(t *testing.T) {
	h := newHarness(t)
	small, err := New(Config{Store: h.mem, Objects: h.objects, MaxUploadBytes: 8, Retry: NoRetry{}})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	_, err = small.Submit(context.Background(), alice, pdfRequest(nil))
	wantKind(t, err, domain.KindValidation)

	if _, err := New(Config{Store: h.mem, Objects: h.objects, MaxUploadBytes: domain.MaxUploadBytes + 1}); err == nil {
		t.Fatalf("expected ceiling above the hard maximum to be rejected")
	}
}

func TestSubmitRequiresUserOrAdmin(t *testing.T) {
	h := newHarness(t)
	_, err := h.app.Submit(context.Background(), domain.Actor{}, pdfRequest(nil))
	wantKind(t, err, domain.KindUnauthorized)
	_, err = h.app.Submit(context.Background(), worker, pdfRequest(nil))
	wantKind(t, err, domain.KindForbidden)
	if _, err := h.app.Submit(context.Background(), admin, pdfRequest(nil)); err != nil {
		t.Fatalf("admin submit: %v", err)
	}
}

func TestSubmitStorageFailureWritesNoRecord(t *testing.T) {
	h := newHarness(t)
	h.objects.putErr = errInjected
	_, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	wantKind(t, err, domain.KindStorage)
	if !errors.Is(err, errInjected) {
		t.Fatalf("storage error should wrap the cause: %v", err)
	}
	items, _ := h.store.ListUploadsByOwner(context.Background(), alice.ID)
	if len(items) != 0 {
		t.Fatalf("record written after storage failure")
	}
}

func TestSubmitRetriesRecordCreate(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t,
		withStore(func(s store.Store) store.Store { flaky = &flakyStore{Store: s, failures: 2}; return flaky }),
		withRetry(NewBackoffRetry(BackoffRetryConfig{MaxRetries: 3, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})),
	)
	u, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if flaky.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", flaky.attempts)
	}
	if !h.objects.has(u.StorageKey) {
		t.Fatalf("blob removed after successful retry")
	}
}

func TestSubmitCompensatesWhenCreateExhaustsRetries(t *testing.T) {
	var flaky *flakyStore
	h := newHarness(t,
		withStore(func(s store.Store) store.Store { flaky = &flakyStore{Store: s, failures: -1}; return flaky }),
		withRetry(NewBackoffRetry(BackoffRetryConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond})),
	)
	_, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	wantKind(t, err, domain.KindDatabase)
	if flaky.attempts != 3 {
		t.Fatalf("attempts = %d, want 3", flaky.attempts)
	}
	if h.objects.count() != 0 || len(h.objects.deletes) != 1 {
		t.Fatalf("compensation did not remove the blob: deletes=%v", h.objects.deletes)
	}
	if len(h.notifier.notices) != 0 {
		t.Fatalf("failed intake published a notice")
	}
}

func TestSubmitFailedCompensationLeavesBlobForSweep(t *testing.T) {
	h := newHarness(t,
		withStore(func(s store.Store) store.Store { return &flakyStore{Store: s, failures: -1} }),
	)
	h.objects.deleteErr = errInjected
	_, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	wantKind(t, err, domain.KindDatabase)
	if h.objects.count() != 1 {
		t.Fatalf("expected orphan blob to remain, have %d", h.objects.count())
	}

	h.objects.deleteErr = nil
	h.clock.Advance(2 * time.Hour)
	sum, err := h.app.SweepOrphans(context.Background(), time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sum.Orphaned != 1 || sum.Deleted != 1 || h.objects.count() != 0 {
		t.Fatalf("sweep did not remove orphan: %+v", sum)
	}
}

func TestSubmitKeepsBlobWhenCreateCommittedDespiteError(t *testing.T) {
	h := newHarness(t,
		withStore(func(s store.Store) store.Store { return &lostAckStore{Store: s} }),
	)
	u, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	stored, ok, err := h.mem.GetUpload(context.Background(), u.ID)
	if err != nil || !ok {
		t.Fatalf("record missing: ok=%v err=%v", ok, err)
	}
	if !h.objects.has(stored.StorageKey) {
		t.Fatalf("record %s points at deleted blob %s", stored.ID, stored.StorageKey)
	}
	if len(h.objects.deletes) != 0 {
		t.Fatalf("unexpected blob deletes %v", h.objects.deletes)
	}
	if len(h.notifier.notices) != 1 {
		t.Fatalf("expected one work notice, got %d", len(h.notifier.notices))
	}
}

func TestSubmitLeavesBlobWhenRecordStateUnknown(t *testing.T) {
	h := newHarness(t,
		withStore(func(s store.Store) store.Store { return &lostAckStore{Store: s, getErr: errInjected} }),
	)
	_, err := h.app.Submit(context.Background(), alice, pdfRequest(nil))
	wantKind(t, err, domain.KindDatabase)
	if len(h.objects.deletes) != 0 || h.objects.count() != 1 {
		t.Fatalf("blob must stay when the record lookup fails: deletes=%v", h.objects.deletes)
	}
}

func TestSubmitSurvivesNotifierFailure(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errInjected
	if _, err := h.app.Submit(context.Background(), alice, pdfRequest(nil)); err != nil {
		t.Fatalf("notifier failure must not fail intake: %v", err)
	}
}

func TestRetryDoesNotRepeatDuplicateKey(t *testing.T) {
	calls := 0
	r := NewBackoffRetry(BackoffRetryConfig{MaxRetries: 5, InitialInterval: time.Millisecond})
	err := r.Do(context.Background(), "pending/x.pdf", func(context.Context) error {
		calls++
		return store.ErrDuplicateUpload
	})
	if !errors.Is(err, store.ErrDuplicateUpload) || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestUploadIDFromKey(t *testing.T) {
	id := "5f0c2a5e-8f7e-4d8e-9b69-0c7f0d35c1aa"
	tests := []struct {
		key  string
		want bool
	}{
		{storageKeyFor(id), true},
		{"pending/" + id, false},
		{"done/" + id + ".pdf", false},
		{"pending/not-a-uuid.pdf", false},
		{"pending/nested/" + id + ".pdf", false},
	}
	for _, tc := range tests {
		got, ok := uploadIDFromKey(tc.key)
		if ok != tc.want || (ok && got != id) {
			t.Fatalf("uploadIDFromKey(%q) = %q, %v", tc.key, got, ok)
		}
	}
}

func TestBaseFilename(t *testing.T) {
	cases := map[string]string{
		"paper.pdf":              "paper.pdf",
		"../../etc/passwd":       "passwd",
		`C:\Users\me\thesis.pdf`: "thesis.pdf",
		"":                       defaultFilename,
		"dir/":                   "dir",
		"/":                      defaultFilename,
	}
	for in, want := range cases {
		if got := baseFilename(in); got != want {
			t.Fatalf("baseFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSubmitUsesPDFTitleWhenNoneGiven(t *testing.T) {
	h := newHarness(t)
	doc := buildPDF("From Metadata")
	req := SubmitRequest{
		Filename:    "scan.pdf",
		ContentType: domain.ContentTypePDF,
		Size:        int64(len(doc)),
		Body:        bytes.NewReader(doc),
	}
	u, err := h.app.Submit(context.Background(), alice, req)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if u.ExtractedTitle != "From Metadata" || u.PageCount != 1 {
		t.Fatalf("pdf hints not applied: title=%q pages=%d", u.ExtractedTitle, u.PageCount)
	}
}
