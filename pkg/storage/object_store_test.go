package storage

import (
	"net/url"
	"testing"
)

func TestPublicURL(t *testing.T) {
	tests := []struct {
		name string
		base string
		want string
	}{
		{name: "endpoint", base: "http://localhost:9000", want: "http://localhost:9000/papers/pending/abc.pdf"},
		{name: "cdn with path", base: "https://cdn.example.com/blobs/", want: "https://cdn.example.com/blobs/papers/pending/abc.pdf"},
		{name: "query dropped", base: "https://cdn.example.com?x=1", want: "https://cdn.example.com/papers/pending/abc.pdf"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			base, err := url.Parse(tc.base)
			if err != nil {
				t.Fatalf("parse base: %v", err)
			}
			if got := PublicURL(base, "papers", "pending/abc.pdf"); got != tc.want {
				t.Fatalf("PublicURL = %q, want %q", got, tc.want)
			}
		})
	}
	if got := PublicURL(nil, "papers", "k"); got != "" {
		t.Fatalf("nil base should give empty locator, got %q", got)
	}
}
