package fetch

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
)

type stubFetcher struct{ typ string }

func (s stubFetcher) Type() string { return s.typ }

func (s stubFetcher) Fetch(context.Context, string, string, int) ([]Item, error) { return nil, nil }

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubFetcher{TypeRSS}, stubFetcher{TypeHTML})
	if _, ok := r.Get(TypeRSS); !ok {
		t.Fatal("rss fetcher not registered")
	}
	if _, ok := r.Get("ftp"); ok {
		t.Fatal("unexpected fetcher for ftp")
	}
	if got, want := r.Types(), []string{TypeHTML, TypeRSS}; !reflect.DeepEqual(got, want) {
		t.Errorf("Types() = %v, want %v", got, want)
	}
}

func TestErrorUnwrap(t *testing.T) {
	err := error(&Error{SourceID: "hk_economy", URL: "https://x", Err: io.ErrUnexpectedEOF})
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal("errors.Is should see the wrapped cause")
	}
	if err.Error() != "fetch hk_economy (https://x): unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
}
