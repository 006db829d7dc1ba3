package datastore

import (
	"errors"
	"reflect"
	"testing"
)

func TestCodec_EncodeSeq(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		key   Key
		want  string
	}{
		{"no namespace", Codec{}, Seq("cfg", "Job.Foo", "key1"), "cfg:Job.Foo:key1"},
		{"named namespace", Codec{Name: "cfg"}, Seq("Job.Foo", "key1"), "cfg:Job.Foo:key1"},
		{"single element", Codec{Name: "cfg"}, Seq("key1"), "cfg:key1"},
		{"custom delim", Codec{Name: "cfg", Delim: "/"}, Seq("Job.Foo", "key1"), "cfg/Job.Foo/key1"},
		{"numeric elements", Codec{Name: "job"}, Seq("run", 42, 3.5), "job:run:42:3.5"},
		{"literal unnamed", Codec{}, K("a:b:c"), "a:b:c"},
		{"literal named", Codec{Name: "cfg"}, K("plain"), "cfg:plain"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.codec.Encode(tt.key)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCodec_IdempotentPrefixing(t *testing.T) {
	c := Codec{Name: "cfg"}

	first, err := c.Encode(Seq("Job.Foo", "key1"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// Re-encoding the physical key must not double the prefix,
	// whether it comes back as a literal or as the first element.
	again, err := c.Encode(K(first))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if again != first {
		t.Errorf("re-encoded literal = %q, want %q", again, first)
	}

	again, err = c.Encode(Seq(first))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if again != first {
		t.Errorf("re-encoded element = %q, want %q", again, first)
	}
}

func TestCodec_EncodeInvalid(t *testing.T) {
	c := Codec{Name: "cfg"}

	if _, err := c.Encode(Seq()); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty sequence: got %v, want ErrInvalidKey", err)
	}
	if _, err := c.Encode(K("")); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("empty literal: got %v, want ErrInvalidKey", err)
	}
	if _, err := c.Encode(Seq("a", struct{}{})); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("struct element: got %v, want ErrInvalidKey", err)
	}
}

func TestCodec_EncodeElements(t *testing.T) {
	c := Codec{Name: "cfg"}

	elems, err := c.EncodeElements(Seq("Job.Foo", "key1"))
	if err != nil {
		t.Fatalf("EncodeElements failed: %v", err)
	}
	want := []string{"cfg", "Job.Foo", "key1"}
	if !reflect.DeepEqual(elems, want) {
		t.Errorf("EncodeElements = %v, want %v", elems, want)
	}

	// An already-prefixed first element suppresses the name.
	elems, err = c.EncodeElements(Seq("cfg:Job.Foo", "key1"))
	if err != nil {
		t.Fatalf("EncodeElements failed: %v", err)
	}
	want = []string{"cfg:Job.Foo", "key1"}
	if !reflect.DeepEqual(elems, want) {
		t.Errorf("EncodeElements = %v, want %v", elems, want)
	}
}

func TestCodec_DecodeRoundTrip(t *testing.T) {
	c := Codec{Name: "cfg"}

	seq := []string{"Job.Foo", "key1"}
	key, err := c.Encode(Seq("Job.Foo", "key1"))
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if got := c.Decode(key); !reflect.DeepEqual(got, seq) {
		t.Errorf("Decode(%q) = %v, want %v", key, got, seq)
	}

	// Nameless codec keeps every element.
	plain := Codec{}
	if got := plain.Decode("a:b:c"); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("Decode = %v, want [a b c]", got)
	}
}

func TestCodec_MatchesPrefix(t *testing.T) {
	c := Codec{Name: "cfg"}

	tests := []struct {
		key     string
		prefix  string
		partial bool
		want    bool
	}{
		{"cfg:Job.Foo:a", "cfg:Job.Foo", false, true},
		{"cfg:Job.FooBar:b", "cfg:Job.Foo", false, false},
		{"cfg:Job.Foo:a", "cfg:Job.Foo", true, true},
		{"cfg:Job.FooBar:b", "cfg:Job.Foo", true, true},
		{"cfg:Job2:x", "cfg:Job.", false, false},
		{"cfg:Job.Poop:key1", "cfg:Job.", true, true},
		{"other:Job.Foo:a", "cfg:Job.Foo", false, false},
	}

	for _, tt := range tests {
		if got := c.MatchesPrefix(tt.key, tt.prefix, tt.partial); got != tt.want {
			t.Errorf("MatchesPrefix(%q, %q, partial=%v) = %v, want %v",
				tt.key, tt.prefix, tt.partial, got, tt.want)
		}
	}
}

func TestCodec_SuffixAfter(t *testing.T) {
	c := Codec{Name: "cfg"}

	// Boundary match strips the appended delimiter too.
	if got := c.SuffixAfter("cfg:Job.Foo:key1", "cfg:Job.Foo", false); got != "key1" {
		t.Errorf("SuffixAfter = %q, want %q", got, "key1")
	}

	// Partial match strips only the raw prefix.
	if got := c.SuffixAfter("cfg:Job.Poop:key1", "cfg:Job.", true); got != "Poop:key1" {
		t.Errorf("SuffixAfter = %q, want %q", got, "Poop:key1")
	}

	// Non-matching keys come back unchanged.
	if got := c.SuffixAfter("other:x", "cfg:Job.Foo", false); got != "other:x" {
		t.Errorf("SuffixAfter = %q, want %q", got, "other:x")
	}
}
