package datastore

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// Benchmark basic operations.

func BenchmarkCodec_Encode(b *testing.B) {
	c := Codec{Name: "cfg"}
	key := Seq("Job.Foo", "key1")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Encode(key)
	}
}

func BenchmarkCodec_MatchesPrefix(b *testing.B) {
	c := Codec{Name: "cfg"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.MatchesPrefix("cfg:Job.Foo:key1", "cfg:Job.Foo", false)
	}
}

func BenchmarkMemory_Set(b *testing.B) {
	m := NewMemory("mem", DefaultShards)
	ctx := context.Background()
	e := Entry{Value: []byte("benchmark-value")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Set(ctx, fmt.Sprintf("key:%d", i), e)
	}
}

func BenchmarkMemory_Get(b *testing.B) {
	m := NewMemory("mem", DefaultShards)
	ctx := context.Background()
	e := Entry{Value: []byte("benchmark-value")}

	// Setup: populate with keys.
	for i := 0; i < 1000; i++ {
		_ = m.Set(ctx, fmt.Sprintf("key:%d", i), e)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = m.Get(ctx, fmt.Sprintf("key:%d", i%1000))
	}
}

func BenchmarkFanout_Set(b *testing.B) {
	eng, err := OpenFanout(b.TempDir(), 4, time.Second, false)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	e := Entry{Value: []byte("benchmark-value")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.Set(ctx, fmt.Sprintf("key:%d", i), e)
	}
}

func BenchmarkFanout_Get(b *testing.B) {
	eng, err := OpenFanout(b.TempDir(), 4, time.Second, false)
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()
	e := Entry{Value: []byte("benchmark-value")}

	for i := 0; i < 100; i++ {
		_ = eng.Set(ctx, fmt.Sprintf("key:%d", i), e)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = eng.Get(ctx, fmt.Sprintf("key:%d", i%100))
	}
}

func BenchmarkStore_FindByPrefix(b *testing.B) {
	s, err := New("mem", WithName("cfg"), WithOpener(OpenMemory))
	if err != nil {
		b.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		_ = s.Set(ctx, Seq("Job.Foo", fmt.Sprintf("key%d", i)), []byte("v"), 0, "")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = s.FindByPrefix(ctx, Seq("Job.Foo"), FindOptions{})
	}
}
