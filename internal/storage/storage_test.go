package storage

import (
	"context"
	"testing"

	"github.com/dhlab/gallicanav/internal/model"
)

func TestBatchRoundTrip(t *testing.T) {
	in := []model.NavigationEvent{
		{SessionID: "S_1_1_U_u1", Action: model.ActionHomepage},
		{SessionID: "S_1_1_U_u1", Action: model.ActionSimpleSearch},
	}
	data, err := EncodeBatch(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeBatch[model.NavigationEvent](data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("record %d: %+v != %+v", i, out[i], in[i])
		}
	}
}

func TestDecodeLines(t *testing.T) {
	data, err := EncodeLines([]string{"first", "", "second"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines, err := DecodeLines(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lines) != 2 || lines[0] != "first" || lines[1] != "second" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	key := ProcessedKey(3)
	if ok, _ := store.Exists(ctx, key); ok {
		t.Fatalf("key should not exist yet")
	}
	if err := store.Write(ctx, key, []byte("payload")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ok, _ := store.Exists(ctx, key); !ok {
		t.Fatalf("key should exist after write")
	}
	data, err := store.Read(ctx, key)
	if err != nil || string(data) != "payload" {
		t.Fatalf("read = %q, %v", data, err)
	}

	if err := store.Write(ctx, ProcessedKey(1), []byte("x")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := store.Write(ctx, SessionsKey(1), []byte("y")); err != nil {
		t.Fatalf("write: %v", err)
	}
	keys, err := store.List(ctx, ProcessedPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("keys = %v, want the two processed chunks", keys)
	}

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := store.Exists(ctx, key); ok {
		t.Fatalf("key should be gone after delete")
	}
}

func TestChunkNumbers(t *testing.T) {
	keys := []string{
		SessionsKey(12),
		SessionsKey(3),
		CollatedKey(),
		SessionsKey(7),
	}
	got := ChunkNumbers(keys)
	want := []int{3, 7, 12}
	if len(got) != len(want) {
		t.Fatalf("chunks = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chunks = %v, want %v", got, want)
		}
	}
}
