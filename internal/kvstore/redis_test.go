package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
		server.Close()
	})

	return NewRedis(client, "test"), server
}

func TestRedisSetGet(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "/owners/o1/", map[string]string{"display_name": "Majo"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	var got map[string]string
	if err := GetJSON(ctx, store, "owners/o1", &got); err != nil {
		t.Fatalf("GetJSON returned error: %v", err)
	}
	if got["display_name"] != "Majo" {
		t.Fatalf("expected display_name Majo, got %q", got["display_name"])
	}
}

func TestRedisGetMissing(t *testing.T) {
	store, _ := newTestRedisStore(t)

	if _, err := store.Get(context.Background(), "users/nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisPushKeepsInsertionOrder(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	seen := map[string]bool{}
	var ids []string
	for _, name := range []string{"first", "second", "third"} {
		id, err := store.Push(ctx, "listings", map[string]string{"name": name})
		if err != nil {
			t.Fatalf("Push returned error: %v", err)
		}
		if seen[id] {
			t.Fatalf("push id %s reused", id)
		}
		seen[id] = true
		ids = append(ids, id)
	}

	nodes, err := store.Children(ctx, "listings")
	if err != nil {
		t.Fatalf("Children returned error: %v", err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 children, got %d", len(nodes))
	}
	for i, n := range nodes {
		if n.Key != ids[i] {
			t.Fatalf("child %d: expected key %s, got %s", i, ids[i], n.Key)
		}
	}
}

func TestRedisUpdateMergesTopLevelKeys(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Set(ctx, "listings/l1", map[string]any{"name": "Cabin", "price": 100}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if err := store.Update(ctx, "listings/l1", map[string]any{"name": "Lodge"}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}

	raw, err := store.Get(ctx, "listings/l1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	var got struct {
		Name  string `json:"name"`
		Price int    `json:"price"`
	}
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Name != "Lodge" || got.Price != 100 {
		t.Fatalf("unexpected merged value %+v", got)
	}
}

func TestRedisUpdateCreatesMissingNode(t *testing.T) {
	store, _ := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Update(ctx, "users/u1", map[string]any{"display_name": "Ana"}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	nodes, err := store.Children(ctx, "users")
	if err != nil {
		t.Fatalf("Children returned error: %v", err)
	}
	if len(nodes) != 1 || nodes[0].Key != "u1" {
		t.Fatalf("expected users/u1 to be indexed, got %+v", nodes)
	}
}

func TestRedisRemoveDeletesDescendants(t *testing.T) {
	store, server := newTestRedisStore(t)
	ctx := context.Background()

	room := "chats/chat_l1_a_b"
	if _, err := store.Push(ctx, room+"/messages", map[string]string{"body": "hola"}); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}
	if _, err := store.Push(ctx, room+"/messages", map[string]string{"body": "que tal"}); err != nil {
		t.Fatalf("Push returned error: %v", err)
	}

	if err := store.Remove(ctx, room); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}

	nodes, err := store.Children(ctx, room+"/messages")
	if err != nil {
		t.Fatalf("Children returned error: %v", err)
	}
	if len(nodes) != 0 {
		t.Fatalf("expected messages to be removed, got %d", len(nodes))
	}
	for _, key := range server.Keys() {
		if key != "test:seq" && key != "test:idx:chats" {
			t.Fatalf("unexpected key left behind: %s", key)
		}
	}
}

func TestCleanRejectsEmptySegments(t *testing.T) {
	for _, p := range []string{"", "/", "users//u1", "users/../admins"} {
		if _, err := Clean(p); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("Clean(%q): expected ErrInvalidPath, got %v", p, err)
		}
	}
}
