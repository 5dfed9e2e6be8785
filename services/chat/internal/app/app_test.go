package app

import (
	"errors"
	"io"
	"testing"

	"scripturechat/pkg/bible"
	"scripturechat/pkg/store"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestNewRegistersVerseCacheForClose(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Lookup = nil
		cfg.RedisAddr = "127.0.0.1:6379"
	})
	if len(env.app.closers) != 2 {
		t.Fatalf("closers = %d, want feed and verse cache", len(env.app.closers))
	}
	if _, ok := env.app.closers[1].(*bible.CachedLookup); !ok {
		t.Fatalf("closer = %T, want *bible.CachedLookup", env.app.closers[1])
	}
}

func TestNewRegistersRedisSessionsForClose(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) {
		cfg.Sessions = nil
		cfg.RedisAddr = "127.0.0.1:6379"
	})
	if len(env.app.closers) != 2 {
		t.Fatalf("closers = %d, want current-session store and feed", len(env.app.closers))
	}
	if _, ok := env.app.closers[0].(*store.RedisCurrentSessionStore); !ok {
		t.Fatalf("closer = %T, want *store.RedisCurrentSessionStore", env.app.closers[0])
	}
}

func TestCloseJoinsErrors(t *testing.T) {
	errFeed := errors.New("feed close failed")
	errCache := errors.New("cache close failed")
	var closed []string
	closer := func(name string, err error) io.Closer {
		return closerFunc(func() error {
			closed = append(closed, name)
			return err
		})
	}
	a := &App{closers: []io.Closer{closer("feed", errFeed), closer("store", nil), closer("cache", errCache)}}

	err := a.Close()
	if !errors.Is(err, errFeed) || !errors.Is(err, errCache) {
		t.Fatalf("err = %v, want both close errors", err)
	}
	if len(closed) != 3 {
		t.Fatalf("closed = %v, want every closer called", closed)
	}
}
