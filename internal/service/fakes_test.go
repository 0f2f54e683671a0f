package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/polyonboard/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeAudit struct {
	mu     sync.Mutex
	events []string
	detail []map[string]any
}

func (f *fakeAudit) Log(_ context.Context, event, _ string, detail map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	f.detail = append(f.detail, detail)
	return nil
}

func (f *fakeAudit) List(context.Context, string, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (f *fakeNotifier) Notify(_ context.Context, event, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

type fakeBus struct {
	mu        sync.Mutex
	published map[string][][]byte
	err       error
}

func (f *fakeBus) Publish(_ context.Context, channel string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.published == nil {
		f.published = make(map[string][][]byte)
	}
	f.published[channel] = append(f.published[channel], payload)
	return f.err
}

func (f *fakeBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

type fakeBlob struct {
	mu    sync.Mutex
	paths []string
	data  [][]byte
}

func (f *fakeBlob) Put(_ context.Context, path string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.data = append(f.data, b)
	return nil
}

type fakeLocks struct {
	mu       sync.Mutex
	acquired []string
	released int
}

func (f *fakeLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquired = append(f.acquired, key)
	return func() {
		f.mu.Lock()
		f.released++
		f.mu.Unlock()
	}, nil
}

type fakeCache struct {
	mu    sync.Mutex
	creds map[domain.CredentialScope]domain.TradingCredentials
	sets  int
}

func (f *fakeCache) Get(_ context.Context, scope domain.CredentialScope) (domain.TradingCredentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.creds[scope]
	if !ok {
		return domain.TradingCredentials{}, domain.ErrNotFound
	}
	return c, nil
}

func (f *fakeCache) Set(_ context.Context, creds domain.TradingCredentials, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.creds == nil {
		f.creds = make(map[domain.CredentialScope]domain.TradingCredentials)
	}
	f.creds[creds.Scope] = creds
	f.sets++
	return nil
}

func (f *fakeCache) Delete(_ context.Context, scope domain.CredentialScope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.creds, scope)
	return nil
}
