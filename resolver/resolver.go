// Package resolver converts a domain identifier into a style-independent
// renderable payload, either by fetching from the structure repository or by
// local conversion through a loaded dependency.
//
// Payloads are cached by identity only (kind + identifier), never by full
// fingerprint, so requests differing only in style reuse the payload without
// refetching. At most one resolution per identity key is in flight at any
// time; concurrent callers share the outcome.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/c360/vizflow/errors"
	"github.com/c360/vizflow/loader"
	"github.com/c360/vizflow/metric"
	"github.com/c360/vizflow/pkg/cache"
	"github.com/c360/vizflow/pkg/retry"
	"github.com/c360/vizflow/types"
)

// Entry is a cached payload with its resolution time. Entries are never
// mutated after insertion; invalidation replaces them wholesale.
type Entry struct {
	Payload    types.Payload
	ResolvedAt time.Time
}

// Config configures the resolver.
type Config struct {
	// Endpoint is the base URL of the structure repository for remote-id
	// lookups, e.g. "https://files.example.org/structures".
	Endpoint string `json:"endpoint"`

	// RemoteFormat names the payload format the repository serves.
	RemoteFormat string `json:"remote_format"`

	// ConverterDependency is the loader name of the local conversion
	// dependency used for notation identifiers.
	ConverterDependency string `json:"converter_dependency"`

	// FetchTimeout bounds a single resolution attempt end to end.
	FetchTimeout time.Duration `json:"fetch_timeout"`

	// Retry configures backoff for transient repository failures.
	Retry retry.Config `json:"retry"`
}

// DefaultConfig returns resolver defaults; Endpoint must still be set for
// remote-id resolution.
func DefaultConfig() Config {
	return Config{
		RemoteFormat:        "pdb",
		ConverterDependency: "notation-converter",
		FetchTimeout:        30 * time.Second,
		Retry:               retry.DefaultConfig(),
	}
}

// Resolver resolves identifiers into payloads with identity-keyed caching
// and in-flight deduplication.
type Resolver struct {
	cfg     Config
	cache   cache.Cache[Entry]
	group   singleflight.Group
	client  *http.Client
	loader  *loader.Loader
	logger  *slog.Logger
	metrics *metric.PipelineMetrics
}

// Option configures the resolver.
type Option func(*Resolver)

// WithHTTPClient overrides the HTTP client used for repository fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Resolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithLogger sets the resolver's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics attaches pipeline metrics.
func WithMetrics(m *metric.PipelineMetrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// New creates a resolver backed by the given payload cache and dependency
// loader.
func New(cfg Config, payloadCache cache.Cache[Entry], deps *loader.Loader, opts ...Option) (*Resolver, error) {
	if payloadCache == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "resolver", "New", "payload cache is required")
	}
	if deps == nil {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "resolver", "New", "dependency loader is required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.RemoteFormat == "" {
		cfg.RemoteFormat = "pdb"
	}

	r := &Resolver{
		cfg:    cfg,
		cache:  payloadCache,
		client: &http.Client{Timeout: cfg.FetchTimeout},
		loader: deps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the payload for (kind, identifier). Cache hits return
// immediately; misses run at most one fetch or conversion per identity key,
// shared by all concurrent callers. The caller's context governs only its
// own wait: an abandoned Resolve still completes and populates the cache.
func (r *Resolver) Resolve(ctx context.Context, kind types.Kind, identifier string) (types.Payload, error) {
	if !kind.Valid() || strings.TrimSpace(identifier) == "" {
		return types.Payload{}, errors.WrapInvalid(errors.ErrInvalidIdentifier, "resolver", "Resolve",
			fmt.Sprintf("resolve %s %q", kind, identifier))
	}

	key := types.IdentityKey(kind, identifier)
	if entry, ok := r.cache.Get(key); ok {
		return entry.Payload, nil
	}

	ch := r.group.DoChan(key, func() (any, error) {
		return r.resolve(kind, identifier, key)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return types.Payload{}, res.Err
		}
		if res.Shared && r.metrics != nil {
			r.metrics.SharedWaits.WithLabelValues("resolve").Inc()
		}
		return res.Val.(Entry).Payload, nil
	case <-ctx.Done():
		// The shared resolution keeps running and will populate the cache.
		return types.Payload{}, ctx.Err()
	}
}

// resolve performs the shared resolution for one identity key.
func (r *Resolver) resolve(kind types.Kind, identifier, key string) (entry Entry, err error) {
	// Re-validate after suspension: the key may have been resolved while
	// this call was queued behind the singleflight.
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	start := time.Now()
	defer func() {
		if r.metrics != nil {
			r.metrics.ObserveStage("resolve", err, time.Since(start))
		}
	}()

	// Detached from caller cancellation, bounded by the fetch timeout.
	resCtx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), r.cfg.FetchTimeout)
	defer cancel()

	var payload types.Payload
	switch kind {
	case types.KindRemoteID:
		payload, err = r.fetchRemote(resCtx, identifier)
	case types.KindNotation:
		payload, err = r.convertNotation(resCtx, identifier)
	default:
		err = errors.WrapInvalid(errors.ErrInvalidIdentifier, "resolver", "resolve",
			fmt.Sprintf("unsupported kind %q", kind))
	}
	if err != nil {
		return Entry{}, err
	}

	entry = Entry{Payload: payload, ResolvedAt: time.Now()}
	if _, setErr := r.cache.Set(key, entry); setErr != nil {
		// The resolution itself succeeded; a cache write failure only costs
		// future hits.
		r.logger.Warn("payload cache write failed", "key", key, "error", setErr)
	}
	r.logger.Info("payload resolved", "key", key, "format", payload.Format,
		"bytes", len(payload.Data), "elapsed", time.Since(start))
	return entry, nil
}

// fetchRemote issues the repository GET for an accession identifier.
func (r *Resolver) fetchRemote(ctx context.Context, identifier string) (types.Payload, error) {
	if r.cfg.Endpoint == "" {
		return types.Payload{}, errors.WrapInvalid(errors.ErrInvalidConfig, "resolver", "fetchRemote",
			"repository endpoint not configured")
	}

	fetchURL := strings.TrimSuffix(r.cfg.Endpoint, "/") + "/" + url.PathEscape(identifier)

	data, err := retry.DoWithResult(ctx, r.cfg.Retry, func() ([]byte, error) {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
		if reqErr != nil {
			return nil, retry.NonRetryable(reqErr)
		}

		resp, doErr := r.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for connection reuse
			fetchErr := &errors.RemoteFetchError{Status: resp.StatusCode, Identifier: identifier}
			if resp.StatusCode >= 500 {
				return nil, fetchErr // transient, retried
			}
			return nil, retry.NonRetryable(fetchErr)
		}

		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, readErr
		}
		return body, nil
	})
	if err != nil {
		if rfe, ok := errors.IsRemoteFetch(err); ok {
			r.logger.Warn("repository fetch rejected", "identifier", identifier, "status", rfe.Status)
			return types.Payload{}, rfe
		}
		cause := fmt.Errorf("%w: %w", errors.ErrPayloadResolutionFailed, err)
		return types.Payload{}, errors.Wrap(cause, "resolver", "fetchRemote", "fetch "+identifier)
	}

	return types.Payload{Data: data, Format: r.cfg.RemoteFormat}, nil
}

// convertNotation converts a linear notation through the loaded converter
// dependency. Toolkit-owned conversion handles are released on every path.
func (r *Resolver) convertNotation(ctx context.Context, notation string) (types.Payload, error) {
	handle, err := r.loader.Ensure(ctx, r.cfg.ConverterDependency)
	if err != nil {
		return types.Payload{}, err
	}

	converter, ok := handle.(Converter)
	if !ok {
		return types.Payload{}, errors.WrapFatal(errors.ErrInvalidConfig, "resolver", "convertNotation",
			fmt.Sprintf("dependency %q does not implement Converter", r.cfg.ConverterDependency))
	}

	conversion, err := converter.Convert(ctx, notation)
	if conversion != nil {
		// Release is mandatory regardless of the error path.
		defer conversion.Release()
	}
	if err != nil {
		cause := fmt.Errorf("%w %q: %w", errors.ErrInvalidIdentifier, notation, err)
		return types.Payload{}, errors.WrapInvalid(cause, "resolver", "convertNotation", "convert notation")
	}
	if conversion == nil || len(conversion.Data()) == 0 {
		return types.Payload{}, errors.WrapInvalid(
			fmt.Errorf("%w %q: empty conversion", errors.ErrInvalidIdentifier, notation),
			"resolver", "convertNotation", "convert notation")
	}

	// Copy out before Release frees the underlying buffer.
	data := make([]byte, len(conversion.Data()))
	copy(data, conversion.Data())

	return types.Payload{Data: data, Format: conversion.Format()}, nil
}

// Cached returns the cached payload for (kind, identifier) without
// triggering resolution.
func (r *Resolver) Cached(kind types.Kind, identifier string) (types.Payload, bool) {
	entry, ok := r.cache.Get(types.IdentityKey(kind, identifier))
	if !ok {
		return types.Payload{}, false
	}
	return entry.Payload, true
}

// Invalidate drops the cached payload for (kind, identifier). Returns true
// if an entry was dropped.
func (r *Resolver) Invalidate(kind types.Kind, identifier string) bool {
	dropped, err := r.cache.Delete(types.IdentityKey(kind, identifier))
	if err != nil {
		return false
	}
	return dropped
}
