// Package graph persists documents, segments, entities and relations in
// Neo4j and exposes the read operations the retrieval strategies build on.
package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loreweave/loreweave/engine/domain"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// txn is the minimal interface needed from a managed transaction.
type txn interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
}

// session is the minimal interface needed from a neo4j session.
type session interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	ExecuteWrite(ctx context.Context, work func(tx txn) (any, error)) (any, error)
	Close(ctx context.Context) error
}

// Store is a Neo4j-backed graph store.
type Store struct {
	driver     neo4j.DriverWithContext
	logger     *slog.Logger
	newSession func(ctx context.Context) session // for testing
}

// New creates a Store on top of an open driver. The driver stays owned
// by the caller until Close.
func New(driver neo4j.DriverWithContext, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{driver: driver, logger: logger}
}

// Connect opens a driver, verifies connectivity, and returns a Store.
func Connect(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("%w: verify %s: %v", domain.ErrStoreUnavailable, uri, err)
	}
	return New(driver, logger), nil
}

// Close releases the underlying driver.
func (s *Store) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context) session {
	if s.newSession != nil {
		return s.newSession(ctx)
	}
	return &sessionAdapter{sess: s.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// sessionAdapter adapts neo4j.SessionWithContext to the session interface.
type sessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *sessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *sessionAdapter) ExecuteWrite(ctx context.Context, work func(tx txn) (any, error)) (any, error) {
	return a.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(&txAdapter{tx: tx})
	})
}

func (a *sessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

type txAdapter struct {
	tx neo4j.ManagedTransaction
}

func (a *txAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.tx.Run(ctx, cypher, params)
}

// storeErr keeps the driver error in the chain so callers can still
// classify it with errors.As.
func storeErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, op, err)
}

// IsStatementError reports whether err is Neo4j rejecting the statement
// itself (syntax or semantics) rather than the store being unreachable.
// A bad statement fails the same way every time, so it must not be
// handled as a transient store failure.
func IsStatementError(err error) bool {
	var neoErr *neo4j.Neo4jError
	if !errors.As(err, &neoErr) {
		return false
	}
	return strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement")
}
