// Package txn wraps multi-collection writes in a MongoDB transaction
// when the deployment supports one.
//
// Transactions require a replica set or sharded cluster. Standalone
// servers (common in dev and CI) reject them, so callers use
// IsNotSupported to detect that case and fall back to sequential
// writes. Cascade deletes take that path: transactional when possible,
// best-effort ordered deletes otherwise.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// WithTransaction runs fn inside a MongoDB transaction. The session is
// always ended before returning. If the deployment does not support
// transactions, the returned error satisfies IsNotSupported.
func WithTransaction(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	session, err := client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// IsNotSupported reports whether err indicates the server cannot run
// transactions (standalone deployment, old server version). Matches
// the known command error codes and, as a fallback, message keywords,
// since driver and server versions phrase the failure differently.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var cmdErr mongo.CommandError
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case 20, 51, 263:
			return true
		}
		return false
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "transaction") && strings.Contains(msg, "replica set"):
		return true
	case strings.Contains(msg, "session") && strings.Contains(msg, "not supported"):
		return true
	case strings.Contains(msg, "transaction") && strings.Contains(msg, "session"):
		return true
	case strings.Contains(msg, "illegal operation"):
		return true
	}
	return false
}
