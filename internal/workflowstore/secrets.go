package workflowstore

import (
	"context"
	"time"

	"github.com/c4h-run/refactorctl/pkg/schema"
)

// StoreSecret, GetSecret, DeleteSecret, and ListSecrets satisfy
// secrets.SecretStore, letting an AESVault persist encrypted provider
// credentials in the same libSQL database as workflow records rather than
// a separate store. Only available when Store was constructed via Open;
// an in-memory-only Store (New) has nowhere durable to put ciphertext.
func (s *Store) StoreSecret(ctx context.Context, key string, value []byte) error {
	if s.db == nil {
		return schema.NewError(schema.ErrCodeVault, "workflowstore: secrets require a durable store (use Open, not New)")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO secrets (key, ciphertext, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET ciphertext=excluded.ciphertext, updated_at=excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeVault, "workflowstore: store secret %q: %s", key, err.Error()).WithCause(err)
	}
	return nil
}

func (s *Store) GetSecret(ctx context.Context, key string) ([]byte, error) {
	if s.db == nil {
		return nil, schema.NewError(schema.ErrCodeVault, "workflowstore: secrets require a durable store (use Open, not New)")
	}
	var ciphertext []byte
	row := s.db.QueryRowContext(ctx, `SELECT ciphertext FROM secrets WHERE key = ?`, key)
	if err := row.Scan(&ciphertext); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "workflowstore: secret %q not found: %s", key, err.Error()).WithCause(err)
	}
	return ciphertext, nil
}

func (s *Store) DeleteSecret(ctx context.Context, key string) error {
	if s.db == nil {
		return schema.NewError(schema.ErrCodeVault, "workflowstore: secrets require a durable store (use Open, not New)")
	}
	_, err := s.db.ExecContext(ctx, `DELETE FROM secrets WHERE key = ?`, key)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeVault, "workflowstore: delete secret %q: %s", key, err.Error()).WithCause(err)
	}
	return nil
}

func (s *Store) ListSecrets(ctx context.Context) ([]string, error) {
	if s.db == nil {
		return nil, schema.NewError(schema.ErrCodeVault, "workflowstore: secrets require a durable store (use Open, not New)")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM secrets ORDER BY key`)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeVault, "workflowstore: list secrets: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeVault, "workflowstore: scan secret key: %s", err.Error()).WithCause(err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
