package keychain

import (
	"fmt"
	"log/slog"

	"github.com/benaskins/xsession/internal/audit"
)

// AuditedStore wraps a Store and records every successful operation in an
// audit log.
type AuditedStore struct {
	inner  Store
	audit  *audit.Logger
	actor  string // "cli", "bridge" or "tui"
	logger *slog.Logger
}

// NewAuditedStore wraps an existing store with audit logging. A nil audit
// logger makes the wrapper a pass-through.
func NewAuditedStore(inner Store, auditLog *audit.Logger, actor string) *AuditedStore {
	return &AuditedStore{
		inner:  inner,
		audit:  auditLog,
		actor:  actor,
		logger: slog.With("component", "audit"),
	}
}

func (s *AuditedStore) Set(key string, value []byte) error {
	if err := s.inner.Set(key, value); err != nil {
		return fmt.Errorf("audited store set: %w", err)
	}
	s.record(audit.ActionSecretWrite, key)
	return nil
}

func (s *AuditedStore) Get(key string) ([]byte, error) {
	val, err := s.inner.Get(key)
	if err != nil {
		return nil, fmt.Errorf("audited store get: %w", err)
	}
	s.record(audit.ActionSecretRead, key)
	return val, nil
}

// List enumerates the wrapped store's keys. Listing reads no secret values
// and is not audited.
func (s *AuditedStore) List() ([]string, error) {
	l, ok := s.inner.(Lister)
	if !ok {
		return nil, ErrNotListable
	}
	return l.List()
}

func (s *AuditedStore) Delete(key string) error {
	if err := s.inner.Delete(key); err != nil {
		return fmt.Errorf("audited store delete: %w", err)
	}
	s.record(audit.ActionSecretDelete, key)
	return nil
}

// record is best-effort: a failure to log never blocks the operation.
func (s *AuditedStore) record(action audit.Action, key string) {
	err := s.audit.Log(audit.Entry{
		Action: action,
		Key:    key,
		Actor:  s.actor,
	})
	if err != nil {
		s.logger.Warn("audit write failed", "action", action, "error", err)
	}
}
