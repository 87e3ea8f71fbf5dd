package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/simp-lee/dogmatch/internal/domain"
	"github.com/simp-lee/dogmatch/internal/pkg"
)

// DBStore persists keys in the local_storage table. Each store only sees
// rows of its own scope, so many browsers or shells can share one database.
type DBStore struct {
	db    *gorm.DB
	scope string
}

// NewDBStore returns a DBStore for scope. The table must already be migrated
// (see Migrate).
func NewDBStore(db *gorm.DB, scope string) *DBStore {
	return &DBStore{db: db, scope: scope}
}

// Migrate creates or updates the local_storage table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&domain.LocalEntry{}); err != nil {
		return fmt.Errorf("migrate local_storage: %w", err)
	}
	return nil
}

func (s *DBStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry domain.LocalEntry
	err := s.db.WithContext(ctx).
		Where(s.row(key)).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, domain.NewAppError(domain.CodeInternal, "read session entry", err)
	}
	return entry.Value, true, nil
}

func (s *DBStore) Set(ctx context.Context, key, value string) error {
	err := pkg.WithTx(ctx, s.db, func(tx *gorm.DB) error {
		var entry domain.LocalEntry
		err := tx.Where(s.row(key)).First(&entry).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Create(&domain.LocalEntry{Scope: s.scope, Key: key, Value: value}).Error
		case err != nil:
			return err
		}
		return tx.Model(&entry).Update("value", value).Error
	})
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "write session entry", err)
	}
	return nil
}

func (s *DBStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where(s.row(key)).
		Delete(&domain.LocalEntry{}).Error
	if err != nil {
		return domain.NewAppError(domain.CodeInternal, "delete session entry", err)
	}
	return nil
}

// ScopeFor derives a fixed-length DBStore scope from an arbitrary identifier,
// such as a signed browser cookie, so the identifier itself is never stored.
func ScopeFor(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}

// row matches one key of this scope. A map condition lets gorm quote the
// column names; "key" is a keyword in some dialects.
func (s *DBStore) row(key string) map[string]any {
	return map[string]any{"scope": s.scope, "key": key}
}
