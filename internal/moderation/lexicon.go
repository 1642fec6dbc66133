package moderation

import (
	"context"
	"fmt"
	"time"

	"mentorchat/backend/internal/models"
	"mentorchat/backend/pkg/cache"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Lexicon categories
const (
	CategoryOffPlatform = "off_platform"
	CategoryFinancial   = "financial"
	CategoryContact     = "contact_exchange"
)

// DefaultLexicon is seeded on startup when SEED_LEXICON is set.
var DefaultLexicon = []LexiconEntry{
	{Phrase: "meet in a hotel room", Category: CategoryOffPlatform},
	{Phrase: "hotel room", Category: CategoryOffPlatform},
	{Phrase: "whatsapp me", Category: CategoryOffPlatform},
	{Phrase: "text me on telegram", Category: CategoryOffPlatform},
	{Phrase: "send me money", Category: CategoryFinancial},
	{Phrase: "wire transfer", Category: CategoryFinancial},
	{Phrase: "gift card", Category: CategoryFinancial},
	{Phrase: "my personal number", Category: CategoryContact},
}

// StaticLexicon serves a fixed list
type StaticLexicon []LexiconEntry

// ActiveEntries implements LexiconSource
func (s StaticLexicon) ActiveEntries(context.Context) ([]LexiconEntry, error) {
	out := make([]LexiconEntry, len(s))
	copy(out, s)
	return out, nil
}

// DBLexicon reads active blacklist entries from the database.
type DBLexicon struct {
	db *gorm.DB
}

// NewDBLexicon creates a lexicon source backed by gorm
func NewDBLexicon(db *gorm.DB) *DBLexicon {
	return &DBLexicon{db: db}
}

// ActiveEntries implements LexiconSource
func (l *DBLexicon) ActiveEntries(ctx context.Context) ([]LexiconEntry, error) {
	var rows []models.BlacklistEntry
	if err := l.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load blacklist: %w", err)
	}

	entries := make([]LexiconEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, LexiconEntry{Phrase: row.Phrase, Category: row.Category})
	}
	return entries, nil
}

// Seed inserts entries that are not already present, keeping their order.
func Seed(ctx context.Context, db *gorm.DB, entries []LexiconEntry) (int, error) {
	inserted := 0
	for _, e := range entries {
		row := models.BlacklistEntry{Phrase: e.Phrase, Category: e.Category, Active: true}
		res := db.WithContext(ctx).
			Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "phrase"}}, DoNothing: true}).
			Create(&row)
		if res.Error != nil {
			return inserted, fmt.Errorf("seed phrase %q: %w", e.Phrase, res.Error)
		}
		inserted += int(res.RowsAffected)
	}
	return inserted, nil
}

const lexiconCacheKey = "lexicon:active"

// CachedLexicon memoizes another source for a short TTL so the gate does
// not hit the database on every message.
type CachedLexicon struct {
	source LexiconSource
	cache  *cache.Cache
	ttl    time.Duration
}

// NewCachedLexicon wraps source. A non-positive ttl disables caching.
func NewCachedLexicon(source LexiconSource, c *cache.Cache, ttl time.Duration) *CachedLexicon {
	return &CachedLexicon{source: source, cache: c, ttl: ttl}
}

// ActiveEntries implements LexiconSource
func (l *CachedLexicon) ActiveEntries(ctx context.Context) ([]LexiconEntry, error) {
	if l.ttl > 0 {
		if v, ok := l.cache.Get(lexiconCacheKey); ok {
			return v.([]LexiconEntry), nil
		}
	}

	entries, err := l.source.ActiveEntries(ctx)
	if err != nil {
		return nil, err
	}
	if l.ttl > 0 {
		l.cache.SetWithExpiration(lexiconCacheKey, entries, l.ttl)
	}
	return entries, nil
}

// Invalidate drops the cached copy
func (l *CachedLexicon) Invalidate() {
	l.cache.Delete(lexiconCacheKey)
}
