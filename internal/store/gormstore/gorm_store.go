package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"algoengine/internal/gateway/exchange"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// documentModel stores one document. DocKey is the canonical JSON of the
// filter used to upsert it, which keeps repeated upserts idempotent.
type documentModel struct {
	ID         int64          `gorm:"column:id;primaryKey;autoIncrement"`
	DB         string         `gorm:"column:db;size:128;uniqueIndex:idx_documents_key,priority:1"`
	Collection string         `gorm:"column:collection;size:128;uniqueIndex:idx_documents_key,priority:2"`
	DocKey     string         `gorm:"column:doc_key;size:512;uniqueIndex:idx_documents_key,priority:3"`
	Body       datatypes.JSON `gorm:"column:body"`
	CreatedAt  time.Time      `gorm:"column:created_at"`
	UpdatedAt  time.Time      `gorm:"column:updated_at"`
}

func (documentModel) TableName() string { return "documents" }

// GormStore is a small document database on Gorm + SQLite.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens (or creates) the SQLite file at path.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path is empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&documentModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// single writer; the persist actor serializes writes anyway
	sqlDB.SetMaxOpenConns(1)
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

var _ exchange.DocumentStore = (*GormStore)(nil)

// Upsert replaces the document identified by filter, inserting it when
// absent. Filter fields are copied into the stored body.
func (s *GormStore) Upsert(ctx context.Context, db, collection string, doc exchange.Document, filter exchange.Document) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	key, err := canonical(filter)
	if err != nil {
		return fmt.Errorf("encode filter: %w", err)
	}
	merged := make(map[string]any, len(doc)+len(filter))
	for k, v := range doc {
		merged[k] = v
	}
	for k, v := range filter {
		merged[k] = v
	}
	body, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	now := time.Now()
	rec := documentModel{
		DB:         db,
		Collection: collection,
		DocKey:     key,
		Body:       datatypes.JSON(body),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "db"}, {Name: "collection"}, {Name: "doc_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"body", "updated_at"}),
		}).
		Create(&rec).Error
}

// Query returns every document in the collection matching filter, ordered
// by sortKey when given.
func (s *GormStore) Query(ctx context.Context, db, collection string, filter exchange.Document, sortKey string) ([]exchange.Document, error) {
	rows, err := s.scan(ctx, db, collection, filter)
	if err != nil {
		return nil, err
	}
	out := make([]exchange.Document, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.doc)
	}
	if sortKey = strings.TrimSpace(sortKey); sortKey != "" {
		sort.SliceStable(out, func(i, j int) bool {
			return fmt.Sprint(out[i][sortKey]) < fmt.Sprint(out[j][sortKey])
		})
	}
	return out, nil
}

// Delete removes every document matching filter.
func (s *GormStore) Delete(ctx context.Context, db, collection string, filter exchange.Document) error {
	rows, err := s.scan(ctx, db, collection, filter)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.id)
	}
	return s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&documentModel{}).Error
}

type scannedDoc struct {
	id  int64
	doc exchange.Document
}

func (s *GormStore) scan(ctx context.Context, db, collection string, filter exchange.Document) ([]scannedDoc, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("gorm store not initialized")
	}
	var models []documentModel
	if err := s.db.WithContext(ctx).
		Where("db = ? AND collection = ?", db, collection).
		Order("id").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]scannedDoc, 0, len(models))
	for _, m := range models {
		var doc map[string]any
		if err := json.Unmarshal(m.Body, &doc); err != nil {
			return nil, fmt.Errorf("decode document %d: %w", m.ID, err)
		}
		if !matches(doc, filter) {
			continue
		}
		out = append(out, scannedDoc{id: m.ID, doc: doc})
	}
	return out, nil
}

func matches(doc, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := doc[k]
		if !ok {
			return false
		}
		a, errA := json.Marshal(got)
		b, errB := json.Marshal(want)
		if errA != nil || errB != nil || string(a) != string(b) {
			return false
		}
	}
	return true
}

func canonical(filter map[string]any) (string, error) {
	if len(filter) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(filter)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
