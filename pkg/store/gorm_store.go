package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"papercast/pkg/domain"
)

const migrateLockID int64 = 51734022

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UploadModel{}, &OwnerModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'uploads'
					AND constraint_name = 'uploads_status_check'
				) THEN
					ALTER TABLE uploads
					ADD CONSTRAINT uploads_status_check
					CHECK (status IN ('pending', 'processing', 'completed', 'failed'));
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure upload status check: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// NewGormStoreFromDB wraps an already opened connection without migrating.
func NewGormStoreFromDB(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUpload inserts a record. Re-inserting the same id and storage key is a no-op
// so the intake retry policy can replay the step safely.
func (s *GormStore) CreateUpload(ctx context.Context, u domain.Upload) error {
	model, err := uploadToModel(u)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 1 {
		return nil
	}
	var existing UploadModel
	if err := s.db.WithContext(ctx).Select("id", "storage_key").First(&existing, "id = ?", u.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDuplicateUpload
		}
		return err
	}
	if existing.StorageKey != u.StorageKey {
		return ErrDuplicateUpload
	}
	return nil
}

// GetUpload retrieves an upload.
func (s *GormStore) GetUpload(ctx context.Context, id string) (domain.Upload, bool, error) {
	var model UploadModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Upload{}, false, nil
		}
		return domain.Upload{}, false, err
	}
	u, err := uploadFromModel(model)
	if err != nil {
		return domain.Upload{}, false, err
	}
	return u, true, nil
}

// UploadExists reports whether a record with id exists.
func (s *GormStore) UploadExists(ctx context.Context, id string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UploadModel{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUploadsByOwner returns an owner's uploads, newest first.
func (s *GormStore) ListUploadsByOwner(ctx context.Context, ownerID string) ([]domain.Upload, error) {
	var models []UploadModel
	if err := s.db.WithContext(ctx).Where("owner_id = ?", ownerID).Order(OwnerOrder).Find(&models).Error; err != nil {
		return nil, err
	}
	return uploadsFromModels(models)
}

// ListForProcessing returns uploads in ProcessingOrder.
func (s *GormStore) ListForProcessing(ctx context.Context, filter ListFilter) ([]domain.Upload, error) {
	filter = filter.Normalize()
	var models []UploadModel
	tx := applyFilter(s.db.WithContext(ctx).Model(&UploadModel{}), filter, "")
	if err := tx.Order(ProcessingOrder).Limit(filter.Limit).Offset(filter.Offset).Find(&models).Error; err != nil {
		return nil, err
	}
	return uploadsFromModels(models)
}

// ListAll returns uploads of every owner joined with the owner directory.
func (s *GormStore) ListAll(ctx context.Context, filter ListFilter) ([]domain.UploadWithOwner, int64, error) {
	filter = filter.Normalize()
	var total int64
	if err := applyFilter(s.db.WithContext(ctx).Model(&UploadModel{}), filter, "").Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []uploadOwnerRow
	tx := s.db.WithContext(ctx).
		Table("uploads").
		Select("uploads.*, COALESCE(upload_owners.email, '') AS owner_email, COALESCE(upload_owners.display_name, '') AS owner_display_name").
		Joins("LEFT JOIN upload_owners ON upload_owners.id = uploads.owner_id")
	tx = applyFilter(tx, filter, "uploads.")
	if err := tx.Order("uploads.priority ASC, uploads.created_at ASC, uploads.id ASC").
		Limit(filter.Limit).Offset(filter.Offset).Scan(&rows).Error; err != nil {
		return nil, 0, err
	}
	out := make([]domain.UploadWithOwner, 0, len(rows))
	for _, row := range rows {
		u, err := uploadFromModel(row.UploadModel)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, domain.UploadWithOwner{
			Upload: u,
			Owner: domain.Owner{
				ID:          u.OwnerID,
				Email:       row.OwnerEmail,
				DisplayName: row.OwnerDisplayName,
			},
		})
	}
	return out, total, nil
}

func applyFilter(tx *gorm.DB, filter ListFilter, prefix string) *gorm.DB {
	if filter.Status != nil {
		tx = tx.Where(prefix+"status = ?", string(*filter.Status))
	}
	if filter.OwnerID != nil {
		tx = tx.Where(prefix+"owner_id = ?", *filter.OwnerID)
	}
	return tx
}

// UpdateUpload applies a partial update and returns the stored result.
func (s *GormStore) UpdateUpload(ctx context.Context, id string, patch domain.UploadPatch) (domain.Upload, error) {
	updates, err := patchColumns(patch)
	if err != nil {
		return domain.Upload{}, err
	}
	updates["updated_at"] = time.Now().UTC()
	updates["version"] = gorm.Expr("version + 1")

	var updated domain.Upload
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&UploadModel{}).Where("id = ?", id)
		if patch.ExpectedVersion.Set {
			q = q.Where("version = ?", patch.ExpectedVersion.Value)
		}
		res := q.Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		var model UploadModel
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if res.RowsAffected == 0 {
			return ErrVersionConflict
		}
		updated, err = uploadFromModel(model)
		return err
	})
	if err != nil {
		return domain.Upload{}, err
	}
	return updated, nil
}

func patchColumns(p domain.UploadPatch) (map[string]any, error) {
	cols := map[string]any{}
	if p.Status.Set {
		cols["status"] = string(p.Status.Value)
	}
	if p.ErrorMessage.Set {
		cols["error_message"] = p.ErrorMessage.Value
	}
	if p.Priority.Set {
		cols["priority"] = p.Priority.Value
	}
	if p.ExtractedTitle.Set {
		cols["extracted_title"] = p.ExtractedTitle.Value
	}
	if p.ExtractedAuthors.Set {
		authors, err := encodeAuthors(p.ExtractedAuthors.Value)
		if err != nil {
			return nil, err
		}
		cols["extracted_authors"] = authors
	}
	if p.ExtractedAbstract.Set {
		cols["extracted_abstract"] = p.ExtractedAbstract.Value
	}
	if p.PageCount.Set {
		cols["page_count"] = p.PageCount.Value
	}
	return cols, nil
}

// DeleteUpload removes an upload record.
func (s *GormStore) DeleteUpload(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&UploadModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertOwner registers or refreshes an owner directory entry.
func (s *GormStore) UpsertOwner(ctx context.Context, o domain.Owner) error {
	model := OwnerModel{
		ID:          o.ID,
		Email:       o.Email,
		DisplayName: o.DisplayName,
		UpdatedAt:   time.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "display_name", "updated_at"}),
	}).Create(&model).Error
}

func encodeAuthors(authors []string) (datatypes.JSON, error) {
	if authors == nil {
		authors = []string{}
	}
	raw, err := json.Marshal(authors)
	if err != nil {
		return nil, fmt.Errorf("encode authors: %w", err)
	}
	return datatypes.JSON(raw), nil
}

func decodeAuthors(raw datatypes.JSON) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var authors []string
	if err := json.Unmarshal(raw, &authors); err != nil {
		return nil, fmt.Errorf("decode authors: %w", err)
	}
	if len(authors) == 0 {
		return nil, nil
	}
	return authors, nil
}

func uploadToModel(u domain.Upload) (UploadModel, error) {
	authors, err := encodeAuthors(u.ExtractedAuthors)
	if err != nil {
		return UploadModel{}, err
	}
	return UploadModel{
		ID:                u.ID,
		OwnerID:           u.OwnerID,
		OriginalFilename:  u.OriginalFilename,
		StorageKey:        u.StorageKey,
		StorageLocator:    u.StorageLocator,
		SizeBytes:         u.SizeBytes,
		PageCount:         u.PageCount,
		Status:            string(u.Status),
		ErrorMessage:      u.ErrorMessage,
		ExtractedTitle:    u.ExtractedTitle,
		ExtractedAuthors:  authors,
		ExtractedAbstract: u.ExtractedAbstract,
		Priority:          u.Priority,
		Version:           u.Version,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}, nil
}

func uploadFromModel(m UploadModel) (domain.Upload, error) {
	authors, err := decodeAuthors(m.ExtractedAuthors)
	if err != nil {
		return domain.Upload{}, err
	}
	return domain.Upload{
		ID:                m.ID,
		OwnerID:           m.OwnerID,
		OriginalFilename:  m.OriginalFilename,
		StorageKey:        m.StorageKey,
		StorageLocator:    m.StorageLocator,
		SizeBytes:         m.SizeBytes,
		PageCount:         m.PageCount,
		Status:            domain.UploadStatus(m.Status),
		ErrorMessage:      m.ErrorMessage,
		ExtractedTitle:    m.ExtractedTitle,
		ExtractedAuthors:  authors,
		ExtractedAbstract: m.ExtractedAbstract,
		Priority:          m.Priority,
		Version:           m.Version,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}, nil
}

func uploadsFromModels(models []UploadModel) ([]domain.Upload, error) {
	res := make([]domain.Upload, 0, len(models))
	for _, m := range models {
		u, err := uploadFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, nil
}
