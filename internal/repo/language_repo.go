package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	languageColumns      = map[string]string{"id": "id", "name": "name"}
	languageDefaultOrder = []string{"name ASC", "id ASC"}
)

func validateLanguage(l *db.Language) error {
	v := newValidator(EntityLanguage)
	v.required("name", l.Name)
	v.maxLength("name", l.Name, db.MaxLanguageLength)
	return v.result()
}

// CreateLanguage validates and stores a new language
func (r *CatalogRepository) CreateLanguage(ctx context.Context, language *db.Language) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "create", start, err) }()

	if err := validateLanguage(language); err != nil {
		return err
	}
	language.ID = 0

	if err := r.db.WithContext(ctx).Create(language).Error; err != nil {
		r.log.Error("Failed to create language", zap.Error(err))
		return storeError("create language", err)
	}

	r.log.Info("Language created", zap.Uint("id", language.ID), zap.String("name", language.Name))
	r.publishCreated(ctx, EntityLanguage, fmt.Sprint(language.ID), map[string]interface{}{"name": language.Name})
	return nil
}

// GetLanguage retrieves a language by id
func (r *CatalogRepository) GetLanguage(ctx context.Context, id uint) (language *db.Language, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "get", start, err) }()

	return r.getLanguage(r.db.WithContext(ctx), id)
}

func (r *CatalogRepository) getLanguage(tx *gorm.DB, id uint) (*db.Language, error) {
	var language db.Language
	if err := tx.First(&language, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(EntityLanguage, id)
		}
		r.log.Error("Failed to get language", zap.Uint("id", id), zap.Error(err))
		return nil, storeError("get language", err)
	}
	return &language, nil
}

// UpdateLanguage renames an existing language
func (r *CatalogRepository) UpdateLanguage(ctx context.Context, language *db.Language) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "update", start, err) }()

	if err := validateLanguage(language); err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getLanguage(tx, language.ID); err != nil {
			return err
		}
		return tx.Save(language).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to update language", zap.Uint("id", language.ID), zap.Error(err))
		}
		return storeError("update language", err)
	}

	r.log.Info("Language updated", zap.Uint("id", language.ID))
	r.publishUpdated(ctx, EntityLanguage, fmt.Sprint(language.ID), map[string]interface{}{"name": language.Name})
	return nil
}

// DeleteLanguage removes a language and clears it from every book that
// referenced it. The books themselves are kept.
func (r *CatalogRepository) DeleteLanguage(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "delete", start, err) }()

	var unlinked int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getLanguage(tx, id); err != nil {
			return err
		}
		res := tx.Model(&db.Book{}).Where("language_id = ?", id).UpdateColumn("language_id", nil)
		if res.Error != nil {
			return res.Error
		}
		unlinked = res.RowsAffected
		return tx.Delete(&db.Language{}, id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to delete language", zap.Uint("id", id), zap.Error(err))
		}
		return storeError("delete language", err)
	}

	r.log.Info("Language deleted", zap.Uint("id", id), zap.Int64("books_unlinked", unlinked))
	r.publishDeleted(ctx, EntityLanguage, fmt.Sprint(id), map[string]interface{}{"books_unlinked": unlinked})
	return nil
}

// ListLanguages returns languages ordered by name unless opts overrides the order
func (r *CatalogRepository) ListLanguages(ctx context.Context, filter NameFilter, opts ListOptions) (languages []*db.Language, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "list", start, err) }()

	query, err := opts.apply(nameQuery(r.db.WithContext(ctx).Model(&db.Language{}), filter), EntityLanguage, languageColumns, languageDefaultOrder)
	if err != nil {
		return nil, err
	}
	if err := query.Find(&languages).Error; err != nil {
		r.log.Error("Failed to list languages", zap.Error(err))
		return nil, storeError("list languages", err)
	}
	return languages, nil
}

// CountLanguages counts languages matching filter
func (r *CatalogRepository) CountLanguages(ctx context.Context, filter NameFilter) (total int64, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityLanguage, "count", start, err) }()

	if err := nameQuery(r.db.WithContext(ctx).Model(&db.Language{}), filter).Count(&total).Error; err != nil {
		r.log.Error("Failed to count languages", zap.Error(err))
		return 0, storeError("count languages", err)
	}
	return total, nil
}
