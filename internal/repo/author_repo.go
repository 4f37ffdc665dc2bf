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
	authorColumns = map[string]string{
		"id":            "id",
		"first_name":    "first_name",
		"last_name":     "last_name",
		"date_of_birth": "date_of_birth",
		"date_of_death": "date_of_death",
	}
	authorDefaultOrder = []string{"last_name ASC", "first_name ASC"}
)

// AuthorFilter narrows ListAuthors. Name matches either name part.
type AuthorFilter struct {
	Name string
}

func validateAuthor(a *db.Author) error {
	v := newValidator(EntityAuthor)
	v.required("first_name", a.FirstName)
	v.maxLength("first_name", a.FirstName, db.MaxNameLength)
	v.required("last_name", a.LastName)
	v.maxLength("last_name", a.LastName, db.MaxNameLength)
	return v.result()
}

// CreateAuthor validates and stores a new author
func (r *CatalogRepository) CreateAuthor(ctx context.Context, author *db.Author) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "create", start, err) }()

	if err := validateAuthor(author); err != nil {
		return err
	}
	author.ID = 0

	if err := r.db.WithContext(ctx).Create(author).Error; err != nil {
		r.log.Error("Failed to create author", zap.Error(err))
		return storeError("create author", err)
	}

	r.log.Info("Author created", zap.Uint("id", author.ID), zap.Stringer("name", author))
	r.publishCreated(ctx, EntityAuthor, fmt.Sprint(author.ID), authorPayload(author))
	return nil
}

// GetAuthor retrieves an author by id
func (r *CatalogRepository) GetAuthor(ctx context.Context, id uint) (author *db.Author, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "get", start, err) }()

	return r.getAuthor(r.db.WithContext(ctx), id)
}

func (r *CatalogRepository) getAuthor(tx *gorm.DB, id uint) (*db.Author, error) {
	var author db.Author
	if err := tx.First(&author, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(EntityAuthor, id)
		}
		r.log.Error("Failed to get author", zap.Uint("id", id), zap.Error(err))
		return nil, storeError("get author", err)
	}
	return &author, nil
}

// UpdateAuthor replaces every field of an existing author
func (r *CatalogRepository) UpdateAuthor(ctx context.Context, author *db.Author) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "update", start, err) }()

	if err := validateAuthor(author); err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getAuthor(tx, author.ID); err != nil {
			return err
		}
		return tx.Save(author).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to update author", zap.Uint("id", author.ID), zap.Error(err))
		}
		return storeError("update author", err)
	}

	r.log.Info("Author updated", zap.Uint("id", author.ID))
	r.publishUpdated(ctx, EntityAuthor, fmt.Sprint(author.ID), authorPayload(author))
	return nil
}

// DeleteAuthor removes an author and clears it from every book that
// referenced it. The books themselves are kept.
func (r *CatalogRepository) DeleteAuthor(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "delete", start, err) }()

	var nullified int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getAuthor(tx, id); err != nil {
			return err
		}
		res := tx.Model(&db.Book{}).Where("author_id = ?", id).UpdateColumn("author_id", nil)
		if res.Error != nil {
			return res.Error
		}
		nullified = res.RowsAffected
		return tx.Delete(&db.Author{}, id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to delete author", zap.Uint("id", id), zap.Error(err))
		}
		return storeError("delete author", err)
	}

	r.log.Info("Author deleted", zap.Uint("id", id), zap.Int64("books_unlinked", nullified))
	r.publishDeleted(ctx, EntityAuthor, fmt.Sprint(id), map[string]interface{}{"books_unlinked": nullified})
	return nil
}

// ListAuthors returns authors ordered by last name then first name unless
// opts overrides the order
func (r *CatalogRepository) ListAuthors(ctx context.Context, filter AuthorFilter, opts ListOptions) (authors []*db.Author, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "list", start, err) }()

	query, err := opts.apply(r.authorQuery(ctx, filter), EntityAuthor, authorColumns, authorDefaultOrder)
	if err != nil {
		return nil, err
	}
	if err := query.Find(&authors).Error; err != nil {
		r.log.Error("Failed to list authors", zap.Error(err))
		return nil, storeError("list authors", err)
	}
	return authors, nil
}

// CountAuthors counts authors matching filter
func (r *CatalogRepository) CountAuthors(ctx context.Context, filter AuthorFilter) (total int64, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityAuthor, "count", start, err) }()

	if err := r.authorQuery(ctx, filter).Count(&total).Error; err != nil {
		r.log.Error("Failed to count authors", zap.Error(err))
		return 0, storeError("count authors", err)
	}
	return total, nil
}

func (r *CatalogRepository) authorQuery(ctx context.Context, filter AuthorFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&db.Author{})
	if filter.Name != "" {
		pattern := containsPattern(filter.Name)
		query = query.Where(`LOWER(first_name) LIKE ? ESCAPE '\' OR LOWER(last_name) LIKE ? ESCAPE '\'`, pattern, pattern)
	}
	return query
}

func authorPayload(a *db.Author) map[string]interface{} {
	return map[string]interface{}{
		"first_name":    a.FirstName,
		"last_name":     a.LastName,
		"date_of_birth": a.DateOfBirth,
		"date_of_death": a.DateOfDeath,
	}
}
