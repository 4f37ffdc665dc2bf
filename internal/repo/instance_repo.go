package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	instanceColumns = map[string]string{
		"id":       "id",
		"due_back": "due_back",
		"status":   "status",
		"imprint":  "imprint",
	}
	instanceDefaultOrder = []string{"due_back ASC", "id ASC"}
)

// InstanceFilter narrows ListBookInstances. Zero values are ignored.
type InstanceFilter struct {
	BookID *uint
	Status db.LoanStatus
}

func validateInstance(bi *db.BookInstance) *validator {
	if bi.Status == "" {
		bi.Status = db.DefaultLoanStatus
	}
	v := newValidator(EntityBookInstance)
	v.maxLength("imprint", bi.Imprint, db.MaxImprintLength)
	v.maxLength("image_ref", bi.ImageRef, db.MaxImageRefLength)
	v.check(bi.Status.Valid(), "status", fmt.Sprintf("%q is not a valid loan status", string(bi.Status)))
	return v
}

// resolveInstanceBook checks the referenced book exists and returns it.
// Only a create falls back to the Book association when BookID is nil.
func (r *CatalogRepository) resolveInstanceBook(tx *gorm.DB, bi *db.BookInstance, v *validator, create bool) (*db.Book, error) {
	if create && bi.BookID == nil && bi.Book != nil && bi.Book.ID != 0 {
		id := bi.Book.ID
		bi.BookID = &id
	}
	if bi.BookID == nil {
		return nil, nil
	}

	var book db.Book
	err := tx.First(&book, *bi.BookID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		v.addError("book_id", fmt.Sprintf("book %d does not exist", *bi.BookID))
		return nil, nil
	case err != nil:
		return nil, err
	}
	return &book, nil
}

func (r *CatalogRepository) saveInstance(tx *gorm.DB, bi *db.BookInstance, create bool) error {
	v := validateInstance(bi)
	book, err := r.resolveInstanceBook(tx, bi, v, create)
	if err != nil {
		return err
	}
	if err := v.result(); err != nil {
		return err
	}

	if create {
		err = tx.Omit(clause.Associations).Create(bi).Error
	} else {
		err = tx.Omit(clause.Associations).Save(bi).Error
	}
	if err != nil {
		return err
	}
	bi.Book = book
	return nil
}

// CreateBookInstance validates and stores a new copy. A random identifier
// is assigned when ID is unset and an empty status defaults to maintenance.
func (r *CatalogRepository) CreateBookInstance(ctx context.Context, instance *db.BookInstance) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "create", start, err) }()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.saveInstance(tx, instance, true)
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			r.log.Error("Failed to create book instance", zap.Error(err))
		}
		return storeError("create book instance", err)
	}

	r.log.Info("Book instance created", zap.Stringer("id", instance.ID), zap.String("status", string(instance.Status)))
	r.publishCreated(ctx, EntityBookInstance, instance.ID.String(), instancePayload(instance))
	return nil
}

// GetBookInstance retrieves a copy by id with its book loaded
func (r *CatalogRepository) GetBookInstance(ctx context.Context, id uuid.UUID) (instance *db.BookInstance, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "get", start, err) }()

	return r.getInstance(r.db.WithContext(ctx), id)
}

func (r *CatalogRepository) getInstance(tx *gorm.DB, id uuid.UUID) (*db.BookInstance, error) {
	var bi db.BookInstance
	if err := tx.Preload("Book").Where("id = ?", id).First(&bi).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(EntityBookInstance, id)
		}
		r.log.Error("Failed to get book instance", zap.Stringer("id", id), zap.Error(err))
		return nil, storeError("get book instance", err)
	}
	return &bi, nil
}

// UpdateBookInstance replaces every field of an existing copy
func (r *CatalogRepository) UpdateBookInstance(ctx context.Context, instance *db.BookInstance) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "update", start, err) }()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getInstance(tx, instance.ID); err != nil {
			return err
		}
		return r.saveInstance(tx, instance, false)
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to update book instance", zap.Stringer("id", instance.ID), zap.Error(err))
		}
		return storeError("update book instance", err)
	}

	r.log.Info("Book instance updated", zap.Stringer("id", instance.ID))
	r.publishUpdated(ctx, EntityBookInstance, instance.ID.String(), instancePayload(instance))
	return nil
}

// SetBookInstanceStatus changes only the status and due date of a copy.
// Any status may follow any other.
func (r *CatalogRepository) SetBookInstanceStatus(ctx context.Context, id uuid.UUID, status db.LoanStatus, dueBack *time.Time) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "set_status", start, err) }()

	if !status.Valid() {
		v := newValidator(EntityBookInstance)
		v.addError("status", fmt.Sprintf("%q is not a valid loan status", string(status)))
		return v.result()
	}

	res := r.db.WithContext(ctx).Model(&db.BookInstance{}).Where("id = ?", id).UpdateColumns(map[string]interface{}{
		"status":   status,
		"due_back": db.DateOf(dueBack),
	})
	if res.Error != nil {
		r.log.Error("Failed to set book instance status", zap.Stringer("id", id), zap.Error(res.Error))
		return storeError("set book instance status", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(EntityBookInstance, id)
	}

	r.log.Info("Book instance status changed", zap.Stringer("id", id), zap.String("status", string(status)))
	r.publishUpdated(ctx, EntityBookInstance, id.String(), map[string]interface{}{
		"status":   status,
		"due_back": db.DateOf(dueBack),
	})
	return nil
}

// DeleteBookInstance removes a copy
func (r *CatalogRepository) DeleteBookInstance(ctx context.Context, id uuid.UUID) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "delete", start, err) }()

	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&db.BookInstance{})
	if res.Error != nil {
		r.log.Error("Failed to delete book instance", zap.Stringer("id", id), zap.Error(res.Error))
		return storeError("delete book instance", res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(EntityBookInstance, id)
	}

	r.log.Info("Book instance deleted", zap.Stringer("id", id))
	r.publishDeleted(ctx, EntityBookInstance, id.String(), nil)
	return nil
}

// ListBookInstances returns copies ordered by due date unless opts
// overrides the order. Where copies without a due date sort is up to the store.
func (r *CatalogRepository) ListBookInstances(ctx context.Context, filter InstanceFilter, opts ListOptions) (instances []*db.BookInstance, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "list", start, err) }()

	query, err := opts.apply(r.instanceQuery(ctx, filter), EntityBookInstance, instanceColumns, instanceDefaultOrder)
	if err != nil {
		return nil, err
	}
	if err := query.Preload("Book").Find(&instances).Error; err != nil {
		r.log.Error("Failed to list book instances", zap.Error(err))
		return nil, storeError("list book instances", err)
	}
	return instances, nil
}

// CountBookInstances counts copies matching filter
func (r *CatalogRepository) CountBookInstances(ctx context.Context, filter InstanceFilter) (total int64, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBookInstance, "count", start, err) }()

	if err := r.instanceQuery(ctx, filter).Count(&total).Error; err != nil {
		r.log.Error("Failed to count book instances", zap.Error(err))
		return 0, storeError("count book instances", err)
	}
	return total, nil
}

func (r *CatalogRepository) instanceQuery(ctx context.Context, filter InstanceFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&db.BookInstance{})
	if filter.BookID != nil {
		query = query.Where("book_id = ?", *filter.BookID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	return query
}

func instancePayload(bi *db.BookInstance) map[string]interface{} {
	return map[string]interface{}{
		"book_id":  bi.BookID,
		"imprint":  bi.Imprint,
		"due_back": bi.DueBack,
		"status":   bi.Status,
	}
}
