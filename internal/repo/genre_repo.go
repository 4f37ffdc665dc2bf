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
	genreColumns      = map[string]string{"id": "id", "name": "name"}
	genreDefaultOrder = []string{"name ASC", "id ASC"}
)

// NameFilter narrows genre and language listings by a name fragment
type NameFilter struct {
	Name string
}

func validateGenre(g *db.Genre) error {
	v := newValidator(EntityGenre)
	v.required("name", g.Name)
	v.maxLength("name", g.Name, db.MaxGenreLength)
	return v.result()
}

// CreateGenre validates and stores a new genre
func (r *CatalogRepository) CreateGenre(ctx context.Context, genre *db.Genre) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "create", start, err) }()

	if err := validateGenre(genre); err != nil {
		return err
	}
	genre.ID = 0

	if err := r.db.WithContext(ctx).Create(genre).Error; err != nil {
		r.log.Error("Failed to create genre", zap.Error(err))
		return storeError("create genre", err)
	}

	r.log.Info("Genre created", zap.Uint("id", genre.ID), zap.String("name", genre.Name))
	r.publishCreated(ctx, EntityGenre, fmt.Sprint(genre.ID), map[string]interface{}{"name": genre.Name})
	return nil
}

// GetGenre retrieves a genre by id
func (r *CatalogRepository) GetGenre(ctx context.Context, id uint) (genre *db.Genre, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "get", start, err) }()

	return r.getGenre(r.db.WithContext(ctx), id)
}

func (r *CatalogRepository) getGenre(tx *gorm.DB, id uint) (*db.Genre, error) {
	var genre db.Genre
	if err := tx.First(&genre, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(EntityGenre, id)
		}
		r.log.Error("Failed to get genre", zap.Uint("id", id), zap.Error(err))
		return nil, storeError("get genre", err)
	}
	return &genre, nil
}

// UpdateGenre renames an existing genre
func (r *CatalogRepository) UpdateGenre(ctx context.Context, genre *db.Genre) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "update", start, err) }()

	if err := validateGenre(genre); err != nil {
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getGenre(tx, genre.ID); err != nil {
			return err
		}
		return tx.Save(genre).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to update genre", zap.Uint("id", genre.ID), zap.Error(err))
		}
		return storeError("update genre", err)
	}

	r.log.Info("Genre updated", zap.Uint("id", genre.ID))
	r.publishUpdated(ctx, EntityGenre, fmt.Sprint(genre.ID), map[string]interface{}{"name": genre.Name})
	return nil
}

// DeleteGenre removes a genre and its book associations. Books are kept.
func (r *CatalogRepository) DeleteGenre(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "delete", start, err) }()

	var unlinked int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := r.getGenre(tx, id); err != nil {
			return err
		}
		res := tx.Exec("DELETE FROM book_genres WHERE genre_id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		unlinked = res.RowsAffected
		return tx.Delete(&db.Genre{}, id).Error
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to delete genre", zap.Uint("id", id), zap.Error(err))
		}
		return storeError("delete genre", err)
	}

	r.log.Info("Genre deleted", zap.Uint("id", id), zap.Int64("books_unlinked", unlinked))
	r.publishDeleted(ctx, EntityGenre, fmt.Sprint(id), map[string]interface{}{"books_unlinked": unlinked})
	return nil
}

// ListGenres returns genres ordered by name unless opts overrides the order
func (r *CatalogRepository) ListGenres(ctx context.Context, filter NameFilter, opts ListOptions) (genres []*db.Genre, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "list", start, err) }()

	query, err := opts.apply(nameQuery(r.db.WithContext(ctx).Model(&db.Genre{}), filter), EntityGenre, genreColumns, genreDefaultOrder)
	if err != nil {
		return nil, err
	}
	if err := query.Find(&genres).Error; err != nil {
		r.log.Error("Failed to list genres", zap.Error(err))
		return nil, storeError("list genres", err)
	}
	return genres, nil
}

// CountGenres counts genres matching filter
func (r *CatalogRepository) CountGenres(ctx context.Context, filter NameFilter) (total int64, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityGenre, "count", start, err) }()

	if err := nameQuery(r.db.WithContext(ctx).Model(&db.Genre{}), filter).Count(&total).Error; err != nil {
		r.log.Error("Failed to count genres", zap.Error(err))
		return 0, storeError("count genres", err)
	}
	return total, nil
}

func nameQuery(query *gorm.DB, filter NameFilter) *gorm.DB {
	if filter.Name != "" {
		query = query.Where(`LOWER(name) LIKE ? ESCAPE '\'`, containsPattern(filter.Name))
	}
	return query
}
