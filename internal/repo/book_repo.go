package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	bookColumns = map[string]string{
		"id":    "books.id",
		"title": "books.title",
		"isbn":  "books.isbn",
	}
	bookDefaultOrder = []string{"books.title ASC", "books.id ASC"}
)

// BookFilter narrows ListBooks. Zero values are ignored.
type BookFilter struct {
	Title      string
	AuthorID   *uint
	LanguageID *uint
	GenreID    *uint
}

func validateBook(b *db.Book) *validator {
	v := newValidator(EntityBook)
	v.required("title", b.Title)
	v.maxLength("title", b.Title, db.MaxTitleLength)
	v.maxLength("summary", b.Summary, db.MaxSummaryLength)
	v.required("isbn", b.ISBN)
	v.maxLength("isbn", b.ISBN, db.MaxISBNLength)
	return v
}

// bookRefs holds the records a book points at, loaded during validation
type bookRefs struct {
	author   *db.Author
	language *db.Language
	genres   []db.Genre
}

// resolveBookRefs checks that every referenced author, language and genre
// exists. Unknown keys are reported on v. On create a reference may be given
// through the association alone; on update AuthorID and LanguageID are
// authoritative and nil clears the reference.
func (r *CatalogRepository) resolveBookRefs(tx *gorm.DB, b *db.Book, v *validator, create bool) (*bookRefs, error) {
	if create && b.AuthorID == nil && b.Author != nil && b.Author.ID != 0 {
		id := b.Author.ID
		b.AuthorID = &id
	}
	if create && b.LanguageID == nil && b.Language != nil && b.Language.ID != 0 {
		id := b.Language.ID
		b.LanguageID = &id
	}

	refs := &bookRefs{}
	if b.AuthorID != nil {
		author, err := r.getAuthor(tx, *b.AuthorID)
		switch {
		case errors.Is(err, ErrNotFound):
			v.addError("author_id", fmt.Sprintf("author %d does not exist", *b.AuthorID))
		case err != nil:
			return nil, err
		default:
			refs.author = author
		}
	}
	if b.LanguageID != nil {
		language, err := r.getLanguage(tx, *b.LanguageID)
		switch {
		case errors.Is(err, ErrNotFound):
			v.addError("language_id", fmt.Sprintf("language %d does not exist", *b.LanguageID))
		case err != nil:
			return nil, err
		default:
			refs.language = language
		}
	}

	ids := make([]uint, 0, len(b.Genres))
	seen := make(map[uint]bool, len(b.Genres))
	for _, g := range b.Genres {
		if seen[g.ID] {
			continue
		}
		seen[g.ID] = true
		ids = append(ids, g.ID)
	}
	if len(ids) > 0 {
		var found []db.Genre
		if err := tx.Where("id IN ?", ids).Find(&found).Error; err != nil {
			return nil, err
		}
		byID := make(map[uint]db.Genre, len(found))
		for _, g := range found {
			byID[g.ID] = g
		}
		// keep the caller's association order
		for _, id := range ids {
			g, ok := byID[id]
			if !ok {
				v.addError("genres", fmt.Sprintf("genre %d does not exist", id))
				continue
			}
			refs.genres = append(refs.genres, g)
		}
	}

	return refs, nil
}

// saveBook writes the book row and its genre set inside tx
func (r *CatalogRepository) saveBook(tx *gorm.DB, b *db.Book, create bool) error {
	v := validateBook(b)
	refs, err := r.resolveBookRefs(tx, b, v, create)
	if err != nil {
		return err
	}
	if err := v.result(); err != nil {
		return err
	}

	if create {
		err = tx.Omit(clause.Associations).Create(b).Error
	} else {
		err = tx.Omit(clause.Associations).Save(b).Error
	}
	if err != nil {
		return err
	}

	association := tx.Model(b).Association("Genres")
	if len(refs.genres) == 0 {
		if !create {
			if err := association.Clear(); err != nil {
				return err
			}
		}
	} else if err := association.Replace(refs.genres); err != nil {
		return err
	}

	b.Author = refs.author
	b.Language = refs.language
	b.Genres = refs.genres
	return nil
}

// CreateBook validates and stores a new book with its genre associations.
// Referenced author, language and genres must already exist.
func (r *CatalogRepository) CreateBook(ctx context.Context, book *db.Book) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "create", start, err) }()

	book.ID = 0
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return r.saveBook(tx, book, true)
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			r.log.Error("Failed to create book", zap.String("title", book.Title), zap.Error(err))
		}
		return storeError("create book", err)
	}

	r.log.Info("Book created", zap.Uint("id", book.ID), zap.String("title", book.Title))
	r.publishCreated(ctx, EntityBook, fmt.Sprint(book.ID), bookPayload(book))
	return nil
}

// GetBook retrieves a book by id with its author, language and genres loaded
func (r *CatalogRepository) GetBook(ctx context.Context, id uint) (book *db.Book, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "get", start, err) }()

	var b db.Book
	if err := withBookAssociations(r.db.WithContext(ctx)).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFound(EntityBook, id)
		}
		r.log.Error("Failed to get book", zap.Uint("id", id), zap.Error(err))
		return nil, storeError("get book", err)
	}
	return &b, nil
}

// UpdateBook replaces every field of an existing book, including its genre set
func (r *CatalogRepository) UpdateBook(ctx context.Context, book *db.Book) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "update", start, err) }()

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&db.Book{}).Where("id = ?", book.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return notFound(EntityBook, book.ID)
		}
		return r.saveBook(tx, book, false)
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) && !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to update book", zap.Uint("id", book.ID), zap.Error(err))
		}
		return storeError("update book", err)
	}

	r.log.Info("Book updated", zap.Uint("id", book.ID))
	r.publishUpdated(ctx, EntityBook, fmt.Sprint(book.ID), bookPayload(book))
	return nil
}

// DeleteBook removes a book and its genre associations. Copies of the book
// are kept with their book reference cleared.
func (r *CatalogRepository) DeleteBook(ctx context.Context, id uint) (err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "delete", start, err) }()

	var orphaned int64
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&db.BookInstance{}).Where("book_id = ?", id).UpdateColumn("book_id", nil)
		if res.Error != nil {
			return res.Error
		}
		orphaned = res.RowsAffected

		if err := tx.Exec("DELETE FROM book_genres WHERE book_id = ?", id).Error; err != nil {
			return err
		}

		res = tx.Delete(&db.Book{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return notFound(EntityBook, id)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.log.Error("Failed to delete book", zap.Uint("id", id), zap.Error(err))
		}
		return storeError("delete book", err)
	}

	r.log.Info("Book deleted", zap.Uint("id", id), zap.Int64("copies_unlinked", orphaned))
	r.publishDeleted(ctx, EntityBook, fmt.Sprint(id), map[string]interface{}{"copies_unlinked": orphaned})
	return nil
}

// ListBooks returns books ordered by title unless opts overrides the order.
// Author, language and genres are loaded for display.
func (r *CatalogRepository) ListBooks(ctx context.Context, filter BookFilter, opts ListOptions) (books []*db.Book, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "list", start, err) }()

	query, err := opts.apply(r.bookQuery(ctx, filter), EntityBook, bookColumns, bookDefaultOrder)
	if err != nil {
		return nil, err
	}
	if err := withBookAssociations(query).Find(&books).Error; err != nil {
		r.log.Error("Failed to list books", zap.Error(err))
		return nil, storeError("list books", err)
	}
	return books, nil
}

// CountBooks counts books matching filter
func (r *CatalogRepository) CountBooks(ctx context.Context, filter BookFilter) (total int64, err error) {
	start := time.Now()
	defer func() { r.metrics.observe(EntityBook, "count", start, err) }()

	if err := r.bookQuery(ctx, filter).Count(&total).Error; err != nil {
		r.log.Error("Failed to count books", zap.Error(err))
		return 0, storeError("count books", err)
	}
	return total, nil
}

func (r *CatalogRepository) bookQuery(ctx context.Context, filter BookFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&db.Book{})
	if filter.Title != "" {
		query = query.Where(`LOWER(books.title) LIKE ? ESCAPE '\'`, containsPattern(filter.Title))
	}
	if filter.AuthorID != nil {
		query = query.Where("books.author_id = ?", *filter.AuthorID)
	}
	if filter.LanguageID != nil {
		query = query.Where("books.language_id = ?", *filter.LanguageID)
	}
	if filter.GenreID != nil {
		query = query.Where("books.id IN (SELECT book_id FROM book_genres WHERE genre_id = ?)", *filter.GenreID)
	}
	return query
}

func withBookAssociations(q *gorm.DB) *gorm.DB {
	return q.Preload("Author").
		Preload("Language").
		Preload("Genres", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("genres.id ASC")
		})
}

func bookPayload(b *db.Book) map[string]interface{} {
	genreIDs := make([]uint, len(b.Genres))
	for i, g := range b.Genres {
		genreIDs[i] = g.ID
	}
	return map[string]interface{}{
		"title":       b.Title,
		"isbn":        b.ISBN,
		"author_id":   b.AuthorID,
		"language_id": b.LanguageID,
		"genre_ids":   genreIDs,
	}
}
