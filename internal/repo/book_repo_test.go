package repo

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBook(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	author := mustCreateAuthor(t, repo, "Ursula", "Le Guin")
	english := mustCreateLanguage(t, repo, "English")
	fantasy := mustCreateGenre(t, repo, "Fantasy")
	classic := mustCreateGenre(t, repo, "Classic")

	book := &db.Book{
		Title:      "A Wizard of Earthsea",
		Summary:    "A young wizard must undo a shadow he released.",
		ISBN:       "9780553383041",
		AuthorID:   &author.ID,
		LanguageID: &english.ID,
		Genres:     []db.Genre{{ID: fantasy.ID}, {ID: classic.ID}},
	}
	require.NoError(t, repo.CreateBook(ctx, book))
	assert.NotZero(t, book.ID)
	require.NotNil(t, book.Author)
	assert.Equal(t, "Le Guin", book.Author.LastName)
	assert.Equal(t, "Fantasy, Classic", db.DisplayGenres(book))

	retrieved, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.Title, retrieved.Title)
	assert.Equal(t, book.Summary, retrieved.Summary)
	assert.Equal(t, book.ISBN, retrieved.ISBN)
	require.NotNil(t, retrieved.AuthorID)
	assert.Equal(t, author.ID, *retrieved.AuthorID)
	require.NotNil(t, retrieved.Language)
	assert.Equal(t, "English", retrieved.Language.Name)
	require.Len(t, retrieved.Genres, 2)
	assert.Equal(t, "Fantasy, Classic", db.DisplayGenres(retrieved))
	assert.Equal(t, "A Wizard of Earthsea", retrieved.String())
}

func TestCreateBookTakesReferencesFromAssociations(t *testing.T) {
	repo := setupTestRepo(t)

	author := mustCreateAuthor(t, repo, "Jules", "Verne")
	french := mustCreateLanguage(t, repo, "French")

	book := mustCreateBook(t, repo, &db.Book{Title: "Le Tour du monde en quatre-vingts jours", Author: author, Language: french})
	require.NotNil(t, book.AuthorID)
	require.NotNil(t, book.LanguageID)

	retrieved, err := repo.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Equal(t, author.ID, *retrieved.AuthorID)
	assert.Equal(t, french.ID, *retrieved.LanguageID)
}

func TestCreateBookValidation(t *testing.T) {
	repo := setupTestRepo(t)

	tests := []struct {
		name  string
		book  db.Book
		field string
	}{
		{"missing title", db.Book{ISBN: "9780000000000"}, "title"},
		{"long title", db.Book{Title: strings.Repeat("t", db.MaxTitleLength+1), ISBN: "9780000000000"}, "title"},
		{"missing isbn", db.Book{Title: "Untitled"}, "isbn"},
		{"long isbn", db.Book{Title: "Untitled", ISBN: "97800000000000"}, "isbn"},
		{"long summary", db.Book{Title: "Untitled", ISBN: "9780000000000", Summary: strings.Repeat("s", db.MaxSummaryLength+1)}, "summary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := tt.book
			fields := validationFields(t, repo.CreateBook(context.Background(), &book))
			assert.Contains(t, fields, tt.field)
		})
	}

	count, err := repo.CountBooks(context.Background(), BookFilter{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCreateBookAllowsBlankSummaryAndUncheckedISBN(t *testing.T) {
	repo := setupTestRepo(t)

	mustCreateBook(t, repo, &db.Book{Title: "First", ISBN: "not-an-isbn"})
	mustCreateBook(t, repo, &db.Book{Title: "Second", ISBN: "not-an-isbn"})

	count, err := repo.CountBooks(context.Background(), BookFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestCreateBookUnknownReferences(t *testing.T) {
	repo := setupTestRepo(t)

	missing := uint(404)
	book := &db.Book{
		Title:      "Orphan",
		ISBN:       "9780000000000",
		AuthorID:   &missing,
		LanguageID: &missing,
		Genres:     []db.Genre{{ID: missing}},
	}
	fields := validationFields(t, repo.CreateBook(context.Background(), book))
	assert.Equal(t, "author 404 does not exist", fields["author_id"])
	assert.Equal(t, "language 404 does not exist", fields["language_id"])
	assert.Equal(t, "genre 404 does not exist", fields["genres"])
}

func TestUpdateBookReplacesGenres(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	fantasy := mustCreateGenre(t, repo, "Fantasy")
	adventure := mustCreateGenre(t, repo, "Adventure")
	classic := mustCreateGenre(t, repo, "Classic")
	book := mustCreateBook(t, repo, &db.Book{Title: "Original Title", Genres: []db.Genre{*fantasy, *adventure}})

	book.Title = "Updated Title"
	book.Genres = []db.Genre{*classic}
	require.NoError(t, repo.UpdateBook(ctx, book))

	updated, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Updated Title", updated.Title)
	assert.Equal(t, "Classic", db.DisplayGenres(updated))

	updated.Genres = nil
	require.NoError(t, repo.UpdateBook(ctx, updated))
	cleared, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Empty(t, cleared.Genres)
	assert.Equal(t, "", db.DisplayGenres(cleared))

	// genres themselves survive being unlinked
	genres, err := repo.ListGenres(ctx, NameFilter{}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, genres, 3)
}

func TestUpdateBookClearsAuthorAndLanguage(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	author := mustCreateAuthor(t, repo, "Jules", "Verne")
	french := mustCreateLanguage(t, repo, "French")
	book := mustCreateBook(t, repo, &db.Book{Title: "Michel Strogoff", AuthorID: &author.ID, LanguageID: &french.ID})

	loaded, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Author)
	require.NotNil(t, loaded.Language)

	loaded.AuthorID = nil
	require.NoError(t, repo.UpdateBook(ctx, loaded))

	stored, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.AuthorID)
	assert.Nil(t, stored.Author)
	require.NotNil(t, stored.LanguageID)
	assert.Equal(t, french.ID, *stored.LanguageID)

	stored.LanguageID = nil
	require.NoError(t, repo.UpdateBook(ctx, stored))
	assert.Nil(t, stored.Language)

	stored, err = repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.LanguageID)
	assert.Nil(t, stored.Language)
	assert.Equal(t, "Michel Strogoff", stored.Title)
}

func TestUpdateBookErrors(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Kept"})

	book.Title = ""
	assert.True(t, errors.Is(repo.UpdateBook(ctx, book), ErrValidation))

	stored, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Kept", stored.Title)

	ghost := &db.Book{ID: 777, Title: "Ghost", ISBN: "9780000000000"}
	assert.True(t, errors.Is(repo.UpdateBook(ctx, ghost), ErrNotFound))
}

func TestDeleteBookKeepsInstances(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	genre := mustCreateGenre(t, repo, "Fantasy")
	book := mustCreateBook(t, repo, &db.Book{Title: "Harry Potter", Genres: []db.Genre{*genre}})
	instance := &db.BookInstance{BookID: &book.ID, Imprint: "Bloomsbury, 1997", Status: db.StatusOnLoan}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	require.NoError(t, repo.DeleteBook(ctx, book.ID))

	_, err := repo.GetBook(ctx, book.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	retrieved, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Nil(t, retrieved.BookID)
	assert.Nil(t, retrieved.Book)
	assert.Equal(t, "Bloomsbury, 1997", retrieved.Imprint)
	assert.Equal(t, instance.ID.String()+" - (no book)", db.Describe(retrieved))

	_, err = repo.GetGenre(ctx, genre.ID)
	assert.NoError(t, err)

	assert.True(t, errors.Is(repo.DeleteBook(ctx, book.ID), ErrNotFound))
}

func TestListBooksOrderedByTitle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, title := range []string{"Dune", "Anathem", "Neuromancer", "Babel"} {
		mustCreateBook(t, repo, &db.Book{Title: title})
	}

	books, err := repo.ListBooks(ctx, BookFilter{}, ListOptions{})
	require.NoError(t, err)
	titles := make([]string, len(books))
	for i, b := range books {
		titles[i] = b.Title
	}
	assert.Equal(t, []string{"Anathem", "Babel", "Dune", "Neuromancer"}, titles)

	books, err = repo.ListBooks(ctx, BookFilter{}, ListOptions{OrderBy: "-title", PageSize: 1})
	require.NoError(t, err)
	require.Len(t, books, 1)
	assert.Equal(t, "Neuromancer", books[0].Title)
}

func TestListBooksFilters(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	leGuin := mustCreateAuthor(t, repo, "Ursula", "Le Guin")
	verne := mustCreateAuthor(t, repo, "Jules", "Verne")
	english := mustCreateLanguage(t, repo, "English")
	french := mustCreateLanguage(t, repo, "French")
	scifi := mustCreateGenre(t, repo, "Science Fiction")
	fantasy := mustCreateGenre(t, repo, "Fantasy")

	mustCreateBook(t, repo, &db.Book{Title: "A Wizard of Earthsea", AuthorID: &leGuin.ID, LanguageID: &english.ID, Genres: []db.Genre{*fantasy}})
	mustCreateBook(t, repo, &db.Book{Title: "The Dispossessed", AuthorID: &leGuin.ID, LanguageID: &english.ID, Genres: []db.Genre{*scifi}})
	mustCreateBook(t, repo, &db.Book{Title: "De la Terre à la Lune", AuthorID: &verne.ID, LanguageID: &french.ID, Genres: []db.Genre{*scifi}})

	books, err := repo.ListBooks(ctx, BookFilter{AuthorID: &leGuin.ID}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, books, 2)

	books, err = repo.ListBooks(ctx, BookFilter{GenreID: &scifi.ID}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, "De la Terre à la Lune", books[0].Title)
	require.NotNil(t, books[0].Author)
	assert.Equal(t, "Verne", books[0].Author.LastName)

	books, err = repo.ListBooks(ctx, BookFilter{LanguageID: &french.ID}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, books, 1)

	count, err := repo.CountBooks(ctx, BookFilter{Title: "WIZARD"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = repo.CountBooks(ctx, BookFilter{AuthorID: &leGuin.ID, GenreID: &scifi.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestDisplayGenresLimitsToThree(t *testing.T) {
	repo := setupTestRepo(t)

	var genres []db.Genre
	for _, name := range []string{"Fantasy", "Adventure", "Classic", "Horror"} {
		genres = append(genres, *mustCreateGenre(t, repo, name))
	}
	book := mustCreateBook(t, repo, &db.Book{Title: "Everything", Genres: genres})

	retrieved, err := repo.GetBook(context.Background(), book.ID)
	require.NoError(t, err)
	assert.Len(t, retrieved.Genres, 4)
	assert.Equal(t, "Fantasy, Adventure, Classic", db.DisplayGenres(retrieved))
}

func TestDeleteAuthorScenario(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	author := &db.Author{FirstName: "Joanne", LastName: "Rowling"}
	require.NoError(t, repo.CreateAuthor(ctx, author))
	book := &db.Book{Title: "Harry Potter", ISBN: "9780747532699", AuthorID: &author.ID}
	require.NoError(t, repo.CreateBook(ctx, book))

	require.NoError(t, repo.DeleteAuthor(ctx, author.ID))

	retrieved, err := repo.GetBook(ctx, book.ID)
	require.NoError(t, err)
	assert.Nil(t, retrieved.AuthorID)
	assert.Equal(t, "Harry Potter", retrieved.Title)
}
