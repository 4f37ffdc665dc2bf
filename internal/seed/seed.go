// Package seed loads a small sample catalog into an empty store.
package seed

import (
	"context"
	"fmt"

	"github.com/locallibrary/catalog/internal/db"
	"github.com/locallibrary/catalog/internal/repo"
	"go.uber.org/zap"
)

// Result reports what Run created
type Result struct {
	Skipped   bool
	Authors   int
	Books     int
	Instances int
}

type sampleBook struct {
	title, isbn, summary string
	author               int
	genres               []string
	copies               []db.LoanStatus
}

var (
	sampleGenres    = []string{"Fantasy", "Science Fiction", "Classic", "Adventure"}
	sampleLanguages = []string{"English", "French"}
	sampleAuthors   = []db.Author{
		{FirstName: "Joanne", LastName: "Rowling", DateOfBirth: db.Date(1965, 7, 31)},
		{FirstName: "Ursula", LastName: "Le Guin", DateOfBirth: db.Date(1929, 10, 21), DateOfDeath: db.Date(2018, 1, 22)},
		{FirstName: "Jules", LastName: "Verne", DateOfBirth: db.Date(1828, 2, 8), DateOfDeath: db.Date(1905, 3, 24)},
	}
	sampleBooks = []sampleBook{
		{"Harry Potter and the Philosopher's Stone", "9780747532699", "A boy learns he is a wizard.", 0,
			[]string{"Fantasy", "Adventure"}, []db.LoanStatus{db.StatusAvailable, db.StatusOnLoan}},
		{"A Wizard of Earthsea", "9780553383041", "", 1,
			[]string{"Fantasy", "Classic"}, []db.LoanStatus{db.StatusAvailable}},
		{"The Left Hand of Darkness", "9780441478125", "", 1,
			[]string{"Science Fiction", "Classic"}, []db.LoanStatus{db.StatusReserved}},
		{"Vingt mille lieues sous les mers", "9782253006329", "", 2,
			[]string{"Science Fiction", "Adventure", "Classic"}, []db.LoanStatus{db.StatusMaintenance, db.StatusAvailable}},
	}
)

// Run fills an empty catalog with sample records. A catalog that already
// holds books is left untouched.
func Run(ctx context.Context, catalog *repo.CatalogRepository, log *zap.Logger) (Result, error) {
	existing, err := catalog.CountBooks(ctx, repo.BookFilter{})
	if err != nil {
		return Result{}, err
	}
	if existing > 0 {
		log.Info("Catalog already populated, skipping seed", zap.Int64("books", existing))
		return Result{Skipped: true}, nil
	}

	var res Result
	genres := make(map[string]db.Genre, len(sampleGenres))
	for _, name := range sampleGenres {
		g := &db.Genre{Name: name}
		if err := catalog.CreateGenre(ctx, g); err != nil {
			return res, fmt.Errorf("seed genre %q: %w", name, err)
		}
		genres[name] = *g
	}

	languages := make([]db.Language, 0, len(sampleLanguages))
	for _, name := range sampleLanguages {
		l := &db.Language{Name: name}
		if err := catalog.CreateLanguage(ctx, l); err != nil {
			return res, fmt.Errorf("seed language %q: %w", name, err)
		}
		languages = append(languages, *l)
	}

	authors := make([]db.Author, 0, len(sampleAuthors))
	for _, a := range sampleAuthors {
		author := a
		if err := catalog.CreateAuthor(ctx, &author); err != nil {
			return res, fmt.Errorf("seed author %q: %w", a.LastName, err)
		}
		authors = append(authors, author)
		res.Authors++
	}

	for i, sb := range sampleBooks {
		language := languages[0]
		if i == len(sampleBooks)-1 {
			language = languages[1]
		}
		book := &db.Book{
			Title:      sb.title,
			ISBN:       sb.isbn,
			Summary:    sb.summary,
			AuthorID:   &authors[sb.author].ID,
			LanguageID: &language.ID,
		}
		for _, name := range sb.genres {
			book.Genres = append(book.Genres, genres[name])
		}
		if err := catalog.CreateBook(ctx, book); err != nil {
			return res, fmt.Errorf("seed book %q: %w", sb.title, err)
		}
		res.Books++

		for _, status := range sb.copies {
			instance := &db.BookInstance{BookID: &book.ID, Imprint: "Library edition", Status: status}
			if err := catalog.CreateBookInstance(ctx, instance); err != nil {
				return res, fmt.Errorf("seed copy of %q: %w", sb.title, err)
			}
			res.Instances++
		}
	}

	log.Info("Catalog seeded",
		zap.Int("authors", res.Authors),
		zap.Int("books", res.Books),
		zap.Int("instances", res.Instances),
	)
	return res, nil
}
