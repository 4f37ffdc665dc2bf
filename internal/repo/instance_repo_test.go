package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/locallibrary/catalog/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateBookInstanceDefaults(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "The Left Hand of Darkness"})
	instance := &db.BookInstance{BookID: &book.ID}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	assert.NotEqual(t, uuid.Nil, instance.ID)
	assert.Equal(t, db.StatusMaintenance, instance.Status)
	require.NotNil(t, instance.Book)
	assert.Equal(t, "The Left Hand of Darkness", instance.Book.Title)

	other := &db.BookInstance{BookID: &book.ID}
	require.NoError(t, repo.CreateBookInstance(ctx, other))
	assert.NotEqual(t, instance.ID, other.ID)
}

func TestCreateAndGetBookInstance(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Dune"})
	instance := &db.BookInstance{
		BookID:   &book.ID,
		Imprint:  "Chilton Books, 1965",
		DueBack:  db.Date(2026, 11, 1),
		ImageRef: "images/dune.jpg",
		Status:   db.StatusOnLoan,
	}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	retrieved, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, instance.ID, retrieved.ID)
	assert.Equal(t, book.ID, *retrieved.BookID)
	assert.Equal(t, "Chilton Books, 1965", retrieved.Imprint)
	require.NotNil(t, retrieved.DueBack)
	assert.True(t, instance.DueBack.Equal(*retrieved.DueBack))
	assert.Equal(t, "images/dune.jpg", retrieved.ImageRef)
	assert.Equal(t, db.StatusOnLoan, retrieved.Status)
	assert.Equal(t, instance.ID.String()+" - Dune", retrieved.String())
}

func TestCreateBookInstanceTruncatesDueDate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	due := time.Date(2026, 10, 20, 17, 45, 0, 0, time.UTC)
	instance := &db.BookInstance{DueBack: &due}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	retrieved, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, retrieved.DueBack)
	assert.True(t, db.Date(2026, 10, 20).Equal(*retrieved.DueBack))
}

func TestBookInstanceStatusValidation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	fields := validationFields(t, repo.CreateBookInstance(ctx, &db.BookInstance{Status: "x"}))
	assert.Contains(t, fields["status"], "not a valid loan status")

	instance := &db.BookInstance{Status: db.StatusAvailable}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	instance.Status = "Available"
	assert.True(t, errors.Is(repo.UpdateBookInstance(ctx, instance), ErrValidation))

	assert.True(t, errors.Is(repo.SetBookInstanceStatus(ctx, instance.ID, "lost", nil), ErrValidation))

	stored, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusAvailable, stored.Status)
}

func TestCreateBookInstanceUnknownBook(t *testing.T) {
	repo := setupTestRepo(t)

	missing := uint(12)
	fields := validationFields(t, repo.CreateBookInstance(context.Background(), &db.BookInstance{BookID: &missing}))
	assert.Equal(t, "book 12 does not exist", fields["book_id"])
}

func TestUpdateBookInstance(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := mustCreateBook(t, repo, &db.Book{Title: "First"})
	second := mustCreateBook(t, repo, &db.Book{Title: "Second"})
	instance := &db.BookInstance{BookID: &first.ID, Status: db.StatusReserved}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	instance.BookID = &second.ID
	instance.Imprint = "Reprint"
	instance.Status = ""
	require.NoError(t, repo.UpdateBookInstance(ctx, instance))

	updated, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Equal(t, "Second", updated.Book.Title)
	assert.Equal(t, "Reprint", updated.Imprint)
	assert.Equal(t, db.StatusMaintenance, updated.Status)

	ghost := &db.BookInstance{ID: uuid.New()}
	assert.True(t, errors.Is(repo.UpdateBookInstance(ctx, ghost), ErrNotFound))
}

func TestUpdateBookInstanceClearsBook(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Withdrawn"})
	instance := &db.BookInstance{BookID: &book.ID}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	loaded, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.Book)

	loaded.BookID = nil
	require.NoError(t, repo.UpdateBookInstance(ctx, loaded))
	assert.Nil(t, loaded.Book)

	stored, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.BookID)
	assert.Nil(t, stored.Book)
	assert.Equal(t, instance.ID.String()+" - (no book)", stored.String())
}

func TestCreateBookInstanceFromBookAssociation(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Associated"})
	instance := &db.BookInstance{Book: book}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	stored, err := repo.GetBookInstance(ctx, instance.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.BookID)
	assert.Equal(t, book.ID, *stored.BookID)
}

func TestSetBookInstanceStatusAnyTransition(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	instance := &db.BookInstance{Status: db.StatusAvailable}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	transitions := []db.LoanStatus{db.StatusOnLoan, db.StatusMaintenance, db.StatusReserved, db.StatusAvailable, db.StatusOnLoan}
	for _, status := range transitions {
		var due *time.Time
		if status == db.StatusOnLoan {
			due = db.Date(2026, 12, 24)
		}
		require.NoError(t, repo.SetBookInstanceStatus(ctx, instance.ID, status, due))

		stored, err := repo.GetBookInstance(ctx, instance.ID)
		require.NoError(t, err)
		assert.Equal(t, status, stored.Status)
		assert.Equal(t, due == nil, stored.DueBack == nil)
	}

	assert.True(t, errors.Is(repo.SetBookInstanceStatus(ctx, uuid.New(), db.StatusAvailable, nil), ErrNotFound))
}

func TestDeleteBookInstance(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Kept"})
	instance := &db.BookInstance{BookID: &book.ID}
	require.NoError(t, repo.CreateBookInstance(ctx, instance))

	require.NoError(t, repo.DeleteBookInstance(ctx, instance.ID))
	_, err := repo.GetBookInstance(ctx, instance.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(repo.DeleteBookInstance(ctx, instance.ID), ErrNotFound))

	_, err = repo.GetBook(ctx, book.ID)
	assert.NoError(t, err)
}

func TestListBookInstancesOrderedByDueDate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	book := mustCreateBook(t, repo, &db.Book{Title: "Popular"})
	for _, day := range []int{15, 3, 28, 9} {
		instance := &db.BookInstance{BookID: &book.ID, DueBack: db.Date(2026, 11, day), Status: db.StatusOnLoan}
		require.NoError(t, repo.CreateBookInstance(ctx, instance))
	}

	instances, err := repo.ListBookInstances(ctx, InstanceFilter{}, ListOptions{})
	require.NoError(t, err)
	require.Len(t, instances, 4)
	days := make([]int, len(instances))
	for i, bi := range instances {
		days[i] = bi.DueBack.Day()
		require.NotNil(t, bi.Book)
	}
	assert.Equal(t, []int{3, 9, 15, 28}, days)

	instances, err = repo.ListBookInstances(ctx, InstanceFilter{}, ListOptions{OrderBy: "-due_back"})
	require.NoError(t, err)
	assert.Equal(t, 28, instances[0].DueBack.Day())
}

func TestListBookInstancesFilters(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	first := mustCreateBook(t, repo, &db.Book{Title: "First"})
	second := mustCreateBook(t, repo, &db.Book{Title: "Second"})
	copies := []db.BookInstance{
		{BookID: &first.ID, Status: db.StatusAvailable},
		{BookID: &first.ID, Status: db.StatusOnLoan},
		{BookID: &second.ID, Status: db.StatusAvailable},
	}
	for i := range copies {
		require.NoError(t, repo.CreateBookInstance(ctx, &copies[i]))
	}

	instances, err := repo.ListBookInstances(ctx, InstanceFilter{BookID: &first.ID}, ListOptions{})
	require.NoError(t, err)
	assert.Len(t, instances, 2)

	available, err := repo.CountBookInstances(ctx, InstanceFilter{Status: db.StatusAvailable})
	require.NoError(t, err)
	assert.Equal(t, int64(2), available)

	available, err = repo.CountBookInstances(ctx, InstanceFilter{BookID: &first.ID, Status: db.StatusAvailable})
	require.NoError(t, err)
	assert.Equal(t, int64(1), available)
}
