package db

import (
	"gorm.io/gorm"
)

// Models lists every catalog entity in dependency order
func Models() []interface{} {
	return []interface{}{
		&Author{},
		&Genre{},
		&Language{},
		&Book{},
		&BookInstance{},
	}
}

// RunMigrations creates or updates the catalog schema
func RunMigrations(db *DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}

	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return createIndexes(db.DB)
}

func createIndexes(db *gorm.DB) error {
	indexes := []string{
		// Case-insensitive title and name lookups used by list filters
		`CREATE INDEX IF NOT EXISTS idx_books_title_lower ON books (lower(title))`,
		`CREATE INDEX IF NOT EXISTS idx_authors_last_name_lower ON authors (lower(last_name))`,

		// Reverse lookup for genre deletes and genre filters
		`CREATE INDEX IF NOT EXISTS idx_book_genres_genre ON book_genres (genre_id)`,

		// Available copies per book
		`CREATE INDEX IF NOT EXISTS idx_book_instances_available ON book_instances (book_id) WHERE status = 'a'`,
	}

	for _, indexSQL := range indexes {
		if err := db.Exec(indexSQL).Error; err != nil {
			return err
		}
	}

	return nil
}
