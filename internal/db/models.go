package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Column bounds shared by the schema tags and repository validation.
const (
	MaxTitleLength    = 200
	MaxSummaryLength  = 1000
	MaxISBNLength     = 13
	MaxGenreLength    = 180
	MaxNameLength     = 100
	MaxLanguageLength = 200
	MaxImprintLength  = 200
	MaxImageRefLength = 100
	DefaultLoanStatus = StatusMaintenance
)

// Author represents an author of one or more books
type Author struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	FirstName   string     `gorm:"type:varchar(100);not null;index:idx_authors_name,priority:2" json:"first_name"`
	LastName    string     `gorm:"type:varchar(100);not null;index:idx_authors_name,priority:1" json:"last_name"`
	DateOfBirth *time.Time `gorm:"type:date" json:"date_of_birth,omitempty"`
	DateOfDeath *time.Time `gorm:"type:date" json:"date_of_death,omitempty"`
}

// TableName specifies the table name for Author model
func (Author) TableName() string {
	return "authors"
}

// String renders the author as "last, first"
func (a Author) String() string {
	return a.LastName + ", " + a.FirstName
}

// BeforeSave keeps only the calendar date of the life dates
func (a *Author) BeforeSave(tx *gorm.DB) error {
	a.DateOfBirth = DateOf(a.DateOfBirth)
	a.DateOfDeath = DateOf(a.DateOfDeath)
	return nil
}

// Genre is a free-form book category such as "Science Fiction"
type Genre struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(180);not null" json:"name"`
}

// TableName specifies the table name for Genre model
func (Genre) TableName() string {
	return "genres"
}

func (g Genre) String() string {
	return g.Name
}

// Language is the natural language a book is written in
type Language struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"type:varchar(200);not null" json:"name"`
}

// TableName specifies the table name for Language model
func (Language) TableName() string {
	return "languages"
}

func (l Language) String() string {
	return l.Name
}

// Book represents a title in the catalog, not a specific copy of it
type Book struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Title      string    `gorm:"type:varchar(200);not null;index:idx_books_title" json:"title"`
	AuthorID   *uint     `gorm:"index:idx_books_author" json:"author_id,omitempty"`
	Author     *Author   `gorm:"constraint:OnDelete:SET NULL" json:"author,omitempty"`
	Summary    string    `gorm:"type:text" json:"summary,omitempty"`
	ISBN       string    `gorm:"column:isbn;type:varchar(13);not null" json:"isbn"`
	Genres     []Genre   `gorm:"many2many:book_genres;constraint:OnDelete:CASCADE" json:"genres,omitempty"`
	LanguageID *uint     `gorm:"index:idx_books_language" json:"language_id,omitempty"`
	Language   *Language `gorm:"constraint:OnDelete:SET NULL" json:"language,omitempty"`
}

// TableName specifies the table name for Book model
func (Book) TableName() string {
	return "books"
}

func (b Book) String() string {
	return b.Title
}

// BookInstance is one lendable physical copy of a Book
type BookInstance struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	BookID   *uint      `gorm:"index:idx_book_instances_book" json:"book_id,omitempty"`
	Book     *Book      `gorm:"constraint:OnDelete:SET NULL" json:"book,omitempty"`
	Imprint  string     `gorm:"type:varchar(200)" json:"imprint,omitempty"`
	DueBack  *time.Time `gorm:"type:date;index:idx_book_instances_due_back" json:"due_back,omitempty"`
	ImageRef string     `gorm:"type:varchar(100)" json:"image_ref,omitempty"`
	Status   LoanStatus `gorm:"type:varchar(1);not null;default:'m';index:idx_book_instances_status" json:"status"`
}

// TableName specifies the table name for BookInstance model
func (BookInstance) TableName() string {
	return "book_instances"
}

// String renders the copy as "<id> - <book title>"
func (bi BookInstance) String() string {
	return Describe(&bi)
}

// BeforeCreate assigns the copy identifier and default status
func (bi *BookInstance) BeforeCreate(tx *gorm.DB) error {
	if bi.ID == uuid.Nil {
		bi.ID = uuid.New()
	}
	if bi.Status == "" {
		bi.Status = DefaultLoanStatus
	}
	return nil
}

// BeforeSave keeps only the calendar date of the due date
func (bi *BookInstance) BeforeSave(tx *gorm.DB) error {
	bi.DueBack = DateOf(bi.DueBack)
	return nil
}

// Date builds a calendar date at midnight UTC
func Date(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

// DateOf drops the time of day, keeping the calendar date in UTC
func DateOf(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	y, m, d := t.Date()
	return Date(y, m, d)
}
