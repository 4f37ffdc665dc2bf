package db

import (
	"fmt"
	"html"
	"strings"
)

// maxDisplayGenres caps how many genre names DisplayGenres joins
const maxDisplayGenres = 3

// NoBookPlaceholder stands in for the title of a copy whose book was deleted
const NoBookPlaceholder = "(no book)"

// Verbose names used by listing pages
const (
	BookVerboseName       = "Book"
	BookVerboseNamePlural = "Books"
)

// Field labels and help texts shown next to form inputs
var (
	FieldLabels = map[string]string{
		"isbn":          "ISBN",
		"date_of_death": "Died",
		"image":         "Image",
		"status":        "Status",
	}
	HelpTexts = map[string]string{
		"summary":     "Enter a brief description of the book",
		"isbn":        `13 Character <a href="https://www.isbn-international.org/content/what-isbn">ISBN number</a>`,
		"genre":       "Select a genre for this book",
		"genre_name":  "Enter a book genre (e.g. Science Fiction)",
		"language":    "Enter the book's natural language (e.g. English, French, Japanese etc.)",
		"instance_id": "Unique ID for this particular book across whole library",
		"status":      "Book availability",
	}
)

// DisplayGenres joins the names of the first three genres of a book.
// Genres must be preloaded; an empty string is returned when there are none.
func DisplayGenres(b *Book) string {
	if b == nil {
		return ""
	}
	genres := b.Genres
	if len(genres) > maxDisplayGenres {
		genres = genres[:maxDisplayGenres]
	}
	names := make([]string, len(genres))
	for i, g := range genres {
		names[i] = g.Name
	}
	return strings.Join(names, ", ")
}

// Describe renders "<id> - <title>", falling back to NoBookPlaceholder when
// the copy no longer references a book or the book was not loaded.
func Describe(bi *BookInstance) string {
	title := NoBookPlaceholder
	if bi.Book != nil {
		title = bi.Book.Title
	}
	return fmt.Sprintf("%s - %s", bi.ID, title)
}

// Glyph is the colored availability marker of a copy
type Glyph struct {
	Available bool
	Color     string
}

// HTML renders the glyph as an inline span
func (g Glyph) HTML() string {
	return fmt.Sprintf(`<span style="color:%s; font-size:18px;">📗</span>`, g.Color)
}

// StatusGlyph is green only when the copy is available
func StatusGlyph(bi *BookInstance) Glyph {
	if bi.Status == StatusAvailable {
		return Glyph{Available: true, Color: "green"}
	}
	return Glyph{Available: false, Color: "red"}
}

// ImageURL resolves the stored image reference against mediaURL.
// Absolute references are returned unchanged.
func ImageURL(bi *BookInstance, mediaURL string) string {
	if bi.ImageRef == "" {
		return ""
	}
	if strings.HasPrefix(bi.ImageRef, "http://") || strings.HasPrefix(bi.ImageRef, "https://") {
		return bi.ImageRef
	}
	return strings.TrimRight(mediaURL, "/") + "/" + strings.TrimLeft(bi.ImageRef, "/")
}

// Thumbnail returns an 80px wide img tag for the copy, or "" without an image
func Thumbnail(bi *BookInstance, mediaURL string) string {
	url := ImageURL(bi, mediaURL)
	if url == "" {
		return ""
	}
	return fmt.Sprintf(`<img src="%s" width="80" />`, html.EscapeString(url))
}
