package repo

import (
	"context"
	"strings"
	"time"

	"github.com/locallibrary/catalog/internal/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entity names used in errors, metrics and events
const (
	EntityAuthor       = "author"
	EntityGenre        = "genre"
	EntityLanguage     = "language"
	EntityBook         = "book"
	EntityBookInstance = "book_instance"
)

// CatalogRepository handles create, read, update, delete and list access
// to every catalog entity. Deletes never cascade to dependent records:
// references to the removed row are cleared instead.
type CatalogRepository struct {
	db        *db.DB
	log       *zap.Logger
	metrics   *Metrics
	publisher EventPublisher
}

// Option customizes a CatalogRepository
type Option func(*CatalogRepository)

// WithMetrics records operation metrics
func WithMetrics(m *Metrics) Option {
	return func(r *CatalogRepository) {
		r.metrics = m
	}
}

// WithPublisher announces committed mutations
func WithPublisher(p EventPublisher) Option {
	return func(r *CatalogRepository) {
		if p != nil {
			r.publisher = p
		}
	}
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(database *db.DB, logger *zap.Logger, opts ...Option) *CatalogRepository {
	r := &CatalogRepository{
		db:        database,
		log:       logger,
		publisher: nopPublisher{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ListOptions controls ordering and paging of list operations.
// OrderBy is a comma separated list of fields, "-" prefixed for descending;
// empty means the entity's default order. PageSize 0 returns every record.
type ListOptions struct {
	OrderBy  string
	Page     int
	PageSize int
}

// Stats summarizes catalog contents for the index page
type Stats struct {
	Books              int64
	Authors            int64
	Genres             int64
	Instances          int64
	AvailableInstances int64
}

// GetStats counts records per entity
func (r *CatalogRepository) GetStats(ctx context.Context) (stats Stats, err error) {
	start := time.Now()
	defer func() { r.metrics.observe("catalog", "stats", start, err) }()

	q := r.db.WithContext(ctx)
	counts := []struct {
		model interface{}
		dest  *int64
	}{
		{&db.Book{}, &stats.Books},
		{&db.Author{}, &stats.Authors},
		{&db.Genre{}, &stats.Genres},
		{&db.BookInstance{}, &stats.Instances},
	}
	for _, c := range counts {
		if err := q.Model(c.model).Count(c.dest).Error; err != nil {
			r.log.Error("Failed to count records", zap.Error(err))
			return Stats{}, storeError("count records", err)
		}
	}
	if err := q.Model(&db.BookInstance{}).Where("status = ?", db.StatusAvailable).Count(&stats.AvailableInstances).Error; err != nil {
		r.log.Error("Failed to count available copies", zap.Error(err))
		return Stats{}, storeError("count available copies", err)
	}
	return stats, nil
}

// apply orders and pages a list query
func (o ListOptions) apply(q *gorm.DB, entity string, columns map[string]string, defaultOrder []string) (*gorm.DB, error) {
	order, err := orderClause(entity, columns, defaultOrder, o.OrderBy)
	if err != nil {
		return nil, err
	}
	for _, clause := range order {
		q = q.Order(clause)
	}
	if o.PageSize > 0 {
		page := o.Page
		if page < 1 {
			page = 1
		}
		q = q.Offset((page - 1) * o.PageSize).Limit(o.PageSize)
	}
	return q, nil
}

// orderClause maps requested sort fields onto allow-listed columns
func orderClause(entity string, columns map[string]string, defaultOrder []string, orderBy string) ([]string, error) {
	if strings.TrimSpace(orderBy) == "" {
		return defaultOrder, nil
	}

	v := newValidator(entity)
	var order []string
	for _, field := range strings.Split(orderBy, ",") {
		field = strings.TrimSpace(field)
		direction := "ASC"
		if strings.HasPrefix(field, "-") {
			direction = "DESC"
			field = field[1:]
		}
		column, ok := columns[field]
		if !ok {
			v.addError("order_by", "unknown field "+field)
			continue
		}
		order = append(order, column+" "+direction)
	}
	if err := v.result(); err != nil {
		return nil, err
	}
	return order, nil
}

// containsPattern builds a case-insensitive LIKE pattern
func containsPattern(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + strings.ToLower(replacer.Replace(s)) + "%"
}

func (r *CatalogRepository) publishCreated(ctx context.Context, entity, id string, payload map[string]interface{}) {
	if err := r.publisher.PublishCreated(ctx, entity, id, payload); err != nil {
		r.log.Warn("Failed to publish created event", zap.String("entity", entity), zap.String("id", id), zap.Error(err))
	}
}

func (r *CatalogRepository) publishUpdated(ctx context.Context, entity, id string, payload map[string]interface{}) {
	if err := r.publisher.PublishUpdated(ctx, entity, id, payload); err != nil {
		r.log.Warn("Failed to publish updated event", zap.String("entity", entity), zap.String("id", id), zap.Error(err))
	}
}

func (r *CatalogRepository) publishDeleted(ctx context.Context, entity, id string, payload map[string]interface{}) {
	if err := r.publisher.PublishDeleted(ctx, entity, id, payload); err != nil {
		r.log.Warn("Failed to publish deleted event", zap.String("entity", entity), zap.String("id", id), zap.Error(err))
	}
}
