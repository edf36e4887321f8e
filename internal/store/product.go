package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"catalog/internal/models"
)

var ErrProductNotFound = errors.New("product not found")

// ProductStore persists products through gorm. Image files follow the rows
// through the callbacks registered by upload.Plugin.
type ProductStore struct {
	db *gorm.DB
}

func NewProductStore(db *gorm.DB) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) List(ctx context.Context) ([]models.Product, error) {
	var items []models.Product
	if err := s.db.WithContext(ctx).Order("id desc").Find(&items).Error; err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return items, nil
}

func (s *ProductStore) Find(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find product %d", id)
	}
	return &p, nil
}

func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	return errors.Wrap(s.db.WithContext(ctx).Create(p).Error, "create product")
}

// Update writes every column of p. An Empty image keeps the stored one.
func (s *ProductStore) Update(ctx context.Context, p *models.Product) error {
	res := s.db.WithContext(ctx).Model(p).Select("*").Omit("created_at").Updates(p)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "update product %d", p.ID)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

func (s *ProductStore) Delete(ctx context.Context, p *models.Product) error {
	res := s.db.WithContext(ctx).Delete(p)
	if res.Error != nil {
		return errors.Wrapf(res.Error, "delete product %d", p.ID)
	}
	if res.RowsAffected == 0 {
		return ErrProductNotFound
	}
	return nil
}

// Ping checks the database connection.
func (s *ProductStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
