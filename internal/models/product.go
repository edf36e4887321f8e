package models

import (
	"github.com/shopspring/decimal"

	"catalog/internal/upload"
)

// Product — таблица products. Image хранит имя файла в каталоге загрузок.
type Product struct {
	Base
	Name        string          `gorm:"not null" json:"name"`
	Price       decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Description string          `gorm:"type:text" json:"description"`
	Image       upload.Image    `gorm:"type:varchar(255)" json:"image"`
}

var _ upload.ImageHolder = (*Product)(nil)

func (p *Product) GetImage() upload.Image    { return p.Image }
func (p *Product) SetImage(img upload.Image) { p.Image = img }

// ImageURL — публичный путь картинки, "" если её нет
func (p *Product) ImageURL() string {
	if name := p.Image.Filename(); name != "" {
		return "/uploads/" + name
	}
	return ""
}
