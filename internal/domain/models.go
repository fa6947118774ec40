// Package domain defines the persistence models for books and the request
// idempotency records that guard book creation. These types are mapped with
// GORM and form the core data layer of the service.
package domain

import "time"

// Book is a single catalogue record.
//
// Fields:
//   - ID: auto-increment primary key assigned by the store; zero until created.
//   - Title: required at creation time; uniqueness is checked by the service,
//     not by a database constraint.
//   - Author: required at creation time.
//   - NumberOfPages: free-form page count, not validated.
//   - PublishedDate: optional; reset to "now" whenever an existing book is updated.
//   - CreatedAt / UpdatedAt: bookkeeping managed by GORM, never serialized.
//
// The JSON field names are part of the public wire contract.
type Book struct {
	ID            uint64     `json:"id"            gorm:"primaryKey;autoIncrement"`
	Title         string     `json:"title"         gorm:"type:varchar(255);index:idx_books_title"`
	Author        string     `json:"author"        gorm:"type:varchar(255)"`
	NumberOfPages int        `json:"numberOfPages"`
	PublishedDate *time.Time `json:"publishedDate"`
	CreatedAt     time.Time  `json:"-"`
	UpdatedAt     time.Time  `json:"-"`
}

// TableName returns the database table name for Book.
func (Book) TableName() string { return "books" }
