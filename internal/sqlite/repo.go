// Package sqlite implements the persistence surface over sqlx and the
// modernc sqlite driver.
package sqlite

import (
	"github.com/jmoiron/sqlx"

	"github.com/rpatel/newsbrief/internal/digest"
)

// Ensure Repo implements the Repository interface
var _ digest.Repository = (*Repo)(nil)

type Repo struct {
	db *sqlx.DB
}

func New(db *sqlx.DB) Repo {
	return Repo{db: db}
}

const (
	subscriberNamespace = "-sub"
	deliveryNamespace   = "-dlv"
)

// sqlite extended code for a UNIQUE constraint violation.
const codeConstraintUnique = 2067
