package storage

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

var ErrNotFound = pgx.ErrNoRows

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
