package postgres

import (
	"errors"

	"github.com/lib/pq"
)

// PostgreSQLのエラーコード
const (
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeExclusionViolation  = "23P01"
	codeInvalidText         = "22P02"
)

var errTxRequired = errors.New("PostgreSQLのトランザクションが必要です")

func pqCode(err error) string {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return string(pgErr.Code)
	}
	return ""
}
