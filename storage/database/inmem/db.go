// Package inmemdb keeps the audit journal in memory, for development and tests.
package inmemdb

import (
	"sync"

	"github.com/trezcool/registrar/core/audit"
)

type (
	DB struct {
		audit *auditTable
	}

	auditTable struct {
		sync.RWMutex
		rows []audit.Entry
	}
)

func Open() *DB {
	return &DB{audit: new(auditTable)}
}
