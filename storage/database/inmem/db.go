package inmemdb

import (
	"sync"

	"github.com/trezcool/appgen/core/build"
)

type (
	DB struct {
		job *jobTable
	}

	jobTable struct {
		mutex sync.RWMutex
		table map[string]*build.Job
	}
)

func Open() (*DB, error) {
	db := &DB{
		job: &jobTable{table: make(map[string]*build.Job)},
	}
	return db, nil
}
