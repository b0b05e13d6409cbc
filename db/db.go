package db

import (
	"context"

	_ "github.com/glebarez/go-sqlite"
	"github.com/xxxsen/common/database"
	"github.com/xxxsen/common/database/sqlite"
)

var (
	journaldb database.IDatabase
)

func InitDB(f string) error {
	var err error
	if journaldb, err = sqlite.New(f); err != nil {
		return err
	}
	return nil
}

func GetClient(ctx context.Context) database.IDatabase {
	return journaldb
}
