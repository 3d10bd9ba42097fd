package db

import (
	"testing"
	"testing/fstest"
)

func TestMigrationNamesSortedSQLOnly(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_outbox.sql":   {Data: []byte("select 2")},
		"0001_bookings.sql": {Data: []byte("select 1")},
		"README.md":         {Data: []byte("docs")},
		"nested/0003.sql":   {Data: []byte("select 3")},
	}
	names, err := migrationNames(fsys)
	if err != nil {
		t.Fatalf("migrationNames: %v", err)
	}
	if len(names) != 2 || names[0] != "0001_bookings.sql" || names[1] != "0002_outbox.sql" {
		t.Fatalf("names = %v", names)
	}
}
