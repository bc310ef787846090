package postgres

import (
	"strings"
	"testing"
)

func TestPackageStatusUpdateIsCompareAndSwap(t *testing.T) {
	if !strings.Contains(updatePackageStatusQuery, "status = $4") {
		t.Fatalf("expected expected-status predicate in update query")
	}
	if !strings.Contains(updatePackageStatusQuery, "updated_at = $2") {
		t.Fatalf("expected updated_at bump in update query")
	}
}

func TestNewPackageStoreRequiresDB(t *testing.T) {
	if NewPackageStore(nil) != nil {
		t.Fatalf("expected nil store without db")
	}
}
