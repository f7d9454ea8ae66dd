package postgres_test

import (
	"testing"

	"github.com/corvusdb/escore/internal/storetest"
)

func TestPostgresComplianceSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Providers {
		store := newStore(t)
		return storetest.Providers{Events: store.Events, Contexts: store.Contexts, Snapshots: store.Snapshots}
	})
}
