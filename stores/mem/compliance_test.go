package mem_test

import (
	"testing"

	"github.com/corvusdb/escore/internal/storetest"
	"github.com/corvusdb/escore/stores/mem"
)

func TestMemComplianceSuite(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Providers {
		store := mem.New()
		return storetest.Providers{Events: store.Events, Contexts: store.Contexts, Snapshots: store.Snapshots}
	})
}
