package storage

import "testing"

func TestMemoryStoreConformance(t *testing.T) {
	runConformance(t, NewMemoryStore())
}
