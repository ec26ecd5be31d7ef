package store

import (
	"testing"

	"github.com/kubeadapt/gpuwatch-agent/pkg/model"
)

func TestNewStore(t *testing.T) {
	s := NewStore()

	if s.Processes == nil {
		t.Fatal("Processes store is nil")
	}
	if s.PodMemory == nil {
		t.Fatal("PodMemory store is nil")
	}
}

func TestStore_ItemCounts(t *testing.T) {
	s := NewStore()

	s.Processes.Replace(map[string]model.WorkloadMetadata{
		"123": {Namespace: "default", Name: "trainer-abc"},
		"456": {Namespace: "ml", Name: "infer-def"},
	})
	s.PodMemory.Set("default/trainer-abc", model.PodMemory{
		Namespace:       "default",
		Name:            "trainer-abc",
		WorkingSetBytes: 1 << 30,
	})

	counts := s.ItemCounts()
	if counts["processes"] != 2 {
		t.Errorf("processes count = %d, want 2", counts["processes"])
	}
	if counts["pod_memory"] != 1 {
		t.Errorf("pod_memory count = %d, want 1", counts["pod_memory"])
	}
}

func TestStore_LastUpdatedTimes(t *testing.T) {
	s := NewStore()

	times := s.LastUpdatedTimes()
	if _, ok := times["processes"]; !ok {
		t.Error("missing processes timestamp")
	}
	if _, ok := times["pod_memory"]; !ok {
		t.Error("missing pod_memory timestamp")
	}
}
