package cloud

import "testing"

func TestGetRecommendedSize_PicksCheapestMeetingFloor(t *testing.T) {
	sizes := []Size{
		{ID: "tiny", VCPUs: 1, MemoryGiB: 0.5, DiskGiB: 20, HourlyPrice: 0.005, Regions: []string{"nbg1"}},
		{ID: "small", VCPUs: 1, MemoryGiB: 2, DiskGiB: 20, HourlyPrice: 0.01, Regions: []string{"nbg1"}},
		{ID: "medium", VCPUs: 2, MemoryGiB: 4, DiskGiB: 40, HourlyPrice: 0.02, Regions: []string{"nbg1"}},
	}

	got, ok := GetRecommendedSize(sizes, "nbg1")
	if !ok {
		t.Fatal("expected a recommended size")
	}
	if got.ID != "small" {
		t.Errorf("recommended = %s, want small (tiny fails the 1 GiB memory floor)", got.ID)
	}
}

func TestGetRecommendedSize_SkipsSizesNotOfferedInRegion(t *testing.T) {
	sizes := []Size{
		{ID: "cheap-elsewhere", VCPUs: 1, MemoryGiB: 2, DiskGiB: 20, HourlyPrice: 0.001, Regions: []string{"fsn1"}},
		{ID: "available-here", VCPUs: 1, MemoryGiB: 2, DiskGiB: 20, HourlyPrice: 0.01, Regions: []string{"nbg1"}},
	}

	got, ok := GetRecommendedSize(sizes, "nbg1")
	if !ok || got.ID != "available-here" {
		t.Errorf("recommended = %+v, want available-here", got)
	}
}

func TestGetRecommendedSize_NoneMeetFloor(t *testing.T) {
	sizes := []Size{
		{ID: "tiny", VCPUs: 1, MemoryGiB: 0.5, DiskGiB: 10, Regions: []string{"nbg1"}},
	}
	if _, ok := GetRecommendedSize(sizes, "nbg1"); ok {
		t.Error("expected no recommendation when no size meets the floor")
	}
}
