package jobs

import (
	"encoding/json"
	"testing"

	"github.com/orionsky/obsdb-backend/internal/types"
)

func TestComputeBlindOffsetRelativeToCentroid(t *testing.T) {
	// Base at (1000, 2000), second target at (3000, 0): centroid is
	// (2000, 1000), so the base sits at (-1000, +1000) relative to it.
	targets := []*types.Target{
		{RA: 1000, Dec: 2000},
		{RA: 3000, Dec: 0},
	}

	payload, err := computeBlindOffset(targets)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	var offset map[string]int64
	if err := json.Unmarshal(payload, &offset); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if offset["delta_ra_uas"] != -1000 {
		t.Errorf("delta_ra_uas = %d; want -1000", offset["delta_ra_uas"])
	}
	if offset["delta_dec_uas"] != 1000 {
		t.Errorf("delta_dec_uas = %d; want 1000", offset["delta_dec_uas"])
	}
}

func TestComputeBlindOffsetSingleTargetIsZero(t *testing.T) {
	payload, err := computeBlindOffset([]*types.Target{{RA: 123456, Dec: -654321}})
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	var offset map[string]int64
	if err := json.Unmarshal(payload, &offset); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if offset["delta_ra_uas"] != 0 || offset["delta_dec_uas"] != 0 {
		t.Errorf("offset = %v; want zero for a single-target asterism", offset)
	}
}

func TestComputeBlindOffsetEmptyAsterism(t *testing.T) {
	if _, err := computeBlindOffset(nil); err == nil {
		t.Fatal("expected error for empty asterism")
	}
}
