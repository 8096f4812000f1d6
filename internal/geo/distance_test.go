package geo

import "testing"

func TestHaversineKm_ZeroDistance(t *testing.T) {
	d := HaversineKm(34.435, 35.836, 34.435, 35.836)
	if d < 0 || d > 1e-9 {
		t.Fatalf("zero distance expected ~0, got %v", d)
	}
}

func TestHaversineKm_KnownDistance(t *testing.T) {
	// Tripoli -> Beirut is roughly 66 km as the crow flies.
	d := HaversineKm(34.4367, 35.8497, 33.8938, 35.5018)
	if d < 60 || d > 75 {
		t.Fatalf("Tripoli-Beirut distance out of range: %v km", d)
	}
}

func TestQuantizeCoord(t *testing.T) {
	if got := QuantizeCoord(34.4356789); got != 34.4357 {
		t.Fatalf("QuantizeCoord(34.4356789) = %v, want 34.4357", got)
	}
}
