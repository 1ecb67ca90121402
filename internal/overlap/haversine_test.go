package overlap

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineZeroDistance(t *testing.T) {
	assert.InDelta(t, 0, Haversine(37.7764, -122.4231, 37.7764, -122.4231), 1e-9)
}

func TestHaversineSymmetry(t *testing.T) {
	ab := Haversine(40.7128, -74.0060, 34.0522, -118.2437)
	ba := Haversine(34.0522, -118.2437, 40.7128, -74.0060)
	assert.InDelta(t, ab, ba, 1e-9)
}

func TestHaversineNewYorkToLosAngeles(t *testing.T) {
	dist := Haversine(40.7128, -74.0060, 34.0522, -118.2437)
	assert.InDelta(t, 3936, dist, 3936*0.01)
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 2.3, round1(2.31043))
	assert.Equal(t, 2.4, round1(2.36))
	assert.Equal(t, 0.0, round1(0.04))
}
