package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/attendance_service/internal/model"
	"github.com/Freeeeeet/attendance_service/internal/service"
)

func TestHaversineChecker(t *testing.T) {
	checker := service.NewHaversineChecker()
	zone := model.Zone{Lat: 28.6139, Lng: 77.2090, RadiusM: 200}

	tests := []struct {
		name   string
		pos    model.Position
		inside bool
	}{
		{"zone center", model.Position{Lat: 28.6139, Lng: 77.2090}, true},
		{"~110m north", model.Position{Lat: 28.6149, Lng: 77.2090}, true},
		{"~1.1km north", model.Position{Lat: 28.6239, Lng: 77.2090}, false},
		{"another city", model.Position{Lat: 55.7558, Lng: 37.6173}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inside, err := checker.Inside(context.Background(), tt.pos, zone)
			require.NoError(t, err)
			assert.Equal(t, tt.inside, inside)
		})
	}
}
