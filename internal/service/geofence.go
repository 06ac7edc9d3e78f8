package service

import (
	"context"
	"math"

	"github.com/Freeeeeet/attendance_service/internal/model"
)

// GeofenceChecker проверяет попадание позиции устройства в зону курса
type GeofenceChecker interface {
	Inside(ctx context.Context, pos model.Position, zone model.Zone) (bool, error)
}

// HaversineChecker геопроверка по расстоянию между позицией и центром зоны
type HaversineChecker struct{}

func NewHaversineChecker() *HaversineChecker {
	return &HaversineChecker{}
}

func (c *HaversineChecker) Inside(_ context.Context, pos model.Position, zone model.Zone) (bool, error) {
	distance := haversineMeters(pos.Lat, pos.Lng, zone.Lat, zone.Lng)
	return distance <= zone.RadiusM, nil
}

const earthRadiusKm = 6371

// haversineMeters расстояние между двумя точками на сфере в метрах
func haversineMeters(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := deg2rad(lat2 - lat1)
	dLng := deg2rad(lng2 - lng1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(deg2rad(lat1))*math.Cos(deg2rad(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c * 1000
}

func deg2rad(deg float64) float64 {
	return deg * (math.Pi / 180)
}
