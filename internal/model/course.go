package model

import "time"

// Course курс с привязанной геозоной аудитории
type Course struct {
	ID          string    `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	TeacherID   string    `json:"teacher_id"`
	ZoneLat     float64   `json:"zone_lat"`
	ZoneLng     float64   `json:"zone_lng"`
	ZoneRadiusM float64   `json:"zone_radius_m"`
	CreatedAt   time.Time `json:"created_at"`
}

// Zone возвращает геозону курса
func (c *Course) Zone() Zone {
	return Zone{Lat: c.ZoneLat, Lng: c.ZoneLng, RadiusM: c.ZoneRadiusM}
}

// Zone круговая геозона: центр и радиус в метрах
type Zone struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	RadiusM float64 `json:"radius_m"`
}
