package model

// FaceSample дескриптор лица, извлечённый клиентом из кадра.
// Формат совпадает с форматом хранимых шаблонов (128 float).
type FaceSample []float64

// FaceTemplate сохранённый биометрический шаблон зачисленного студента
type FaceTemplate []float64

// EnrolledIdentity студент с загруженными шаблонами лица.
// Принадлежит внешнему процессу зачисления, здесь только читается.
type EnrolledIdentity struct {
	IdentityID string         `json:"identity_id"`
	Name       string         `json:"name"`
	Templates  []FaceTemplate `json:"-"`
}
