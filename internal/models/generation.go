package models

import (
	"time"

	"github.com/google/uuid"
)

// GenerationKind определяет, для какой сущности запущена генерация контента.
// Совпадает с типом ENUM 'generation_kind' в БД.
type GenerationKind string

const (
	KindCampaignContent  GenerationKind = "campaign_content"
	KindCharacterContent GenerationKind = "character_content"
)

// IsValid проверяет, что kind является одним из известных значений.
func (k GenerationKind) IsValid() bool {
	return k == KindCampaignContent || k == KindCharacterContent
}

// GenerationStatus определяет возможные статусы задачи генерации контента.
// Совпадает с типом ENUM 'generation_status' в БД.
type GenerationStatus string

const (
	StatusNotStarted       GenerationStatus = "not_started"
	StatusInProgress       GenerationStatus = "in_progress"
	StatusCompleted        GenerationStatus = "completed"
	StatusFailed           GenerationStatus = "failed"
	StatusImagesInProgress GenerationStatus = "images_in_progress"
	StatusImagesCompleted  GenerationStatus = "images_completed"
)

// IsValid проверяет, что статус является одним из известных значений.
func (s GenerationStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusFailed,
		StatusImagesInProgress, StatusImagesCompleted:
		return true
	}
	return false
}

// IsTerminal возвращает true для статусов, из которых задача больше не двигается.
// Completed терминален только для задач без генерации изображений; переход
// Completed -> ImagesInProgress разрешён таблицей переходов.
func (s GenerationStatus) IsTerminal() bool {
	return s == StatusFailed || s == StatusImagesCompleted
}

// CanTransitionTo реализует таблицу допустимых переходов статусов.
// Любой другой переход должен быть отброшен вызывающей стороной (StateConflict).
func (s GenerationStatus) CanTransitionTo(next GenerationStatus) bool {
	switch s {
	case StatusNotStarted:
		return next == StatusInProgress || next == StatusFailed
	case StatusInProgress:
		return next == StatusCompleted || next == StatusFailed
	case StatusCompleted:
		return next == StatusImagesInProgress
	case StatusImagesInProgress:
		return next == StatusImagesCompleted || next == StatusFailed
	default:
		// Failed и ImagesCompleted терминальны: повторный запуск создаёт
		// новую строку задачи, а не переводит существующую.
		return false
	}
}

// CanAdvanceTo возвращает true, когда next достижим из s по рёбрам таблицы
// переходов. Поллер может наблюдать пропущенные промежуточные состояния
// (удалённый сервис прошёл несколько рёбер между опросами), поэтому сверка
// проверяет достижимость, а не только смежность: более новый терминальный
// статус всегда побеждает более старый нетерминальный.
func (s GenerationStatus) CanAdvanceTo(next GenerationStatus) bool {
	if s == next {
		return false
	}
	seen := map[GenerationStatus]bool{s: true}
	frontier := []GenerationStatus{s}
	for len(frontier) > 0 {
		var nextFrontier []GenerationStatus
		for _, cur := range frontier {
			for _, candidate := range []GenerationStatus{
				StatusInProgress, StatusCompleted, StatusFailed,
				StatusImagesInProgress, StatusImagesCompleted,
			} {
				if !cur.CanTransitionTo(candidate) || seen[candidate] {
					continue
				}
				if candidate == next {
					return true
				}
				seen[candidate] = true
				nextFrontier = append(nextFrontier, candidate)
			}
		}
		frontier = nextFrontier
	}
	return false
}

// GenerationJob представляет одну строку журнала генерации для субъекта
// (кампании или персонажа). Журнал append-only: текущее состояние субъекта —
// это последняя строка по created_at.
type GenerationJob struct {
	ID          uuid.UUID        `json:"id" db:"id"`
	SubjectID   uuid.UUID        `json:"subject_id" db:"subject_id"`
	Kind        GenerationKind   `json:"kind" db:"kind"`
	Status      GenerationStatus `json:"status" db:"status"`
	StartedAt   *time.Time       `json:"started_at,omitempty" db:"started_at"`   // Указатель, так как может быть NULL
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
	LastError   *string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}
