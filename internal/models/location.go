package models

import "github.com/google/uuid"

// CharacterLocation представляет текущее местоположение персонажа в кампании.
// Источник истины — удалённый gamemaster-сервис; локально хранится только
// read-through кеш. Stale = true означает, что значение получено из кеша
// после неудачного обращения к удалённому сервису.
type CharacterLocation struct {
	CampaignID  uuid.UUID `json:"campaign_id"`
	CharacterID uuid.UUID `json:"character_id"`
	Name        string    `json:"name"`
	Stale       bool      `json:"stale"`
}

// LocationSyncReport — результат массовой синхронизации локаций с удалённым
// сервисом. FailedCharacterIDs заполняется из ответа удалённого сервиса.
type LocationSyncReport struct {
	UpdatedCount       int         `json:"updated_count"`
	FailedCharacterIDs []uuid.UUID `json:"failed_character_ids,omitempty"`
}
