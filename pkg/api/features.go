package api

import "time"

// FeaturesResponse ответ на GET /api/v1/features
type FeaturesResponse struct {
	Flags map[string]bool `json:"flags"` // имя флага -> включен ли для пользователя
}

// FeatureResponse ответ на GET /api/v1/features/{name}
type FeatureResponse struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

// FlagPatchRequest тело PUT /api/v1/admin/flags/{name}
// Отсутствующие поля не меняются
type FlagPatchRequest struct {
	Enabled           *bool   `json:"enabled,omitempty"`
	RolloutPercentage *int    `json:"rollout_percentage,omitempty"`
	Environment       *string `json:"environment,omitempty"`
	Description       *string `json:"description,omitempty"`
}

// Flag представление флага в админском API
type Flag struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Environment       string    `json:"environment"`
	UpdatedBy         string    `json:"updated_by"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	RolloutPercentage int       `json:"rollout_percentage"`
	Enabled           bool      `json:"enabled"`
}

// FlagListResponse ответ на GET /api/v1/admin/flags
type FlagListResponse struct {
	Flags []Flag `json:"flags"`
}

// OverrideRequest тело PUT /api/v1/admin/flags/{name}/overrides/{userID}
type OverrideRequest struct {
	Enabled *bool `json:"enabled"`
}

// Override представление override в админском API
type Override struct {
	UserID    string    `json:"user_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Enabled   bool      `json:"enabled"`
}

// OverrideListResponse ответ на GET /api/v1/admin/flags/{name}/overrides
type OverrideListResponse struct {
	Flag      string     `json:"flag"`
	Overrides []Override `json:"overrides"`
}

// FlagStatsResponse ответ на GET /api/v1/admin/flags/{name}/stats
type FlagStatsResponse struct {
	Flag    string    `json:"flag"`
	Since   time.Time `json:"since"`
	Total   int64     `json:"total"`
	Enabled int64     `json:"enabled"`
}

// AuditEntry запись журнала изменений
type AuditEntry struct {
	ID        string    `json:"id"`
	ActorID   string    `json:"actor_id"`
	Action    string    `json:"action"`
	Details   string    `json:"details,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditResponse ответ на GET /api/v1/admin/flags/{name}/audit
type AuditResponse struct {
	Flag    string       `json:"flag"`
	Entries []AuditEntry `json:"entries"`
}
