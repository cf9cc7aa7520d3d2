package models

import "time"

// Environment определяет окружение, в котором запущен сервис
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
	// EnvAll используется только во флагах: флаг активен в любом окружении
	EnvAll Environment = "all"
)

// FeatureFlag представляет feature flag
type FeatureFlag struct {
	Name              string      `json:"name"`               // уникальное имя флага
	Description       string      `json:"description"`        // описание для админки
	Environment       Environment `json:"environment"`        // целевое окружение
	UpdatedBy         string      `json:"updated_by"`         // кто последним менял флаг
	CreatedAt         time.Time   `json:"created_at"`         // время создания
	UpdatedAt         time.Time   `json:"updated_at"`         // время последнего обновления
	RolloutPercentage int         `json:"rollout_percentage"` // 0-100
	Enabled           bool        `json:"enabled"`            // глобальный kill switch
}

// FlagPatch описывает частичное обновление флага
// nil поля не меняются
type FlagPatch struct {
	Enabled           *bool        `json:"enabled,omitempty"`
	RolloutPercentage *int         `json:"rollout_percentage,omitempty"`
	Environment       *Environment `json:"environment,omitempty"`
	Description       *string      `json:"description,omitempty"`
}

// FlagOverride представляет персональное переопределение флага для пользователя
type FlagOverride struct {
	FlagName  string    `json:"flag_name"`
	UserID    string    `json:"user_id"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Enabled   bool      `json:"enabled"`
}

// FlagEvaluation представляет запись аналитики о вычислении флага
type FlagEvaluation struct {
	EvaluatedAt time.Time `json:"evaluated_at"`
	ID          string    `json:"id"`
	FlagName    string    `json:"flag_name"`
	UserID      string    `json:"user_id,omitempty"` // пустой для анонимных пользователей
	Reason      string    `json:"reason"`
	Enabled     bool      `json:"enabled"`
}

// EvaluationStats агрегированная статистика вычислений флага
type EvaluationStats struct {
	FlagName string `json:"flag_name"`
	Total    int64  `json:"total"`
	Enabled  int64  `json:"enabled"`
}

// AuditAction тип административного действия
type AuditAction string

const (
	AuditFlagUpsert     AuditAction = "flag_upsert"
	AuditOverrideSet    AuditAction = "override_set"
	AuditOverrideRemove AuditAction = "override_remove"
)

// AuditEntry запись журнала административных изменений
type AuditEntry struct {
	CreatedAt time.Time   `json:"created_at"`
	ID        string      `json:"id"`
	FlagName  string      `json:"flag_name"`
	ActorID   string      `json:"actor_id"`
	Action    AuditAction `json:"action"`
	Details   string      `json:"details,omitempty"` // JSON с деталями изменения
}
