package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/iudanet/aishu/internal/models"
)

// FlagNamePattern определяет допустимый формат имени флага
// Строчные латинские буквы, цифры, '_', '.', '-'; первый символ буква или цифра
// Длина: 2-64 символа
var FlagNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{1,63}$`)

const (
	// MinRolloutPercentage нижняя граница процента раскатки
	MinRolloutPercentage = 0
	// MaxRolloutPercentage верхняя граница процента раскатки
	MaxRolloutPercentage = 100
)

var (
	// ErrInvalidFlagName имя флага не соответствует формату
	ErrInvalidFlagName = errors.New("invalid flag name")
	// ErrRolloutOutOfRange процент раскатки вне диапазона [0,100]
	ErrRolloutOutOfRange = errors.New("rollout percentage out of range")
	// ErrUnknownEnvironment неизвестное окружение
	ErrUnknownEnvironment = errors.New("unknown environment")
)

// ValidateFlagName проверяет имя флага
func ValidateFlagName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidFlagName)
	}
	if !FlagNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q may only contain a-z, 0-9, '_', '.', '-' (2-64 chars)", ErrInvalidFlagName, name)
	}
	return nil
}

// ValidateRolloutPercentage отклоняет значения вне [0,100]
func ValidateRolloutPercentage(pct int) error {
	if pct < MinRolloutPercentage || pct > MaxRolloutPercentage {
		return fmt.Errorf("%w: %d", ErrRolloutOutOfRange, pct)
	}
	return nil
}

// ParseEnvironment разбирает имя окружения (регистр не важен)
// allowAll разрешает значение "all", допустимое только для флагов
func ParseEnvironment(s string, allowAll bool) (models.Environment, error) {
	env := models.Environment(strings.ToLower(strings.TrimSpace(s)))
	switch env {
	case models.EnvDevelopment, models.EnvStaging, models.EnvProduction:
		return env, nil
	case models.EnvAll:
		if allowAll {
			return env, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, s)
}
