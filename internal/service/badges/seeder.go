package badges

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stakepact/stakepact/internal/models"
	"github.com/stakepact/stakepact/internal/repository"
	"github.com/stakepact/stakepact/pkg/logger"
)

// seedBadge is the YAML shape of one catalog entry.
type seedBadge struct {
	Name          string `yaml:"name"`
	Description   string `yaml:"description"`
	Category      string `yaml:"category"`
	Rarity        string `yaml:"rarity"`
	CriteriaType  string `yaml:"criteria_type"`
	CriteriaValue int    `yaml:"criteria_value"`
	RewardPoints  int    `yaml:"reward_points"`
	RewardFreezes int    `yaml:"reward_freezes"`
	Active        *bool  `yaml:"active"`
}

// SeedCatalog upserts the badge catalog from a YAML file. Run at startup;
// existing badges are updated by name.
func SeedCatalog(path string, badgeRepo *repository.BadgeRepository, log *logger.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read badge catalog: %w", err)
	}

	var seeds []seedBadge
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return fmt.Errorf("failed to parse badge catalog: %w", err)
	}

	for _, seed := range seeds {
		active := true
		if seed.Active != nil {
			active = *seed.Active
		}
		badge := &models.Badge{
			Name:          seed.Name,
			Description:   seed.Description,
			Category:      seed.Category,
			Rarity:        seed.Rarity,
			CriteriaType:  models.CriteriaType(seed.CriteriaType),
			CriteriaValue: seed.CriteriaValue,
			RewardPoints:  seed.RewardPoints,
			RewardFreezes: seed.RewardFreezes,
			Active:        active,
		}
		if err := badgeRepo.Upsert(badge); err != nil {
			return fmt.Errorf("failed to upsert badge %q: %w", seed.Name, err)
		}
	}

	log.Info().Int("badges", len(seeds)).Str("file", path).Msg("Badge catalog seeded")
	return nil
}
