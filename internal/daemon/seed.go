package daemon

import (
	"errors"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/gendoc-app/gendoc/internal/config"
	"github.com/gendoc-app/gendoc/internal/db/controller/setting"
	"github.com/gendoc-app/gendoc/internal/web/handler/settings"
)

// seedSettings ensures the runtime-editable settings rows exist. User
// accounts are not seeded; the install wizard creates the first
// administrator.
func seedSettings(cfg *config.Config, db *gorm.DB) {
	if _, err := setting.Get(db, settings.SettingSiteTitle); err == nil {
		return
	} else if !errors.Is(err, setting.ErrSettingNotFound) {
		log.Error().Err(err).Msg("failed to read settings")
		return
	}

	if _, err := setting.Create(db, settings.SettingSiteTitle, []byte(cfg.Title)); err != nil {
		log.Error().Err(err).Msg("failed to seed settings")
	}
}
