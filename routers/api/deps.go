package api

import (
	"BlockReel-server/logger"
	"BlockReel-server/service"

	"gorm.io/gorm"
)

var (
	db      *gorm.DB
	log     *logger.Logger
	storage *service.ObjectStorage
	voice   service.VoiceAdapter
	scripts service.ScriptGenerator
)

// Init wires the handler package to its dependencies. Must run before the
// router starts serving.
func Init(d *gorm.DB, l *logger.Logger, s *service.ObjectStorage, v service.VoiceAdapter, g service.ScriptGenerator) {
	db = d
	log = l.With("component", "api")
	storage = s
	voice = v
	scripts = g
}
