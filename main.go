package main

import (
	"context"
	"flag"
	"time"

	"BlockReel-server/config"
	"BlockReel-server/logger"
	"BlockReel-server/media"
	"BlockReel-server/models"
	"BlockReel-server/routers"
	"BlockReel-server/routers/api"
	"BlockReel-server/service"
)

func main() {
	seedVoices := flag.Bool("seed-voices", false, "import the provider voice catalog into the database and exit")
	flag.Parse()

	config.InitConfig()
	cfg := config.AppConfig

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	models.InitDB()
	log.Info("database initialized")

	service.InitQueue()
	log.Info("queue initialized")

	storage, err := service.InitMinIO(log)
	if err != nil {
		log.Fatal("object storage init failed", "error", err.Error())
	}

	pool := service.NewKeyPool(cfg.Google.APIKeys)
	clips := service.NewVeoClient("", cfg.Google.VideoModel, pool,
		time.Duration(cfg.Render.PollBudgetSec)*time.Second, log)
	voiceClient := service.NewVoiceClient(cfg.ElevenLabs.BaseURL, cfg.ElevenLabs.APIKey, log)
	scriptGen := service.NewGoogleScriptGenerator(cfg.Google.ScriptModel, pool, log)

	runner := media.NewRunner(cfg.FFmpeg.Bin, cfg.FFmpeg.Probe, cfg.FFmpeg.FontsDir, log)
	if err := runner.CheckAvailability(context.Background()); err != nil {
		log.Warn("ffmpeg unavailable, renders will fail until fixed", "error", err.Error())
	}

	if *seedVoices {
		if err := service.SeedVoices(context.Background(), models.GormDB, voiceClient, storage, log); err != nil {
			log.Fatal("voice seeding failed", "error", err.Error())
		}
		return
	}

	trim := media.TrimPolicy{
		Enabled:     true,
		LeadSeconds: cfg.Render.LeadTrimSeconds,
		TailSeconds: cfg.Render.TailTrimSeconds,
	}
	processor := service.NewProcessor(models.GormDB, storage, clips, voiceClient, runner, trim, log)
	processor.StartProcessor(5)

	api.Init(models.GormDB, log, storage, voiceClient, scriptGen)

	r := routers.InitRouter()
	log.Info("server starting", "port", cfg.Server.Port)
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatal("server stopped", "error", err.Error())
	}
}
