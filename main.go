package main

import (
	"fmt"
	"log"

	"github.com/folio/portfolio/config"
	"github.com/folio/portfolio/routes"
	"github.com/folio/portfolio/storage"
	"github.com/folio/portfolio/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer utils.Logger.Sync() //nolint:errcheck

	store := storage.New(cfg.StorageRoot)
	if err := store.Init(); err != nil {
		utils.Sugar.Fatalf("storage init failed: %v", err)
	}

	if !cfg.MailConfigured() {
		utils.Sugar.Warn("EMAIL_USER/EMAIL_PASS not set, contact form submissions will fail")
	}

	r := routes.SetupRouter(cfg, store, utils.NewMailer(cfg))

	base := fmt.Sprintf("http://localhost:%s", cfg.AppPort)
	utils.Sugar.Infow("server starting",
		"url", base,
		"contact", base+"/api/contact",
		"upload", base+"/api/upload",
		"profile_upload", base+"/api/upload-profile",
		"admin", base+"/admin",
		"storage_root", store.Root(),
	)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
