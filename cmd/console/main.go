package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/aivedhaguard/internal/client/config"
	"github.com/dmitrijs2005/aivedhaguard/internal/console"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("%v", err)
	}

	app, err := console.NewApp(ctx, cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if err := app.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
