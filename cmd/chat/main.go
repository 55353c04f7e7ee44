package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/chatcore/internal/client/cli"
	"github.com/dmitrijs2005/chatcore/internal/server/config"
)

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	app, err := cli.NewApp(cfg)

	if err != nil {
		log.Fatalf("%v", err)
		return
	}

	app.Run(ctx)

}
