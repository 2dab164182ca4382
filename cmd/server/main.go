package main

import (
	"context"
	"log"

	"github.com/dmitrijs2005/docstore/internal/documents"
	"github.com/dmitrijs2005/docstore/internal/schema"
	"github.com/dmitrijs2005/docstore/internal/server"
	"github.com/dmitrijs2005/docstore/internal/server/config"
)

// kinds is the registry of document kinds this server manages. Deployments
// extend it with their own schemas.
var kinds = []documents.Kind{
	{
		Name: "notes",
		Definition: &schema.Definition{
			Kind: schema.KindObject,
			Properties: map[string]*schema.Definition{
				"title": {Kind: schema.KindString},
				"body":  {Kind: schema.KindString, IsMultilingual: true},
				"pinned": {
					Kind:      schema.KindBool,
					Forbidden: &schema.PersonaRule{Personas: []string{"guest"}},
				},
			},
		},
		TrackHistory: true,
	},
}

func main() {

	ctx := context.Background()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Printf("%v", err)
		return
	}

	for _, k := range kinds {
		if err := k.Definition.Validate(); err != nil {
			log.Printf("kind %s: %v", k.Name, err)
			return
		}
	}

	app, err := server.NewApp(ctx, cfg, kinds)
	if err != nil {
		log.Printf("%v", err)
		return
	}

	if err := app.Run(ctx); err != nil {
		log.Printf("%v", err)
	}
}
