package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/docstore/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   MongoDB connection URI (e.g., "mongodb://127.0.0.1:27017")
//	-n string   database name
//	-l string   comma-separated language tags (e.g., "en,lv")
//	-s string   persona token HMAC secret key
//	-t int      persona token validity, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-n", "-l", "-s", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseURI, "d", config.DatabaseURI, "database URI")
	fs.StringVar(&config.DatabaseName, "n", config.DatabaseName, "database name")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	languages := fs.String("l", strings.Join(config.Languages, ","), "accepted language tags, comma-separated")
	tokenValidityDuration := fs.Int("t", int(config.TokenValidityDuration.Minutes()), "token_validity_duration (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *languages != "" {
		config.Languages = strings.Split(*languages, ",")
	}
	config.TokenValidityDuration = time.Duration(*tokenValidityDuration) * time.Minute
}
