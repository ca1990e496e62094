package main

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	BadgerFilepath string `envconfig:"BADGER_FILEPATH" default:"data/activity"`
	Limit          int    `envconfig:"INSPECT_LIMIT" default:"50"`
	// INSPECT_COLOURS colours the outcome column
	Colours bool `envconfig:"INSPECT_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
