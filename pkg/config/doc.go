// Package config loads typed configuration structs from environment
// variables, with an optional .env file for local development.
//
// Each component declares its own Config struct with `env` tags and default
// values; Load parses the environment into it once per process:
//
//	type QueueConfig struct {
//		Capacity int `env:"EVENT_QUEUE_CAPACITY" envDefault:"1000"`
//	}
//
//	var cfg QueueConfig
//	if err := config.Load(&cfg); err != nil { ... }
package config
