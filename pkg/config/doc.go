// Package config loads configuration structs from environment variables.
//
// It wraps github.com/caarlos0/env/v11 for tag-driven parsing and
// github.com/joho/godotenv for an optional .env file, and runs a Validate
// method when the struct has one.
//
//	type Config struct {
//		SecretKey string        `env:"STRIPE_SECRET_KEY,required"`
//		Timeout   time.Duration `env:"BILLING_PROVIDER_TIMEOUT" envDefault:"10s"`
//	}
//
//	var cfg Config
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Every service package owns its Config struct; the binary loads each of them
// at startup and fails fast on the first error.
package config
