// loads up the .env files to be used internally by Berserk.

package config

import (
	"fmt"
	"os"

	"Berserk/internal/errors"

	"github.com/asaskevich/govalidator"
	"github.com/joho/godotenv"
)

// Connection parameters of the Berserk client, read from the environment.
type Config struct {
	// Deployment environment name, DEV or PROD.
	Env string `valid:"required,in(DEV|PROD)~ENV:Must be DEV or PROD"`
	// Base URL of the REST API, e.g. http://localhost:8000
	BaseURL string `valid:"required,requrl~BASE_URL:Must be a valid URL"`
	// Base URL of the websocket endpoints, e.g. ws://localhost:8000
	SocketURL string `valid:"required~SOCKET_URL:Socket base URL is mandatory"`
}

// uses go package: godotenv to load up development enviroment variables
func LoadDevConfig() {
	err := godotenv.Load("config/dev.env")
	if err != nil {
		fmt.Println(err.Error())
		os.Exit(-1)
	}
}

// FromEnv builds and validates a Config out of the current environment.
// Call after the proper .env file has been loaded.
func FromEnv() (Config, error) {
	cfg := Config{
		Env:       os.Getenv("ENV"),
		BaseURL:   os.Getenv("BASE_URL"),
		SocketURL: os.Getenv("SOCKET_URL"),
	}
	_, valerr := govalidator.ValidateStruct(cfg)
	if valerr != nil {
		verrs := valerr.(govalidator.Errors).Errors()
		return cfg, errors.GenerateValidationError(verrs)
	}
	return cfg, nil
}
