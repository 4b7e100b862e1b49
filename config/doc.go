// Package config loads nodeflow configuration with Viper.
//
// Values come from a YAML file, a .env file loaded with godotenv, and the
// process environment, in increasing order of precedence. Environment
// variables map onto nested keys by splitting on underscores, so
// NODEFLOW_HTTP_PORT sets http.port when the NODEFLOW prefix is in use.
//
// # Usage
//
//	cfg, err := config.Load(config.WithConfigFile("config.yml"))
//
// Services that need extra sections embed ServiceConfig and call
// LoadConfig directly.
package config
