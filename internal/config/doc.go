// Package config loads the application configuration.
//
// Configuration is a single YAML file. ${VAR} and ${VAR:-default}
// references are substituted from the environment before decoding, unknown
// keys are rejected, defaults are applied and the result is validated with
// struct tags:
//
//	cfg, err := config.Load("configs/integrationgw.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Values holding credentials (redis.password, documentStore.postgres.dsn,
// vault.token) may be secret references resolved later by package secrets.
package config
