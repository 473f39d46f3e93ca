package config

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "LEADLINE"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "LEADLINE_DB_DSN"
	EnvDBHost = "LEADLINE_DB_HOST"
	EnvDBUser = "LEADLINE_DB_USER"
	EnvDBName = "LEADLINE_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
