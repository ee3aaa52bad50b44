package config

// EnvPrefix is intentionally empty: every variable carries the explicit
// TLINK_ prefix in its envconfig tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

const (
	EnvDBDSN  = "TLINK_DB_DSN"
	EnvDBHost = "TLINK_DB_HOST"
	EnvDBUser = "TLINK_DB_USER"
	EnvDBName = "TLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
