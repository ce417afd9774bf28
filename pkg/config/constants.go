package config

// EnvPrefix is empty because every variable carries the full PAYLINK_ name in its tag.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "PAYLINK_DB_DSN"
	EnvDBHost = "PAYLINK_DB_HOST"
	EnvDBUser = "PAYLINK_DB_USER"
	EnvDBName = "PAYLINK_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
