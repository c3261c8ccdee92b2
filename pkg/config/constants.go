package config

const (
	EnvPrefix = "MCPMP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv   = "MCPMP_APP_ENV"
	EnvPort     = "MCPMP_APP_PORT"
	EnvLogLevel = "MCPMP_LOG_LEVEL"

	EnvDBDSN  = "MCPMP_DB_DSN"
	EnvDBHost = "MCPMP_DB_HOST"
	EnvDBUser = "MCPMP_DB_USER"
	EnvDBName = "MCPMP_DB_NAME"

	EnvRedisURL  = "MCPMP_REDIS_URL"
	EnvUseSQLite = "MCPMP_USE_SQLITE"

	EnvReservationTTL = "MCPMP_RESERVATION_TTL"
	EnvCandidateLimit = "MCPMP_MATCH_CANDIDATE_LIMIT"
	EnvCronInterval   = "MCPMP_CRON_INTERVAL"
	EnvCORSOrigins    = "MCPMP_CORS_ORIGINS"

	defaultSQLiteDSN = "file:mcpmp.db?cache=shared&_foreign_keys=on"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
