package config

// EnvPrefix is empty because every field carries its fully qualified variable name.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvAppEnv   = "AGASEKE_APP_ENV"
	EnvPort     = "AGASEKE_APP_PORT"
	EnvLogLevel = "AGASEKE_LOG_LEVEL"

	EnvDBDSN  = "AGASEKE_DB_DSN"
	EnvDBHost = "AGASEKE_DB_HOST"
	EnvDBUser = "AGASEKE_DB_USER"
	EnvDBName = "AGASEKE_DB_NAME"

	EnvRedisURL = "AGASEKE_REDIS_URL"

	EnvJWTSecret  = "AGASEKE_JWT_SECRET"
	EnvJWTIssuer  = "AGASEKE_JWT_ISSUER"
	EnvJWTExpMins = "AGASEKE_JWT_EXPIRATION_MINUTES"

	EnvIdentityTokenSecret = "AGASEKE_IDENTITY_TOKEN_SECRET"
	EnvIdentityTokenTTL    = "AGASEKE_IDENTITY_TOKEN_TTL"

	EnvOTPTTL             = "AGASEKE_OTP_TTL"
	EnvOTPGrantTTL        = "AGASEKE_OTP_GRANT_TTL"
	EnvRequireOTPGrant    = "AGASEKE_FEATURE_REQUIRE_OTP_GRANT"
	EnvSettlementFee      = "AGASEKE_SETTLEMENT_DELIVERY_FEE"
	EnvSettlementVendorPc = "AGASEKE_SETTLEMENT_VENDOR_SHARE"

	EnvGCPProjectID        = "AGASEKE_GCP_PROJECT_ID"
	EnvPubSubPurchaseTopic = "AGASEKE_PUBSUB_PURCHASE_TOPIC"
	EnvPubSubAnalyticsSub  = "AGASEKE_PUBSUB_ANALYTICS_SUBSCRIPTION"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
