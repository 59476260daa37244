// Package constants vends constants used in various components of pinfeed service, e.g., env var names
package constants

const (
	// -------------- env vars --------------
	// common
	EnvVerbose = "PINFEED_VERBOSE"
	// stores
	EnvCouchAddr      = "COUCHDB_ADDR"
	EnvCouchUser      = "COUCHDB_USER"
	EnvCouchPasswd    = "COUCHDB_PASSWD"
	EnvCouchPinDB     = "COUCHDB_PIN_DB"
	EnvCouchUserDB    = "COUCHDB_USER_DB"
	EnvRedisHost      = "REDIS_HOST"
	EnvRedisPort      = "REDIS_PORT"
	EnvRedisPasswd    = "REDIS_PASSWD"
	EnvRedisDB        = "REDIS_DB"
	EnvUploadDir      = "PINFEED_UPLOAD_DIR"
	EnvImageSizeMax   = "PINFEED_IMAGE_SIZE_MAX_BYTE"
	EnvReqBodySizeMax = "PINFEED_REQ_BODY_SIZE_MAX_BYTE"
	// server
	EnvAppHost     = "PINFEED_HOST"
	EnvAppPort     = "PINFEED_PORT"
	EnvFrontendURL = "PINFEED_FRONTEND_URL"
	EnvTokenSecret = "PINFEED_TOKEN_SECRET"
	EnvTokenTTL    = "PINFEED_TOKEN_TTL"
	// janitor
	EnvJanitorSweepFreq      = "PINFEED_JANITOR_SWEEP_FREQ"
	EnvJanitorGracePeriod    = "PINFEED_JANITOR_GRACE_PERIOD"
	EnvJanitorWIPCacheSize   = "PINFEED_JANITOR_WIP_CACHE_SIZE"
	EnvJanitorWIPCacheExpiry = "PINFEED_JANITOR_WIP_CACHE_ENTRY_EXPIRY"

	// -------------- feed defaults --------------
	// DefaultPage and DefaultPageSize back the clamping policy on invalid
	// page parameters: clamp, don't fail.
	DefaultPage     = 1
	DefaultPageSize = 12
	// HistorySize is the number of most recent pins the history feed shows.
	HistorySize = 20

	// -------------- misc --------------
	LogFieldFuncName = "funcName"
	UploadURLPrefix  = "/uploads/"
)
