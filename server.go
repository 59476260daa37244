package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bluele/gcache"
	"github.com/go-chi/cors"
	_ "github.com/go-kivik/couchdb/v3" // couch driver for kivik
	"github.com/go-kivik/kivik/v3"
	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis"
	"github.com/julienschmidt/httprouter"
	"github.com/microcosm-cc/bluemonday"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"pinfeed.io/pinfeed/common/logging"
	rt "pinfeed.io/pinfeed/common/retry"
	"pinfeed.io/pinfeed/common/token"
	cst "pinfeed.io/pinfeed/constants"
	ev "pinfeed.io/pinfeed/events"
	"pinfeed.io/pinfeed/feed"
	st "pinfeed.io/pinfeed/stores"
)

const usernameCacheSize = 1024

// pinServer serves the REST surface of the application: auth, pin CRUD and
// the feed/history queries.
type pinServer struct {
	PS       st.PinStore
	US       st.UserStore
	FS       st.FileStore
	Feed     *feed.Service
	Notifier ev.Notifier
	Tokens   *token.Service
	Router   *httprouter.Router

	// usernames caches owner id -> display name for feed denormalization
	usernames gcache.Cache
	validate  *validator.Validate
	// sanitizer strips markup from user-provided pin text
	sanitizer *bluemonday.Policy
}

func (s *pinServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// start up application server and serve incoming requests
func serve() error {
	// read configuration from env vars
	viper.AutomaticEnv()
	logging.SetupLog("pinfeed")

	// pick the store mode once, at startup. If the durable backend does not
	// answer the ping we run the whole process in demo mode - there is no
	// per-request fallback later.
	ps, us, err := setupStores()
	if err != nil {
		return err
	}
	defer ps.Close()
	defer us.Close()
	fs, ferr := setupFileStore()
	if ferr != nil {
		return ferr
	}
	defer fs.Close()
	notifier := setupNotifier()
	defer notifier.Close()

	svr := &pinServer{
		PS:        ps,
		US:        us,
		FS:        fs,
		Feed:      feed.New(ps),
		Notifier:  notifier,
		Tokens:    setupTokenService(),
		usernames: gcache.New(usernameCacheSize).LRU().Build(),
		validate:  validator.New(),
		sanitizer: bluemonday.StrictPolicy(),
	}
	svr.SetupMux()

	host, port := viper.GetString(cst.EnvAppHost), viper.GetString(cst.EnvAppPort)
	if port == "" {
		port = "5000"
	}
	log.WithFields(log.Fields{
		"host":      host,
		"port":      port,
		"storeMode": ps.Mode(),
	}).Info("pinfeed server is starting up")
	addr := fmt.Sprintf("%s:%s", host, port)
	return http.ListenAndServe(addr, withCORS(svr))
}

// withCORS allows the configured frontend origin to call the API with
// credentials, mirroring the browser clients' needs.
func withCORS(h http.Handler) http.Handler {
	origin := viper.GetString(cst.EnvFrontendURL)
	if origin == "" {
		origin = "http://localhost:3000"
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{origin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(h)
}

// setupStores connects to CouchDB and returns the durable store pair, or
// the in-memory demo pair when the backend is unreachable.
func setupStores() (st.PinStore, st.UserStore, error) {
	clog := logging.WithFuncName()
	ctx := context.Background()
	dsn := couchDSN()
	client, err := kivik.New("couch", dsn)
	if err == nil {
		pingFn := func() error {
			_, perr := client.Ping(ctx)
			return perr
		}
		err = rt.Retry(pingFn, retryOpts()...)
	}
	if err != nil {
		clog.WithError(err).Warn("durable store unreachable; using demo mode (data resets on restart)")
		return st.NewMemoryPinStore(), st.NewMemoryUserStore(), nil
	}
	pinDB := viper.GetString(cst.EnvCouchPinDB)
	if pinDB == "" {
		pinDB = "pins"
	}
	userDB := viper.GetString(cst.EnvCouchUserDB)
	if userDB == "" {
		userDB = "users"
	}
	ps, perr := st.NewCouchPinStore(ctx, client, pinDB)
	if perr != nil {
		return nil, nil, perr
	}
	us, uerr := st.NewCouchUserStore(ctx, client, userDB)
	if uerr != nil {
		return nil, nil, uerr
	}
	clog.WithField("couchAddr", viper.GetString(cst.EnvCouchAddr)).Info("durable store connected")
	return ps, us, nil
}

func couchDSN() string {
	addr := viper.GetString(cst.EnvCouchAddr)
	if addr == "" {
		addr = "http://localhost:5984"
	}
	user, passwd := viper.GetString(cst.EnvCouchUser), viper.GetString(cst.EnvCouchPasswd)
	if user == "" {
		return addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return addr
	}
	u.User = url.UserPassword(user, passwd)
	return u.String()
}

func setupFileStore() (st.FileStore, error) {
	dir := viper.GetString(cst.EnvUploadDir)
	if dir == "" {
		dir = "uploads"
	}
	fs, err := st.NewLocalFileStore(dir)
	if err != nil {
		return nil, err
	}
	return fs, nil
}

// setupNotifier wires the Redis-backed event broadcaster, or an in-process
// one when Redis is not configured or not answering.
func setupNotifier() ev.Notifier {
	clog := logging.WithFuncName()
	host := viper.GetString(cst.EnvRedisHost)
	if host == "" {
		clog.Info("no Redis configured; pin events stay in-process")
		return ev.NewLocalNotifier()
	}
	redisClient := redis.NewClient(&redis.Options{
		Addr:       fmt.Sprintf("%s:%s", host, viper.GetString(cst.EnvRedisPort)),
		Password:   viper.GetString(cst.EnvRedisPasswd),
		DB:         viper.GetInt(cst.EnvRedisDB),
		MaxRetries: 3,
	})
	pingFn := func() error {
		_, err := redisClient.Ping().Result()
		return err
	}
	if err := rt.Retry(pingFn, retryOpts()...); err != nil {
		clog.WithError(err).Warn("Redis unreachable; pin events stay in-process")
		return ev.NewLocalNotifier()
	}
	return &ev.RedisNotifier{DB: redisClient}
}

func setupTokenService() *token.Service {
	secret := viper.GetString(cst.EnvTokenSecret)
	if secret == "" {
		log.Warn("no token secret configured; using an ephemeral default")
		secret = fmt.Sprintf("pinfeed-ephemeral-%d", time.Now().UnixNano())
	}
	ttl := viper.GetDuration(cst.EnvTokenTTL)
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return token.New(secret, ttl)
}

func retryOpts() []rt.RetryOption {
	return []rt.RetryOption{
		rt.WithTimeout(3 * time.Second),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
		rt.WithRetryOn(isDepOffline),
	}
}

func isDepOffline(e error) bool {
	return e != nil && strings.Contains(e.Error(), "connect: connection refused")
}
