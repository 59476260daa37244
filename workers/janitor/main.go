// Package janitor vends a long-running worker that removes uploaded image
// files no pin references anymore, e.g. after their pin got deleted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bluele/gcache"
	_ "github.com/go-kivik/couchdb/v3" // couch driver for kivik
	"github.com/go-kivik/kivik/v3"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"pinfeed.io/pinfeed/common/logging"
	rt "pinfeed.io/pinfeed/common/retry"
	cst "pinfeed.io/pinfeed/constants"
	pe "pinfeed.io/pinfeed/errors"
	st "pinfeed.io/pinfeed/stores"
)

const sweepBatchSize = 200

func main() {
	if err := runJanitor(); err != nil {
		log.WithError(err).Fatal("error running janitor")
	}
}

func runJanitor() error {
	viper.AutomaticEnv()
	logging.SetupLog("pinfeed-janitor")
	clog := logging.WithFuncName()

	ps, err := setupPinStore()
	if err != nil {
		clog.WithError(err).Error("error setting up pin store")
		return err
	}
	defer ps.Close()
	fs, ferr := setupFileStore()
	if ferr != nil {
		clog.WithError(ferr).Error("error setting up file store")
		return ferr
	}
	defer fs.Close()

	cacheSize := viper.GetInt(cst.EnvJanitorWIPCacheSize)
	if cacheSize <= 0 {
		cacheSize = 4096
	}
	grace := viper.GetDuration(cst.EnvJanitorGracePeriod)
	if grace <= 0 {
		grace = time.Hour
	}
	j := &janitor{
		FS:    fs,
		PS:    ps,
		seen:  gcache.New(cacheSize).LRU().Build(),
		grace: grace,
	}
	return j.Run()
}

// setupPinStore connects to the durable store. Unlike the API server the
// janitor has no demo fallback - there is nothing to sweep without durable
// data.
func setupPinStore() (st.PinStore, *pe.PinErr) {
	ctx := context.Background()
	addr := viper.GetString(cst.EnvCouchAddr)
	if addr == "" {
		addr = "http://localhost:5984"
	}
	client, err := kivik.New("couch", addr)
	if err != nil {
		return nil, pe.ErrServiceFailure("failed initializing CouchDB client").WithCause(err)
	}
	retryOpts := []rt.RetryOption{
		rt.WithTimeout(3 * time.Second),
		rt.WithBaseDelay(100 * time.Millisecond),
		rt.WithExp(2.0),
	}
	pingFn := func() error {
		_, perr := client.Ping(ctx)
		return perr
	}
	if err := rt.Retry(pingFn, retryOpts...); err != nil {
		return nil, pe.ErrServiceFailure("failed reaching CouchDB").WithCause(err)
	}
	pinDB := viper.GetString(cst.EnvCouchPinDB)
	if pinDB == "" {
		pinDB = "pins"
	}
	return st.NewCouchPinStore(ctx, client, pinDB)
}

func setupFileStore() (st.FileStore, *pe.PinErr) {
	dir := viper.GetString(cst.EnvUploadDir)
	if dir == "" {
		dir = "uploads"
	}
	return st.NewLocalFileStore(dir)
}

type janitor struct {
	FS st.FileStore
	PS st.PinStore
	// seen maps orphan ref -> time it was first observed unreferenced. An
	// orphan is only deleted once it stayed unreferenced for a full grace
	// period, so uploads racing their pin insert survive the sweep.
	seen  gcache.Cache
	grace time.Duration
}

func (j *janitor) Run() error {
	clog := logging.WithFuncName()
	freq := viper.GetDuration(cst.EnvJanitorSweepFreq)
	if freq <= 0 {
		freq = 10 * time.Minute
	}
	tkr := time.NewTicker(freq)
	defer tkr.Stop()
	// ensure the worker can be responsive to system signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	clog.WithFields(log.Fields{"sweepFrequency": freq, "gracePeriod": j.grace}).Info("janitor starting")
LoopRun:
	for {
		select {
		case <-tkr.C:
			if err := j.Sweep(context.Background()); err != nil {
				clog.WithError(err).Error("error sweeping orphaned images")
			}
		case <-sigChan:
			clog.Info("got termination signal from kernel. Stopping")
			break LoopRun
		}
	}
	return nil
}

// Sweep deletes stored images that no pin referenced for at least one grace
// period.
func (j *janitor) Sweep(ctx context.Context) *pe.PinErr {
	clog := logging.WithFuncName()
	stored, err := j.FS.List()
	if err != nil {
		return err
	}
	referenced, err := j.referencedImages(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	removed := 0
	for _, ref := range stored {
		if referenced[ref] {
			j.seen.Remove(ref)
			continue
		}
		first, gerr := j.firstSeen(ref, now)
		if gerr != nil {
			return gerr
		}
		if now.Sub(first) < j.grace {
			continue
		}
		if derr := j.FS.Delete(ref); derr != nil {
			clog.WithError(derr).WithField("ref", ref).Error("error deleting orphaned image")
			continue
		}
		j.seen.Remove(ref)
		removed++
	}
	clog.WithFields(log.Fields{"stored": len(stored), "removed": removed}).Debug("sweep done")
	return nil
}

// firstSeen returns when ref was first observed as an orphan, recording now
// as the first observation if it is new.
func (j *janitor) firstSeen(ref string, now time.Time) (time.Time, *pe.PinErr) {
	v, err := j.seen.Get(ref)
	if err == gcache.KeyNotFoundError {
		exp := viper.GetDuration(cst.EnvJanitorWIPCacheExpiry)
		if exp <= 0 {
			exp = 2 * j.grace
		}
		// best-effort; a ref we fail to key gets picked up next sweep
		if serr := j.seen.SetWithExpire(ref, now, exp); serr != nil {
			logging.WithFuncName().WithError(serr).WithField("ref", ref).Error("error keying orphan ref in local cache")
		}
		return now, nil
	}
	if err != nil {
		return time.Time{}, pe.ErrServiceFailure("error reading orphan cache").WithCause(err)
	}
	first, ok := v.(time.Time)
	if !ok {
		return now, nil
	}
	return first, nil
}

// referencedImages collects the image refs of every pin, paging through the
// store in batches.
func (j *janitor) referencedImages(ctx context.Context) (map[string]bool, *pe.PinErr) {
	refs := map[string]bool{}
	for skip := 0; ; skip += sweepBatchSize {
		pins, err := j.PS.FindMatching(ctx, st.Query{Skip: skip, Limit: sweepBatchSize})
		if err != nil {
			return nil, err
		}
		for _, p := range pins {
			if p.Image != "" {
				refs[p.Image] = true
			}
		}
		if len(pins) < sweepBatchSize {
			break
		}
	}
	return refs, nil
}
