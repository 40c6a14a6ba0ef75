package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/anancus/anancus/activitypub"
	"github.com/anancus/anancus/db"
	"github.com/anancus/anancus/util"
	"github.com/anancus/anancus/web"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const mediaSweepBatch = 100

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "2006-01-02 15:04:05"})

	conf, err := util.ReadConf()
	if err != nil {
		log.Fatal().Err(err).Msg("Could not read configuration")
	}

	fmt.Println("Configuration: ")
	fmt.Println(util.PrettyPrint(conf))

	store, err := db.Open(util.ResolveFilePath(conf.Conf.DbPath))
	if err != nil {
		log.Fatal().Err(err).Msg("Could not open database")
	}
	defer store.Close()

	if err := store.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Could not migrate database")
	}

	engine := activitypub.NewEngine(store, conf)
	server := web.NewServer(engine, store, conf)

	go func() {
		if err := server.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	schedule := conf.Conf.CleanupEvery
	if schedule == "" {
		schedule = "@every 10m"
	}
	sweeper := cron.New()
	if _, err := sweeper.AddFunc(schedule, func() { sweepMedia(store, conf) }); err != nil {
		log.Fatal().Err(err).Msgf("Unusable cleanup schedule %q", schedule)
	}
	sweeper.Start()
	defer sweeper.Stop()

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-done
	log.Info().Msg("Shutting down")
}

// sweepMedia drains the media cleanup queue: files whose posts are gone
// get unlinked, then their rows go. Queued paths are joined under the
// media root the way http.Dir does it, so a stored path can never reach
// outside it. A file already missing counts as cleaned.
func sweepMedia(store *db.DB, conf *util.AppConfig) {
	err, batch := store.ReadMediaCleanupBatch(mediaSweepBatch)
	if err != nil {
		log.Warn().Err(err).Msg("Cleanup: could not read batch")
		return
	}
	if len(*batch) == 0 {
		return
	}

	mediaDir := conf.Conf.MediaDir
	if mediaDir == "" {
		mediaDir = "media"
	}

	removed := 0
	for _, item := range *batch {
		full := filepath.Join(mediaDir, filepath.Clean("/"+item.Path))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Msgf("Cleanup: could not remove %s", full)
			continue
		}
		if err := store.DeleteMediaCleanupItem(item.Id); err != nil {
			log.Warn().Err(err).Msgf("Cleanup: could not dequeue %s", item.Path)
			continue
		}
		removed++
	}
	log.Info().Msgf("Cleanup: removed %d of %d queued media files", removed, len(*batch))
}
