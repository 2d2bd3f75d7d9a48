package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/finchat/booksync/assistant/assembler"
	"github.com/finchat/booksync/assistant/cache"
	contractx "github.com/finchat/booksync/assistant/contract"
	sessionx "github.com/finchat/booksync/assistant/session"
	storex "github.com/finchat/booksync/assistant/store"
	"github.com/finchat/booksync/assistant/syncer"
	"github.com/finchat/booksync/pkg/booksapi"
	configx "github.com/finchat/booksync/pkg/config"
	_ "github.com/finchat/booksync/pkg/logger/autoload"
)

type AppConfig struct {
	SessionBackend string `envconfig:"SESSION_BACKEND" default:"memory"`
	SessionID      string `envconfig:"SESSION_ID" default:"local"`
}

func main() {
	appCfg := configx.MustNew[AppConfig]("")

	upstream := booksapi.MustNew(*configx.MustNew[booksapi.Config]("BOOKS"))
	store := newRecordStore()
	sessions := newSessionStore(appCfg.SessionBackend)

	cacheSvc, err := cache.New(store, upstream)
	if err != nil {
		panic(err)
	}
	orchestrator, err := syncer.New(store, upstream, cacheSvc)
	if err != nil {
		panic(err)
	}
	asm, err := assembler.New(cacheSvc, orchestrator, sessions)
	if err != nil {
		panic(err)
	}

	if len(os.Args) > 1 {
		utterance := strings.Join(os.Args[1:], " ")
		out, err := asm.BuildContext(context.Background(), utterance, appCfg.SessionID)
		if err != nil {
			log.Fatal().Err(err).Msg("context assembly failed")
		}
		fmt.Println(out.TextBlock)
		return
	}

	log.Info().Msg("booksync wired and ready")
}

func newRecordStore() contractx.RecordStore {
	cfg := configx.MustNew[storex.Config]("DB")
	if cfg.DSN == "" {
		log.Warn().Msg("DB_DSN not set, using in-memory record store")
		return storex.NewMemStore()
	}

	bunStore, err := storex.Open(*cfg)
	if err != nil {
		panic(err)
	}
	if err := bunStore.Init(context.Background()); err != nil {
		panic(err)
	}
	return bunStore
}

func newSessionStore(backend string) sessionx.Store {
	if backend != "upstash" {
		return sessionx.NewMemStore()
	}

	store, err := sessionx.NewUpstashStore(*configx.MustNew[sessionx.UpstashConfig]("UPSTASH"))
	if err != nil {
		panic(err)
	}
	return store
}
