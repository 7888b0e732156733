// Command friendctl runs friendship maintenance operations against the
// document store the API uses.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"drinkwise/api/internal/apperr"
	"drinkwise/api/internal/cache"
	"drinkwise/api/internal/config"
	"drinkwise/api/internal/events"
	"drinkwise/api/internal/feed"
	"drinkwise/api/internal/friendship"
	"drinkwise/api/internal/logging"
	"drinkwise/api/internal/store"
)

const usage = `usage: friendctl [flags] <command>

commands:
  sync-request         synchronize an accepted request (--request)
  force-add            link two users (--user, --friend)
  repair               repair one friendship (--user, --friend)
  remove               remove one friendship (--user, --friend)
  repair-all           repair every friendship of a user (--user)
  check                report the state of one friendship (--user, --friend)
  backfill-edges       create missing edge documents for a user (--user)
  rebuild-projections  rebuild a user's friend lists from edges (--user)

flags:
`

type options struct {
	appID     string
	userID    string
	friendID  string
	requestID string
	timeout   time.Duration
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}

	flags := pflag.NewFlagSet("friendctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	var opts options
	flags.StringVar(&opts.appID, "app", cfg.AppID, "app id")
	flags.StringVarP(&opts.userID, "user", "u", "", "user id")
	flags.StringVarP(&opts.friendID, "friend", "f", "", "friend user id")
	flags.StringVarP(&opts.requestID, "request", "r", "", "friend request id")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "operation timeout")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage)
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return 2
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	manager, closeAll, err := connect(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(stderr, "connect: %v\n", err)
		return 1
	}
	defer closeAll()

	result, err := execute(ctx, manager, flags.Arg(0), opts)
	if err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", flags.Arg(0), err)
		if kind, ok := apperr.KindOf(err); ok && kind == apperr.InvalidArgument {
			return 2
		}
		return 1
	}
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(encoded))
	return 0
}

// connect opens the store and the optional Redis and NATS connections. The
// feed gateway is built only to invalidate the friend sets the API caches.
func connect(ctx context.Context, cfg config.Config, log *zap.Logger) (*friendship.Manager, func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	docs, err := store.Connect(ctx, store.Options{
		Driver:               cfg.StoreDriver,
		PebbleDir:            cfg.PebbleDir,
		DatabaseURL:          cfg.DatabaseURL,
		MigrationsDir:        cfg.MigrationsDir,
		MongoURL:             cfg.MongoURL,
		MongoDatabase:        cfg.MongoDatabase,
		FirestoreProjectID:   cfg.FirestoreProjectID,
		FirestoreCredentials: cfg.FirestoreCredsFile,
	})
	if err != nil {
		return nil, closeAll, err
	}
	closers = append(closers, func() { _ = docs.Close() })

	var backend cache.Backend = cache.Nop{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisBackend, err := cache.NewRedis(cfg.RedisURL)
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = redisBackend.Close() })
		backend = redisBackend
	}

	var publisher events.Publisher = events.Nop{}
	if strings.TrimSpace(cfg.NATSURL) != "" {
		natsPublisher, err := events.NewNATS(cfg.NATSURL, "friendctl")
		if err != nil {
			closeAll()
			return nil, func() {}, err
		}
		closers = append(closers, func() { _ = natsPublisher.Close() })
		publisher = natsPublisher
	}

	gateway := feed.NewGateway(docs, feed.WithFriendCache(cache.New(backend, "friends", cfg.FriendCacheTTL)), feed.WithLogger(log))
	manager := friendship.NewManager(docs,
		friendship.WithEvents(publisher),
		friendship.WithInvalidator(gateway),
		friendship.WithLogger(log),
	)
	return manager, closeAll, nil
}

func execute(ctx context.Context, m *friendship.Manager, command string, opts options) (any, error) {
	app := opts.appID
	switch command {
	case "sync-request":
		return m.SynchronizeAcceptedRequest(ctx, app, opts.requestID)
	case "force-add":
		return m.ForceAddFriend(ctx, app, opts.userID, opts.friendID)
	case "repair":
		return m.RepairFriendship(ctx, app, opts.userID, opts.friendID)
	case "remove":
		return m.RemoveFriendship(ctx, app, opts.userID, opts.friendID)
	case "repair-all":
		return m.RepairAllForUser(ctx, app, opts.userID)
	case "check":
		return m.CheckFriendship(ctx, app, opts.userID, opts.friendID)
	case "backfill-edges":
		return m.BackfillEdges(ctx, app, opts.userID)
	case "rebuild-projections":
		return m.RebuildProjections(ctx, app, opts.userID)
	default:
		return nil, apperr.Newf(apperr.InvalidArgument, "unknown command %q", command)
	}
}
