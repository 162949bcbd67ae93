/*
Package main is the terminal client.

It signs in as a guest, connects the socket, mirrors server events into the client store
and reads commands from stdin: plain lines are chat, /create, /join, /leave, /clear and
/quit drive the room.
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"masskribbl/internal/client/api"
	"masskribbl/internal/client/lobby"
	"masskribbl/internal/client/netsync"
	"masskribbl/internal/client/socket"
	"masskribbl/internal/client/store"
	"masskribbl/internal/configs"
	"masskribbl/internal/pkg/logx"
)

func main() {
	configPath := flag.String("config", "masskribbl.yaml", "path to the client config file")
	username := flag.String("username", "", "display name, overrides the config and the saved user")
	flag.Parse()

	cfg, err := configs.LoadClientConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLoggerTo(os.Stderr, cfg.Development)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *username); err != nil && !errors.Is(err, context.Canceled) {
		logx.Fatal(err, "Client stopped")
	}
}

func run(ctx context.Context, cfg *configs.ClientConfig, username string) error {
	persister, closePersister, err := newPersister(cfg)
	if err != nil {
		return err
	}
	defer closePersister()

	opts := []store.Option{store.WithPersister(persister)}
	if cfg.StrokeLimit > 0 {
		opts = append(opts, store.WithStrokeLimit(cfg.StrokeLimit))
	}
	st, err := store.Open(ctx, opts...)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	input := api.SessionInput{Username: cfg.Username, Email: cfg.Email, Avatar: cfg.Avatar}
	if u := st.User(); u != nil && input.Username == "" {
		input = api.SessionInput{Username: u.Username, Email: u.Email, Avatar: u.Avatar}
	}
	if username != "" {
		input.Username = username
	}
	if input.Username == "" {
		return errors.New("no username: pass -username or set username in the config")
	}

	client := api.New(cfg.ServerURL)
	sess, err := client.CreateSession(ctx, input)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	st.SetUser(&sess.User)

	wsURL, err := api.WebSocketURL(cfg.ServerURL)
	if err != nil {
		return err
	}
	sock := socket.New(wsURL, socket.WithToken(sess.Token))
	defer sock.Close()

	unbind := netsync.Bind(sock, st)
	defer unbind()

	t := newTerminal(os.Stdout, st, sock, client)
	defer st.Subscribe(t.render)()

	t.creator = lobby.NewCreator(st, sock, lobby.NavigatorFunc(t.navigate))

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sock.Connect(connectCtx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	t.printf("Signed in as %s. Type /help for commands.\n", sess.User.Username)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := t.exec(ctx, line); quit {
				return nil
			}
		}
	}
}

// newPersister selects Redis when an address is configured, the JSON file otherwise.
func newPersister(cfg *configs.ClientConfig) (store.Persister, func(), error) {
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return store.NewRedisPersister(rdb, cfg.RedisKey), func() { _ = rdb.Close() }, nil
	}

	path := cfg.StoragePath
	if path == "" {
		var err error
		if path, err = store.DefaultFilePath(); err != nil {
			return nil, nil, err
		}
	}
	return store.NewFilePersister(path), func() {}, nil
}
