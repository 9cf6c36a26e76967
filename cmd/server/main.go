// Command server is the composition root: it loads configuration, builds
// every collaborator exactly once, wires them into a chatapp.App, and drives
// the epoll event loop until SIGINT.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chatserver/internal/chatapp"
	"chatserver/internal/chatlog"
	"chatserver/internal/config"
	"chatserver/internal/conntable"
	"chatserver/internal/group"
	"chatserver/internal/netloop"
	"chatserver/internal/scriptbridge"
	"chatserver/internal/userstore"
	"chatserver/internal/workerpool"
)

func main() {
	envPath := flag.String("env", ".env", "path to the .env configuration file")
	port := flag.Int("port", 5008, "TCP port to listen on")
	logFile := flag.String("logfile", "", "optional append-only log file")
	snapshotPath := flag.String("groups", "groups_data.json", "path to the groups JSON snapshot")
	workers := flag.Int("workers", 8, "number of dispatch workers")
	queueSize := flag.Int("queue", 1024, "dispatch task queue size")
	flag.Parse()

	log, err := chatlog.New(*logFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*envPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	store, err := userstore.Open(cfg.SQLitePath())
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}

	conns := conntable.New()

	groups := group.New(conns, func(fd int, payload []byte) error {
		return netloop.WriteFd(fd, payload)
	})
	if err := groups.Load(*snapshotPath); err != nil {
		log.Warningf("groups snapshot: %v", err)
	}

	bridge := scriptbridge.New()
	registerBuiltinScripts(bridge)

	pool := workerpool.New(*workers, *queueSize, func(recovered any) {
		log.Errorf("recovered panic in dispatch task: %v", recovered)
	})

	app := chatapp.New(conns, store, groups, bridge, log, func(fd int, payload []byte) error {
		return netloop.WriteFd(fd, payload)
	})

	listenFd, err := netloop.Listen(*port)
	if err != nil {
		log.Fatalf("listen on port %d: %v", *port, err)
	}

	loop, err := netloop.New(listenFd, conns, pool, log, app.HandleMessage, app.OnDisconnect)
	if err != nil {
		log.Fatalf("create event loop: %v", err)
	}

	signal.Ignore(syscall.SIGPIPE)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT)
	go func() {
		<-sig
		log.Infof("shutdown requested")
		loop.Stop()
	}()

	log.Infof("listening on port %d", *port)
	loop.Run()

	pool.Shutdown()
	if err := store.Close(); err != nil {
		log.Errorf("close credential store: %v", err)
	}
	if err := groups.Save(*snapshotPath); err != nil {
		log.Errorf("save groups snapshot: %v", err)
	}
	log.Infof("shutdown complete")
}

// registerBuiltinScripts installs the handlers an operator's scripting
// environment would register at startup; they exercise the bridge the same
// way a dynamically loaded script command would.
func registerBuiltinScripts(bridge *scriptbridge.Bridge) {
	bridge.Register("/time", func(nickname string, admin bool, args []string) string {
		return time.Now().UTC().Format(time.RFC3339)
	})
	bridge.Register("/version", func(nickname string, admin bool, args []string) string {
		return "chatserver dev build"
	})
}
