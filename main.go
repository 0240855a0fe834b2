package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ftpd/config"
	"ftpd/terminal"
)

const version = "1.0.0"

func main() {
	cmd := terminal.NewRootCommand(version, runServer)
	if err := cmd.Execute(); err != nil {
		log.Fatalf("ftpd: %v", err)
	}
}

func runServer(opts terminal.Options) error {
	cfgPath := opts.ConfigPath
	if cfgPath == "" {
		cfgPath = configPath(opts.RootDir)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.ServerAddr = opts.Addr
	}
	if opts.Port >= 0 {
		cfg.ServerPort = opts.Port
	}

	server, err := NewFTPServer(cfg, opts.RootDir)
	if err != nil {
		return err
	}

	watcher, err := config.Watch(cfgPath, server.ReloadCredentials)
	if err != nil {
		log.Printf("Configuration watching disabled: %v", err)
	} else {
		defer watcher.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		server.Shutdown()
	}()

	terminal.PrintStartupInfo(cfg.Addr(), opts.RootDir, cfgPath, len(cfg.Users))
	return server.Start(ctx)
}
