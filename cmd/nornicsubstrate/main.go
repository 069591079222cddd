// Package main is the nornicsubstrate CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tabagent/nornicsubstrate/pkg/config"
	"github.com/tabagent/nornicsubstrate/pkg/embed"
	"github.com/tabagent/nornicsubstrate/pkg/encryption"
	"github.com/tabagent/nornicsubstrate/pkg/mlbridge"
	"github.com/tabagent/nornicsubstrate/pkg/model"
	"github.com/tabagent/nornicsubstrate/pkg/query"
	"github.com/tabagent/nornicsubstrate/pkg/scheduler"
	"github.com/tabagent/nornicsubstrate/pkg/server"
	"github.com/tabagent/nornicsubstrate/pkg/substrate"
	"github.com/tabagent/nornicsubstrate/pkg/weaver"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "nornicsubstrate",
		Short: "Embedded knowledge substrate for TabAgent",
		Long: `nornicsubstrate is the local, embedded, multi-tier storage engine
behind TabAgent: a typed knowledge graph plus vector embeddings over a
memory-mapped key/value store, with graph, property, and vector
indexes maintained on every write and a converged query combining
structural filters, graph traversal, and semantic search.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("nornicsubstrate v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the substrate server",
		Long:  "Open the database, start the Weaver pipeline and task scheduler, and serve the configured transports.",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serveCmd.Flags().String("mode", "", "Server mode: native, http, or both")
	serveCmd.Flags().String("host", "", "HTTP bind host")
	serveCmd.Flags().Int("port", 0, "HTTP bind port")
	serveCmd.Flags().String("db-path", "", "Database directory")
	serveCmd.Flags().String("log-level", "", "Log level")
	serveCmd.Flags().String("embedding-url", "http://localhost:11434", "Embedding API URL (Ollama)")
	serveCmd.Flags().String("embedding-model", "mxbai-embed-large", "Embedding model name")
	serveCmd.Flags().Int("embedding-dim", 1024, "Embedding dimensions")
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig applies the precedence chain: defaults, file, environment,
// then flags.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return config.Config{}, err
	}
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		cfg.Mode = config.ServerMode(v)
	}
	if v, _ := cmd.Flags().GetString("host"); v != "" {
		cfg.Host = v
	}
	if v, _ := cmd.Flags().GetInt("port"); v != 0 {
		cfg.Port = v
	}
	if v, _ := cmd.Flags().GetString("db-path"); v != "" {
		cfg.DatabasePath = v
	}
	if v, _ := cmd.Flags().GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	return cfg, cfg.Validate()
}

// deriveStoreKey derives the at-rest encryption key from passphrase,
// persisting the salt next to the data so re-opens derive the same key.
func deriveStoreKey(dataDir, passphrase string) ([]byte, error) {
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, err
	}
	saltPath := filepath.Join(dataDir, ".salt")
	salt, err := os.ReadFile(saltPath)
	if os.IsNotExist(err) {
		salt, err = encryption.GenerateSalt()
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(saltPath, salt, 0o600); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return encryption.DeriveKey([]byte(passphrase), salt, encryption.DefaultIterations), nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	embedURL, _ := cmd.Flags().GetString("embedding-url")
	embedModel, _ := cmd.Flags().GetString("embedding-model")
	embedDim, _ := cmd.Flags().GetInt("embedding-dim")

	var encryptionKey []byte
	if cfg.EncryptionPassphrase != "" {
		encryptionKey, err = deriveStoreKey(cfg.DatabasePath, cfg.EncryptionPassphrase)
		if err != nil {
			return err
		}
	}

	engine, err := substrate.Open(substrate.Options{
		Path:            cfg.DatabasePath,
		VectorDimension: embedDim,
		VectorMetric:    model.MetricCosine,
		VectorCacheSize: 4096,
		VectorCacheTTL:  10 * time.Minute,
		EncryptionKey:   encryptionKey,
	})
	if err != nil {
		return fmt.Errorf("open database at %s: %w", cfg.DatabasePath, err)
	}
	defer engine.Close()

	embedCfg := embed.DefaultOllamaConfig()
	embedCfg.APIURL = embedURL
	embedCfg.Model = embedModel
	embedCfg.Dimensions = embedDim
	embedder, err := embed.NewEmbedder(embedCfg)
	if err != nil {
		return err
	}
	bridge := mlbridge.NewAdapter(embed.NewCachedEmbedder(embedder, 10_000), nil)

	weaverCfg := weaver.DefaultConfig()
	weaverCfg.OnError = func(err error) { log.Printf("weaver: %v", err) }
	wv := weaver.New(engine, bridge, weaverCfg)
	defer wv.Close()

	activity := scheduler.NewActivityDetector(scheduler.DefaultActivityConfig())
	sched := scheduler.New(activity, scheduler.Config{
		SoftCap:   10_000,
		OnWarning: func(msg string) { log.Printf("scheduler: %s", msg) },
	})
	defer sched.Close()

	dispatcher := &server.Dispatcher{
		Engine:    engine,
		Planner:   query.NewPlanner(engine),
		Weaver:    wv,
		Scheduler: sched,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Degrade the activity level once a second while serving.
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				activity.Update()
			}
		}
	}()

	errCh := make(chan error, 2)

	if cfg.Mode == config.ModeHTTP || cfg.Mode == config.ModeBoth {
		srv := &http.Server{
			Addr:    net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
			Handler: server.New(dispatcher, cfg.MaxBodyBytes).Mux(),
		}
		go func() {
			log.Printf("http: listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	if cfg.Mode == config.ModeNative || cfg.Mode == config.ModeBoth {
		go func() {
			if err := server.ServeNativeMessaging(ctx, dispatcher); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("native messaging: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		log.Printf("shutting down")
		return nil
	case err := <-errCh:
		return err
	}
}
