package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/faulander/zib/internal/config"
	"github.com/faulander/zib/internal/logging"
	"github.com/faulander/zib/internal/scheduler"
	"github.com/faulander/zib/internal/store"
	"github.com/faulander/zib/pkg/embed"
	"github.com/faulander/zib/pkg/feed"
	"github.com/faulander/zib/pkg/rule"
	"github.com/faulander/zib/pkg/server"
	"github.com/faulander/zib/pkg/similarity"
)

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.New(logging.Options{
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Level:      logging.ParseLevel(cfg.Logging.Level),
	})
}

func buildEmbedJob(cfg *config.Config, db *store.Store, log *logging.Logger) (*embed.Job, error) {
	if !cfg.Embedding.Enabled {
		return nil, nil
	}
	provider, err := embed.NewProvider(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	job, err := embed.NewJob(db, log, provider, cfg.Embedding.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("embedding job: %w", err)
	}
	return job, nil
}

func similarOpts(cfg *config.Config) similarity.Options {
	return similarity.Options{
		LexicalThreshold:   cfg.Similar.LexicalThreshold,
		EmbeddingThreshold: cfg.Similar.EmbeddingThreshold,
		Window:             time.Duration(cfg.Similar.WindowHours) * time.Hour,
	}
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if port == 0 {
		port = cfg.Server.Port
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	fetcher := feed.New(db, log, cfg.Fetch)
	sched := scheduler.New(db, fetcher, log, cfg.Schedule, cfg.TTL)

	job, err := buildEmbedJob(cfg, db, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if job != nil {
		sched.OnNewItems(func(added int) {
			go func() {
				if _, err := job.ProcessPending(ctx); err != nil {
					log.Warn("embedding job: %v", err)
				}
			}()
		})
	}

	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("scheduler: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		log.Info("shutting down")
	}()

	srv := server.New(db, sched, rule.NewEngine(db), job, similarOpts(cfg), log, port)
	return srv.ListenAndServe()
}

func runAdd(url string, skipAge bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	src := &store.Source{URL: url}
	if err := db.CreateSource(src); err != nil {
		return fmt.Errorf("create source: %w", err)
	}

	fetcher := feed.New(db, logging.NewDiscard(), cfg.Fetch)
	res := fetcher.RefreshSource(context.Background(), src, feed.Options{SkipAgeFilter: skipAge})

	fmt.Fprintf(os.Stderr, "added source %d: %s\n", src.ID, url)
	fmt.Fprintf(os.Stderr, "imported %d items (%d skipped)\n", res.Added, res.Skipped)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "  error: %s\n", e)
	}
	return nil
}

func runRefresh(sourceID int64, skipAge bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	fetcher := feed.New(db, log, cfg.Fetch)
	sched := scheduler.New(db, fetcher, log, cfg.Schedule, cfg.TTL)
	ctx := context.Background()

	if sourceID > 0 {
		res, err := sched.RefreshOne(ctx, sourceID, feed.Options{SkipAgeFilter: skipAge})
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "source %d: %d new, %d skipped\n", sourceID, res.Added, res.Skipped)
		return nil
	}

	sum := sched.RefreshDue(ctx)
	fmt.Fprintf(os.Stderr, "fetched %d sources, %d new items\n", sum.Fetched, sum.Added)
	return nil
}

func runSources(jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	sources, err := db.ListSources()
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sources)
	}

	if len(sources) == 0 {
		fmt.Println("no sources (add one with: zib add <feed-url>)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tINTERVAL\tORIGIN\tERRORS\tTITLE")
	for _, s := range sources {
		minutes, origin, err := db.EffectiveInterval(s.ID)
		if err != nil {
			minutes, origin = 0, "?"
		}
		title := s.Title
		if title == "" {
			title = s.URL
		}
		fmt.Fprintf(w, "%d\t%dm\t%s\t%d\t%s\n", s.ID, minutes, origin, s.ErrorCount, title)
	}
	return w.Flush()
}

func runStats(recompute bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if recompute {
		log := logging.NewDiscard()
		fetcher := feed.New(db, log, cfg.Fetch)
		sched := scheduler.New(db, fetcher, log, cfg.Schedule, cfg.TTL)
		if err := sched.RecomputeStatistics(context.Background()); err != nil {
			return fmt.Errorf("recompute statistics: %w", err)
		}
	}

	sources, err := db.ListSources()
	if err != nil {
		return fmt.Errorf("list sources: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tITEMS/30D\tAVG/DAY\tREAD\tENGAGED\tINTERVAL\tREASON")
	for _, s := range sources {
		st, err := db.GetStatistics(s.ID)
		if err != nil {
			fmt.Fprintf(w, "%d\t-\t-\t-\t-\t-\tno statistics yet\n", s.ID)
			continue
		}
		fmt.Fprintf(w, "%d\t%d\t%.1f\t%.0f%%\t%.0f%%\t%dm\t%s\n",
			s.ID, st.Items30d, st.AvgPerDay,
			st.ReadRate*100, st.EngagementRate*100,
			st.ComputedInterval, st.Reason)
	}
	return w.Flush()
}

func runFilterTest(ruleText, text string) error {
	if err := rule.Validate(ruleText); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v (rule falls back to substring match)\n", err)
	}
	if text == "" {
		fmt.Println("rule ok")
		return nil
	}
	if rule.Matches(text, ruleText) {
		fmt.Println("match")
	} else {
		fmt.Println("no match")
	}
	return nil
}

func runFilterList() error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	filters, err := db.ListFilters(false)
	if err != nil {
		return fmt.Errorf("list filters: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tNAME\tRULE")
	for _, f := range filters {
		fmt.Fprintf(w, "%d\t%t\t%s\t%s\n", f.ID, f.Enabled, f.Name, f.Rule)
	}
	return w.Flush()
}

func runSimilar(windowHours, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	opts := similarOpts(cfg)
	if windowHours > 0 {
		opts.Window = time.Duration(windowHours) * time.Hour
	}

	items, err := db.RecentItems(time.Now().Add(-opts.Window), limit)
	if err != nil {
		return fmt.Errorf("recent items: %w", err)
	}

	ids := make([]int64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	rows, err := db.EmbeddingsFor(ids)
	if err != nil {
		return fmt.Errorf("load embeddings: %w", err)
	}
	vectors := make(map[int64][]float32, len(rows))
	for id, row := range rows {
		vec, err := embed.DecodeVector(row.Vector)
		if err != nil {
			continue
		}
		vectors[id] = vec
	}

	groups := similarity.GroupCandidates(items, vectors, opts)
	for _, g := range groups {
		if len(g.Similar) == 0 {
			continue
		}
		fmt.Printf("%s\n", g.Main.Title)
		for _, s := range g.Similar {
			fmt.Printf("  ~ %s\n", s.Title)
		}
	}
	return nil
}

func runEmbed(purge bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Embedding.Enabled {
		return fmt.Errorf("embedding is disabled (set embedding.enabled: true)")
	}

	log, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err := store.New(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	job, err := buildEmbedJob(cfg, db, log)
	if err != nil {
		return err
	}

	if purge {
		n, err := job.Purge()
		if err != nil {
			return fmt.Errorf("purge embeddings: %w", err)
		}
		fmt.Fprintf(os.Stderr, "purged %d vectors\n", n)
		return nil
	}

	res, err := job.ProcessPending(context.Background())
	if err != nil {
		return fmt.Errorf("embedding job: %w", err)
	}
	fmt.Fprintf(os.Stderr, "embedded %d items, %d failed\n", res.Processed, res.Failed)
	return nil
}
