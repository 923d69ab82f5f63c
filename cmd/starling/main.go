package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"starling/internal/browser"
	"starling/internal/cmdlog"
	"starling/internal/compose"
	"starling/internal/config"
	"starling/internal/gate"
	"starling/internal/httpapi"
	"starling/internal/logging"
	"starling/internal/metrics"
	"starling/internal/model"
	"starling/internal/monitor"
	"starling/internal/report"
	"starling/internal/store/ledger"
	"starling/internal/theme"
	"starling/internal/trends"
	"starling/internal/validate"
)

var version = "0.3.0"

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "run":
		cmdRun()
	case "serve":
		cmdServe()
	case "compose":
		cmdCompose()
	case "report":
		cmdReport()
	case "prune":
		cmdPrune()
	case "version":
		fmt.Println("starling", version)
	default:
		printHelp()
	}
}

func printHelp() {
	theme.PrintBanner()
	fmt.Println("Usage: starling <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init        Create a config file at ./starling.yaml")
	fmt.Println("  run         Run the engagement engine")
	fmt.Println("  serve       Serve the control API and draft queue")
	fmt.Println("  compose     Generate one piece of content and print it")
	fmt.Println("  report      Show recent activity from the ledger")
	fmt.Println("  prune       Delete old ledger rows")
	fmt.Println("  version     Print the version")
}

func die(err error) {
	fmt.Println("error:", err)
	os.Exit(1)
}

func loadConfig(path string) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		die(err)
	}
	return cfg
}

func openLedger(cfg config.Config) (*ledger.DB, *time.Location) {
	loc, err := cfg.Location()
	if err != nil {
		die(err)
	}
	led, err := ledger.Open(cfg.Storage.DBPath, loc)
	if err != nil {
		die(err)
	}
	return led, loc
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./starling.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	cfg := config.Default()
	if err := config.Save(*path, cfg); err != nil {
		die(err)
	}
	abs, _ := filepath.Abs(*path)
	theme.PrintBanner()
	fmt.Println("Config written to:", abs)
	fmt.Println("Set X_AUTH_TOKEN and OPENROUTER_API_KEY before running.")
}

func cmdRun() {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./starling.yaml", "config path")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)

	led, _ := openLedger(cfg)
	defer led.Close()
	metrics.StartServer(cfg.Server.MetricsAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmdlog.Run(ctx, led, "run", os.Args[2:], func() error {
		if err := runEngine(ctx, cfg, led); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	if err != nil {
		die(err)
	}
}

func runEngine(ctx context.Context, cfg config.Config, led *ledger.DB) error {
	drv, err := browser.Open(cfg.Browser)
	if err != nil {
		return fmt.Errorf("open browser: %w", err)
	}
	defer drv.Close()
	if err := drv.CheckLogin(ctx); err != nil {
		return err
	}

	llm := compose.NewClient(cfg.LLM)
	var scout monitor.Researcher
	if cfg.Trends.APIKey != "" {
		scout = trends.New(cfg.Trends, cfg.Persona, led)
	}
	g := gate.New(cfg.Admission, led, nil)
	mon, err := monitor.New(ctx, cfg, led, g, drv, drv, llm, scout, nil)
	if err != nil {
		return err
	}
	return mon.Run(ctx)
}

func cmdServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	cfgPath := fs.String("config", "./starling.yaml", "config path")
	addr := fs.String("addr", "", "listen address (default from config)")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	if *addr == "" {
		*addr = cfg.Server.Addr
	}
	led, _ := openLedger(cfg)
	defer led.Close()
	metrics.StartServer(cfg.Server.MetricsAddr)

	bin, err := os.Executable()
	if err != nil {
		bin = os.Args[0]
	}
	absCfg, err := filepath.Abs(*cfgPath)
	if err != nil {
		absCfg = *cfgPath
	}
	sup := httpapi.NewSupervisor(bin, "run", "-config", absCfg)

	var gen httpapi.Generator
	if cfg.LLM.APIKey != "" {
		gen = compose.NewClient(cfg.LLM)
	}
	srv := &http.Server{
		Addr: *addr,
		Handler: httpapi.NewRouter(httpapi.Dependencies{
			Cfg: cfg, Ledger: led, Runner: sup, Gen: gen, Version: version,
		}),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("serve_start", map[string]any{"addr": *addr})
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	eg.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := sup.Stop(shutCtx); err != nil {
			logging.Warn("engine_stop_error", map[string]any{"error": err.Error()})
		}
		return srv.Shutdown(shutCtx)
	})
	if err := eg.Wait(); err != nil {
		die(err)
	}
	logging.Info("serve_stop", nil)
}

func cmdCompose() {
	fs := flag.NewFlagSet("compose", flag.ExitOnError)
	cfgPath := fs.String("config", "./starling.yaml", "config path")
	kind := fs.String("kind", "post", "post, thread, reply, or quote")
	topic := fs.String("topic", "", "topic for post or thread")
	author := fs.String("author", "", "author handle for reply or quote")
	text := fs.String("text", "", "source text for reply or quote")
	save := fs.Bool("save", false, "store the result as a pending draft")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	led, _ := openLedger(cfg)
	defer led.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cmdlog.Run(ctx, led, "compose", os.Args[2:], func() error {
		return composeOnce(ctx, cfg, led, model.ActionKind(*kind), *topic, *author, *text, *save)
	})
	if err != nil {
		die(err)
	}
}

func composeOnce(ctx context.Context, cfg config.Config, led *ledger.DB, kind model.ActionKind, topic, author, text string, save bool) error {
	v := cfg.Validation
	var prompt string
	switch kind {
	case model.KindPost:
		prompt = compose.PostPrompt(topic, v.MaxPostLen)
	case model.KindThread:
		prompt = compose.ThreadPrompt(topic, 4, v.MaxReplyLen)
	case model.KindReply:
		if text == "" {
			return fmt.Errorf("reply needs -text")
		}
		prompt = compose.ReplyPrompt(author, text, v.MaxReplyLen)
	case model.KindQuote:
		if text == "" {
			return fmt.Errorf("quote needs -text")
		}
		prompt = compose.QuotePrompt(author, text, v.MaxPostLen)
	default:
		return fmt.Errorf("unsupported kind %q", kind)
	}

	client := compose.NewClient(cfg.LLM)
	out, err := client.Complete(ctx, compose.SystemPrompt(cfg.Persona), prompt)
	if err != nil {
		return err
	}

	check := validate.New(v)
	history, err := led.RecentHistory(ctx, v.HistoryWindow)
	if err != nil {
		history = nil
	}
	parts := []string{out}
	if kind == model.KindThread {
		parts = compose.ParseThread(out, 0)
	}
	for _, part := range parts {
		if ok, reason := check.Check(part, kind, history); !ok {
			fmt.Println("warning: validator would reject this text:", reason)
			break
		}
	}

	fmt.Println(out)
	if save {
		source := topic
		if source == "" {
			source = text
		}
		d := model.Draft{Kind: kind, TargetAuthor: author, SourceText: source, Text: out}
		if err := led.SaveDraft(ctx, &d); err != nil {
			return fmt.Errorf("save draft: %w", err)
		}
		fmt.Println("Draft saved:", d.ID)
	}
	return nil
}

func cmdReport() {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	cfgPath := fs.String("config", "./starling.yaml", "config path")
	days := fs.Int("days", 7, "days to include")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	led, loc := openLedger(cfg)
	defer led.Close()

	ctx := context.Background()
	err := cmdlog.Run(ctx, led, "report", os.Args[2:], func() error {
		rep, err := report.Build(ctx, led, *days, time.Now().In(loc))
		if err != nil {
			return err
		}
		fmt.Print(report.Render(rep))
		return nil
	})
	if err != nil {
		die(err)
	}
}

func cmdPrune() {
	fs := flag.NewFlagSet("prune", flag.ExitOnError)
	cfgPath := fs.String("config", "./starling.yaml", "config path")
	keep := fs.Int("keep-days", 90, "days of history to keep")
	_ = fs.Parse(os.Args[2:])
	cfg := loadConfig(*cfgPath)
	led, loc := openLedger(cfg)
	defer led.Close()

	ctx := context.Background()
	err := cmdlog.Run(ctx, led, "prune", os.Args[2:], func() error {
		before := time.Now().In(loc).AddDate(0, 0, -*keep)
		n, err := led.Prune(ctx, before)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d rows older than %s\n", n, before.Format("2006-01-02"))
		return nil
	})
	if err != nil {
		die(err)
	}
}
