package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jonboulle/clockwork"
	"golang.org/x/term"

	"github.com/abrezinsky/auctionhouse/internal/app"
	"github.com/abrezinsky/auctionhouse/internal/auth"
	"github.com/abrezinsky/auctionhouse/internal/browser"
	"github.com/abrezinsky/auctionhouse/internal/config"
	"github.com/abrezinsky/auctionhouse/internal/logger"
	"github.com/abrezinsky/auctionhouse/web"
)

var (
	version = "dev"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	envFile := flag.String("env", "", ".env file with AUCTION_* variables")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	adminPw := flag.String("adminpw", "", "Admin password (auto-generated if not set)")
	logLevel := flag.String("loglevel", "", "Log level: debug, info, warn, error (overrides config)")
	noAnimate := flag.Bool("noanimate", false, "Show logo only, skip the animation")
	noConsole := flag.Bool("noconsole", false, "Disable console commands")
	noBoard := flag.Bool("noboard", false, "Serve the API only, without the spectator board")
	showVersion := flag.Bool("version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Auctionhouse - live timed player auction

Usage:
  auctionhouse [options]

Options:
  -config path   YAML config file
  -env path      .env file with AUCTION_* variables
  -addr string   HTTP listen address (default ":8080")
  -db string     SQLite database path (default "auction.db")
  -adminpw str   Admin password (auto-generated if not set)
  -loglevel str  Log level: debug, info, warn, error (default "info")
  -noanimate     Show logo only, skip the animation
  -noconsole     Disable console commands
  -noboard       Serve the API only
  -version       Show version and exit
  -help          Show this help message

Console commands (when stdin is a terminal):
  b  open board    s  status    n  next lot    p  pause/resume
  h  HTTP logs     l  log level q  quit        ?  help

Examples:
  auctionhouse                              # :8080 with auction.db
  auctionhouse -config auction.yaml         # settings from a file
  AUCTION_TIMER_SECONDS=20 auctionhouse     # environment override

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("auctionhouse %s\n", version)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath, *envFile)
	if err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *adminPw != "" {
		cfg.Admin.Password = *adminPw
	}
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = auth.GeneratePassword()
	}

	showBanner(*noAnimate)

	appLog := logger.NewWithOptions(os.Stderr, logger.ParseFormat(cfg.Log.Format), logger.ParseLevel(cfg.Log.Level))

	a, err := app.New(appLog, cfg, clockwork.NewRealClock(), staticFS(*noBoard))
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}
	defer a.Close()

	appLog.Info("Admin password", "password", cfg.Admin.Password)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !*noConsole && term.IsTerminal(int(os.Stdin.Fd())) {
		c := &console{
			out:      os.Stdout,
			log:      appLog,
			auction:  a.Auction(),
			boardURL: localURL(cfg.Server.Addr),
			open:     browser.Open,
			quit:     stop,
		}
		c.printHelp()
		go c.run(ctx, os.Stdin)
	}

	if err := a.Run(ctx); err != nil {
		appLog.Error("Server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	appLog.Info("Server stopped")
}

// staticFS is the embedded board, or nil for an API-only server
func staticFS(disabled bool) fs.FS {
	if disabled {
		return nil
	}
	return web.GetStaticFS()
}

// localURL is the board address on this machine
func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr + "/"
	}
	return "http://" + addr + "/"
}
