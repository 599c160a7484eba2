package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-session-client/api"
	"github.com/jrsteele09/go-session-client/auth"
	"github.com/jrsteele09/go-session-client/guards"
	"github.com/jrsteele09/go-session-client/interceptor"
	"github.com/jrsteele09/go-session-client/internal/config"
	"github.com/jrsteele09/go-session-client/internal/utils"
	"github.com/jrsteele09/go-session-client/sessions"
	"github.com/jrsteele09/go-session-client/token/store"
	storerepofake "github.com/jrsteele09/go-session-client/token/store/repofake"
	"github.com/jrsteele09/go-session-client/users"
	"github.com/rs/zerolog"
)

const usage = `usage: console <command> [args]

commands:
  login                     sign in with CONSOLE_EMAIL / CONSOLE_PASSWORD
  register <name>           create an account with CONSOLE_EMAIL / CONSOLE_PASSWORD
  logout                    end the local session
  status                    show the current session
  refresh                   exchange the refresh token for a new pair
  get <path>                GET a protected resource through the authorizer
  open <route>              run the route guards for a console route`

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running console: %s\n", err)
	}
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	quiet := flag.Bool("q", false, "do not print the banner")
	flag.Usage = func() { fmt.Fprintln(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		return errors.New("missing command")
	}

	c, err := config.New()
	if err != nil {
		return err
	}
	if !*quiet {
		displayAppname(c.GetAppName())
	}
	logger := newLogger(c)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	console, closeRepo, err := newConsole(ctx, c, logger)
	if err != nil {
		return err
	}
	defer closeRepo()

	return console.dispatch(ctx, flag.Arg(0), flag.Args()[1:])
}

type console struct {
	config    config.Config
	logger    zerolog.Logger
	service   *auth.Service
	resources *api.Client
	private   *guards.Private
	public    *guards.Public
}

func newConsole(ctx context.Context, c config.Config, logger zerolog.Logger) (*console, func(), error) {
	repo, closeRepo, err := openRepo(ctx, c)
	if err != nil {
		return nil, nil, err
	}

	authClient, err := api.NewClient(c.GetAPIBaseURL(), api.WithLogger(logger))
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	navigator := auth.NavigatorFunc(func(route string, query url.Values) {
		target := route
		if len(query) > 0 {
			target += "?" + query.Encode()
		}
		fmt.Printf("-> %s\n", target)
	})

	service, err := auth.NewService(authClient, store.New(repo), sessions.NewState(nil),
		auth.WithLogger(logger),
		auth.WithNavigator(navigator, c.GetLoginRoute()),
		auth.WithExpiryThreshold(c.GetExpiryThreshold()),
		auth.WithLoginTimeout(c.GetLoginTimeout()),
	)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	transport := interceptor.New(service, interceptor.WithLogger(logger))
	resources, err := api.NewClient(c.GetAPIBaseURL(),
		api.WithLogger(logger),
		api.WithHTTPClient(transport.Client(c.GetRequestTimeout())),
	)
	if err != nil {
		closeRepo()
		return nil, nil, err
	}

	guardOptions := []guards.Option{
		guards.WithLoginRoute(c.GetLoginRoute()),
		guards.WithLandingRoute(c.GetLandingRoute()),
		guards.WithLogger(logger),
	}
	return &console{
		config:    c,
		logger:    logger,
		service:   service,
		resources: resources,
		private:   guards.NewPrivate(service, navigator, guardOptions...),
		public:    guards.NewPublic(service, navigator, guardOptions...),
	}, closeRepo, nil
}

func openRepo(ctx context.Context, c config.Config) (store.Repo, func(), error) {
	switch c.GetStoreBackend() {
	case config.StoreBackendMemory:
		return storerepofake.NewFakeStoreRepo(), func() {}, nil
	case config.StoreBackendRedis:
		repo, err := store.DialRedis(ctx, c.GetRedisURL(), store.WithKeyPrefix(keyPrefix(c.GetAppName())))
		if err != nil {
			return nil, nil, err
		}
		return repo, func() { _ = repo.Close() }, nil
	default:
		repo, err := store.NewFileRepo(c.GetDataFolder())
		if err != nil {
			return nil, nil, err
		}
		return repo, func() {}, nil
	}
}

func (c *console) dispatch(ctx context.Context, command string, args []string) error {
	switch command {
	case "login":
		_, err := c.service.Login(ctx, credential())
		if err != nil {
			return fmt.Errorf("login: %w", err)
		}
		c.printStatus()
		return nil

	case "register":
		if len(args) < 1 {
			return errors.New("register: missing name")
		}
		cred := credential()
		_, err := c.service.Register(ctx, users.Profile{Name: strings.Join(args, " "), Email: cred.Email, Password: cred.Password})
		if err != nil {
			return fmt.Errorf("register: %w", err)
		}
		fmt.Printf("Registered %s\n", cred.Email)
		c.printStatus()
		return nil

	case "logout":
		if err := c.service.Logout(); err != nil {
			return fmt.Errorf("logout: %w", err)
		}
		fmt.Println("Signed out")
		return nil

	case "status":
		c.printStatus()
		return nil

	case "refresh":
		if _, err := c.service.Refresh(ctx); err != nil {
			return fmt.Errorf("refresh: %w", err)
		}
		c.printStatus()
		return nil

	case "get":
		if len(args) != 1 {
			return errors.New("get: expected one path")
		}
		var out any
		if err := c.resources.Get(ctx, args[0], &out); err != nil {
			return fmt.Errorf("get %s: %w", args[0], err)
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(out)

	case "open":
		if len(args) != 1 {
			return errors.New("open: expected one route")
		}
		return c.open(ctx, args[0])

	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

// open runs the guard matching the route and reports the decision
func (c *console) open(ctx context.Context, route string) error {
	var outcome *guards.Outcome
	if route == c.config.GetLoginRoute() || strings.HasPrefix(route, "/auth/") {
		outcome = c.public.CanActivate(ctx)
	} else {
		outcome = c.private.CanActivate(ctx, route)
	}

	if _, immediate := outcome.Immediate(); !immediate {
		fmt.Println("Refreshing session...")
	}
	allowed, err := outcome.Wait(ctx)
	if err != nil {
		return err
	}
	if allowed {
		fmt.Printf("Entered %s\n", route)
	} else {
		fmt.Printf("Denied %s\n", route)
	}
	return nil
}

func (c *console) printStatus() {
	user := c.service.GetCurrentUser()
	if !c.service.IsAuthenticated() || user == nil {
		fmt.Println("Not signed in")
		return
	}
	fmt.Printf("User:    %s <%s> (%s)\n", user.Name, user.Email, user.Role)
	switch {
	case user.IsAdmin():
		fmt.Println("Access:  devices, orders, employees, groups")
	case user.HasRole(users.RoleManager):
		fmt.Println("Access:  orders, employees")
	default:
		fmt.Println("Access:  console")
	}
	if c.service.IsTokenExpired() {
		fmt.Println("Token:   expired")
	} else {
		remaining := utils.Deref(c.service.GetTokenExpirationTime())
		fmt.Printf("Token:   expires in %s\n", remaining.Round(time.Second))
	}
	if c.service.IsTokenExpiringSoon(c.config.GetExpiryThreshold()) {
		fmt.Println("         expiring soon")
	}
}

func credential() users.Credential {
	return users.Credential{
		Email:    config.GetEnv("CONSOLE_EMAIL", ""),
		Password: config.GetEnv("CONSOLE_PASSWORD", ""),
	}
}

func newLogger(c config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if c.GetEnv() == "DEV" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Str("app", c.GetAppName()).Logger()
}

func keyPrefix(appName string) string {
	return strings.ToLower(strings.ReplaceAll(appName, " ", "-")) + ":"
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
