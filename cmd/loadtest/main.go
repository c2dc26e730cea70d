// Команда loadtest создаёт нагрузку на HTTP API заказов и печатает сводку по задержкам.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

type loadMode string

const (
	modeCreate       loadMode = "create"
	modeCreateCancel loadMode = "create-cancel"
	modeCreateDelete loadMode = "create-delete"
	modeCartCheckout loadMode = "cart-checkout"
)

type config struct {
	baseURL       string
	total         int
	totalSet      bool
	duration      time.Duration
	concurrency   int
	timeout       time.Duration
	mode          loadMode
	cancelRate    int
	itemsPerOrder int
	price         decimal.Decimal
	adminUser     string
	adminPassword string
	outputPath    string
}

func parseConfig(args []string) (config, error) {
	var (
		cfg   config
		mode  string
		price string
	)

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the HTTP API")
	fs.IntVar(&cfg.total, "total", 400, "scenarios to run; with -duration acts as an upper bound when set")
	fs.DurationVar(&cfg.duration, "duration", 0, "run for this long instead of a fixed count")
	fs.IntVar(&cfg.concurrency, "concurrency", 20, "number of concurrent customers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&mode, "mode", string(modeCreate), "create | create-cancel | create-delete | cart-checkout")
	fs.IntVar(&cfg.cancelRate, "cancel-rate", 0, "percent of create scenarios that also cancel (0..100)")
	fs.IntVar(&cfg.itemsPerOrder, "items", 2, "order lines per order")
	fs.StringVar(&price, "price", "199.90", "price of the seeded product")
	fs.StringVar(&cfg.adminUser, "admin-user", "admin", "administrator used for seeding the catalog")
	fs.StringVar(&cfg.adminPassword, "admin-password", "", "administrator password (fallback: FURNITURE_ADMIN_PASSWORD)")
	fs.StringVar(&cfg.outputPath, "output", "", "write the JSON report to this file")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}
	fs.Visit(func(f *flag.Flag) { cfg.totalSet = cfg.totalSet || f.Name == "total" })

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.adminPassword == "" {
		cfg.adminPassword = os.Getenv("FURNITURE_ADMIN_PASSWORD")
	}
	switch m := loadMode(strings.TrimSpace(mode)); m {
	case modeCreate, modeCreateCancel, modeCreateDelete, modeCartCheckout:
		cfg.mode = m
	default:
		return cfg, fmt.Errorf("unsupported mode: %s", mode)
	}
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return cfg, fmt.Errorf("parse price: %w", err)
	}
	cfg.price = p

	return cfg, cfg.validate()
}

func (c config) validate() error {
	checks := []struct {
		failed bool
		msg    string
	}{
		{c.baseURL == "", "url is required"},
		{c.duration < 0, "duration must be >= 0"},
		{c.duration == 0 && c.total <= 0, "total must be > 0 when duration is not set"},
		{c.duration > 0 && c.totalSet && c.total <= 0, "total must be > 0 when set together with duration"},
		{c.concurrency <= 0, "concurrency must be > 0"},
		{c.timeout <= 0, "timeout must be > 0"},
		{c.cancelRate < 0 || c.cancelRate > 100, "cancel-rate must be between 0 and 100"},
		{c.itemsPerOrder <= 0, "items must be > 0"},
		{!c.price.IsPositive(), "price must be > 0"},
		{strings.TrimSpace(c.adminUser) == "" || c.adminPassword == "", "admin credentials are required"},
	}

	var errs []error
	for _, check := range checks {
		if check.failed {
			errs = append(errs, errors.New(check.msg))
		}
	}
	return errors.Join(errs...)
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	if err := run(os.Args[1:]); err != nil {
		log.WithError(err).Error("load test failed")
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	result, err := runLoad(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})
	if err != nil {
		return err
	}
	printReport(os.Stdout, result, cfg)

	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if result.Scenarios.Failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", result.Scenarios.Failed, result.Scenarios.Calls)
	}
	return nil
}

// runLoad заводит товар и покупателей, затем гоняет сценарии, пока не кончится задание.
func runLoad(ctx context.Context, cfg config, httpClient *http.Client) (report, error) {
	admin := newAPIClient(cfg.baseURL, httpClient)
	if err := admin.login(ctx, cfg.adminUser, cfg.adminPassword); err != nil {
		return report{}, fmt.Errorf("admin login: %w", err)
	}

	runID := strconv.FormatInt(time.Now().UnixNano(), 36)
	productID, err := admin.seedProduct(ctx, runID, cfg.price)
	if err != nil {
		return report{}, fmt.Errorf("seed catalog: %w", err)
	}

	customers := make([]*apiClient, cfg.concurrency)
	setup, setupCtx := errgroup.WithContext(ctx)
	for i := range customers {
		customers[i] = newAPIClient(cfg.baseURL, httpClient)
		setup.Go(func() error {
			if err := customers[i].registerAndLogin(setupCtx, fmt.Sprintf("load-%s-%d", runID, i)); err != nil {
				return fmt.Errorf("register customer %d: %w", i, err)
			}
			return nil
		})
	}
	if err := setup.Wait(); err != nil {
		return report{}, err
	}
	log.WithFields(log.Fields{
		"product_id": productID,
		"customers":  len(customers),
		"mode":       cfg.mode,
	}).Info("load test prepared")

	col := newCollector()
	jobs := make(chan int, cfg.concurrency*2)
	startedAt := time.Now()

	var workers errgroup.Group
	for _, customer := range customers {
		workers.Go(func() error {
			for index := range jobs {
				runScenario(ctx, customer, cfg, productID, index, col)
			}
			return nil
		})
	}
	dispatchJobs(jobs, cfg)
	_ = workers.Wait()

	return col.buildReport(startedAt, time.Since(startedAt)), nil
}

// dispatchJobs раздаёт номера сценариев: фиксированное число либо до истечения duration.
func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	var deadline <-chan time.Time
	if cfg.duration > 0 {
		timer := time.NewTimer(cfg.duration)
		defer timer.Stop()
		deadline = timer.C
	}
	bounded := cfg.duration <= 0 || cfg.totalSet

	for i := 0; !bounded || i < cfg.total; i++ {
		select {
		case <-deadline:
			return
		case jobs <- i:
		}
	}
}

// runScenario создаёт заказ и, в зависимости от режима, отменяет или удаляет его.
// Код сценария равен коду последнего выполненного шага.
func runScenario(ctx context.Context, c *apiClient, cfg config, productID string, index int, col *collector) {
	start := time.Now()
	code := http.StatusOK
	defer func() { col.record(scenarioMethod, time.Since(start), code) }()

	items := make([]orderLine, cfg.itemsPerOrder)
	for i := range items {
		items[i] = orderLine{ProductID: productID, Quantity: int32(i + 1)}
	}

	var created createdEntity
	if cfg.mode == modeCartCheckout {
		// все строки ссылаются на один товар, поэтому корзина накапливает количество
		for _, item := range items {
			if code = c.call(ctx, col, "AddCartItem", http.MethodPost, "/carts/items", item, nil); !success(code) {
				return
			}
		}
		code = c.call(ctx, col, "Checkout", http.MethodPost, "/carts/checkout",
			map[string]any{"shippingAddress": "load street 1"}, &created)
		return
	}

	code = c.call(ctx, col, "CreateOrder", http.MethodPost, "/orders",
		map[string]any{"shippingAddress": "load street 1", "items": items}, &created)
	if !success(code) {
		return
	}
	if created.ID == "" {
		code = http.StatusInternalServerError
		return
	}

	path := "/orders/" + created.ID
	switch {
	case cfg.mode == modeCreateCancel, cfg.mode == modeCreate && shouldCancelScenario(index, cfg.cancelRate):
		code = c.call(ctx, col, "CancelOrder", http.MethodPatch, path, map[string]any{"status": "cancelled"}, nil)
	case cfg.mode == modeCreateDelete:
		code = c.call(ctx, col, "DeleteOrder", http.MethodDelete, path, nil, nil)
	}
}

// shouldCancelScenario детерминированно отбирает cancelRate сценариев из каждой сотни.
func shouldCancelScenario(index, cancelRate int) bool {
	return index%100 < min(max(cancelRate, 0), 100)
}
