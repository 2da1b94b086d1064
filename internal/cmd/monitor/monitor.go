// Package monitor assembles and runs the parking-monitor daemon.
package monitor

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/clambin/go-common/taskmanager"
	"github.com/clambin/go-common/taskmanager/httpserver"
	promserver "github.com/clambin/go-common/taskmanager/prometheus"
	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/slack-go/slack"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rhulsman/parking-monitor/internal/autoend"
	"github.com/rhulsman/parking-monitor/internal/autoend/notifier"
	"github.com/rhulsman/parking-monitor/internal/collector"
	"github.com/rhulsman/parking-monitor/internal/health"
	"github.com/rhulsman/parking-monitor/internal/poller"
	"github.com/rhulsman/parking-monitor/internal/provider"
	"github.com/rhulsman/parking-monitor/internal/provider/dvsportal"
	"github.com/rhulsman/parking-monitor/internal/provider/registry"
	"github.com/rhulsman/parking-monitor/internal/provider/thehague"
	"github.com/rhulsman/parking-monitor/internal/schedule"
	"github.com/rhulsman/parking-monitor/internal/server"
	"github.com/rhulsman/parking-monitor/internal/store"
)

var Cmd = cobra.Command{
	Use:   "monitor",
	Short: "runs the visitor parking monitor",
	RunE: func(cmd *cobra.Command, _ []string) error {
		logger := slog.Default()
		m, err := New(viper.GetViper(), cmd.Root().Version, logger)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		logger.Info("parking-monitor starting", "version", cmd.Root().Version)
		defer logger.Info("parking-monitor stopped")
		return m.Run(ctx)
	},
}

func New(cfg *viper.Viper, version string, logger *slog.Logger) (*taskmanager.Manager, error) {
	return newManager(cfg, version, prometheus.DefaultRegisterer, logger)
}

func newManager(cfg *viper.Viper, _ string, promRegistry prometheus.Registerer, logger *slog.Logger) (*taskmanager.Manager, error) {
	client, err := makeClient(cfg, promRegistry)
	if err != nil {
		return nil, fmt.Errorf("provider: %w", err)
	}
	location, err := makeLocation(cfg)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return taskmanager.New(makeTasks(cfg, client, location, promRegistry, logger)...), nil
}

func makeTasks(cfg *viper.Viper, client provider.Client, location *time.Location, promRegistry prometheus.Registerer, l *slog.Logger) []taskmanager.Task {
	var tasks []taskmanager.Task

	// Poller
	p := poller.New(client, cfg.GetDuration("poller.interval"), l.With("component", "poller"))
	tasks = append(tasks, p)

	// Collector
	coll := &collector.Collector{Poller: p, Logger: l.With("component", "collector")}
	promRegistry.MustRegister(coll)
	tasks = append(tasks, coll)

	// Prometheus Server
	tasks = append(tasks, promserver.New(promserver.WithAddr(cfg.GetString("exporter.addr"))))

	// Health Endpoint
	h := health.New(p, l.With("component", "health"))
	tasks = append(tasks, h)
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", h)
	tasks = append(tasks, httpserver.New(cfg.GetString("health.addr"), healthMux))

	// Auto-End Manager
	tracker := store.New(cfg.GetString("store.path"))
	notifiers := notifier.Notifiers{notifier.SLogNotifier{Logger: l.With("component", "autoend")}}
	if token := cfg.GetString("slack.token"); token != "" {
		notifiers = append(notifiers, &notifier.SlackNotifier{
			Logger:      l.With("component", "slack"),
			SlackSender: slack.New(token),
		})
	}
	manager := autoend.New(
		client, p, tracker, notifiers,
		autoend.ClockTriggerScheduler{Location: location},
		autoEndConfiguration(cfg),
		location,
		l.With("component", "autoend"),
	)
	tasks = append(tasks, manager)

	cfg.OnConfigChange(func(in fsnotify.Event) {
		l.Info("configuration changed, rebuilding schedule", "file", in.Name)
		manager.Reload(autoEndConfiguration(cfg))
	})
	cfg.WatchConfig()

	// REST API
	s := server.New(client, p, tracker, manager, location, l.With("component", "api"))
	tasks = append(tasks, s, httpserver.New(cfg.GetString("api.addr"), s))

	return tasks
}

func makeClient(cfg *viper.Viper, promRegistry prometheus.Registerer) (provider.Client, error) {
	selection := strings.TrimSpace(cfg.GetString("provider.municipality"))
	providerName := selection
	apiHost := registry.NormalizeAPIHost(cfg.GetString("provider.apiHost"))

	if reg, err := registry.Get(); err == nil && selection != "" {
		if m, ok := reg.Municipality(selection); ok {
			providerName = m.Provider
			if apiHost == "" {
				apiHost = m.APIHost
			}
		}
	}

	switch providerName {
	case thehague.Name:
		return thehague.New(
			cfg.GetString("provider.username"),
			cfg.GetString("provider.password"),
			apiHost,
			provider.InstrumentedClient(providerName, promRegistry),
		)
	case dvsportal.Name:
		return dvsportal.New(
			apiHost,
			cfg.GetString("provider.identifier"),
			cfg.GetString("provider.password"),
			provider.InstrumentedClient(providerName, promRegistry),
		)
	default:
		return nil, fmt.Errorf("unknown provider %q", providerName)
	}
}

func makeLocation(cfg *viper.Viper) (*time.Location, error) {
	tz := cfg.GetString("timezone")
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func autoEndConfiguration(cfg *viper.Viper) autoend.Configuration {
	c := autoend.Configuration{
		Enabled:  cfg.GetBool("autoEnd.enabled"),
		Debounce: cfg.GetDuration("autoEnd.debounce"),
	}
	var days map[string]schedule.DayOptions
	if err := cfg.UnmarshalKey("autoEnd.schedule", &days); err != nil || len(days) == 0 {
		return c
	}
	c.Days = make(map[time.Weekday]schedule.DayOptions, len(days))
	for name, opts := range days {
		if day, ok := weekdays[strings.ToLower(name)]; ok {
			c.Days[day] = opts
		}
	}
	return c
}
