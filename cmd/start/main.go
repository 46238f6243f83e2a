package start

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/vieworks/oap-logstream/buffers"
	"github.com/vieworks/oap-logstream/logid"
	"github.com/vieworks/oap-logstream/metrics"
	"github.com/vieworks/oap-logstream/shipper"
	"github.com/vieworks/oap-logstream/utils"
	"github.com/vieworks/oap-logstream/utils/log"
)

const (
	usage                 = "start"
	short                 = "Start a logstream shipping agent"
	long                  = "This command starts a logstream shipping agent"
	example               = "logstreamd start --config <path>"
	defaultConfigFilePath = "./logstream.yml"
	configDesc            = "set the path for the logstream YAML configuration file"
)

var (
	// Cmd is the start command.
	Cmd = &cobra.Command{
		Use:        usage,
		Short:      short,
		Long:       long,
		Aliases:    []string{"s"},
		SuggestFor: []string{"boot", "up"},
		Example:    example,
		RunE:       executeStart,
	}
	// configFilePath set flag for a path to the config file.
	configFilePath string
)

// nolint:gochecknoinits // cobra's standard way to initialize flags
func init() {
	utils.InstanceConfig.StartTime = time.Now()
	Cmd.Flags().StringVarP(&configFilePath, "config", "c", defaultConfigFilePath, configDesc)
}

// executeStart implements the start command.
func executeStart(cmd *cobra.Command, _ []string) error {
	// Attempt to read config file.
	data, err := os.ReadFile(configFilePath)
	if err != nil {
		return fmt.Errorf("failed to read configuration file error: %w", err)
	}

	// Don't output command usage if args are correct.
	cmd.SilenceUsage = true

	// Log config location.
	log.Info("using %v for configuration", configFilePath)

	// Attempt to set configuration.
	config, err := utils.ParseConfig(data)
	if err != nil {
		return fmt.Errorf("failed to parse configuration file error: %w", err)
	}
	utils.InstanceConfig = *config

	// Initialize logstream services.
	// ------------------------------
	log.Info("initializing logstream agent...")

	start := time.Now()

	configurations := make(buffers.BufferConfigurationMap, 0, len(config.Buffers))
	for _, setting := range config.Buffers {
		conf, err2 := buffers.NewBufferConfiguration(setting.Pattern, setting.BufferSize)
		if err2 != nil {
			return fmt.Errorf("invalid buffer configuration: %w", err2)
		}
		configurations = append(configurations, conf)
	}

	router := buffers.New(config.CheckpointPath, configurations)
	sender := shipper.NewDiskSender(config.RootDirectory, config.FilePattern,
		config.WriterBufferSize, logid.Timestamp(config.BucketsPerHour))
	ship := shipper.New(router, sender, config.ShipInterval)
	ship.Start()

	startupTime := time.Since(start)
	metrics.StartupTime.Set(startupTime.Seconds())
	log.Info("startup time: %s", startupTime)

	// Set monitoring handler.
	log.Info("launching prometheus metrics server...")
	http.Handle("/metrics", promhttp.Handler())

	// Spawn a goroutine and listen for a signal.
	const defaultSignalChanLen = 10
	signalChan := make(chan os.Signal, defaultSignalChanLen)
	go func() {
		for s := range signalChan {
			switch s {
			case syscall.SIGUSR1:
				log.Info("dumping stack traces due to SIGUSR1 request")
				if err2 := pprof.Lookup("goroutine").WriteTo(os.Stdout, 1); err2 != nil {
					log.Error("failed to write goroutine pprof: %v", err2)
					return
				}
			case syscall.SIGINT, syscall.SIGTERM:
				log.Info("initiating graceful shutdown due to '%v' request", s)
				ship.Stop()
				if err2 := router.Close(); err2 != nil {
					log.Error("failed to checkpoint unsent buffers: %v", err2)
				}
				if err2 := sender.Close(); err2 != nil {
					log.Error("failed to close disk writers: %v", err2)
				}
				shutdown()
			}
		}
	}()
	signal.Notify(signalChan, syscall.SIGUSR1, syscall.SIGINT, syscall.SIGTERM)

	// Serve.
	log.Info("launching tcp listener for all services...")
	if err := http.ListenAndServe(config.ListenPort, nil); err != nil {
		return fmt.Errorf("failed to start server - error: %w", err)
	}

	return nil
}

func shutdown() {
	log.Info("exiting...")
	os.Exit(0)
}
