package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"linewatch/pkg/database"
	"linewatch/pkg/ipinfo"
	"linewatch/pkg/lines"
	"linewatch/pkg/monitor"
	"linewatch/pkg/report"
	"linewatch/pkg/speedtest"
)

var (
	debugFlag bool
	logger    *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "linewatch",
	Short: "A tool for monitoring a fleet of internet lines",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Set up logging based on the debug flag
		var logLevel slog.Level
		if debugFlag {
			logLevel = slog.LevelDebug
		} else {
			logLevel = slog.LevelInfo
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
		slog.SetDefault(logger)
	},
}

var addLinesCmd = &cobra.Command{
	Use:   "add-lines [file]",
	Short: "Add lines from a CSV file to the database",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		resolver := ipinfo.NewResolver(24 * time.Hour)
		err = lines.AddLinesFromFile(db, resolver, args[0])
		if err != nil {
			logger.Error("Error adding lines", "error", err)
			os.Exit(1)
		}
		logger.Info("Lines added successfully")
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run speed tests and/or quota scrapes for all lines",
	Long: `Run the configured checks for every line in the database.
--mode selects the operations: 'speed' measures latency and throughput,
'quota' scrapes the ISP portals, 'all' does both.
--output writes the consolidated run report to a JSON file.`,
	Run: func(cmd *cobra.Command, args []string) {
		modeStr, _ := cmd.Flags().GetString("mode")
		output, _ := cmd.Flags().GetString("output")

		mode, err := monitor.ParseCheckMode(modeStr)
		if err != nil {
			logger.Error("Invalid mode", "error", err)
			os.Exit(1)
		}

		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		service := monitor.NewService(
			db,
			logger,
			speedtest.FromViper(viper.GetViper()),
			viper.GetInt("execution.concurrency"),
		)

		run, err := service.RunChecks(context.Background(), mode)
		if err != nil {
			logger.Error("Error running checks", "error", err)
			os.Exit(1)
		}

		if output != "" {
			reporter := &report.JSONFileReporter{Path: output}
			if err := reporter.Report(context.Background(), run); err != nil {
				logger.Error("Error writing report", "error", err)
				os.Exit(1)
			}
			logger.Info("Report written", "path", output)
		}

		logger.Info("Checks completed", "processID", run.ProcessID)
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [file]",
	Short: "Write the latest results for all lines to a JSON file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		db, err := initDB()
		if err != nil {
			logger.Error("Error initializing database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		service := monitor.NewService(
			db,
			logger,
			speedtest.FromViper(viper.GetViper()),
			viper.GetInt("execution.concurrency"),
		)

		run, err := service.LatestReport(context.Background())
		if err != nil {
			logger.Error("Error assembling report", "error", err)
			os.Exit(1)
		}

		reporter := &report.JSONFileReporter{Path: args[0]}
		if err := reporter.Report(context.Background(), run); err != nil {
			logger.Error("Error writing report", "error", err)
			os.Exit(1)
		}
		logger.Info("Report written", "path", args[0])
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")
	checkCmd.Flags().String("mode", "all", "Checks to run: speed, quota or all")
	checkCmd.Flags().String("output", "", "Write the run report to a JSON file")

	rootCmd.AddCommand(addLinesCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(reportCmd)
}

func initConfig() {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("../")
	viper.AddConfigPath("$HOME/.linewatch")
	viper.AddConfigPath("/etc/linewatch/")

	viper.SetDefault("speedtest.download_chunk_size", 100*1024)
	viper.SetDefault("speedtest.upload_chunk_size", 4*1024*1024)
	viper.SetDefault("speedtest.test_count", 10)
	viper.SetDefault("speedtest.latency_test_count", 3)
	viper.SetDefault("speedtest.timeout", "10s")
	viper.SetDefault("speedtest.max_download_time", "15s")
	viper.SetDefault("speedtest.max_upload_time", "15s")
	viper.SetDefault("speedtest.max_distance_km", 500)
	viper.SetDefault("speedtest.rate_limit_mb", 0)
	viper.SetDefault("execution.concurrency", 2)
	viper.SetDefault("scrape.headless", true)
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	if err := viper.ReadInConfig(); err != nil {
		fmt.Printf("Error reading config file: %v\n", err)
		os.Exit(1)
	}
}

func initDB() (*database.DB, error) {
	db, err := database.NewDB()
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %v", err)
	}

	err = db.InitSchema(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("error initializing database schema: %v", err)
	}

	return db, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
