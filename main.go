package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"virtual_sensors/api"
	"virtual_sensors/broker"
	"virtual_sensors/config"
	"virtual_sensors/database"
	"virtual_sensors/logger"
	"virtual_sensors/models"
	"virtual_sensors/pipeline"
	"virtual_sensors/progress"
	"virtual_sensors/scanner"
)

func main() {
	if len(os.Args) < 2 {
		showHelp()
		return
	}

	command := os.Args[1]

	// Initialize logging only for commands that need it
	if needsLogging(command) {
		cfg := loadConfig()
		if err := logger.Init(cfg); err != nil {
			log.Fatalf("Failed to initialize logging: %v", err)
		}
		defer func() {
			if err := logger.Close(); err != nil {
				log.Fatalf("Failed to close logging: %v", err)
			}
		}()
		logger.LogCommand(os.Args[0], os.Args)
	}

	switch command {
	case "connect":
		connectCommand()
	case "migrate":
		migrateCommand()
	case "migrate:create":
		if len(os.Args) < 3 {
			fmt.Println("Error: migration name required")
			fmt.Println("Usage: virtual_sensors migrate:create <migration_name>")
			return
		}
		createMigrationCommand(os.Args[2])
	case "migrate:status":
		migrationStatusCommand()
	case "db:info":
		dbInfoCommand()
	case "scan":
		if len(os.Args) < 3 {
			fmt.Println("Error: directory path required")
			fmt.Println("Usage: virtual_sensors scan <directory_path>")
			return
		}
		scanCommand(os.Args[2])
	case "process":
		if len(os.Args) < 3 {
			fmt.Println("Error: event file required")
			fmt.Println("Usage: virtual_sensors process <event.json>")
			return
		}
		processCommand(os.Args[2])
	case "sensors":
		sensorsCommand()
	case "serve":
		serveCommand()
	case "help":
		showHelp()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showHelp()
	}
}

// needsLogging determines which commands need logging
func needsLogging(command string) bool {
	loggingCommands := map[string]bool{
		"connect":        true,
		"migrate":        true,
		"migrate:create": true,
		"migrate:status": true,
		"scan":           true,
		"process":        true,
		"sensors":        true,
		"serve":          true,
	}
	return loggingCommands[command]
}

func showHelp() {
	fmt.Println("Virtual Sensors - formula recompute service")
	fmt.Println("")
	fmt.Println("Usage: virtual_sensors <command> [arguments]")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  connect               Test database connection")
	fmt.Println("  migrate               Create tables and run pending migrations")
	fmt.Println("  migrate:create <name> Create a new migration file")
	fmt.Println("  migrate:status        Show migration status")
	fmt.Println("  db:info               Show database information")
	fmt.Println("  scan <directory>      Import raw readings from CSV files into day buckets (non-recursive)")
	fmt.Println("  process <event.json>  Run one sensor change event through the recompute pipeline")
	fmt.Println("  sensors               List stored virtual sensors")
	fmt.Println("  serve                 Consume sensor change events and serve the admin API")
	fmt.Println("  help                  Show this help message")
	fmt.Println("")
	fmt.Println("Configuration:")
	fmt.Println("  Edit config.yaml; DATABASE_DRIVER, SQLITE_PATH, RABBITMQ_URL, REDIS_ADDR,")
	fmt.Println("  HTTP_ADDR, LOG_LEVEL and PIPELINE_WORKERS override it (also from .env)")
	fmt.Println("")
	fmt.Println("CSV File Format:")
	fmt.Println("  Expected columns: timestamp,sensor_id,measurement_type,value[,unit]")
	fmt.Println("  Timestamp format: ISO8601 (e.g., 2016-01-01T00:05:00Z) or epoch milliseconds")
}

func loadConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func connectDatabase() (*config.Config, *gorm.DB, error) {
	cfg := loadConfig()

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return cfg, db, nil
}

func connectCommand() {
	logger.Println("Testing database connection...")

	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Connection failed: %v", err)
	}
	defer database.Close(db)

	logger.Printf("✓ Successfully connected to %s database\n", cfg.Database.Driver)

	info := database.GetDatabaseInfo(cfg, db)
	infoJSON, _ := json.MarshalIndent(info, "", "  ")
	logger.Printf("Connection info: %s\n", infoJSON)
}

func migrateCommand() {
	logger.Println("Running database migrations...")

	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	runner := database.NewMigrationRunner(db, cfg)
	if err := runner.RunMigrations(); err != nil {
		logger.Fatalf("Migration failed: %v", err)
	}
}

func createMigrationCommand(name string) {
	logger.Printf("Creating migration: %s\n", name)

	cfg := loadConfig()
	runner := database.NewMigrationRunner(nil, cfg) // Don't need DB connection to create files

	filePath, err := runner.CreateMigration(name)
	if err != nil {
		logger.Fatalf("Failed to create migration: %v", err)
	}

	logger.Printf("✓ Migration created: %s\n", filePath)
}

func migrationStatusCommand() {
	logger.Println("Checking migration status...")

	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	migrations, err := database.NewMigrationRunner(db, cfg).GetMigrationStatus()
	if err != nil {
		logger.Fatalf("Failed to get migration status: %v", err)
	}

	if len(migrations) == 0 {
		logger.Println("No migrations found")
		return
	}

	logger.Printf("%-20s %-40s %s\n", "Version", "Name", "Status")
	logger.Println(strings.Repeat("-", 67))
	for _, migration := range migrations {
		status := "Pending"
		if migration.Applied {
			status = "Applied"
		}
		logger.Printf("%-20s %-40s %s\n", migration.Version, migration.Name, status)
	}
}

func dbInfoCommand() {
	fmt.Println("Database Information:")
	fmt.Println(strings.Repeat("=", 50))

	cfg, db, err := connectDatabase()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	info := database.GetDatabaseInfo(cfg, db)

	fmt.Printf("Database Type:     %v\n", info["driver"])
	fmt.Printf("Connection Status: %v\n", getConnectionStatusText(info["connected"]))

	switch cfg.Database.Driver {
	case "mysql", "postgres":
		fmt.Printf("Host:              %v\n", info["host"])
		fmt.Printf("Port:              %v\n", info["port"])
		fmt.Printf("Database:          %v\n", info["database"])
	case "sqlite":
		fmt.Printf("File Path:         %v\n", info["path"])
	}

	if info["connected"] != true {
		fmt.Println("\nConnection failed - unable to retrieve detailed information")
		fmt.Println(strings.Repeat("=", 50))
		return
	}

	fmt.Println("\nConnection Pool:")
	fmt.Printf("  Max Connections: %v\n", info["max_open_connections"])
	fmt.Printf("  Open Connections:%v\n", info["open_connections"])
	fmt.Printf("  In Use:          %v\n", info["in_use"])
	fmt.Printf("  Idle:            %v\n", info["idle"])

	var sensorCount, aggregateCount, rawSensors int64
	db.Model(&models.VirtualSensor{}).Count(&sensorCount)
	db.Model(&models.SensorAggregate{}).Count(&aggregateCount)
	db.Model(&models.SensorAggregate{}).Distinct("sensor_id").Count(&rawSensors)
	fmt.Println("\nData Information:")
	fmt.Printf("  Virtual Sensors: %d\n", sensorCount)
	fmt.Printf("  Day Buckets:     %d\n", aggregateCount)
	fmt.Printf("  Unique Sensors:  %d\n", rawSensors)

	if aggregateCount > 0 {
		var earliest, latest string
		db.Model(&models.SensorAggregate{}).Select("MIN(day)").Scan(&earliest)
		db.Model(&models.SensorAggregate{}).Select("MAX(day)").Scan(&latest)
		fmt.Printf("  Day Range:       %s to %s\n", earliest, latest)
	}

	fmt.Println(strings.Repeat("=", 50))
}

func getConnectionStatusText(connected interface{}) string {
	if conn, ok := connected.(bool); ok && conn {
		return "✓ Connected"
	}
	return "✗ Disconnected"
}

func scanCommand(directoryPath string) {
	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	autoMigrate(cfg, db)

	csvScanner := scanner.NewCSVScanner(database.NewStore(db))
	if _, err := csvScanner.ScanDirectory(context.Background(), directoryPath); err != nil {
		logger.Fatalf("Scan failed: %v", err)
	}

	logger.Println("✓ Directory scan completed successfully")
}

func sensorsCommand() {
	_, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	sensors, err := database.NewStore(db).ListVirtualSensors(context.Background())
	if err != nil {
		logger.Fatalf("Failed to list sensors: %v", err)
	}
	if len(sensors) == 0 {
		logger.Println("No virtual sensors stored")
		return
	}

	logger.Printf("%-24s %-8s %-30s %s\n", "Sensor", "Formulas", "Measurement types", "Updated")
	logger.Println(strings.Repeat("-", 80))
	for _, s := range sensors {
		logger.Printf("%-24s %-8d %-30s %s\n", s.ID, len(s.Formulas),
			strings.Join(s.MeasurementType, ","), s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

func processCommand(eventPath string) {
	body, err := os.ReadFile(eventPath)
	if err != nil {
		logger.Fatalf("Failed to read event: %v", err)
	}

	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	autoMigrate(cfg, db)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.EventTimeoutDuration())
	defer cancel()

	var publisher pipeline.Publisher
	if cfg.RabbitMQ.URL != "" {
		conn, err := broker.Dial(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer conn.Close()
		p, err := broker.NewPublisher(conn, cfg.RabbitMQ.ReadingsExchange, cfg.RabbitMQ.ReadingsKey)
		if err != nil {
			logger.Fatalf("Failed to init publisher: %v", err)
		}
		defer p.Close()
		publisher = p
	} else {
		logger.Println("RabbitMQ not configured, readings are not published")
	}

	store := database.NewStore(db)
	p := newPipeline(cfg, store, publisher, nil)

	outcome, err := p.HandleMessage(ctx, body)
	logger.LogResult("Process "+eventPath, err == nil, fmt.Sprintf("state=%s sensor=%s changed=%d buckets=%d done=%d skipped=%d failed=%d",
		outcome.State, outcome.SensorID, outcome.Changed, outcome.Buckets, outcome.Done, outcome.Skipped, outcome.Failed))
	if err != nil {
		logger.Fatalf("Processing failed: %v", err)
	}
}

func serveCommand() {
	cfg, db, err := connectDatabase()
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)
	autoMigrate(cfg, db)

	if cfg.RabbitMQ.URL == "" {
		logger.Fatalf("rabbitmq.url is required to serve")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := broker.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	defer conn.Close()

	publisher, err := broker.NewPublisher(conn, cfg.RabbitMQ.ReadingsExchange, cfg.RabbitMQ.ReadingsKey)
	if err != nil {
		logger.Fatalf("Failed to init publisher: %v", err)
	}
	defer publisher.Close()

	var tracker *progress.Tracker
	if cfg.Redis.Addr != "" {
		client, err := progress.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.DB)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer client.Close()
		tracker = progress.NewTracker(client, cfg.Redis.KeyPrefix, cfg.RedisTTL())
	}

	store := database.NewStore(db)
	p := newPipeline(cfg, store, publisher, tracker)

	consumer, err := broker.NewConsumer(conn, broker.ConsumerOptions{
		Exchange:    cfg.RabbitMQ.Exchange,
		Queue:       cfg.RabbitMQ.Queue,
		BindingKeys: cfg.RabbitMQ.BindingKeys,
		Prefetch:    cfg.RabbitMQ.Prefetch,
		Timeout:     cfg.EventTimeoutDuration(),
	}, func(ctx context.Context, body []byte) error {
		_, err := p.HandleMessage(ctx, body)
		return err
	})
	if err != nil {
		logger.Fatalf("Failed to init consumer: %v", err)
	}
	defer consumer.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return consumer.Start(gctx)
	})
	if cfg.HTTP.Addr != "" {
		handler := &api.Handler{
			Sensors:    store,
			Aggregates: store,
			Health: func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
		}
		if tracker != nil {
			handler.Progress = tracker
		}
		server := api.NewServer(cfg.HTTP.Addr, handler)
		g.Go(func() error {
			return server.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Errorf("Service stopped: %v", err)
		return
	}
	logger.Println("✓ Service stopped")
}

// newPipeline wires the recompute pipeline. Publisher and tracker may be nil.
func newPipeline(cfg *config.Config, store *database.Store, publisher pipeline.Publisher, tracker *progress.Tracker) *pipeline.Pipeline {
	emitter := pipeline.NewEmitter(publisher, store, pipeline.EmitOptions{
		Mode:      cfg.Pipeline.Emit,
		Attempts:  cfg.Pipeline.PublishAttempts,
		BaseDelay: cfg.PublishBaseDelayDuration(),
	})
	opts := pipeline.Options{Workers: cfg.Pipeline.Workers}
	if tracker != nil {
		opts.Progress = tracker
	}
	return pipeline.New(store, store, emitter, opts)
}

func autoMigrate(cfg *config.Config, db *gorm.DB) {
	if !cfg.Migration.AutoMigrate {
		return
	}
	if err := database.NewMigrationRunner(db, cfg).AutoMigrate(); err != nil {
		logger.Fatalf("Auto-migration failed: %v", err)
	}
}
