package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"coursegate/internal/config"
	"coursegate/internal/database"
	"coursegate/internal/logger"
	"coursegate/internal/repository"
	"coursegate/internal/security"
	"coursegate/internal/service"
)

func main() {
	// Define subcommands
	exportCmd := flag.NewFlagSet("export", flag.ExitOnError)
	importCmd := flag.NewFlagSet("import", flag.ExitOnError)
	catalogCmd := flag.NewFlagSet("import-catalog", flag.ExitOnError)
	adminCmd := flag.NewFlagSet("create-admin", flag.ExitOnError)
	sweepCmd := flag.NewFlagSet("sweep", flag.ExitOnError)

	exportOutput := exportCmd.String("output", "", "Output file path (default: ledger_YYYYMMDD_HHMMSS.json)")

	importInput := importCmd.String("input", "", "Input file path (required)")
	importClear := importCmd.Bool("clear", false, "Clear purchases and progress before import (WARNING: destructive)")

	catalogInput := catalogCmd.String("input", "", "Catalog YAML or JSON file path (required)")

	adminEmail := adminCmd.String("email", "", "Admin email (required)")
	adminPassword := adminCmd.String("password", "", "Admin password (required, min 8 characters)")
	adminName := adminCmd.String("name", "", "Display name")

	sweepTTL := sweepCmd.Duration("ttl", 0, "Fail pending purchases older than this (default: PENDING_PURCHASE_TTL)")

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	db, err := database.InitializeWithConfig(cfg)
	if err != nil {
		log.Fatal("failed to initialize database", "error", err)
	}
	defer db.Close()

	// Run migrations to ensure schema is up to date
	ctx := context.Background()
	if _, err := db.RunMigrations(ctx); err != nil {
		log.Fatal("failed to run migrations", "error", err)
	}

	backupService := service.NewBackupService(db, log)

	switch os.Args[1] {
	case "export":
		exportCmd.Parse(os.Args[2:])
		handleExport(ctx, log, backupService, *exportOutput)

	case "import":
		importCmd.Parse(os.Args[2:])
		if *importInput == "" {
			fmt.Println("Error: -input flag is required")
			importCmd.PrintDefaults()
			os.Exit(1)
		}
		handleImport(ctx, log, backupService, db, *importInput, *importClear)

	case "import-catalog":
		catalogCmd.Parse(os.Args[2:])
		if *catalogInput == "" {
			fmt.Println("Error: -input flag is required")
			catalogCmd.PrintDefaults()
			os.Exit(1)
		}
		handleImportCatalog(ctx, log, backupService, *catalogInput)

	case "create-admin":
		adminCmd.Parse(os.Args[2:])
		handleCreateAdmin(ctx, log, db, cfg, *adminEmail, *adminPassword, *adminName)

	case "sweep":
		sweepCmd.Parse(os.Args[2:])
		ttl := *sweepTTL
		if ttl <= 0 {
			ttl = cfg.PendingPurchaseTTL
		}
		handleSweep(ctx, log, db, ttl)

	default:
		printUsage()
		os.Exit(1)
	}
}

func handleExport(ctx context.Context, log *logger.Logger, backupService *service.BackupService, outputPath string) {
	// Generate default filename if not provided
	if outputPath == "" {
		outputPath = fmt.Sprintf("ledger_%s.json", time.Now().Format("20060102_150405"))
	}

	dir := filepath.Dir(outputPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatal("failed to create output directory", "error", err)
		}
	}

	file, err := os.Create(outputPath)
	if err != nil {
		log.Fatal("failed to create output file", "error", err)
	}
	defer file.Close()

	if err := backupService.ExportToWriter(ctx, file); err != nil {
		log.Fatal("export failed", "error", err)
	}

	info, err := file.Stat()
	if err == nil {
		log.Info("export complete", "path", outputPath, "size_mb", fmt.Sprintf("%.2f", float64(info.Size())/1024/1024))
	}
}

func handleImport(ctx context.Context, log *logger.Logger, backupService *service.BackupService, db *database.DB, inputPath string, clearData bool) {
	file, err := os.Open(inputPath)
	if err != nil {
		log.Fatal("failed to open input file", "path", inputPath, "error", err)
	}
	defer file.Close()

	if clearData {
		if !confirm("WARNING: This will delete all purchases and lesson progress. Type 'yes' to confirm: ") {
			log.Info("import cancelled")
			return
		}
		if err := clearLedger(ctx, db); err != nil {
			log.Fatal("failed to clear ledger", "error", err)
		}
		log.Info("ledger cleared")
	}

	stats, err := backupService.ImportFromReader(ctx, file)
	if err != nil {
		log.Fatal("import failed", "error", err)
	}
	fmt.Printf("Imported %d purchases (%d skipped) and %d progress rows (%d skipped); %d users created, %d matched\n",
		stats.PurchasesImported, stats.PurchasesSkipped,
		stats.ProgressImported, stats.ProgressSkipped,
		stats.UsersCreated, stats.UsersMatched)
}

func handleImportCatalog(ctx context.Context, log *logger.Logger, backupService *service.BackupService, inputPath string) {
	file, err := os.Open(inputPath)
	if err != nil {
		log.Fatal("failed to open catalog file", "path", inputPath, "error", err)
	}
	defer file.Close()

	courses, err := backupService.ImportCatalog(ctx, file)
	if err != nil {
		log.Fatal("catalog import failed", "error", err)
	}
	for _, c := range courses {
		fmt.Printf("Created course %d: %s (%d lessons)\n", c.ID, c.Title, len(c.Lessons()))
	}
}

func handleCreateAdmin(ctx context.Context, log *logger.Logger, db *database.DB, cfg *config.Config, email, password, name string) {
	users := repository.NewUserRepository(db)

	existing, err := users.GetUserByEmail(ctx, email)
	if err != nil {
		log.Fatal("failed to look up user", "error", err)
	}
	if existing != nil {
		if err := users.SetAdmin(ctx, existing.ID, true); err != nil {
			log.Fatal("failed to promote user", "error", err)
		}
		fmt.Printf("Promoted existing user %d (%s) to admin\n", existing.ID, existing.Email)
		return
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = "unused"
	}
	tokens, err := security.NewTokenIssuer(secret, cfg.TokenDuration)
	if err != nil {
		log.Fatal("invalid token configuration", "error", err)
	}

	user, err := service.NewAccountService(users, tokens, log).CreateAccount(ctx, email, password, name, true)
	if err != nil {
		log.Fatal("failed to create admin", "error", err)
	}
	fmt.Printf("Created admin user %d (%s)\n", user.ID, user.Email)
}

func handleSweep(ctx context.Context, log *logger.Logger, db *database.DB, ttl time.Duration) {
	access := service.NewAccessService(db, repository.NewPurchaseRepository(db), repository.NewCourseRepository(db), nil, nil, log)
	n, err := access.ExpireStalePending(ctx, ttl)
	if err != nil {
		log.Fatal("sweep failed", "error", err)
	}
	fmt.Printf("Expired %d pending purchases older than %s\n", n, ttl)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	return strings.TrimSpace(answer) == "yes"
}

func clearLedger(ctx context.Context, db *database.DB) error {
	return db.WithTx(ctx, func(tx *database.Tx) error {
		for _, table := range []string{"lesson_progress", "purchases"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear table %s: %w", table, err)
			}
		}
		return nil
	})
}

func printUsage() {
	fmt.Println("coursegate ledger tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  backup export [options]           Export purchases and progress to JSON")
	fmt.Println("  backup import [options]           Import a ledger export")
	fmt.Println("  backup import-catalog [options]   Create courses from a YAML or JSON catalog")
	fmt.Println("  backup create-admin [options]     Create or promote an admin user")
	fmt.Println("  backup sweep [options]            Fail abandoned pending purchases once")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  backup export -output ledger.json")
	fmt.Println("  backup import -input ledger.json")
	fmt.Println("  backup import-catalog -input courses.yaml")
	fmt.Println("  backup create-admin -email admin@example.com -password 's3cret-pass'")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE          Database type: sqlite, postgres, or mysql (default: sqlite)")
	fmt.Println("  DB_PATH          SQLite database path (default: ./coursegate.db)")
	fmt.Println("  DATABASE_URL     PostgreSQL or MySQL connection URL")
}
