package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/sahilchouksey/learnhub-api/api"
	"github.com/sahilchouksey/learnhub-api/config"
	"github.com/sahilchouksey/learnhub-api/database"
	"github.com/sahilchouksey/learnhub-api/router"
	"github.com/sahilchouksey/learnhub-api/services"
	"github.com/sahilchouksey/learnhub-api/services/cron"
	"github.com/sahilchouksey/learnhub-api/services/gateway"
	"github.com/sahilchouksey/learnhub-api/utils"
)

func SetupAndRunServer() error {

	// Load ENV
	if err := config.LoadENV(); err != nil {
		return err
	}

	getEnv, err := config.Get()
	if err != nil {
		return err
	}

	utils.InitLogger()

	// Initialize GORM database connection
	store, err := database.StartGORM()
	if err != nil {
		print("Check whether the Postgres is running or not\n")
		print("If not running, run the following command:\n")
		print("  make docker-up   (for Docker setup)\n")
		print("  make db-up       (for local PostgreSQL)\n")
		return err
	}

	if err := store.Init(); err != nil {
		print("Failed to initialize database tables\n")
		print("Error running migrations:\n")
		return err
	}

	// Initialize Cron Manager (only if enabled via environment variable)
	var cronManager *cron.CronManager
	if os.Getenv("CRON_ENABLED") != "false" { // Default to enabled
		db, ok := store.GetDB().(*gorm.DB)
		if !ok {
			print("Warning: Failed to get database connection for cron jobs\n")
		} else {
			// The expiry sweep needs its own payment service. It shares
			// nothing with the request path but the database handle.
			gatewayClient, gwErr := gateway.NewClient(gateway.Config{
				KeyID:     getEnv.RAZORPAY_KEY_ID,
				KeySecret: getEnv.RAZORPAY_KEY_SECRET,
			})
			if gwErr != nil {
				print("Warning: Failed to initialize payment gateway for cron jobs\n")
			} else {
				notifications := services.NewNotificationService(db)
				enrollments := services.NewEnrollmentService(db, notifications, getEnv.ENROLLMENT_BONUS_POINTS)
				payments := services.NewPaymentService(db, gatewayClient, enrollments, getEnv.PAYMENT_PENDING_TTL)

				cronManager = cron.NewCronManager(db, payments)
				if err := cronManager.Start(); err != nil {
					print("Warning: Failed to start cron jobs\n")
					print("Error: ", err.Error(), "\n")
					// Don't fail the app, just log the warning
				}
			}
		}
	}

	// Defer Closing DB and stopping cron jobs
	defer func() {
		if cronManager != nil {
			cronManager.Stop()
		}
		store.Close()
	}()

	// Init API
	var server *api.APIServer = api.NewAPIServer(fmt.Sprintf(":%d", getEnv.PORT))
	app := server.GetEngine()

	// Setup Routes (security middleware is attached there)
	router.SetupRoutes(app, store, getEnv)

	// Get the PORT & Start the Server
	return server.Run()

}
