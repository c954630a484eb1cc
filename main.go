package main

import (
	"context"
	"time"

	"hotelmate-backend/config"
	"hotelmate-backend/database"
	"hotelmate-backend/logger"
	"hotelmate-backend/routes"
	"hotelmate-backend/services/sweep"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
)

func main() {
	app := fiber.New(fiber.Config{
		ReadBufferSize:  32768, // 32KB read buffer
		WriteBufferSize: 32768, // 32KB write buffer
		ReadTimeout:     time.Second * 30,
		WriteTimeout:    time.Second * 30,
	})

	if err := godotenv.Load(); err != nil {
		logger.Error("Error loading .env file", err)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: " + err.Error())
		return
	}

	logger.Success("Server is running on ip: " + cfg.AppHost + " port: " + cfg.AppPort)

	// Initialize database with consolidated db.go
	db, err := database.InitDB()
	if err != nil {
		logger.Error("Failed to connect to the database", err)
		return
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.FrontendURL,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
	}))

	engine := routes.SetupRoutes(app, db, cfg)

	// Deadline sweep runs alongside the request handlers for the life of
	// the process.
	sweeper := sweep.NewSweeper(db, engine, time.Duration(cfg.SweepIntervalMin)*time.Minute)
	go sweeper.Start(context.Background())

	if err := app.Listen(cfg.AppHost + ":" + cfg.AppPort); err != nil {
		logger.Error("Server stopped", err)
	}
}
