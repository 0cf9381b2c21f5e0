package main

import (
	"fmt"
	"strconv"
	"time"

	"hermes/config"
	"hermes/database"
	"hermes/handlers"
	"hermes/middleware"
	"hermes/models"
	"hermes/utils"
	"hermes/version"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

const (
	EndPointHealth             = "/health"
	EndPointUpdateOrCreateUser = "/update_or_create_user"
	EndPointCreateItem         = "/create_item"
	EndPointSearchBoundingBox  = "/search_bounding_box"
	EndPointUpdateItem         = "/update_item"
	EndPointAddRating          = "/add_rating"
	EndPointAddComment         = "/add_comment"
	EndPointAddPhoto           = "/add_photo"
	EndPointGetComments        = "/get_comments"
	EndPointGetPhotos          = "/get_photos"
	EndPointGetUserComment     = "/get_user_comment"
	EndPointMapItems           = "/map_items"
	EndPointStats              = "/stats"
	EndPointTopReputation      = "/top_reputation"
)

func main() {
	// A .env file is optional; real deployments configure the environment.
	if err := godotenv.Load(); err != nil {
		log.Debugf("No .env file loaded: %v", err)
	}

	cfg := config.Load()

	log.Info("Starting the hermes service...")

	db, err := utils.DBConnect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.InitSchema(db); err != nil {
		log.Fatalf("Failed to initialize database schema: %v", err)
	}

	itemsService := database.NewItemsService(db, cfg.AutoVerificationReputation)
	reactionsService := database.NewReactionsService(db)

	itemsHandler := handlers.NewItemsHandler(itemsService)
	reactionsHandler := handlers.NewReactionsHandler(reactionsService)

	router := gin.Default()
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", "Accept-Encoding", "Authorization", "Cache-Control", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimitRequests,
		time.Duration(cfg.RateLimitWindow)*time.Second))

	router.GET("/version", func(c *gin.Context) {
		c.JSON(200, version.Get("hermes"))
	})
	router.GET(EndPointHealth, itemsHandler.HealthCheck)

	auth := middleware.AuthMiddleware(cfg)

	apiV3 := router.Group("/api/v3")
	{
		apiV3.POST(EndPointUpdateOrCreateUser, itemsHandler.UpdateOrCreateUser)
		apiV3.POST(EndPointCreateItem, auth, itemsHandler.CreateItem)
		apiV3.POST(EndPointSearchBoundingBox, itemsHandler.SearchBoundingBox)
		apiV3.POST(EndPointUpdateItem, auth, itemsHandler.UpdateItem)
		apiV3.POST(EndPointAddRating, auth, itemsHandler.AddRating)
		apiV3.POST(EndPointAddComment, auth, itemsHandler.AddComment)
		apiV3.POST(EndPointAddPhoto, auth, itemsHandler.AddPhoto)
		apiV3.GET(EndPointGetComments, itemsHandler.GetComments)
		apiV3.GET(EndPointGetPhotos, itemsHandler.GetPhotos)
		apiV3.GET(EndPointGetUserComment, auth, itemsHandler.GetUserComment)
		apiV3.GET(EndPointMapItems, itemsHandler.MapItems)
		apiV3.GET(EndPointStats, itemsHandler.GetStats)
		apiV3.GET(EndPointTopReputation, itemsHandler.TopReputation)

		for _, route := range []struct {
			kind models.ReactableKind
			path string
		}{
			{kind: models.KindComment, path: "/comments/:id"},
			{kind: models.KindPhoto, path: "/photos/:id"},
		} {
			apiV3.POST(route.path+"/upvote", auth, reactionsHandler.React(route.kind, database.OpUpvote))
			apiV3.POST(route.path+"/downvote", auth, reactionsHandler.React(route.kind, database.OpDownvote))
			apiV3.POST(route.path+"/unvote", auth, reactionsHandler.React(route.kind, database.OpUnvote))
			apiV3.POST(route.path+"/flag", auth, reactionsHandler.React(route.kind, database.OpFlag))
			apiV3.POST(route.path+"/unflag", auth, reactionsHandler.React(route.kind, database.OpUnflag))
		}
	}

	serverPort, err := strconv.Atoi(cfg.Port)
	if err != nil {
		log.Fatalf("Invalid PORT configuration: %v", err)
	}

	log.Infof("Hermes service starting on port %d", serverPort)
	if err := router.Run(fmt.Sprintf(":%d", serverPort)); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
