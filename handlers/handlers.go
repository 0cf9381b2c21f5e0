package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"hermes/database"
	"hermes/mapaggr"
	"hermes/models"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	geojson "github.com/paulmach/go.geojson"
)

const apiVersion = "2.0"

// ItemsHandler serves the item, rating, comment and photo endpoints.
type ItemsHandler struct {
	itemsService *database.ItemsService
}

func NewItemsHandler(itemsService *database.ItemsService) *ItemsHandler {
	return &ItemsHandler{
		itemsService: itemsService,
	}
}

// HealthCheck returns a simple health status
func (h *ItemsHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "hermes",
	})
}

// callerID pulls the authenticated user out of the gin context, where the
// auth middleware put it.
func callerID(c *gin.Context) (string, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found in token"})
		return "", false
	}
	return userID.(string), true
}

func checkVersion(c *gin.Context, version string) bool {
	if version != apiVersion {
		log.Warnf("Bad version in %s, expected: %s, got: %s", c.FullPath(), apiVersion, version)
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "bad API version, expecting " + apiVersion})
		return false
	}
	return true
}

// respondError maps service errors onto status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, database.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		log.Errorf("Request to %s failed: %v", c.FullPath(), err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *ItemsHandler) CreateItem(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	args := &models.CreateItemRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /create_item call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if args.Latitude < -90 || args.Latitude > 90 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "latitude must be within [-90, 90]"})
		return
	}
	if args.Longitude < -180 || args.Longitude > 180 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "longitude must be within [-180, 180]"})
		return
	}
	if args.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title must not be empty"})
		return
	}

	item, err := h.itemsService.CreateItem(c.Request.Context(), userID, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, item)
}

func (h *ItemsHandler) SearchBoundingBox(c *gin.Context) {
	args := &models.BoundingBoxRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /search_bounding_box call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	// Malformed boxes are rejected before any query runs.
	if args.MinLatitude > args.MaxLatitude || args.MinLongitude > args.MaxLongitude {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bounding box min must not exceed max"})
		return
	}

	items, err := h.itemsService.SearchBoundingBox(c.Request.Context(), args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, &models.ItemsResponse{Items: items})
}

func (h *ItemsHandler) UpdateItem(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	args := &models.UpdateItemRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /update_item call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if args.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title must not be empty"})
		return
	}

	item, err := h.itemsService.UpdateItem(c.Request.Context(), userID, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, item)
}

func (h *ItemsHandler) AddRating(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	args := &models.AddRatingRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /add_rating call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if args.Rating < 0 || args.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be within [0, 5]"})
		return
	}

	item, err := h.itemsService.AddRating(c.Request.Context(), userID, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, item)
}

func (h *ItemsHandler) AddComment(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	args := &models.AddCommentRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /add_comment call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if args.Description == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "description must not be empty"})
		return
	}

	comment, err := h.itemsService.AddComment(c.Request.Context(), userID, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, comment)
}

func (h *ItemsHandler) AddPhoto(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}

	args := &models.AddPhotoRequest{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /add_photo call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if len(args.Picture) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "picture must not be empty"})
		return
	}

	photo, err := h.itemsService.AddPhoto(c.Request.Context(), userID, args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, photo)
}

func itemParam(c *gin.Context) (int64, bool) {
	seq, err := strconv.ParseInt(c.Query("item"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "item must be an integer"})
		return 0, false
	}
	return seq, true
}

func (h *ItemsHandler) GetComments(c *gin.Context) {
	seq, ok := itemParam(c)
	if !ok {
		return
	}
	comments, err := h.itemsService.GetComments(c.Request.Context(), seq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, &models.CommentsResponse{Comments: comments})
}

func (h *ItemsHandler) GetPhotos(c *gin.Context) {
	seq, ok := itemParam(c)
	if !ok {
		return
	}
	photos, err := h.itemsService.GetPhotos(c.Request.Context(), seq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, &models.PhotosResponse{Photos: photos})
}

func (h *ItemsHandler) GetUserComment(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	seq, ok := itemParam(c)
	if !ok {
		return
	}
	comment, err := h.itemsService.GetUserComment(c.Request.Context(), seq, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, &models.UserCommentResponse{
		Found:   comment != nil,
		Comment: comment,
	})
}

func (h *ItemsHandler) UpdateOrCreateUser(c *gin.Context) {
	args := &models.UserArgs{}
	if err := c.BindJSON(args); err != nil {
		log.Errorf("Failed to get the argument in /update_or_create_user call: %v", err)
		return
	}
	if !checkVersion(c, args.Version) {
		return
	}
	if args.Id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must not be empty"})
		return
	}

	user, err := h.itemsService.UpdateOrCreateUser(c.Request.Context(), args)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, user)
}

func (h *ItemsHandler) GetStats(c *gin.Context) {
	userID := c.Query("id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must not be empty"})
		return
	}
	stats, err := h.itemsService.GetStats(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, stats)
}

func (h *ItemsHandler) TopReputation(c *gin.Context) {
	topCount := 10
	if nStr, hasN := c.GetQuery("n"); hasN {
		n, err := strconv.Atoi(nStr)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "n must be a positive integer"})
			return
		}
		topCount = n
	}
	res, err := h.itemsService.TopReputation(c.Request.Context(), c.Query("id"), topCount)
	if err != nil {
		respondError(c, err)
		return
	}
	c.IndentedJSON(http.StatusOK, res)
}

// MapItems aggregates item locations in a viewport into map clusters and
// emits them as a GeoJSON FeatureCollection.
func (h *ItemsHandler) MapItems(c *gin.Context) {
	vp := &models.ViewPort{}
	var err error
	if vp.LatMin, err = strconv.ParseFloat(c.Query("sw_lat"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parsing sw_lat: " + err.Error()})
		return
	}
	if vp.LonMin, err = strconv.ParseFloat(c.Query("sw_lon"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parsing sw_lon: " + err.Error()})
		return
	}
	if vp.LatMax, err = strconv.ParseFloat(c.Query("ne_lat"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parsing ne_lat: " + err.Error()})
		return
	}
	if vp.LonMax, err = strconv.ParseFloat(c.Query("ne_lon"), 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "parsing ne_lon: " + err.Error()})
		return
	}
	if vp.LatMin > vp.LatMax || vp.LonMin > vp.LonMax {
		c.JSON(http.StatusBadRequest, gin.H{"error": "viewport min must not exceed max"})
		return
	}

	center := &models.Point{
		Lat: (vp.LatMin + vp.LatMax) / 2,
		Lon: (vp.LonMin + vp.LonMax) / 2,
	}
	if centerLat, hasLat := c.GetQuery("center_lat"); hasLat {
		if center.Lat, err = strconv.ParseFloat(centerLat, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parsing center_lat: " + err.Error()})
			return
		}
	}
	if centerLon, hasLon := c.GetQuery("center_lon"); hasLon {
		if center.Lon, err = strconv.ParseFloat(centerLon, 64); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "parsing center_lon: " + err.Error()})
			return
		}
	}

	points, err := h.itemsService.GetItemLocations(c.Request.Context(), vp)
	if err != nil {
		respondError(c, err)
		return
	}

	aggr := mapaggr.New(vp, center)
	for _, p := range points {
		aggr.AddPoint(p.Lat, p.Lon)
	}

	fc := geojson.NewFeatureCollection()
	for _, cluster := range aggr.ToArray() {
		feature := geojson.NewPointFeature([]float64{cluster.Longitude, cluster.Latitude})
		feature.SetProperty("count", cluster.Count)
		fc.AddFeature(feature)
	}
	c.IndentedJSON(http.StatusOK, fc)
}
