package models

import (
	"time"
)

// ItemStatus is the moderation state of an item.
type ItemStatus string

const (
	StatusVerified   ItemStatus = "verified"
	StatusUnverified ItemStatus = "unverified"
	StatusDeleted    ItemStatus = "deleted"
	StatusRemoved    ItemStatus = "removed"
)

// ReactableKind selects which concrete table a reaction targets.
type ReactableKind string

const (
	KindComment ReactableKind = "comment"
	KindPhoto   ReactableKind = "photo"
)

// Reaction is the persisted reaction value. The "none" state of the vote
// axis is the absence of a row, so it never appears here.
type Reaction string

const (
	ReactionUpvote   Reaction = "upvote"
	ReactionDownvote Reaction = "downvote"
	ReactionFlag     Reaction = "flag"
)

// UserProfile is the per-user row. Reputation is only ever written by the
// reputation recompute; everything else comes from registration.
type UserProfile struct {
	Id         string    `json:"id"`
	Avatar     string    `json:"avatar"`
	Reputation float64   `json:"reputation"`
	CreatedAt  time.Time `json:"created_at"`
}

// Item is the location-based crowd-sourced record. Rating and Flags are
// derived values, recomputed from the ratings and reactions tables.
type Item struct {
	Seq         int64      `json:"seq"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AuthorId    string     `json:"author_id"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	Rating      float64    `json:"rating"`
	Flags       int64      `json:"flags"`
	Status      ItemStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Reactable carries the fields shared by every content unit that can be
// voted on or flagged. Counters are a cached recount of the reactions
// ledger; Experience is the last score applied to the author's reputation.
type Reactable struct {
	Id         int64     `json:"id"`
	ItemSeq    int64     `json:"item_seq"`
	AuthorId   string    `json:"author_id"`
	Upvotes    int64     `json:"upvotes"`
	Downvotes  int64     `json:"downvotes"`
	Flags      int64     `json:"flags"`
	Experience float64   `json:"experience"`
	CreatedAt  time.Time `json:"created_at"`
}

type Comment struct {
	Reactable
	Description string `json:"description"`
}

type Photo struct {
	Reactable
	Picture []byte `json:"picture"`
}

type CreateItemRequest struct {
	Version     string  `json:"version"` // Must be "2.0"
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type BoundingBoxRequest struct {
	Version      string  `json:"version"` // Must be "2.0"
	MinLatitude  float64 `json:"min_latitude"`
	MaxLatitude  float64 `json:"max_latitude"`
	MinLongitude float64 `json:"min_longitude"`
	MaxLongitude float64 `json:"max_longitude"`
}

type UpdateItemRequest struct {
	Version     string `json:"version"` // Must be "2.0"
	Seq         int64  `json:"seq"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type AddRatingRequest struct {
	Version string  `json:"version"` // Must be "2.0"
	Seq     int64   `json:"seq"`
	Rating  float64 `json:"rating"`
}

type AddCommentRequest struct {
	Version     string `json:"version"` // Must be "2.0"
	Seq         int64  `json:"seq"`
	Description string `json:"description"`
}

type AddPhotoRequest struct {
	Version string `json:"version"` // Must be "2.0"
	Seq     int64  `json:"seq"`
	Picture []byte `json:"picture"`
}

type UserArgs struct {
	Version string `json:"version"` // Must be "2.0"
	Id      string `json:"id"`
	Avatar  string `json:"avatar"`
}

type ItemsResponse struct {
	Items []Item `json:"items"`
}

type CommentsResponse struct {
	Comments []Comment `json:"comments"`
}

type PhotosResponse struct {
	Photos []Photo `json:"photos"`
}

type UserCommentResponse struct {
	Found   bool     `json:"found"`
	Comment *Comment `json:"comment,omitempty"`
}

type StatsResponse struct {
	Id         string  `json:"id"`
	Reputation float64 `json:"reputation"`
	Items      int64   `json:"items"`
	Comments   int64   `json:"comments"`
	Photos     int64   `json:"photos"`
	Reactions  int64   `json:"reactions"`
}

type TopReputationRecord struct {
	Place      int     `json:"place"`
	Avatar     string  `json:"avatar"`
	Reputation float64 `json:"reputation"`
	IsYou      bool    `json:"is_you"`
}

type TopReputationResponse struct {
	Records []TopReputationRecord `json:"records"`
}

// ViewPort is a map viewport in degrees, south-west to north-east.
type ViewPort struct {
	LatMin float64 `json:"latmin"`
	LonMin float64 `json:"lonmin"`
	LatMax float64 `json:"latmax"`
	LonMax float64 `json:"lonmax"`
}

type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MapResult is one aggregated cluster of item locations on the map.
type MapResult struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Count     int64   `json:"count"`
}
