package dto

import (
	"strconv"
	"time"

	"github.com/handiism/photo-mirror/internal/model"
)

// Photo is an item of a photos.get response requested with extended=1 and
// photo_sizes=1.
type Photo struct {
	ID      int64       `json:"id"`
	AlbumID int64       `json:"album_id"`
	OwnerID int64       `json:"owner_id"`
	Date    int64       `json:"date"`
	Likes   *Likes      `json:"likes"`
	Sizes   []PhotoSize `json:"sizes"`
}

// Likes is the likes object of an extended photo.
type Likes struct {
	Count int `json:"count"`
}

// PhotoSize is one rendition of a photo.
type PhotoSize struct {
	Type   string `json:"type"`
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ToRecord converts Photo to a model.RawPhotoRecord.
func (p *Photo) ToRecord() model.RawPhotoRecord {
	rec := model.RawPhotoRecord{
		ID:        p.ID,
		OwnerID:   strconv.FormatInt(p.OwnerID, 10),
		AlbumID:   strconv.FormatInt(p.AlbumID, 10),
		CreatedAt: time.Unix(p.Date, 0).UTC(),
	}
	// Photos fetched without extended=1 carry no likes; they all become "0".
	if p.Likes != nil {
		rec.Likes = p.Likes.Count
	}
	for _, s := range p.Sizes {
		rec.Variants = append(rec.Variants, model.SizeVariant{
			Width:  s.Width,
			Height: s.Height,
			URL:    s.URL,
			Type:   s.Type,
		})
	}
	return rec
}

// Album is an item of a photos.getAlbums response.
type Album struct {
	ID          int64  `json:"id"`
	OwnerID     int64  `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Size        int    `json:"size"`
	Created     int64  `json:"created"`
	Updated     int64  `json:"updated"`
}

// ToAlbum converts Album to a model.Album.
func (a *Album) ToAlbum() model.Album {
	return model.Album{
		ID:      strconv.FormatInt(a.ID, 10),
		OwnerID: strconv.FormatInt(a.OwnerID, 10),
		Title:   a.Title,
		Size:    a.Size,
		System:  a.ID < 0,
	}
}
