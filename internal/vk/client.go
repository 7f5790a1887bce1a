package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/handiism/photo-mirror/internal/errors"
	"github.com/handiism/photo-mirror/internal/http"
	"github.com/handiism/photo-mirror/internal/model"
	"github.com/handiism/photo-mirror/internal/vk/dto"
)

const (
	// DefaultAPIURL is the VK API method endpoint.
	DefaultAPIURL = "https://api.vk.com/method"

	// DefaultAPIVersion is the API version requests are made against.
	DefaultAPIVersion = "5.131"

	// maxPageSize is the largest count photos.get accepts.
	maxPageSize = 1000
)

// systemAlbums maps the numeric ids photos.getAlbums reports for system
// albums to the names photos.get expects.
var systemAlbums = map[string]string{
	"-6":  "profile",
	"-7":  "wall",
	"-15": "saved",
}

// Config configures a Client.
type Config struct {
	Token             string
	APIURL            string
	APIVersion        string
	PageSize          int
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client is a VK API client and a model.Catalog.
//
// Example usage:
//
//	client := vk.NewClient(vk.Config{Token: token, RequestsPerSecond: 3}, log)
//
//	id, err := client.ResolveAccount(ctx, "durov")
//	if err != nil {
//	    return err // AUTH or NOT_FOUND
//	}
//
//	records, err := client.Fetch(ctx, id, "profile", 5)
type Client struct {
	http     *http.Client
	apiURL   string
	version  string
	token    string
	pageSize int
	log      logrus.FieldLogger
}

// NewClient creates a Client. Zero values in cfg take the defaults.
func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	if cfg.PageSize <= 0 || cfg.PageSize > maxPageSize {
		cfg.PageSize = 200
	}
	if log == nil {
		log = logrus.StandardLogger()
	}

	opts := []http.Option{http.WithRateLimit(cfg.RequestsPerSecond, 1)}
	if cfg.Timeout > 0 {
		opts = append(opts, http.WithTimeout(cfg.Timeout))
	}

	return &Client{
		http:     http.NewClient(opts...),
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		version:  cfg.APIVersion,
		token:    cfg.Token,
		pageSize: cfg.PageSize,
		log:      log.WithField("component", "vk"),
	}
}

// call invokes an API method and decodes its response into out.
func (c *Client) call(ctx context.Context, method string, params url.Values, out interface{}) error {
	if c.token == "" {
		return errors.Errorf(errors.KindAuth, method, "no VK access token configured")
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("access_token", c.token)
	q.Set("v", c.version)

	c.log.WithFields(logrus.Fields{"method": method, "params": params.Encode()}).Debug("vk call")

	var env dto.Envelope
	if err := c.http.GetJSON(ctx, c.apiURL+"/"+method+"?"+q.Encode(), &env); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if env.Error != nil {
		return errors.Wrap(env.Error.Kind(), method, env.Error)
	}
	if len(env.Response) == 0 {
		return errors.Errorf(errors.KindRemote, method, "empty response")
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return errors.Wrap(errors.KindRemote, method, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// ResolveAccount returns the numeric id of an account given its id or
// screen name. Unknown and deactivated accounts yield NOT_FOUND.
func (c *Client) ResolveAccount(ctx context.Context, account string) (string, error) {
	params := url.Values{}
	params.Set("user_ids", account)
	params.Set("fields", "deactivated,screen_name")

	var users []dto.User
	if err := c.call(ctx, "users.get", params, &users); err != nil {
		return "", err
	}
	if len(users) == 0 {
		return "", errors.Errorf(errors.KindNotFound, "users.get", "account %s not found", account)
	}

	u := users[0]
	if u.Deactivated != "" {
		return "", errors.Errorf(errors.KindNotFound, "users.get", "account %s is %s", account, u.Deactivated)
	}

	id := strconv.FormatInt(u.ID, 10)
	c.log.WithFields(logrus.Fields{"account": account, "id": id}).Debug("account resolved")
	return id, nil
}

// Albums lists the albums of an account, system albums included. System
// albums carry the name photos.get expects as their ID.
func (c *Client) Albums(ctx context.Context, account string) ([]model.Album, error) {
	params := url.Values{}
	params.Set("owner_id", account)
	params.Set("need_system", "1")

	var list dto.ItemList[dto.Album]
	if err := c.call(ctx, "photos.getAlbums", params, &list); err != nil {
		return nil, err
	}

	albums := make([]model.Album, 0, len(list.Items))
	for i := range list.Items {
		a := list.Items[i].ToAlbum()
		if name, ok := systemAlbums[a.ID]; ok {
			a.ID = name
		}
		albums = append(albums, a)
	}
	return albums, nil
}

// Fetch returns up to limit photos of an album (0 means all), oldest first,
// paging through photos.get.
func (c *Client) Fetch(ctx context.Context, account, album string, limit int) ([]model.RawPhotoRecord, error) {
	if name, ok := systemAlbums[album]; ok {
		album = name
	}

	var records []model.RawPhotoRecord
	for offset := 0; ; {
		count := c.pageSize
		if limit > 0 && limit-len(records) < count {
			count = limit - len(records)
		}

		params := url.Values{}
		params.Set("owner_id", account)
		params.Set("album_id", album)
		params.Set("extended", "1")
		params.Set("photo_sizes", "1")
		params.Set("offset", strconv.Itoa(offset))
		params.Set("count", strconv.Itoa(count))

		var page dto.ItemList[dto.Photo]
		if err := c.call(ctx, "photos.get", params, &page); err != nil {
			return nil, err
		}

		for i := range page.Items {
			records = append(records, page.Items[i].ToRecord())
		}
		offset += len(page.Items)

		c.log.WithFields(logrus.Fields{
			"album":   album,
			"fetched": len(records),
			"total":   page.Count,
		}).Debug("photos page")

		if len(page.Items) == 0 || offset >= page.Count || (limit > 0 && len(records) >= limit) {
			break
		}
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
