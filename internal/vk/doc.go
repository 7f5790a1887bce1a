// Package vk reads photo albums from the VK API.
//
// Client implements model.Catalog and the engine's account resolver:
//
//   - users.get turns a screen name into an account id and rejects
//     deactivated accounts
//   - photos.getAlbums lists albums, system albums included
//   - photos.get pages through an album with extended=1 and photo_sizes=1,
//     so every record carries its like counter and all renditions
//
// # Errors
//
// VK reports failures as {"error": {...}} with HTTP 200. The error code is
// mapped to an error kind (see dto.APIError.Kind) so invalid tokens surface
// as AUTH and private or deleted accounts as NOT_FOUND.
//
// # Rate Limiting
//
// VK allows three calls per second for user tokens. Set
// Config.RequestsPerSecond accordingly; the shared HTTP client paces calls.
package vk
