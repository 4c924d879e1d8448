// Package backend is the GeoAware location-aware content platform.
//
// Binaries live under cmd/:
//
//   - cmd/server: REST + WebSocket API (users, geofences, content, events, analytics, privacy)
//   - cmd/content-repo: blob service with expiring uploads
//   - cmd/eventgen: synthetic entry/view/exit traffic against a running API
//   - cmd/seed, cmd/migrate, cmd/promote-admin: database maintenance
//
// Packages under internal/ hold the implementation:
//
//   - internal/handlers: HTTP handlers and route registration
//   - internal/models: GORM models and PostGIS-backed types
//   - internal/geo: GeoJSON and EWKB geometry handling
//   - internal/auth: JWT issuing and password hashing
//   - internal/websocket: realtime hub and clients
//   - internal/analytics: heatmap, per-fence metrics and clustering
//   - internal/privacy: cloaking simulation and its logs
//   - internal/contentrepo, internal/storage: blob service and its local/S3 backends
//   - internal/geofencing: device-side monitoring library
//   - internal/apiclient: typed client for the API
//   - internal/eventgen: session-aware event generation
//   - internal/seed: development and test fixtures
package backend
