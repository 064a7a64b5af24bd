// Package api holds the JSON endpoints. All endpoints return the
// APIResponse envelope; handlers reach the tree and engine through
// package state set once at startup.
package api

import (
	"binder/models"
	"binder/syncer"

	"github.com/rohanthewiz/rweb"
)

var (
	tree   *models.Tree
	engine *syncer.Engine
)

// Init wires the handlers to the live tree and engine. Must be called
// before the server starts routing.
func Init(t *models.Tree, e *syncer.Engine) {
	tree = t
	engine = e
}

// APIResponse provides a consistent JSON response structure for all API
// endpoints. Success responses include data, error responses include an
// error message.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// writeSuccess sends a successful JSON response with data.
func writeSuccess(ctx rweb.Context, status int, data interface{}) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: true, Data: data})
}

// writeError sends an error JSON response.
func writeError(ctx rweb.Context, status int, message string) error {
	ctx.SetStatus(status)
	return ctx.WriteJSON(APIResponse{Success: false, Error: message})
}
