package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"binder/models"

	"github.com/rohanthewiz/logger"
	"github.com/rohanthewiz/rweb"
	"github.com/rohanthewiz/serr"
)

// NodeInput is the JSON body for node creation.
type NodeInput struct {
	Kind          string `json:"kind"`
	Name          string `json:"name"`
	ParentLocalID string `json:"parent_local_id,omitempty"`
}

// nodeView is the JSON shape returned for a node, with children listed
// so clients can render the hierarchy without extra round trips.
type nodeView struct {
	*models.Node
	Children []*nodeView `json:"children,omitempty"`
}

func buildView(n *models.Node) *nodeView {
	v := &nodeView{Node: n}
	for _, child := range tree.ChildrenOf(n.LocalID) {
		v.Children = append(v.Children, buildView(child))
	}
	return v
}

// CreateNode handles POST /api/v1/nodes
func CreateNode(ctx rweb.Context) error {
	var input NodeInput
	if err := json.Unmarshal(ctx.Request().Body(), &input); err != nil {
		logger.LogErr(serr.Wrap(err, "failed to decode request body"), "invalid JSON")
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	if input.Name == "" {
		return writeError(ctx, http.StatusBadRequest, "name is required")
	}

	n, err := tree.CreateNode(models.Kind(input.Kind), input.Name, input.ParentLocalID)
	if err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}

	logger.Info("Node created", "local_id", n.LocalID, "kind", string(n.Kind), "name", n.Name)
	return writeSuccess(ctx, http.StatusCreated, n)
}

// GetTree handles GET /api/v1/tree
// Returns the full hierarchy, notebooks down to pages.
func GetTree(ctx rweb.Context) error {
	var out []*nodeView
	for _, nb := range tree.Notebooks() {
		out = append(out, buildView(nb))
	}
	return writeSuccess(ctx, http.StatusOK, out)
}

// GetNode handles GET /api/v1/nodes/:id
func GetNode(ctx rweb.Context) error {
	n := tree.GetNode(ctx.Request().Param("id"))
	if n == nil {
		return writeError(ctx, http.StatusNotFound, "node not found")
	}
	return writeSuccess(ctx, http.StatusOK, n)
}

// RenameNode handles PUT /api/v1/nodes/:id/name
func RenameNode(ctx rweb.Context) error {
	var input struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(ctx.Request().Body(), &input); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}
	if input.Name == "" {
		return writeError(ctx, http.StatusBadRequest, "name is required")
	}

	id := ctx.Request().Param("id")
	if err := tree.Rename(id, input.Name); err != nil {
		return writeError(ctx, http.StatusNotFound, err.Error())
	}
	logger.Info("Node renamed", "local_id", id, "name", input.Name)
	return writeSuccess(ctx, http.StatusOK, tree.GetNode(id))
}

// MoveNode handles PUT /api/v1/nodes/:id/parent
func MoveNode(ctx rweb.Context) error {
	var input struct {
		ParentLocalID string `json:"parent_local_id"`
	}
	if err := json.Unmarshal(ctx.Request().Body(), &input); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid JSON body")
	}

	id := ctx.Request().Param("id")
	if err := tree.Move(id, input.ParentLocalID); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	logger.Info("Node moved", "local_id", id, "parent", input.ParentLocalID)
	return writeSuccess(ctx, http.StatusOK, tree.GetNode(id))
}

// DeleteNode handles DELETE /api/v1/nodes/:id
// Removes the node and its subtree locally; the remote objects are
// trashed (never hard-deleted) on the next sync pass.
func DeleteNode(ctx rweb.Context) error {
	id := ctx.Request().Param("id")
	if err := tree.Delete(id); err != nil {
		return writeError(ctx, http.StatusNotFound, err.Error())
	}
	logger.Info("Node deleted", "local_id", id)
	return writeSuccess(ctx, http.StatusOK, map[string]interface{}{"deleted": true, "local_id": id})
}

// GetPageContent handles GET /api/v1/pages/:id/content
func GetPageContent(ctx rweb.Context) error {
	n := tree.GetNode(ctx.Request().Param("id"))
	if n == nil {
		return writeError(ctx, http.StatusNotFound, "page not found")
	}
	if n.Kind != models.KindPage {
		return writeError(ctx, http.StatusBadRequest, "node is not a page")
	}
	return writeSuccess(ctx, http.StatusOK, n.Content)
}

// UpdatePageContent handles PUT /api/v1/pages/:id/content
// The body is the full content tree; it is normalized, stored, and the
// page queued for the next content batch.
func UpdatePageContent(ctx rweb.Context) error {
	var content models.ContentTree
	if err := json.Unmarshal(ctx.Request().Body(), &content); err != nil {
		return writeError(ctx, http.StatusBadRequest, "invalid content body")
	}

	id := ctx.Request().Param("id")
	if err := tree.SetPageContent(id, &content); err != nil {
		return writeError(ctx, http.StatusBadRequest, err.Error())
	}
	return writeSuccess(ctx, http.StatusOK, tree.GetNode(id).Content)
}

// ListRevisions handles GET /api/v1/pages/:id/revisions
func ListRevisions(ctx rweb.Context) error {
	limit := 0
	if limitStr := ctx.Request().QueryParam("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			return writeError(ctx, http.StatusBadRequest, "invalid limit parameter")
		}
		limit = parsed
	}

	revisions, err := models.ListPageRevisions(ctx.Request().Param("id"), limit)
	if err != nil {
		logger.LogErr(serr.Wrap(err, "failed to list revisions"), "database error")
		return writeError(ctx, http.StatusInternalServerError, "database error")
	}
	return writeSuccess(ctx, http.StatusOK, revisions)
}
