// Package access answers "is (model, operation) allowed for this session?".
// Permissions come from the ERP's MCP REST endpoints, cached with a TTL, or
// from a purely client-side policy when YOLO mode bypasses the allowlist.
package access

import (
	"context"
	"fmt"
	"sort"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/ilcreatore32/godoo-mcp/internal/config"
	"github.com/ilcreatore32/godoo-mcp/internal/errs"
)

const (
	// cacheTTL bounds how long a REST response is reused.
	cacheTTL = 5 * time.Minute

	// Canonical operation names. "delete" is accepted as an alias for
	// unlink at the API edge.
	OpRead   = "read"
	OpWrite  = "write"
	OpCreate = "create"
	OpUnlink = "unlink"
)

// ModelInfo is one entry of the enabled-models list.
type ModelInfo struct {
	Model string `json:"model"`
	Name  string `json:"name"`
}

// ModelPermissions is the per-model permission matrix.
type ModelPermissions struct {
	Model     string `json:"model"`
	Enabled   bool   `json:"enabled"`
	CanRead   bool   `json:"can_read"`
	CanWrite  bool   `json:"can_write"`
	CanCreate bool   `json:"can_create"`
	CanUnlink bool   `json:"can_unlink"`
}

// CanPerform reports whether the given operation is allowed. "delete" is an
// alias for unlink; unknown operations are denied.
func (p ModelPermissions) CanPerform(op string) bool {
	if !p.Enabled {
		return false
	}
	switch op {
	case OpRead:
		return p.CanRead
	case OpWrite:
		return p.CanWrite
	case OpCreate:
		return p.CanCreate
	case OpUnlink, "delete":
		return p.CanUnlink
	default:
		return false
	}
}

// Controller gates every operation of the bridge. Safe for concurrent use:
// the cache serializes internally and the REST client is stateless apart
// from the session cookie, which keeps its own lock.
type Controller struct {
	cfg    *config.Config
	rest   *restClient
	cache  *gocache.Cache
	logger *zap.Logger
}

// NewController builds a Controller. dbLookup resolves the active database
// at call time, since auto-selection happens after construction.
func NewController(cfg *config.Config, dbLookup func() string, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:    cfg,
		rest:   newRESTClient(cfg, dbLookup, logger),
		cache:  gocache.New(cacheTTL, 2*cacheTTL),
		logger: logger,
	}
}

// yolo reports whether the ERP allowlist is bypassed.
func (c *Controller) yolo() bool {
	return c.cfg.YoloMode != config.YoloOff
}

// yoloPermissions is the client-side matrix applied under YOLO mode.
func (c *Controller) yoloPermissions(model string) ModelPermissions {
	writable := c.cfg.YoloMode == config.YoloTrue
	return ModelPermissions{
		Model:     model,
		Enabled:   true,
		CanRead:   true,
		CanWrite:  writable,
		CanCreate: writable,
		CanUnlink: writable,
	}
}

// EnabledModels returns the models exposed over MCP. Under YOLO mode the
// ERP's allowlist does not apply and the caller is expected to enumerate
// ir.model directly, so an empty list is returned here.
func (c *Controller) EnabledModels(ctx context.Context) ([]ModelInfo, error) {
	if c.yolo() {
		return []ModelInfo{}, nil
	}

	const key = "/mcp/models"
	if cached, ok := c.cache.Get(key); ok {
		return cached.([]ModelInfo), nil
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Models []ModelInfo `json:"models"`
		} `json:"data"`
	}
	if err := c.rest.getJSON(ctx, key, &payload); err != nil {
		return nil, err
	}
	if !payload.Success {
		return nil, errs.Connection("Odoo MCP models endpoint reported failure")
	}

	models := payload.Data.Models
	sort.Slice(models, func(i, j int) bool { return models[i].Model < models[j].Model })
	c.cache.Set(key, models, gocache.DefaultExpiration)
	return models, nil
}

// IsModelEnabled reports whether the model is exposed over MCP.
func (c *Controller) IsModelEnabled(ctx context.Context, model string) (bool, error) {
	if c.yolo() {
		return true, nil
	}
	perms, err := c.ModelPermissions(ctx, model)
	if err != nil {
		return false, err
	}
	return perms.Enabled, nil
}

// ModelPermissions returns the permission matrix of one model.
func (c *Controller) ModelPermissions(ctx context.Context, model string) (ModelPermissions, error) {
	if c.yolo() {
		return c.yoloPermissions(model), nil
	}

	key := fmt.Sprintf("/mcp/models/%s/permissions", model)
	if cached, ok := c.cache.Get(key); ok {
		return cached.(ModelPermissions), nil
	}

	var payload struct {
		Success bool `json:"success"`
		Data    struct {
			Model      string `json:"model"`
			Enabled    bool   `json:"enabled"`
			Operations struct {
				Read   bool `json:"read"`
				Write  bool `json:"write"`
				Create bool `json:"create"`
				Unlink bool `json:"unlink"`
			} `json:"operations"`
		} `json:"data"`
	}
	if err := c.rest.getJSON(ctx, key, &payload); err != nil {
		return ModelPermissions{}, err
	}

	perms := ModelPermissions{
		Model:     model,
		Enabled:   payload.Success && payload.Data.Enabled,
		CanRead:   payload.Data.Operations.Read,
		CanWrite:  payload.Data.Operations.Write,
		CanCreate: payload.Data.Operations.Create,
		CanUnlink: payload.Data.Operations.Unlink,
	}
	c.cache.Set(key, perms, gocache.DefaultExpiration)
	return perms, nil
}

// CheckOperation reports whether (model, op) is allowed, with a denial
// reason when it is not. This is the two-value core; the typed error exists
// only at ValidateModelAccess.
func (c *Controller) CheckOperation(ctx context.Context, model, op string) (bool, string) {
	perms, err := c.ModelPermissions(ctx, model)
	if err != nil {
		return false, fmt.Sprintf("could not fetch permissions for %s: %v", model, err)
	}
	if !perms.Enabled {
		return false, fmt.Sprintf("model %s is not enabled for MCP access", model)
	}
	if !perms.CanPerform(op) {
		return false, fmt.Sprintf("operation %s is not allowed on model %s", op, model)
	}
	return true, ""
}

// ValidateModelAccess converts a denial into a typed permission error.
func (c *Controller) ValidateModelAccess(ctx context.Context, model, op string) error {
	if allowed, reason := c.CheckOperation(ctx, model, op); !allowed {
		return errs.Permission("Access denied: %s", reason)
	}
	return nil
}

// FilterEnabledModels returns the subset of models enabled for MCP access.
func (c *Controller) FilterEnabledModels(ctx context.Context, models []string) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		enabled, err := c.IsModelEnabled(ctx, m)
		if err != nil {
			c.logger.Warn("Skipping model with unreadable permissions",
				zap.String("model", m),
				zap.Error(err),
				zap.String("op", "FilterEnabledModels"),
			)
			continue
		}
		if enabled {
			out = append(out, m)
		}
	}
	return out
}

// AllPermissions returns the permission matrix of every enabled model.
func (c *Controller) AllPermissions(ctx context.Context) (map[string]ModelPermissions, error) {
	models, err := c.EnabledModels(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]ModelPermissions, len(models))
	for _, m := range models {
		perms, err := c.ModelPermissions(ctx, m.Model)
		if err != nil {
			return nil, err
		}
		out[m.Model] = perms
	}
	return out, nil
}

// ClearCache drops every cached REST response.
func (c *Controller) ClearCache() {
	c.cache.Flush()
}
