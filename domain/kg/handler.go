package kg

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aurora-intel/aurora-core/pkg/apperror"
	"github.com/aurora-intel/aurora-core/pkg/auth"
)

// Handler handles HTTP requests for the knowledge graph.
type Handler struct {
	svc *Service
}

// NewHandler creates a new KG handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func tenantOf(c echo.Context) (*int64, error) {
	p := auth.GetPrincipal(c)
	if p == nil {
		return nil, apperror.ErrUnauthorized
	}
	return p.TenantID, nil
}

func intParam(c echo.Context, name string, def int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func (h *Handler) asOf(c echo.Context) time.Time {
	if t, ok := ParseAsOf(c.QueryParam("as_of")); ok {
		return t
	}
	return h.svc.now()
}

// Commit applies a batch of graph events.
// POST /api/kg/commit
func (h *Handler) Commit(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	var req CommitRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid commit payload")
	}

	resp, err := h.svc.Commit(c.Request().Context(), tenantID, req.Events)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// GetNode returns a node at a point in time with neighbor expansion.
// GET /api/kg/node/:uid
func (h *Handler) GetNode(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	uid := c.Param("uid")
	if uid == "" {
		return apperror.ErrBadRequest.WithMessage("uid is required")
	}

	resp, err := h.svc.GetNode(c.Request().Context(), tenantID, uid,
		h.asOf(c),
		intParam(c, "depth", 1),
		intParam(c, "limit", defaultLimit),
		intParam(c, "edges_offset", 0),
		intParam(c, "edges_limit", defaultLimit),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// BatchNodes resolves a comma-separated uid list at a point in time.
// GET /api/kg/nodes
func (h *Handler) BatchNodes(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.BatchNodes(c.Request().Context(), tenantID,
		c.QueryParam("ids"),
		h.asOf(c),
		intParam(c, "offset", 0),
		intParam(c, "limit", defaultLimit),
	)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// FindNodes searches nodes by type, uid prefix, and property filters.
// GET /api/kg/find
func (h *Handler) FindNodes(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	params := FindParams{
		AsOf:         h.asOf(c),
		Type:         c.QueryParam("type"),
		UIDPrefix:    c.QueryParam("uid_prefix"),
		PropContains: c.QueryParam("prop_contains"),
		PropKey:      c.QueryParam("prop_key"),
		PropValue:    c.QueryParam("prop_value"),
		PropOp:       c.QueryParam("prop_op"),
		Offset:       intParam(c, "offset", 0),
		Limit:        intParam(c, "limit", defaultLimit),
	}

	resp, err := h.svc.FindNodes(c.Request().Context(), tenantID, params, c.QueryParam("cursor"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Edges lists edges around a node.
// GET /api/kg/edges
func (h *Handler) Edges(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	uid := c.QueryParam("uid")
	if uid == "" {
		return apperror.ErrBadRequest.WithMessage("uid is required")
	}

	params := EdgeParams{
		AsOf:      h.asOf(c),
		UID:       uid,
		Direction: c.QueryParam("direction"),
		Type:      c.QueryParam("type"),
		Offset:    intParam(c, "offset", 0),
		Limit:     intParam(c, "limit", defaultLimit),
	}

	resp, err := h.svc.Edges(c.Request().Context(), tenantID, params, c.QueryParam("cursor"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// History lists every version of a node, newest first.
// GET /api/kg/node/:uid/history
func (h *Handler) History(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.History(c.Request().Context(), tenantID, c.Param("uid"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Diff compares a node between two instants.
// GET /api/kg/node/:uid/diff
func (h *Handler) Diff(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	fromTS, ok := ParseAsOf(c.QueryParam("from_ts"))
	if !ok {
		return apperror.ErrBadRequest.WithMessage("from_ts is required")
	}
	toTS, ok := ParseAsOf(c.QueryParam("to_ts"))
	if !ok {
		return apperror.ErrBadRequest.WithMessage("to_ts is required")
	}

	resp, err := h.svc.Diff(c.Request().Context(), tenantID, c.Param("uid"), fromTS, toTS)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Stats returns tenant-scoped totals.
// GET /api/kg/stats
func (h *Handler) Stats(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.Stats(c.Request().Context(), tenantID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// CreateSnapshot captures and signs the open graph state.
// POST /api/kg/snapshot
func (h *Handler) CreateSnapshot(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	var req SnapshotRequest
	if err := c.Bind(&req); err != nil {
		return apperror.ErrBadRequest.WithMessage("invalid snapshot payload")
	}

	resp, err := h.svc.Snapshot(c.Request().Context(), tenantID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// ListSnapshots returns the latest snapshots.
// GET /api/kg/snapshots
func (h *Handler) ListSnapshots(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.ListSnapshots(c.Request().Context(), tenantID, intParam(c, "limit", 20))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"snapshots": resp})
}

// GetSnapshot fetches one snapshot by hash.
// GET /api/kg/snapshot/:hash
func (h *Handler) GetSnapshot(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	resp, err := h.svc.SnapshotByHash(c.Request().Context(), tenantID, c.Param("hash"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// SignSnapshot regenerates the signature of an existing snapshot.
// POST /api/kg/snapshot/sign
func (h *Handler) SignSnapshot(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	var req SignRequest
	if err := c.Bind(&req); err != nil || req.SnapshotHash == "" {
		return apperror.ErrBadRequest.WithMessage("snapshot_hash is required")
	}

	resp, err := h.svc.Sign(c.Request().Context(), tenantID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// AttestSnapshot attaches external signature material to a snapshot.
// POST /api/kg/snapshot/attest
func (h *Handler) AttestSnapshot(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	var req AttestRequest
	if err := c.Bind(&req); err != nil || req.SnapshotHash == "" {
		return apperror.ErrBadRequest.WithMessage("snapshot_hash is required")
	}

	resp, err := h.svc.Attest(c.Request().Context(), tenantID, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}

// Verify checks signature material against a snapshot hash.
// POST /api/kg/verify
func (h *Handler) Verify(c echo.Context) error {
	tenantID, err := tenantOf(c)
	if err != nil {
		return err
	}

	var req VerifyRequest
	if err := c.Bind(&req); err != nil || req.SnapshotHash == "" {
		return apperror.ErrBadRequest.WithMessage("snapshot_hash is required")
	}

	outcome := h.svc.VerifySnapshot(c.Request().Context(), tenantID, req)
	return c.JSON(http.StatusOK, outcome)
}
