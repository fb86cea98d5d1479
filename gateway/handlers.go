package gateway

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/example/takeout/pkg/models"
	"github.com/example/takeout/pkg/service"
	"github.com/gin-gonic/gin"
)

const timeLayout = "2006-01-02 15:04:05"

type cartRequest struct {
	ItemKind string `json:"itemKind" binding:"required"`
	ItemID   int64  `json:"itemId,string" binding:"required"`
	Flavor   string `json:"flavor"`
}

type submitRequest struct {
	AddressBookID int64  `json:"addressBookId,string" binding:"required"`
	Remark        string `json:"remark"`
	PayMethod     int    `json:"payMethod"`
}

func (g *Gateway) bindCart(c *gin.Context) (service.ItemRef, string, bool) {
	var req cartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return service.ItemRef{}, "", false
	}
	return service.ItemRef{Kind: models.ItemKind(req.ItemKind), ID: req.ItemID}, req.Flavor, true
}

func (g *Gateway) addToCart(c *gin.Context) {
	ref, flavor, ok := g.bindCart(c)
	if !ok {
		return
	}
	entry, err := g.services.Cart.AddOrIncrement(c.Request.Context(), currentUserID(c), ref, flavor)
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, entry)
}

func (g *Gateway) subFromCart(c *gin.Context) {
	ref, flavor, ok := g.bindCart(c)
	if !ok {
		return
	}
	entry, err := g.services.Cart.DecrementOrRemove(c.Request.Context(), currentUserID(c), ref, flavor)
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, entry)
}

func (g *Gateway) listCart(c *gin.Context) {
	entries, err := g.services.Cart.List(c.Request.Context(), currentUserID(c))
	if err != nil {
		g.fail(c, err)
		return
	}
	if entries == nil {
		entries = []models.CartEntry{}
	}
	success(c, entries)
}

func (g *Gateway) clearCart(c *gin.Context) {
	if err := g.services.Cart.Clear(c.Request.Context(), currentUserID(c)); err != nil {
		g.fail(c, err)
		return
	}
	success(c, nil)
}

func (g *Gateway) submitOrder(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "invalid request body")
		return
	}

	order, err := g.services.Orders.Submit(c.Request.Context(), currentUserID(c), service.DraftOrder{
		AddressBookID:  req.AddressBookID,
		Remark:         req.Remark,
		PayMethod:      req.PayMethod,
		IdempotencyKey: c.GetHeader(idempotencyHeader),
	})
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, order)
}

func (g *Gateway) listDishes(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Query("categoryId"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "categoryId is required")
		return
	}
	dishes, err := g.services.Catalog.ListDishes(c.Request.Context(), categoryID)
	if err != nil {
		g.fail(c, err)
		return
	}
	if dishes == nil {
		dishes = []models.Dish{}
	}
	success(c, dishes)
}

func (g *Gateway) listCombos(c *gin.Context) {
	categoryID, err := strconv.ParseInt(c.Query("categoryId"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "categoryId is required")
		return
	}
	combos, err := g.services.Catalog.ListCombos(c.Request.Context(), categoryID)
	if err != nil {
		g.fail(c, err)
		return
	}
	if combos == nil {
		combos = []models.Combo{}
	}
	success(c, combos)
}

// parseIDs reads a comma separated id list such as "1,2,3".
func parseIDs(raw string) ([]int64, bool) {
	if raw == "" {
		return nil, false
	}
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, false
		}
		ids = append(ids, id)
	}
	return ids, true
}

func (g *Gateway) setStatus(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := strconv.Atoi(c.Param("status"))
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid status")
			return
		}
		ids, ok := parseIDs(c.Query("ids"))
		if !ok {
			abort(c, http.StatusBadRequest, "invalid ids")
			return
		}
		if err := g.services.Lifecycle.SetStatus(c.Request.Context(), kind, ids, models.SaleStatus(status)); err != nil {
			g.fail(c, err)
			return
		}
		success(c, nil)
	}
}

func (g *Gateway) deleteItems(kind models.ItemKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		ids, ok := parseIDs(c.Query("ids"))
		if !ok {
			abort(c, http.StatusBadRequest, "invalid ids")
			return
		}
		if err := g.services.Lifecycle.Delete(c.Request.Context(), kind, ids); err != nil {
			g.fail(c, err)
			return
		}
		success(c, nil)
	}
}

func parseTime(raw string) (*time.Time, bool) {
	if raw == "" {
		return nil, true
	}
	t, err := time.ParseInLocation(timeLayout, raw, time.Local)
	if err != nil {
		return nil, false
	}
	return &t, true
}

func (g *Gateway) pageOrders(c *gin.Context) {
	q := service.OrderPageQuery{}
	q.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	q.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "10"))

	if raw := c.Query("number"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			abort(c, http.StatusBadRequest, "invalid order number")
			return
		}
		q.Number = &n
	}

	var ok bool
	if q.BeginTime, ok = parseTime(c.Query("beginTime")); !ok {
		abort(c, http.StatusBadRequest, "beginTime must look like "+timeLayout)
		return
	}
	if q.EndTime, ok = parseTime(c.Query("endTime")); !ok {
		abort(c, http.StatusBadRequest, "endTime must look like "+timeLayout)
		return
	}

	page, err := g.services.Orders.Page(c.Request.Context(), q)
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, page)
}

func (g *Gateway) getOrder(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid order id")
		return
	}
	order, err := g.services.Orders.Get(c.Request.Context(), id)
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, order)
}

func (g *Gateway) removeCategory(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		abort(c, http.StatusBadRequest, "invalid category id")
		return
	}
	if err := g.services.Catalog.RemoveCategory(c.Request.Context(), id); err != nil {
		g.fail(c, err)
		return
	}
	success(c, nil)
}

func (g *Gateway) listAudit(c *gin.Context) {
	entityID := c.Query("entityId")
	if entityID == "" {
		abort(c, http.StatusBadRequest, "entityId is required")
		return
	}
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "50"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 50
	}
	logs, err := g.services.Audit.GetAuditLogs(c.Request.Context(), entityID, limit)
	if err != nil {
		g.fail(c, err)
		return
	}
	success(c, logs)
}
