package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/docflowlabs/docflow-service/internal/eav"
	"github.com/docflowlabs/docflow-service/internal/projection"
	"github.com/docflowlabs/docflow-service/internal/result"
	"github.com/docflowlabs/docflow-service/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Services bundles everything the handlers need.
type Services struct {
	Documents    *service.DocumentService
	Partners     *service.PartnerService
	Objects      *eav.Store
	Views        *projection.Manager
	ExposeErrors bool
}

func RegisterHandlers(r *gin.Engine, svc Services) {
	v1 := r.Group("/v1", TenantMiddleware())
	{
		v1.POST("/documents", createDocumentHandler(svc))
		v1.PUT("/documents/:id", updateDocumentHandler(svc))
		v1.GET("/documents/:id", getDocumentHandler(svc))
		v1.GET("/documents/:id/view", getDocumentViewHandler(svc))
		v1.POST("/partners/:id/rename", renamePartnerHandler(svc))
		v1.POST("/objects", defineObjectHandler(svc))
		v1.POST("/objects/:type/records", createRecordHandler(svc))
		v1.GET("/objects/:type/records/:rid", getRecordHandler(svc))
		v1.GET("/objects/:type/records", listRecordsHandler(svc))
	}
}

// statusFor maps a command result to an HTTP status.
func statusFor(res result.Result) int {
	if res.Success {
		return http.StatusOK
	}
	if len(res.Errors) == 0 {
		return http.StatusInternalServerError
	}
	code := res.Errors[0].Code
	switch {
	case strings.HasSuffix(code, "_not_found"):
		return http.StatusNotFound
	case code == "concurrency_conflict" || strings.HasPrefix(code, "duplicate"):
		return http.StatusConflict
	case code == "forbidden":
		return http.StatusForbidden
	case code == "internal_error":
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func respond(c *gin.Context, res result.Result) {
	c.JSON(statusFor(res), res)
}

// respondErr wraps non-result returns into the shared result shape.
func respondErr(c *gin.Context, sc result.Scope, err error, expose bool) {
	respond(c, result.FromError(sc, err, expose))
}

type lineReq struct {
	LineNo      int    `json:"line_no"`
	Description string `json:"description"`
	Quantity    string `json:"quantity" binding:"required"`
	UnitPrice   string `json:"unit_price" binding:"required"`
}

type headerReq struct {
	DocNo     string `json:"doc_no" binding:"required"`
	PartnerID string `json:"partner_id"`
	Status    string `json:"status" binding:"required"`
	Notes     string `json:"notes"`
}

func parseLines(in []lineReq) ([]service.LineInput, error) {
	lines := make([]service.LineInput, 0, len(in))
	for _, l := range in {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return nil, err
		}
		lines = append(lines, service.LineInput{
			LineNo:      l.LineNo,
			Description: l.Description,
			Quantity:    qty,
			UnitPrice:   price,
		})
	}
	return lines, nil
}

type createDocumentReq struct {
	IdempotencyKey string    `json:"idempotency_key"`
	Header         headerReq `json:"header" binding:"required"`
	Lines          []lineReq `json:"lines" binding:"required"`
}

func createDocumentHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createDocumentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lines, err := parseLines(req.Lines)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line amount"})
			return
		}
		res := svc.Documents.Create(c, service.CreateDocumentCommand{
			Tenant:         tenantOf(c),
			IdempotencyKey: req.IdempotencyKey,
			Header: service.HeaderInput{
				DocNo:     req.Header.DocNo,
				PartnerID: req.Header.PartnerID,
				Status:    req.Header.Status,
				Notes:     req.Header.Notes,
			},
			Lines: lines,
		})
		respond(c, res)
	}
}

type updateDocumentReq struct {
	ExpectedVersion *uint64   `json:"expected_version"`
	Header          headerReq `json:"header" binding:"required"`
	Lines           []lineReq `json:"lines" binding:"required"`
}

func updateDocumentHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateDocumentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		lines, err := parseLines(req.Lines)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line amount"})
			return
		}
		res := svc.Documents.Update(c, service.UpdateDocumentCommand{
			Tenant:          tenantOf(c),
			DocumentID:      c.Param("id"),
			ExpectedVersion: req.ExpectedVersion,
			Header: service.HeaderInput{
				DocNo:     req.Header.DocNo,
				PartnerID: req.Header.PartnerID,
				Status:    req.Header.Status,
				Notes:     req.Header.Notes,
			},
			Lines: lines,
		})
		respond(c, res)
	}
}

func getDocumentHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := result.Scope{Tenant: tenantOf(c), Module: "document", Action: "get"}
		doc, lines, err := svc.Documents.Get(c, tenantOf(c), c.Param("id"))
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, gin.H{"document": doc, "lines": lines}))
	}
}

func getDocumentViewHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := result.Scope{Tenant: tenantOf(c), Module: "document", Action: "view"}
		view, err := svc.Views.GetDocumentView(c, tenantOf(c), c.Param("id"))
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, view))
	}
}

type renamePartnerReq struct {
	Name           string `json:"name" binding:"required"`
	IdempotencyKey string `json:"idempotency_key"`
}

func renamePartnerHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req renamePartnerReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		res := svc.Partners.Rename(c, service.RenamePartnerCommand{
			Tenant:         tenantOf(c),
			PartnerID:      c.Param("id"),
			Name:           req.Name,
			IdempotencyKey: req.IdempotencyKey,
		})
		respond(c, res)
	}
}

type defineObjectReq struct {
	TypeCode string `json:"type_code" binding:"required"`
	Fields   []struct {
		Name     string `json:"name" binding:"required"`
		DataType string `json:"data_type" binding:"required"`
		Required bool   `json:"required"`
	} `json:"fields" binding:"required"`
}

func defineObjectHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req defineObjectReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sc := result.Scope{Tenant: tenantOf(c), Module: "object", Action: "define"}
		fields := make([]eav.FieldDef, 0, len(req.Fields))
		for _, f := range req.Fields {
			fields = append(fields, eav.FieldDef{Name: f.Name, DataType: f.DataType, Required: f.Required})
		}
		def, err := svc.Objects.Define(c, tenantOf(c), req.TypeCode, fields)
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, gin.H{"type_code": def.TypeCode, "version": def.Version}))
	}
}

type createRecordReq struct {
	Values map[string]interface{} `json:"values" binding:"required"`
}

func createRecordHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createRecordReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sc := result.Scope{Tenant: tenantOf(c), Module: "object", Action: "create-record"}
		id, err := svc.Objects.CreateRecord(c, tenantOf(c), c.Param("type"), req.Values)
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, gin.H{"id": id}))
	}
}

func getRecordHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := result.Scope{Tenant: tenantOf(c), Module: "object", Action: "get-record"}
		values, err := svc.Objects.GetRecord(c, tenantOf(c), c.Param("type"), c.Param("rid"))
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, values))
	}
}

func listRecordsHandler(svc Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		sc := result.Scope{Tenant: tenantOf(c), Module: "object", Action: "list-records"}
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		desc := c.DefaultQuery("sort", "asc") == "desc"
		records, err := svc.Objects.ListRecords(c, tenantOf(c), c.Param("type"), eav.ListOptions{
			Limit:    limit,
			Offset:   offset,
			SortDesc: desc,
		})
		if err != nil {
			respondErr(c, sc, err, svc.ExposeErrors)
			return
		}
		respond(c, result.OK(sc, records))
	}
}
