// Package reqctx carries per-request identity through gin handlers.
package reqctx

import "github.com/gin-gonic/gin"

const tenantIDKey = "reqctx_tenant_id"

// SetTenantID records the resolved tenant on the request.
func SetTenantID(c *gin.Context, tenantID string) {
	c.Set(tenantIDKey, tenantID)
}

// TenantID returns the resolved tenant for the request, or "".
func TenantID(c *gin.Context) string {
	return c.GetString(tenantIDKey)
}
