package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/grantflow/backend/internal/services"
	"github.com/grantflow/backend/pkg/contract"
)

// AuditLog records admin write operations (POST/PUT/DELETE) to system_logs
// under module "admin", e.g. action PROPOSAL_APPROVE or CLAIM_REJECT.
func AuditLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		method := c.Request.Method
		if method != "POST" && method != "PUT" && method != "DELETE" {
			c.Next()
			return
		}

		var body []byte
		if c.Request.Body != nil {
			body, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
		}

		c.Next()

		if GetRole(c) != string(contract.RoleAdmin) {
			return
		}

		userID := GetUserID(c)
		status := c.Writer.Status()
		action := auditAction(c.FullPath(), method, body)
		message := formatAuditMessage(GetUsername(c), method, c.Request.URL.Path, status)

		bodySnippet := string(body)
		if len(bodySnippet) > 2000 {
			bodySnippet = bodySnippet[:2000] + "...[truncated]"
		}

		var uid *uint
		if userID > 0 {
			uid = &userID
		}
		extra := map[string]interface{}{
			"method": method,
			"path":   c.Request.URL.Path,
			"status": status,
			"body":   maskSensitiveFields(bodySnippet),
		}
		level := services.AuditInfo
		if status >= 400 {
			level = services.AuditWarning
		}
		services.RecordAudit(level, services.AuditEntry{
			Module:    "admin",
			Action:    action,
			Message:   message,
			UserID:    uid,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			Extra:     extra,
		})
	}
}

var auditEntities = map[string]string{
	"proposals": "PROPOSAL",
	"milestone": "MILESTONE",
	"rfws":      "RFW",
	"worker":    "WORKER",
	"tags":      "TAG",
	"users":     "USER",
	"auth":      "AUTH",
}

// auditAction names a route for the audit log. The entity is the last noun
// in the route and the verb is the segment after it, or the HTTP method.
// "/api/v1/proposals/:id/milestone/:msId/paid" → MILESTONE_PAID.
func auditAction(fullPath, method string, body []byte) string {
	path := strings.TrimPrefix(fullPath, "/api/v1/")

	var statics []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" && !strings.HasPrefix(seg, ":") {
			statics = append(statics, seg)
		}
	}
	if len(statics) == 0 {
		return "UNKNOWN"
	}

	entity, verb := "", ""
	for _, seg := range statics {
		if e, ok := auditEntities[seg]; ok {
			entity, verb = e, ""
			continue
		}
		verb = seg
	}
	if entity == "" {
		entity = strings.ToUpper(statics[0])
	}
	// bounty milestone reviews act on a claim
	if entity == "MILESTONE" && statics[0] == "rfws" {
		entity = "CLAIM"
	}

	if verb == "" {
		switch method {
		case "POST":
			verb = "create"
		case "PUT":
			verb = "update"
		case "DELETE":
			verb = "delete"
		}
	}
	if verb == "approve" && isFalse(body, "isApprove") {
		verb = "reject"
	}
	if verb == "accept" && isFalse(body, "isAccept") {
		verb = "reject"
	}
	return entity + "_" + strings.ToUpper(verb)
}

func isFalse(body []byte, field string) bool {
	var fields map[string]interface{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return false
	}
	v, ok := fields[field].(bool)
	return ok && !v
}

// formatAuditMessage creates a human-readable audit message.
func formatAuditMessage(username, method, path string, status int) string {
	var b strings.Builder
	b.WriteString("[Audit] ")
	b.WriteString(username)
	b.WriteString(" ")
	b.WriteString(method)
	b.WriteString(" ")
	b.WriteString(path)
	b.WriteString(" → ")
	if status >= 200 && status < 300 {
		b.WriteString("OK")
	} else {
		b.WriteString("Failed")
	}
	return b.String()
}

// maskSensitiveFields replaces sensitive values in JSON body
func maskSensitiveFields(body string) string {
	sensitiveKeys := []string{"password", "oldPassword", "newPassword", "secret", "token"}
	lower := strings.ToLower(body)
	for _, key := range sensitiveKeys {
		if strings.Contains(lower, strings.ToLower(key)) {
			body = maskJSONValue(body, strings.ToLower(key))
		}
	}
	return body
}

// maskJSONValue does a best-effort mask of JSON string values for a given key
func maskJSONValue(body, key string) string {
	lower := strings.ToLower(body)
	idx := strings.Index(lower, "\""+key+"\"")
	if idx == -1 {
		return body
	}

	colonIdx := strings.Index(body[idx+len(key)+2:], ":")
	if colonIdx == -1 {
		return body
	}
	valueStart := idx + len(key) + 2 + colonIdx + 1

	for valueStart < len(body) && (body[valueStart] == ' ' || body[valueStart] == '\t') {
		valueStart++
	}

	if valueStart >= len(body) {
		return body
	}

	if body[valueStart] == '"' {
		endQuote := strings.Index(body[valueStart+1:], "\"")
		if endQuote == -1 {
			return body
		}
		return body[:valueStart+1] + "***" + body[valueStart+1+endQuote:]
	}

	return body
}
