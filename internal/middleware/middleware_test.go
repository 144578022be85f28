package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-gradebook-api/internal/models"
	appErrors "github.com/noah-isme/sma-gradebook-api/pkg/errors"
)

type stubValidator struct {
	claims *models.JWTClaims
	err    error
	got    string
}

func (s *stubValidator) ValidateToken(token string) (*models.JWTClaims, error) {
	s.got = token
	return s.claims, s.err
}

type recordingAudit struct {
	mu   sync.Mutex
	logs []models.AuditLog
}

func (r *recordingAudit) Create(ctx context.Context, log *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, *log)
	return nil
}

func perform(engine *gin.Engine, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "inst-1", Role: models.RoleTeacher}}

	r := gin.New()
	r.GET("/private", JWT(validator), func(c *gin.Context) {
		claims := c.MustGet(ContextUserKey).(*models.JWTClaims)
		c.String(http.StatusOK, claims.UserID)
	})

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/private", "").Code)
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/private", "Token abc").Code)

	w := perform(r, http.MethodGet, "/private", "Bearer abc")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inst-1", w.Body.String())
	assert.Equal(t, "abc", validator.got)

	validator.err = appErrors.Clone(appErrors.ErrUnauthorized, "token expired")
	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/private", "Bearer abc").Code)
}

func TestRequireRoles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &stubValidator{}

	r := gin.New()
	r.GET("/teach", JWT(validator), RequireRoles(models.RoleTeacher), func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/open", RequireRoles(models.RoleTeacher), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	validator.claims = &models.JWTClaims{UserID: "inst-1", Role: models.RoleTeacher}
	assert.Equal(t, http.StatusNoContent, perform(r, http.MethodGet, "/teach", "Bearer t").Code)

	validator.claims = &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent}
	assert.Equal(t, http.StatusForbidden, perform(r, http.MethodGet, "/teach", "Bearer t").Code)

	assert.Equal(t, http.StatusUnauthorized, perform(r, http.MethodGet, "/open", "").Code)
}

func TestAuditRecordsSuccessfulMutations(t *testing.T) {
	gin.SetMode(gin.TestMode)
	validator := &stubValidator{claims: &models.JWTClaims{UserID: "inst-1", Role: models.RoleTeacher}}
	audit := &recordingAudit{}

	r := gin.New()
	r.POST("/submissions/:id/grade", JWT(validator), Audit(audit, nil, models.AuditActionGrade, "submission"), func(c *gin.Context) {
		if c.Param("id") == "bad" {
			c.Status(http.StatusBadRequest)
			return
		}
		c.Status(http.StatusOK)
	})

	assert.Equal(t, http.StatusOK, perform(r, http.MethodPost, "/submissions/sub-1/grade", "Bearer t").Code)
	assert.Equal(t, http.StatusBadRequest, perform(r, http.MethodPost, "/submissions/bad/grade", "Bearer t").Code)

	require.Len(t, audit.logs, 1)
	entry := audit.logs[0]
	assert.Equal(t, models.AuditActionGrade, entry.Action)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, "inst-1", *entry.UserID)
	require.NotNil(t, entry.ResourceID)
	assert.Equal(t, "sub-1", *entry.ResourceID)
	assert.Contains(t, string(entry.NewValues), "/submissions/:id/grade")
}
